package invalidate

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/modserve/modserve/internal/cache"
)

func newTestWatcher(t *testing.T, store cache.Store) *Watcher {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	w, err := NewWatcher(store, logger, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("watcher error: %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func waitForEmptyStore(t *testing.T, store cache.Store) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if store.Len() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("缓存未在期限内被清空，剩余 %d 条", store.Len())
}

func TestWatcherClearsCacheOnWrite(t *testing.T) {
	dir := t.TempDir()
	watchedPath := filepath.Join(dir, "dep.js")
	if err := os.WriteFile(watchedPath, []byte("module.exports = 1;\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := cache.NewStore()
	store.Put(&cache.Unit{Path: "/srv/a.js", Code: "a"})
	store.Put(&cache.Unit{Path: "/srv/b.js", Code: "b"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newTestWatcher(t, store)
	w.Start(ctx)
	w.Track(watchedPath)

	if err := os.WriteFile(watchedPath, []byte("module.exports = 2;\n"), 0o644); err != nil {
		t.Fatalf("rewrite fixture: %v", err)
	}

	// 共享依赖的一次变更应清空全部条目，而不只是单个依赖方。
	waitForEmptyStore(t, store)
}

func TestWatcherClearsCacheOnRemove(t *testing.T) {
	dir := t.TempDir()
	watchedPath := filepath.Join(dir, "mod.js")
	if err := os.WriteFile(watchedPath, []byte("var x = 1;\n"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	store := cache.NewStore()
	store.Put(&cache.Unit{Path: "/srv/mod.js", Code: "m"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := newTestWatcher(t, store)
	w.Start(ctx)
	w.Track(watchedPath)

	if err := os.Remove(watchedPath); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}
	waitForEmptyStore(t, store)
}

func TestWatcherTrackMissingFileDegrades(t *testing.T) {
	store := cache.NewStore()
	w := newTestWatcher(t, store)

	// 注册不存在的路径不应 panic，也不应影响后续注册。
	w.Track(filepath.Join(t.TempDir(), "absent.js"))

	dir := t.TempDir()
	real := filepath.Join(dir, "real.js")
	if err := os.WriteFile(real, []byte("ok"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	w.Track(real)
}

func TestWatcherValidAlwaysTrueForCachedUnits(t *testing.T) {
	store := cache.NewStore()
	w := newTestWatcher(t, store)
	if !w.Valid(&cache.Unit{Path: "/srv/a.js"}) {
		t.Fatalf("监听模式下缓存命中应视为有效")
	}
	if w.Valid(nil) {
		t.Fatalf("nil 单元不应有效")
	}
}
