package invalidate

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/modserve/modserve/internal/cache"
)

// Watcher 是主动失效策略：WatchSet 覆盖所有已缓存单元的输入文件，
// 任意一个文件的变更事件都会整体清空缓存。不维护反向依赖索引，
// 用全量失效换取正确性（共享依赖变更会波及全部依赖方）。
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     cache.Store
	logger    *logrus.Logger
	debounce  time.Duration

	mu      sync.Mutex
	watched map[string]struct{}
	timer   *time.Timer
}

// NewWatcher 构造文件监听策略；fsnotify 初始化失败是致命错误。
func NewWatcher(store cache.Store, logger *logrus.Logger, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		store:     store,
		logger:    logger,
		debounce:  debounce,
		watched:   make(map[string]struct{}),
	}, nil
}

func (w *Watcher) Name() string { return "watch" }

// Valid 在监听模式下恒为 true：失效完全由变更事件驱动，
// 仍在缓存中的条目即是新鲜的。
func (w *Watcher) Valid(unit *cache.Unit) bool {
	return unit != nil
}

// Track 把新的输入文件加入 WatchSet。单个文件注册失败只记录日志并
// 跳过，监听对该路径降级为空操作，不影响进程。
func (w *Watcher) Track(paths ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := w.watched[path]; ok {
			continue
		}
		if err := w.fsWatcher.Add(path); err != nil {
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "watch_add_failed",
				"path":   path,
			}).Warn("无法监听文件，该路径降级为被动模式")
			continue
		}
		w.watched[path] = struct{}{}
	}
}

// Start 启动事件循环；ctx 取消或 Close 后循环退出。
func (w *Watcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Close 停止监听并释放 fsnotify 资源。
func (w *Watcher) Close() error {
	return w.fsWatcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).WithFields(logrus.Fields{
				"action": "watch_error",
			}).Warn("文件监听错误")
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		// fsnotify 已丢弃该路径的监听，允许后续 Track 重新注册。
		delete(w.watched, event.Name)
	}
	w.scheduleInvalidationLocked(event.Name)
	w.mu.Unlock()
}

// scheduleInvalidationLocked 去抖合并密集写入，到期后整体清空缓存。
func (w *Watcher) scheduleInvalidationLocked(path string) {
	fire := func() {
		entries := w.store.Len()
		w.store.InvalidateAll()
		w.logger.WithFields(logrus.Fields{
			"action":  "watch_invalidate",
			"path":    path,
			"entries": entries,
		}).Info("检测到文件变更，清空翻译缓存")
	}

	if w.debounce <= 0 {
		fire()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, fire)
}
