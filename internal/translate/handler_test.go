package translate

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/modserve/modserve/internal/cache"
	"github.com/modserve/modserve/internal/compiler"
	"github.com/modserve/modserve/internal/config"
	"github.com/modserve/modserve/internal/invalidate"
	"github.com/modserve/modserve/internal/server"
)

// countingBackend 包装真实后端并统计编译次数，供并发合并断言使用。
type countingBackend struct {
	inner compiler.Backend
	calls atomic.Int32
	delay time.Duration
}

func (b *countingBackend) Name() string { return b.inner.Name() }

func (b *countingBackend) Translate(path string, source []byte) (*compiler.Result, error) {
	b.calls.Add(1)
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	return b.inner.Translate(path, source)
}

type fixture struct {
	root    string
	cfg     *config.Config
	store   cache.Store
	backend *countingBackend
	app     *fiber.App
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	root := t.TempDir()
	cfg := &config.Config{
		ListenPort: 4400,
		ServeRoot:  root,
		BaseURL:    "/",
		ConfigFile: "config.js",
		Compiler:   "lexer",
		DepCache:   true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	inner, err := compiler.New(cfg.Compiler)
	if err != nil {
		t.Fatalf("construct backend: %v", err)
	}
	backend := &countingBackend{inner: inner}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	store := cache.NewStore()
	handler := NewHandler(cfg, backend, store, invalidate.NewRevalidator(), logger)

	app, err := server.NewApp(server.AppOptions{
		Logger:      logger,
		Translator:  handler,
		Store:       store,
		ServeRoot:   root,
		ListenPort:  cfg.ListenPort,
		BackendName: backend.Name(),
		WatchMode:   cfg.WatchMode(),
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	return &fixture{root: root, cfg: cfg, store: store, backend: backend, app: app}
}

func (f *fixture) writeFile(t *testing.T, rel, body string) string {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
	return path
}

func (f *fixture) request(t *testing.T, method, target string, headers map[string]string) (int, map[string]string, string) {
	t.Helper()
	req := httptest.NewRequest(method, "http://modserve.local"+target, nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := f.app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	collected := map[string]string{
		"Etag":         resp.Header.Get("Etag"),
		"Content-Type": resp.Header.Get("Content-Type"),
		"Cache-Hit":    resp.Header.Get("X-Modserve-Cache-Hit"),
	}
	return resp.StatusCode, collected, string(body)
}

func withCapability() map[string]string {
	return map[string]string{fiber.HeaderAccept: CapabilityAccept}
}

func TestPassThroughWithoutCapabilityHeader(t *testing.T) {
	f := newFixture(t, nil)
	raw := "var untouched = true;\n"
	f.writeFile(t, "lib/raw.js", raw)

	status, _, body := f.request(t, "GET", "/lib/raw.js", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body != raw {
		t.Fatalf("无能力头的请求应返回原始内容: %q", body)
	}
	if f.backend.calls.Load() != 0 {
		t.Fatalf("pass-through 不应触发编译")
	}
}

func TestTranslatedResponse(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "lib/stringExport.js", "module.exports = 'works';\n")
	f.writeFile(t, "lib/requireWorking.js", "var s = require('./stringExport');\nmodule.exports = s;\n")

	status, headers, body := f.request(t, "GET", "/lib/requireWorking.js", withCapability())
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, body = %s", status, body)
	}
	if !strings.HasPrefix(body, "System.registerDynamic([") {
		t.Fatalf("响应应以注册包装开头: %q", body[:40])
	}
	if !strings.Contains(body, "module.exports = s;") {
		t.Fatalf("响应应包含原始语义内容")
	}
	if headers["Etag"] == "" {
		t.Fatalf("翻译响应必须携带 ETag")
	}
	if !strings.Contains(headers["Content-Type"], "javascript") {
		t.Fatalf("content type = %s", headers["Content-Type"])
	}
}

func TestConditionalGetRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "app.js", "var value = 1;\n")

	_, first, _ := f.request(t, "GET", "/app.js", withCapability())
	_, second, _ := f.request(t, "GET", "/app.js", withCapability())
	if first["Etag"] == "" || first["Etag"] != second["Etag"] {
		t.Fatalf("相邻两次请求的令牌应一致: %q vs %q", first["Etag"], second["Etag"])
	}
	if f.backend.calls.Load() != 1 {
		t.Fatalf("第二次请求应命中缓存，编译次数 %d", f.backend.calls.Load())
	}

	headers := withCapability()
	headers[fiber.HeaderIfNoneMatch] = first["Etag"]
	status, _, body := f.request(t, "GET", "/app.js", headers)
	if status != fiber.StatusNotModified {
		t.Fatalf("携带当前令牌应返回 304，得到 %d", status)
	}
	if body != "" {
		t.Fatalf("304 不应携带正文: %q", body)
	}
}

func TestEditInvalidatesTokenAndBody(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "app.js", "var value = 1;\n")

	_, first, _ := f.request(t, "GET", "/app.js", withCapability())

	// 两次请求之间修改文件，旧令牌必须失效
	time.Sleep(5 * time.Millisecond)
	f.writeFile(t, "app.js", "var value = 2048;\n")

	headers := withCapability()
	headers[fiber.HeaderIfNoneMatch] = first["Etag"]
	status, second, body := f.request(t, "GET", "/app.js", headers)
	if status != fiber.StatusOK {
		t.Fatalf("内容变化后旧令牌不应命中 304，得到 %d", status)
	}
	if !strings.Contains(body, "var value = 2048;") {
		t.Fatalf("响应应反映新内容: %q", body)
	}
	if second["Etag"] == first["Etag"] {
		t.Fatalf("内容变化后令牌必须改变")
	}
}

func TestDependencyEditTriggersRecompile(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "lib/dep.js", "module.exports = 1;\n")
	f.writeFile(t, "lib/main.js", "var d = require('./dep');\n")

	_, first, _ := f.request(t, "GET", "/lib/main.js", withCapability())

	time.Sleep(5 * time.Millisecond)
	f.writeFile(t, "lib/dep.js", "module.exports = 2048;\n")

	_, second, _ := f.request(t, "GET", "/lib/main.js", withCapability())
	if f.backend.calls.Load() != 2 {
		t.Fatalf("依赖变化应触发重编译，编译次数 %d", f.backend.calls.Load())
	}
	if second["Etag"] == first["Etag"] {
		t.Fatalf("依赖内容变化后令牌必须改变")
	}
}

func TestCompileFailureSurfacesDiagnostic(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "broken.js", "var s = 'no closing quote\n")

	status, _, body := f.request(t, "GET", "/broken.js", withCapability())
	if status != fiber.StatusInternalServerError {
		t.Fatalf("编译失败应返回 500，得到 %d", status)
	}
	if !strings.Contains(body, "unterminated string literal") {
		t.Fatalf("响应应包含后端原始诊断: %s", body)
	}

	// 失败不落缓存，修复后的下一次请求正常翻译
	f.writeFile(t, "broken.js", "var s = 'fixed';\n")
	status, _, _ = f.request(t, "GET", "/broken.js", withCapability())
	if status != fiber.StatusOK {
		t.Fatalf("修复后的请求应成功，得到 %d", status)
	}
}

func TestMissingFileFallsThrough(t *testing.T) {
	f := newFixture(t, nil)
	status, _, _ := f.request(t, "GET", "/absent.js", withCapability())
	if status != fiber.StatusNotFound {
		t.Fatalf("缺失文件应由回退层产出 404，得到 %d", status)
	}
}

func TestConfigArtifactAugmentation(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "config.js", "System.config({\n  depCache: {}\n});\n")
	f.writeFile(t, "lib/stringExport.js", "module.exports = 'works';\n")
	f.writeFile(t, "lib/requireWorking.js", "var s = require('./stringExport');\n")

	// 任何翻译发生之前：空映射
	status, _, body := f.request(t, "GET", "/config.js", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, "depCache: {}") {
		t.Fatalf("空缓存应渲染为 {}: %s", body)
	}

	f.request(t, "GET", "/lib/requireWorking.js", withCapability())

	_, _, body = f.request(t, "GET", "/config.js", nil)
	if !strings.Contains(body, `depCache: {"lib/requireWorking.js":["./stringExport"]}`) {
		t.Fatalf("翻译后配置产物应包含依赖映射: %s", body)
	}
}

func TestConfigArtifactBundleModeSkipsAugmentation(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) { cfg.Bundle = true })
	original := "System.config({\n  depCache: {\"keep.js\": [\"./asis\"]}\n});\n"
	f.writeFile(t, "config.js", original)

	_, _, body := f.request(t, "GET", "/config.js", nil)
	if body != original {
		t.Fatalf("Bundle 模式不应改写配置产物: %s", body)
	}
}

func TestConcurrentFirstRequestsCoalesce(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.delay = 50 * time.Millisecond
	f.writeFile(t, "shared.js", "var shared = true;\n")

	const workers = 6
	bodies := make([]string, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			status, _, body := f.request(t, "GET", "/shared.js", withCapability())
			if status != fiber.StatusOK {
				t.Errorf("worker %d status = %d", idx, status)
			}
			bodies[idx] = body
		}(i)
	}
	wg.Wait()

	if got := f.backend.calls.Load(); got != 1 {
		t.Fatalf("并发首请求应只编译一次，实际 %d 次", got)
	}
	for i := 1; i < workers; i++ {
		if bodies[i] != bodies[0] {
			t.Fatalf("所有并发响应应一致")
		}
	}
}

func TestHeadRequestOmitsBody(t *testing.T) {
	f := newFixture(t, nil)
	f.writeFile(t, "app.js", "var value = 1;\n")

	status, headers, body := f.request(t, "HEAD", "/app.js", withCapability())
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if headers["Etag"] == "" {
		t.Fatalf("HEAD 响应应携带 ETag")
	}
	if body != "" {
		t.Fatalf("HEAD 不应携带正文")
	}
}

func TestStatusRoute(t *testing.T) {
	f := newFixture(t, nil)
	status, _, body := f.request(t, "GET", "/-/status", nil)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body, `"backend":"lexer"`) {
		t.Fatalf("诊断接口应包含后端信息: %s", body)
	}
}
