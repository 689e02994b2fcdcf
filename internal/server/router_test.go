package server

import (
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func passthroughTranslator() TranslateHandler {
	return TranslateHandlerFunc(func(c fiber.Ctx) error {
		return c.Next()
	})
}

func TestNewAppValidation(t *testing.T) {
	if _, err := NewApp(AppOptions{Translator: passthroughTranslator(), ServeRoot: "/srv", ListenPort: 4400}); err == nil {
		t.Fatalf("缺少 logger 应构造失败")
	}
	if _, err := NewApp(AppOptions{Logger: testLogger(), ServeRoot: "/srv", ListenPort: 4400}); err == nil {
		t.Fatalf("缺少 translator 应构造失败")
	}
	if _, err := NewApp(AppOptions{Logger: testLogger(), Translator: passthroughTranslator(), ListenPort: 4400}); err == nil {
		t.Fatalf("缺少 serve root 应构造失败")
	}
	if _, err := NewApp(AppOptions{Logger: testLogger(), Translator: passthroughTranslator(), ServeRoot: "/srv", ListenPort: -1}); err == nil {
		t.Fatalf("非法端口应构造失败")
	}
}

func TestRequestIDHeaderAndStaticFallback(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "plain.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	app, err := NewApp(AppOptions{
		Logger:     testLogger(),
		Translator: passthroughTranslator(),
		ServeRoot:  root,
		ListenPort: 4400,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "http://modserve.local/plain.txt", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatalf("每个响应都应携带请求 ID")
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello" {
		t.Fatalf("静态回退应返回原始内容: %q", body)
	}
}

func TestTranslatorRunsBeforeStatic(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "app.js"), []byte("raw"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	intercepting := TranslateHandlerFunc(func(c fiber.Ctx) error {
		return c.Status(fiber.StatusTeapot).SendString("intercepted")
	})

	app, err := NewApp(AppOptions{
		Logger:     testLogger(),
		Translator: intercepting,
		ServeRoot:  root,
		ListenPort: 4400,
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "http://modserve.local/app.js", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusTeapot {
		t.Fatalf("translator 应先于静态层执行，status = %d", resp.StatusCode)
	}
}

func TestStatusRouteBypassesTranslator(t *testing.T) {
	app, err := NewApp(AppOptions{
		Logger: testLogger(),
		Translator: TranslateHandlerFunc(func(c fiber.Ctx) error {
			t.Errorf("诊断路由不应进入 translator")
			return c.Next()
		}),
		ServeRoot:   t.TempDir(),
		ListenPort:  4400,
		BackendName: "lexer",
		WatchMode:   "watch",
	})
	if err != nil {
		t.Fatalf("app error: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "http://modserve.local/-/status", nil))
	if err != nil {
		t.Fatalf("app.Test error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
