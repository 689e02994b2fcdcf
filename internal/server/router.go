package server

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/static"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/modserve/modserve/internal/cache"
	"github.com/modserve/modserve/internal/version"
)

// TranslateHandler describes the component responsible for classifying and
// answering translation requests. It allows injecting fake handlers during
// tests.
type TranslateHandler interface {
	Handle(fiber.Ctx) error
}

// TranslateHandlerFunc adapts a function to the TranslateHandler interface.
type TranslateHandlerFunc func(fiber.Ctx) error

// Handle makes TranslateHandlerFunc satisfy TranslateHandler.
func (f TranslateHandlerFunc) Handle(c fiber.Ctx) error {
	return f(c)
}

// AppOptions controls how the Fiber application should behave.
type AppOptions struct {
	Logger     *logrus.Logger
	Translator TranslateHandler
	Store      cache.Store
	ServeRoot  string
	ListenPort int

	// BackendName/WatchMode 仅用于诊断接口展示。
	BackendName string
	WatchMode   string
}

const contextKeyRequestID = "_modserve_request_id"

// NewApp builds a Fiber application: recovery + request IDs, the diagnostics
// route, the translation middleware and the static fallback, in that order.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Translator == nil {
		return nil, errors.New("translate handler is required")
	}
	if opts.ServeRoot == "" {
		return nil, errors.New("serve root is required")
	}
	if opts.ListenPort <= 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestIDMiddleware())

	registerStatusRoute(app, opts)

	app.Use(func(c fiber.Ctx) error {
		return opts.Translator.Handle(c)
	})

	// 静态回退：非翻译请求与未知路径最终落到这里。
	app.Use(static.New(opts.ServeRoot))

	return app, nil
}

// requestIDMiddleware 负责生成请求 ID 并写入响应头。
func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// RequestID 从请求上下文取回中间件生成的请求 ID。
func RequestID(c fiber.Ctx) string {
	if value, ok := c.Locals(contextKeyRequestID).(string); ok {
		return value
	}
	return ""
}

// registerStatusRoute 暴露 /-/status 诊断接口，供运维查询后端与缓存状态。
func registerStatusRoute(app *fiber.App, opts AppOptions) {
	app.Get("/-/status", func(c fiber.Ctx) error {
		payload := fiber.Map{
			"version":    version.Full(),
			"backend":    opts.BackendName,
			"watch_mode": opts.WatchMode,
		}
		if opts.Store != nil {
			units := opts.Store.Snapshot()
			paths := make([]string, 0, len(units))
			for _, unit := range units {
				paths = append(paths, unit.Path)
			}
			payload["cache_entries"] = opts.Store.Len()
			payload["cached_paths"] = paths
		}
		return c.JSON(payload)
	})
}
