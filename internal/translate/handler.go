package translate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/modserve/modserve/internal/cache"
	"github.com/modserve/modserve/internal/compiler"
	"github.com/modserve/modserve/internal/config"
	"github.com/modserve/modserve/internal/depcache"
	"github.com/modserve/modserve/internal/invalidate"
	"github.com/modserve/modserve/internal/logging"
	"github.com/modserve/modserve/internal/server"
)

// CapabilityAccept 是客户端声明可消费模块注册格式的 Accept 值。
const CapabilityAccept = "application/x-es-module"

// contentTypeJS 用于翻译产物与配置产物响应。
const contentTypeJS = "application/javascript; charset=utf-8"

// Handler 负责 orchestrate “分类 → 缓存校验 → 编译 → 响应” 的全流程，
// 对外暴露 Fiber handler，内部复用共享缓存、失效策略与编译后端。
type Handler struct {
	cfg      *config.Config
	backend  compiler.Backend
	store    cache.Store
	strategy invalidate.Strategy
	agg      *depcache.Aggregator
	logger   *logrus.Logger
}

// NewHandler constructs a translation handler with shared backend/store/strategy.
func NewHandler(
	cfg *config.Config,
	backend compiler.Backend,
	store cache.Store,
	strategy invalidate.Strategy,
	logger *logrus.Logger,
) *Handler {
	return &Handler{
		cfg:      cfg,
		backend:  backend,
		store:    store,
		strategy: strategy,
		agg:      depcache.NewAggregator(cfg.ServeRoot),
		logger:   logger,
	}
}

// Store 暴露底层缓存，供诊断接口读取条目信息。
func (h *Handler) Store() cache.Store { return h.store }

// Backend 返回当前使用的编译后端。
func (h *Handler) Backend() compiler.Backend { return h.backend }

// requestKind 是分类结果。
type requestKind int

const (
	kindPassThrough requestKind = iota
	kindConfigArtifact
	kindTranslatable
)

// classify 依据路径、扩展名与 Accept 能力头决定请求处理方式。
func (h *Handler) classify(c fiber.Ctx) requestKind {
	method := c.Method()
	if method != http.MethodGet && method != http.MethodHead {
		return kindPassThrough
	}

	urlPath := path.Clean("/" + string(c.Request().URI().Path()))
	if urlPath == h.cfg.ConfigFilePath() {
		return kindConfigArtifact
	}

	if !strings.HasSuffix(urlPath, ".js") {
		return kindPassThrough
	}
	if !strings.Contains(c.Get(fiber.HeaderAccept), CapabilityAccept) {
		// 无能力头的客户端拿到原始文件，由静态回退层提供。
		return kindPassThrough
	}
	return kindTranslatable
}

// Handle 实现 server.TranslateHandler。未命中翻译语义的请求通过
// c.Next() 交给静态文件回退层。
func (h *Handler) Handle(c fiber.Ctx) error {
	switch h.classify(c) {
	case kindConfigArtifact:
		return h.serveConfigArtifact(c)
	case kindTranslatable:
		return h.serveTranslated(c)
	default:
		return c.Next()
	}
}

func (h *Handler) serveTranslated(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	urlPath := string(c.Request().URI().Path())

	resolved, err := resolveRequestPath(h.cfg.ServeRoot, h.cfg.BaseURL, urlPath)
	if err != nil {
		return c.Next()
	}

	unit, ok := h.store.Get(resolved)
	hit := ok && h.strategy.Valid(unit)
	if !hit {
		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		unit, err = h.store.Fill(ctx, resolved, h.produce(resolved))
		if err != nil {
			return h.respondFillError(c, urlPath, requestID, started, err)
		}
	}

	c.Set(fiber.HeaderETag, unit.ETag)
	c.Set(fiber.HeaderContentType, contentTypeJS)
	c.Set("X-Modserve-Cache-Hit", fmt.Sprintf("%t", hit))

	status := fiber.StatusOK
	if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && normalizeETag(match) == unit.ETag {
		status = fiber.StatusNotModified
	}
	h.logResult(urlPath, "translate", requestID, status, hit, started, nil)

	if status == fiber.StatusNotModified || c.Method() == http.MethodHead {
		return c.Status(status).Send(nil)
	}
	return c.Status(status).SendString(unit.Code)
}

// produce 返回一次编译的 ProduceFunc：读源 → 编译 → 记录依赖指纹，
// 单元整体构建完成后才进入缓存。
func (h *Handler) produce(resolved string) cache.ProduceFunc {
	return func(ctx context.Context) (*cache.Unit, error) {
		fingerprint, source, err := cache.Snapshot(resolved)
		if err != nil {
			return nil, err
		}

		result, err := h.backend.Translate(resolved, source)
		if err != nil {
			return nil, err
		}

		depFingerprints := make(map[string]cache.Fingerprint, len(result.Dependencies))
		inputs := append(make([]string, 0, len(result.Dependencies)+1), resolved)
		for _, spec := range result.Dependencies {
			depPath := resolveDependency(h.cfg.ServeRoot, filepath.Dir(resolved), spec)
			if depPath == "" {
				continue
			}
			depFp, _, err := cache.Snapshot(depPath)
			if err != nil {
				continue
			}
			depFingerprints[depPath] = depFp
			inputs = append(inputs, depPath)
		}

		unit := &cache.Unit{
			Path:            resolved,
			Code:            result.Code,
			Deps:            result.Dependencies,
			Fingerprint:     fingerprint,
			DepFingerprints: depFingerprints,
			ETag:            cache.ComputeETag(resolved, fingerprint, depFingerprints),
			CompiledAt:      time.Now(),
		}
		h.strategy.Track(inputs...)
		return unit, nil
	}
}

// respondFillError 区分编译错误与解析错误：前者携带后端原始诊断返回
// 500，后者交给静态回退层产出 404。
func (h *Handler) respondFillError(
	c fiber.Ctx,
	urlPath, requestID string,
	started time.Time,
	err error,
) error {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		h.logResult(urlPath, "translate", requestID, fiber.StatusInternalServerError, false, started, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":      "compile_failed",
			"backend":    compileErr.Backend,
			"diagnostic": compileErr.Diagnostic,
		})
	}

	if errors.Is(err, fs.ErrNotExist) {
		return c.Next()
	}

	// 读/stat 失败按解析错误处理，记录后交给回退层。
	h.logResult(urlPath, "translate", requestID, fiber.StatusNotFound, false, started, err)
	return c.Next()
}

// serveConfigArtifact 按需把 DepCache 映射拼入配置产物；Bundle 模式下
// 产物内联依赖，跳过拼接。渲染结果本身不缓存，仅靠 ETag 协商。
func (h *Handler) serveConfigArtifact(c fiber.Ctx) error {
	started := time.Now()
	requestID := server.RequestID(c)
	urlPath := string(c.Request().URI().Path())

	artifactPath := filepath.Join(h.cfg.ServeRoot, h.cfg.ConfigFile)
	body, err := os.ReadFile(artifactPath)
	if err != nil {
		return c.Next()
	}

	if h.cfg.DepCache && !h.cfg.Bundle {
		augmented, err := h.agg.Augment(body, h.store.Snapshot())
		if err != nil {
			h.logger.WithError(err).WithFields(logrus.Fields{
				"action": "depcache_augment_failed",
				"path":   urlPath,
			}).Warn("配置产物拼接失败，返回原始内容")
		} else {
			body = augmented
		}
	}

	etag := fmt.Sprintf("%016x", xxhash.Sum64(body))
	c.Set(fiber.HeaderETag, etag)
	c.Set(fiber.HeaderContentType, contentTypeJS)

	status := fiber.StatusOK
	if match := c.Get(fiber.HeaderIfNoneMatch); match != "" && normalizeETag(match) == etag {
		status = fiber.StatusNotModified
	}
	h.logResult(urlPath, "config", requestID, status, false, started, nil)

	if status == fiber.StatusNotModified || c.Method() == http.MethodHead {
		return c.Status(status).Send(nil)
	}
	return c.Status(status).Send(body)
}

func (h *Handler) logResult(
	urlPath, kind, requestID string,
	status int,
	cacheHit bool,
	started time.Time,
	err error,
) {
	fields := logging.RequestFields(urlPath, kind, h.backend.Name(), h.strategy.Name(), cacheHit)
	fields["action"] = "translate"
	fields["status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if requestID != "" {
		fields["request_id"] = requestID
	}
	if err != nil {
		fields["error"] = err.Error()
		h.logger.WithFields(fields).Error("translate_failed")
		return
	}
	h.logger.WithFields(fields).Info("translate_complete")
}

func normalizeETag(value string) string {
	value = strings.TrimSpace(value)
	return strings.Trim(value, "\"")
}
