package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/metrics"
)

// CacheStatus reports on the listing cache.
type CacheStatus interface {
	Ping(ctx context.Context) error
	GetStats() cache.Stats
}

type routerConfig struct {
	cache       CacheStatus
	pingTimeout time.Duration
}

type RouterOption func(*routerConfig)

// WithCacheStatus makes /healthz check the listing cache and mounts
// /cache/stats.
func WithCacheStatus(cs CacheStatus) RouterOption {
	return func(c *routerConfig) { c.cache = cs }
}

// NewRouter mounts the handler under /api/v1 with tracing, request ids,
// access logs, /metrics and /healthz.
func NewRouter(serviceName string, h *Handler, reg *metrics.Registry, log *zap.Logger, opts ...RouterOption) *gin.Engine {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := routerConfig{pingTimeout: 2 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}
	r := gin.New()
	r.Use(gin.Recovery(), otelgin.Middleware(serviceName), RequestID(), AccessLog(log))

	r.GET("/healthz", func(c *gin.Context) {
		if cfg.cache == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), cfg.pingTimeout)
		defer cancel()
		if err := cfg.cache.Ping(ctx); err != nil {
			log.Warn("list cache ping failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "cache": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "cache": "ok"})
	})
	if cfg.cache != nil {
		r.GET("/cache/stats", func(c *gin.Context) {
			Success(c, cfg.cache.GetStats())
		})
	}
	if reg != nil {
		r.GET("/metrics", gin.WrapH(reg.Handler()))
	}
	h.Register(r.Group("/api/v1"))
	return r
}
