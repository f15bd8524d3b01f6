// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"synapse-knowledge-api/internal/config"
	"synapse-knowledge-api/internal/interfaces/http/handler"
	"synapse-knowledge-api/internal/interfaces/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	engine  *gin.Engine
	cfg     *config.Config
	limiter middleware.RateLimiter
}

// Handlers 路由依赖的处理器集合
type Handlers struct {
	Health    *handler.HealthHandler
	Knowledge *handler.KnowledgeHandler
	Sync      *handler.SyncHandler
}

// New 创建新的路由器
func New(cfg *config.Config, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:  gin.New(),
		cfg:     cfg,
		limiter: limiter,
	}

	r.setupMiddleware()
	r.setupRoutes(handlers)

	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// setupMiddleware 配置中间件
func (r *Router) setupMiddleware() {
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())

	r.engine.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins: r.cfg.Security.CORS.AllowedOrigins,
		AllowedMethods: r.cfg.Security.CORS.AllowedMethods,
		AllowedHeaders: r.cfg.Security.CORS.AllowedHeaders,
	}))

	if r.cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(r.cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}

	if r.cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}

	r.engine.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Enabled:           r.cfg.Security.RateLimit.Enabled,
		RequestsPerSecond: r.cfg.Security.RateLimit.RequestsPerSecond,
	}, r.limiter))
}

// setupRoutes 配置路由
func (r *Router) setupRoutes(h Handlers) {
	// 系统端点
	r.engine.GET("/health", h.Health.Health)
	r.engine.GET("/ready", h.Health.Ready)
	r.engine.GET("/live", h.Health.Live)

	if r.cfg.Observability.Metrics.Enabled {
		path := r.cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	{
		// 文档摄取
		v1.POST("/documents", h.Knowledge.Upload)

		// 知识问答
		v1.POST("/query", h.Knowledge.Query)
		v1.POST("/query/transform", h.Knowledge.Transform)

		// 上下文管理
		v1.DELETE("/contexts/:cid", h.Knowledge.DeleteContext)

		// 数据源同步
		sync := v1.Group("/sync")
		{
			sync.POST("/slack", h.Sync.SubmitSlack)
			sync.POST("/github", h.Sync.SubmitGitHub)
		}

		// 任务管理
		jobs := v1.Group("/jobs")
		{
			jobs.GET("", h.Sync.ListJobs)
			jobs.GET("/:jid", h.Sync.GetJob)
			jobs.POST("/:jid/cancel", h.Sync.CancelJob)
		}
	}
}
