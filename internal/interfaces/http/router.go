package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/turtacn/psn/internal/config"
	"github.com/turtacn/psn/internal/interfaces/http/handlers"
	"github.com/turtacn/psn/internal/interfaces/http/middleware"
	"github.com/turtacn/psn/pkg/logger"
)

// Router HTTP 路由器
type Router struct {
	engine           *gin.Engine
	config           *config.Config
	logger           logger.Logger
	healthHandler    *handlers.HealthHandler
	domainHandler    *handlers.DomainHandler
	pseudonymHandler *handlers.PseudonymHandler
	observability    gin.HandlerFunc
	authenticate     gin.HandlerFunc
	authorizer       *middleware.Authorizer
	gatherer         prometheus.Gatherer
	server           *http.Server
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithObservability installs the tracing and metrics middleware.
func WithObservability(mw gin.HandlerFunc) RouterOption {
	return func(r *Router) { r.observability = mw }
}

// WithAuth protects the API group with authenticate and checks domain access through authorizer.
func WithAuth(authenticate gin.HandlerFunc, authorizer *middleware.Authorizer) RouterOption {
	return func(r *Router) {
		r.authenticate = authenticate
		r.authorizer = authorizer
	}
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) RouterOption {
	return func(r *Router) { r.gatherer = g }
}

// NewRouter 创建路由器
func NewRouter(
	cfg *config.Config,
	log logger.Logger,
	healthHandler *handlers.HealthHandler,
	domainHandler *handlers.DomainHandler,
	pseudonymHandler *handlers.PseudonymHandler,
	opts ...RouterOption,
) *Router {
	r := &Router{
		engine:           gin.New(),
		config:           cfg,
		logger:           log,
		healthHandler:    healthHandler,
		domainHandler:    domainHandler,
		pseudonymHandler: pseudonymHandler,
		gatherer:         prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        r.engine,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	return r
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes() {
	// 全局中间件
	r.engine.Use(gin.Recovery())
	r.engine.Use(middleware.RequestID())
	if r.observability != nil {
		r.engine.Use(r.observability)
	}

	if len(r.config.Server.CORSAllowedOrigins) > 0 {
		r.engine.Use(cors.New(cors.Config{
			AllowOrigins:  r.config.Server.CORSAllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders: []string{middleware.RequestIDHeader},
			MaxAge:        12 * time.Hour,
		}))
	}

	// 健康检查路由（不需要认证）
	r.engine.GET("/health/live", r.healthHandler.LivenessCheck)
	r.engine.GET("/health/ready", r.healthHandler.ReadinessCheck)

	r.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})))

	if r.config.Server.EnablePprof {
		pprof.Register(r.engine)
	}

	v1 := r.engine.Group("/api/v1")
	if r.authenticate != nil {
		v1.Use(r.authenticate)
	}

	var domainGuard gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if r.authorizer != nil {
		domainGuard = r.authorizer.RequireDomain("domain")
	}

	v1.POST("/domains", r.domainHandler.CreateDomain)
	v1.GET("/domains", r.domainHandler.ListDomains)

	domain := v1.Group("/domains/:domain", domainGuard)
	{
		domain.GET("", r.domainHandler.GetDomain)
		domain.PUT("", r.domainHandler.UpdateDomain)
		domain.DELETE("", r.domainHandler.DeleteDomain)
		domain.GET("/stats", r.domainHandler.DomainStats)
		domain.GET("/children", r.domainHandler.ListChildren)
		domain.POST("/check-digit", r.pseudonymHandler.AddCheckDigit)

		records := domain.Group("/pseudonyms")
		{
			records.POST("", r.pseudonymHandler.Allocate)
			records.GET("", r.pseudonymHandler.Lookup)
			records.PUT("", r.pseudonymHandler.Update)
			records.DELETE("", r.pseudonymHandler.Delete)

			records.POST("/batch", r.pseudonymHandler.CreateBatch)
			records.PUT("/batch", r.pseudonymHandler.UpdateBatch)
			records.DELETE("/batch", r.pseudonymHandler.DeleteBatch)

			records.GET("/:pseudonym", r.pseudonymHandler.Resolve)
			records.GET("/:pseudonym/validation", r.pseudonymHandler.Validate)
		}
	}

	// 404 处理
	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_found",
			"error_description": "The requested resource was not found",
		})
	})
}

// Engine returns the underlying gin engine.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

// Start 启动 HTTP 服务器，阻塞直到服务器关闭
func (r *Router) Start() error {
	r.logger.Info(context.Background(), "Starting HTTP server", logger.String("address", r.server.Addr))
	if err := r.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop 停止 HTTP 服务器
func (r *Router) Stop(ctx context.Context) error {
	r.logger.Info(ctx, "Stopping HTTP server...")
	return r.server.Shutdown(ctx)
}
