// Package server exposes the HTTP API over the document and template
// services. Routing is plumbing; all lifecycle semantics live in the
// services.
package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/facturasv/dte-engine/internal/config"
	documentdomain "github.com/facturasv/dte-engine/internal/document/domain"
	"github.com/facturasv/dte-engine/internal/observability/metrics"
	"github.com/facturasv/dte-engine/internal/observability/tracing"
	"github.com/facturasv/dte-engine/internal/scheduler"
	templatedomain "github.com/facturasv/dte-engine/internal/template/domain"
)

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)

type Server struct {
	engine *gin.Engine
	db     *gorm.DB
	log    *zap.Logger
	cfg    config.Config

	docSvc      documentdomain.Service
	templateSvc templatedomain.Service
	sched       *scheduler.Scheduler
}

type ServerParam struct {
	fx.In

	Engine      *gin.Engine
	DB          *gorm.DB
	Log         *zap.Logger
	Config      config.Config
	DocSvc      documentdomain.Service
	TemplateSvc templatedomain.Service
	Scheduler   *scheduler.Scheduler
}

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(tracing.GinMiddleware())
	engine.Use(metrics.GinMiddleware(metrics.HTTP()))
	return engine
}

func NewServer(p ServerParam) *Server {
	return &Server{
		engine:      p.Engine,
		db:          p.DB,
		log:         p.Log.Named("server"),
		cfg:         p.Config,
		docSvc:      p.DocSvc,
		templateSvc: p.TemplateSvc,
		sched:       p.Scheduler,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/healthz", s.Healthz)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	{
		api.POST("/documents", s.CreateDocument)
		api.GET("/documents", s.ListDocuments)
		api.GET("/documents/:id", s.GetDocument)
		api.POST("/documents/:id/sign", s.SignDocument)
		api.POST("/documents/:id/transmit", s.TransmitDocument)
		api.POST("/documents/:id/cancel", s.CancelDocument)

		api.POST("/templates", s.CreateTemplate)
		api.GET("/templates", s.ListTemplates)
		api.GET("/templates/:id", s.GetTemplate)
		api.GET("/templates/:id/history", s.TemplateHistory)
		api.POST("/templates/:id/pause", s.PauseTemplate)
		api.POST("/templates/:id/resume", s.ResumeTemplate)
		api.POST("/templates/:id/cancel", s.CancelTemplate)
		api.POST("/templates/:id/run", s.RunTemplateNow)
	}
}

func (s *Server) Healthz(c *gin.Context) {
	sqlDB, err := s.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RunHTTP starts the HTTP listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: engine,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTP.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}
