package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/smallbiznis/sentra/internal/audit/domain"
	"github.com/smallbiznis/sentra/internal/config"
	credentialdomain "github.com/smallbiznis/sentra/internal/credential/domain"
	obsmetrics "github.com/smallbiznis/sentra/internal/observability/metrics"
	"github.com/smallbiznis/sentra/internal/orchestrator"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(ActorContext())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())
	return r
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	GenID         *snowflake.Node
	CredentialSvc credentialdomain.Service
	AuditSvc      auditdomain.Service
	Orchestrator  *orchestrator.Orchestrator
	Metrics       *obsmetrics.Metrics `optional:"true"`
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	genID         *snowflake.Node
	credentialSvc credentialdomain.Service
	auditSvc      auditdomain.Service
	orch          *orchestrator.Orchestrator
	metrics       *obsmetrics.Metrics
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		credentialSvc: p.CredentialSvc,
		auditSvc:      p.AuditSvc,
		orch:          p.Orchestrator,
		metrics:       p.Metrics,
	}
}

// Engine exposes the underlying router, primarily for tests.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func RegisterRoutes(s *Server) {
	r := s.engine

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/evaluate", s.Evaluate)

		credentials := v1.Group("/credentials")
		{
			credentials.GET("", s.ListCredentials)
			credentials.POST("", s.CreateCredential)
			credentials.GET("/scopes", s.ListCredentialScopes)
			credentials.POST("/:id/rotate", s.RotateCredential)
			credentials.DELETE("/:id", s.RevokeCredential)
		}

		auditEvents := v1.Group("/audit-events")
		{
			auditEvents.GET("", s.ListAuditEvents)
			auditEvents.GET("/stats", s.AuditStats)
			auditEvents.GET("/export", s.ExportAuditEvents)
		}
	}
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
