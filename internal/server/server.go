// Package server exposes the HTTP surface: the webhook receiver, a small
// read API for billing state, and the operational endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	billingdomain "github.com/renderforge/billing/internal/billing/domain"
	"github.com/renderforge/billing/internal/config"
	ledgerdomain "github.com/renderforge/billing/internal/ledger/domain"
	"github.com/renderforge/billing/internal/observability"
	obslogger "github.com/renderforge/billing/internal/observability/logger"
	obstracing "github.com/renderforge/billing/internal/observability/tracing"
	"github.com/renderforge/billing/internal/ratelimit"
	webhookdomain "github.com/renderforge/billing/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{Debug: obsCfg.Debug()}))
	r.Use(obstracing.GinMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	webhookSvc webhookdomain.Service
	billingSvc billingdomain.Service
	ledgerSvc  ledgerdomain.Service
	limiter    *ratelimit.WebhookLimiter
}

type Params struct {
	fx.In

	Engine     *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	WebhookSvc webhookdomain.Service
	BillingSvc billingdomain.Service
	LedgerSvc  ledgerdomain.Service
	Limiter    *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p Params) *Server {
	s := &Server{
		engine:     p.Engine,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		webhookSvc: p.WebhookSvc,
		billingSvc: p.BillingSvc,
		ledgerSvc:  p.LedgerSvc,
		limiter:    p.Limiter,
	}

	v1 := s.engine.Group("/v1")
	v1.POST("/webhooks/:provider", s.HandleWebhook)
	v1.GET("/users/:user_id/billing", s.HandleGetUserBilling)

	return s
}

func run(lc fx.Lifecycle, s *Server, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

var Module = fx.Module("http.server",
	fx.Provide(NewEngine, NewServer),
	fx.Invoke(run),
)
