package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/adscope/billing/internal/app/api/handlers"
	mw "github.com/adscope/billing/internal/app/api/middleware"
	"github.com/adscope/billing/internal/app/service/idempo"
	cfgpkg "github.com/adscope/billing/pkg/config"
	"github.com/adscope/billing/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request tracing only; request logger & access log are attached per group
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	m *metrics.Registry,
	guard *idempo.Guard,
	webhookH *handlers.WebhookHandler,
	ledgerH *handlers.LedgerHandler,
	adminH *handlers.AdminHandler,
) {
	r.Use(m.Middleware())
	if cfg.MetricsAddr != "" {
		m.Serve(cfg.MetricsAddr, log)
		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	idem := mw.IdempotencyMiddleware(guard)

	// Public group: health + gateway webhook intake
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	handlers.RegisterWebhookRoutes(pub, webhookH)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterLedgerRoutes(apiV1, ledgerH, idem)
	handlers.RegisterAdminRoutes(apiV1.Group("/admin"), adminH, idem)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(
		newEngine,
		handlers.NewWebhookHandler,
		handlers.NewLedgerHandler,
		handlers.NewAdminHandler,
	),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
