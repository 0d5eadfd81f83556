package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/pulse/pkg/analytics"
	"github.com/platinummonkey/pulse/pkg/api"
	"github.com/platinummonkey/pulse/pkg/auth"
	"github.com/platinummonkey/pulse/pkg/config"
	"github.com/platinummonkey/pulse/pkg/middleware"
	"github.com/platinummonkey/pulse/pkg/observability"
	"github.com/platinummonkey/pulse/pkg/storage/postgres"
	"github.com/platinummonkey/pulse/pkg/tokencache"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		os.Stderr.WriteString("configuration error: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("starting pulse")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx := context.Background()
	providers, err := observability.InitOTel(ctx, cfg.Observability.OTel(), logger)
	if err != nil {
		logger.WithError(err).Error("OpenTelemetry initialization failed")
		os.Exit(1)
	}

	db, err := postgres.Connect(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("database connection failed")
		os.Exit(1)
	}

	redisClient, err := tokencache.NewRedisClient(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("redis connection failed")
		os.Exit(1)
	}

	users := postgres.NewUserStore(db)
	events := postgres.NewEventStore(db)
	cache := tokencache.New(redisClient, cfg.Storage.TokenCachePrefix)
	codec := auth.NewCodec(cfg.Auth.Codec())
	issuer := auth.NewIssuer(codec, cache)
	service := analytics.NewService(db)

	authMW := middleware.NewAuthMiddleware(codec, users, cfg.Auth.BenchmarkToken, logger)
	var rateLimit *middleware.RateLimitMiddleware
	if cfg.Server.RateLimitEnabled {
		rateLimit = middleware.NewRateLimitMiddleware(redisClient, &middleware.RateLimitConfig{
			RequestsPerWindow: cfg.Server.RateLimitRequests,
			WindowDuration:    cfg.Server.RateLimitWindow,
		}, logger)
	}

	server := api.NewServer(api.ServerOptions{
		Users:          users,
		Events:         events,
		Issuer:         issuer,
		Cache:          cache,
		Analytics:      service,
		AuthMiddleware: authMW,
		RateLimit:      rateLimit,
		Metrics:        metrics,
		Logger:         logger,
	})

	var handler http.Handler = server
	handler = observability.HTTPMetricsMiddleware(metrics)(handler)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "pulse-api")
	}

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics live on their own port, outside the rate limiter
	// and auth middleware.
	healthMux := http.NewServeMux()
	checker := observability.NewHealthChecker(db, redisClient)
	observability.RegisterHealthRoutes(healthMux, checker)
	if cfg.Observability.MetricsEnabled {
		observability.RegisterMetricsEndpoint(healthMux, registry)
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	scheduler := startGaugeRefresh(cfg.Observability.GaugeRefreshSchedule, db, metrics, logger)

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout)
	shutdown.RegisterServer(apiServer)
	shutdown.RegisterServer(healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if scheduler != nil {
			<-scheduler.Stop().Done()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return redisClient.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})
	if providers != nil {
		shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
			return observability.ShutdownOTel(ctx, providers, logger)
		})
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("health server listening")
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return shutdown.WaitForShutdown()
	})

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("pulse stopped")
}

// startGaugeRefresh schedules the periodic gauge updates: db pool stats,
// total users and events, from the live stores. Returns nil when the
// schedule is empty.
func startGaugeRefresh(schedule string, db *sql.DB, metrics *observability.Metrics, logger *observability.Logger) *cron.Cron {
	if schedule == "" {
		return nil
	}

	users := postgres.NewUserStore(db)
	events := postgres.NewEventStore(db)

	refresh := func() {
		defer observability.RecoverPanic(logger, "gauge refresh")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		metrics.CollectDBStats(db)
		if total, err := users.CountUsers(ctx); err != nil {
			logger.WithError(err).Warn("user count refresh failed")
		} else {
			metrics.UsersTotal.Set(float64(total))
		}
		if total, err := events.CountEvents(ctx); err != nil {
			logger.WithError(err).Warn("event count refresh failed")
		} else {
			metrics.EventsTotal.Set(float64(total))
		}
	}

	c := cron.New()
	if _, err := c.AddFunc(schedule, refresh); err != nil {
		logger.WithError(err).Errorf("invalid gauge refresh schedule %q", schedule)
		return nil
	}
	refresh()
	c.Start()
	logger.WithField("schedule", schedule).Info("gauge refresh scheduled")
	return c
}
