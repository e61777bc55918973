package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/storefront/internal/cartsync"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/config"
	"github.com/utafrali/storefront/internal/engine"
	"github.com/utafrali/storefront/internal/event"
	handler "github.com/utafrali/storefront/internal/handler/http"
	"github.com/utafrali/storefront/internal/session"
	"github.com/utafrali/storefront/pkg/health"
	"github.com/utafrali/storefront/pkg/httpclient"
	pkgkafka "github.com/utafrali/storefront/pkg/kafka"
	"github.com/utafrali/storefront/pkg/middleware"
	"github.com/utafrali/storefront/pkg/tracing"
)

// closer releases one dependency on shutdown.
type closer struct {
	name  string
	close func() error
}

// App wires together all dependencies and runs the storefront cart service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	sessions       *session.Registry
	pusher         *cartsync.Pusher
	purger         purger
	closers        []closer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "storefront",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	// Cart snapshot storage.
	store, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.closeAll()
		return nil, err
	}

	policy, err := cfg.TotalsPolicy()
	if err != nil {
		a.closeAll()
		return nil, err
	}
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTotalsPolicy(policy),
	}

	// Kafka events.
	var orderPublisher checkout.OrderPublisher
	if cfg.EventsEnabled {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher := event.NewPublisher(producer, logger)
		engineOpts = append(engineOpts, engine.WithObserver(publisher))
		orderPublisher = publisher

		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		a.closers = append(a.closers, closer{name: "kafka producer", close: producer.Close})
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Collaborators share one retrying client, each behind its own breaker.
	baseClient := httpclient.New(httpclient.DefaultConfig())

	orderClient := httpclient.NewCircuitBreakerClient(baseClient, cfg.CircuitBreaker("order-api"), logger)
	checkoutService := checkout.NewService(orderClient, cfg.OrderAPIURL, orderPublisher, logger)

	var syncer handler.CartSyncer
	if cfg.CartSyncAPIURL != "" {
		syncDoer := httpclient.NewCircuitBreakerClient(baseClient, cfg.CircuitBreaker("cart-sync-api"), logger)
		syncClient := cartsync.NewClient(syncDoer, cfg.CartSyncAPIURL)
		a.pusher = cartsync.NewPusher(syncClient, cfg.CartSyncRatePerSec, logger)
		engineOpts = append(engineOpts, engine.WithObserver(a.pusher))
		syncer = cartsync.NewSyncer(syncClient, a.pusher, logger)

		healthHandler.RegisterNonCritical("cart-sync-api", syncClient.Ping)
		logger.Info("cart sync enabled", slog.String("url", cfg.CartSyncAPIURL))
	}

	a.sessions = session.NewRegistry(store, engineOpts...)
	if a.pusher != nil {
		// Evicted sessions stop syncing; the shopper re-syncs on return.
		a.sessions.OnEvict(a.pusher.Revoke)
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	cartHandler := handler.NewCartHandler(a.sessions, checkoutService, syncer, logger)
	router := handler.NewRouter(cartHandler, healthHandler, logger, cors)

	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return a, nil
}

// Run starts the HTTP server and background workers and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	workersCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if a.pusher != nil {
		go a.pusher.Run(workersCtx)
	}
	if a.purger != nil {
		go a.runPurge(workersCtx, time.Hour)
	}
	go a.runEviction(workersCtx, time.Minute)

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		stopWorkers()
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	a.closeAll()

	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(shutdownCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
		}
	}

	a.logger.Info("application shutdown complete")
	return nil
}

// runEviction drops idle session engines once per interval.
func (a *App) runEviction(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.sessions.EvictIdle(a.cfg.SessionIdleDuration()); n > 0 {
				a.logger.Debug("evicted idle sessions", slog.Int("count", n), slog.Int("live", a.sessions.Len()))
			}
		}
	}
}

// closeAll releases dependencies in reverse order of acquisition.
func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error(c.name+" close error", slog.String("error", err.Error()))
		}
	}
	a.closers = nil
}
