// Package app wires configuration, storage, domain services and the HTTP
// server into one process.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/phongit-kha/pos-lmwn/internal/domain/order"
	"github.com/phongit-kha/pos-lmwn/internal/domain/report"
	"github.com/phongit-kha/pos-lmwn/internal/events"
	"github.com/phongit-kha/pos-lmwn/internal/handler"
	"github.com/phongit-kha/pos-lmwn/internal/storage/postgres"
	"github.com/phongit-kha/pos-lmwn/pkg/health"
	"github.com/phongit-kha/pos-lmwn/pkg/httpmiddleware"
)

// Telemetry carries the OpenTelemetry providers used by Run.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Run creates all dependencies, starts the HTTP server and the idle order
// sweeper, and handles graceful shutdown. It is the single wiring point for
// the application.
func Run(ctx context.Context, lg *zap.Logger, m Telemetry, cfg *Config) error {
	ctx = zctx.Base(ctx, lg)
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	loc, err := cfg.location()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	// Storage.
	locker, err := postgres.NewLocker(pool, postgres.LockConfig{
		Timeout:          cfg.Lock.Timeout,
		StatementTimeout: cfg.Lock.StatementTimeout,
		AcquireAttempts:  cfg.Lock.AcquireAttempts,
	},
		postgres.WithTracerProvider(m.TracerProvider),
		postgres.WithMeterProvider(m.MeterProvider),
	)
	if err != nil {
		return errors.Wrap(err, "create order locker")
	}
	orderRepo := postgres.NewOrderRepository(pool)
	productRepo := postgres.NewProductRepository(pool)
	reportRepo := postgres.NewReportRepository(pool)

	// Kitchen feed.
	opts := []order.Option{order.WithMeterProvider(m.MeterProvider)}
	if cfg.Events.AMQPURL != "" {
		pub, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Exchange)
		if err != nil {
			return errors.Wrap(err, "connect event broker")
		}
		defer func() {
			if err := pub.Close(); err != nil {
				lg.Warn("Close event publisher", zap.Error(err))
			}
		}()
		healthSvc.AddReadinessCheck("amqp", time.Second, health.PingCheck(pub))
		opts = append(opts, order.WithPublisher(pub))
		lg.Info("Publishing order events", zap.String("exchange", cfg.Events.Exchange))
	}

	// Domain services.
	orderService, err := order.NewService(locker, orderRepo, productRepo, opts...)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}
	reportService := report.NewService(reportRepo, loc, nil)
	sweeper := order.NewSweeper(orderService, orderRepo, order.SweeperConfig{
		Interval:  cfg.Sweeper.Interval,
		IdleAfter: cfg.Sweeper.IdleAfter,
		Batch:     cfg.Sweeper.Batch,
	})

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Router: health endpoints + API routes on one server.
	h := handler.New(orderService, productRepo, reportService)
	router := chi.NewRouter()
	router.Use(
		httpmiddleware.Recovery(),
		httpmiddleware.CORS(httpmiddleware.CORSConfig{
			Origins:       cfg.CORS.Origins,
			Headers:       []string{"Content-Type", httpmiddleware.HeaderRequestID},
			ExposeHeaders: []string{httpmiddleware.HeaderRequestID, "Retry-After"},
			MaxAge:        86400,
		}),
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.LogRequests(),
	)
	router.Get("/livez", healthSvc.LiveEndpoint)
	router.Get("/readyz", healthSvc.ReadyEndpoint)
	router.Mount("/api", h.Routes())

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Lock.StatementTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: otelhttp.NewHandler(router, "pos-api",
			otelhttp.WithTracerProvider(m.TracerProvider),
			otelhttp.WithMeterProvider(m.MeterProvider),
		),
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if cfg.Sweeper.Interval > 0 {
			lg.Info("Starting idle order sweeper",
				zap.Duration("interval", cfg.Sweeper.Interval),
				zap.Duration("idle_after", cfg.Sweeper.IdleAfter),
			)
		}
		return sweeper.Run(gCtx)
	})
	g.Go(func() error {
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	// Graceful shutdown: wait for cancellation, drain, then stop.
	g.Go(func() error {
		<-gCtx.Done()
		healthSvc.SetReady(false)
		if ctx.Err() != nil {
			lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
			time.Sleep(cfg.Graceful.ReadinessDelay)
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		return nil
	})
	return g.Wait()
}
