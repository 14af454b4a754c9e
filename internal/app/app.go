package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tulip-tech/order-service/internal/domain/order"
	"github.com/tulip-tech/order-service/internal/handler"
	"github.com/tulip-tech/order-service/internal/remote"
	"github.com/tulip-tech/order-service/internal/storage/postgres"
	"github.com/tulip-tech/order-service/pkg/breaker"
	"github.com/tulip-tech/order-service/pkg/health"
	"github.com/tulip-tech/order-service/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := newServices(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg,
		postgres.NewOrderStore(pool), pool,
	)
	if err != nil {
		return err
	}
	healthSvc := svc.health
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           svc.handler,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// services is the wired order API: the middleware-wrapped handler and the
// health probes it serves.
type services struct {
	handler http.Handler
	health  *health.Health
}

func newServices(
	ctx context.Context,
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
	store order.Store,
	db health.Pinger,
) (*services, error) {
	// Remote clients.
	clientOpts := []remote.Option{
		remote.WithTracerProvider(tp),
		remote.WithMeterProvider(mp),
	}
	products, err := remote.NewProductClient(cfg.Inventory, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create product client")
	}
	payments, err := remote.NewPaymentClient(cfg.Payment, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create payment client")
	}

	// One breaker per guarded dependency.
	breakerOpts := []breaker.Option{
		breaker.WithLogger(lg),
		breaker.WithMeterProvider(mp),
	}
	inventoryGuard, err := breaker.New(order.DependencyInventory, cfg.Breakers.Inventory, breakerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create inventory breaker")
	}
	paymentGuard, err := breaker.New(order.DependencyPayment, cfg.Breakers.Payment, breakerOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "create payment breaker")
	}

	// Health check service.
	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(db))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddReport("breakers", breakerReport(inventoryGuard, paymentGuard))

	// Domain services.
	domainOpts := []order.Option{
		order.WithTracerProvider(tp),
		order.WithMeterProvider(mp),
	}
	orderService := order.NewService(store, products, payments,
		order.Guards{Inventory: inventoryGuard, Payment: paymentGuard},
		append(domainOpts, order.WithPayerLabel(cfg.PayerLabel))...,
	)
	aggregator := order.NewAggregator(store, products, payments,
		append(domainOpts, order.WithWorkers(cfg.Enrichment.Workers))...,
	)

	// Mux: health endpoints + order API on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(orderService, aggregator).Register(mux)

	return &services{
		health: healthSvc,
		handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Rate:  cfg.RateLimit.Rate,
				Burst: cfg.RateLimit.Burst,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
			httpmiddleware.Instrument("order-service", telemetry{tp: tp, mp: mp}),
			httpmiddleware.LogRequests(),
		),
	}, nil
}

type telemetry struct {
	tp trace.TracerProvider
	mp metric.MeterProvider
}

func (t telemetry) TracerProvider() trace.TracerProvider { return t.tp }
func (t telemetry) MeterProvider() metric.MeterProvider { return t.mp }

// breakerReport exposes the current state of each guard by name.
func breakerReport(guards ...*breaker.Guard) health.ReportFunc {
	return func() map[string]string {
		out := make(map[string]string, len(guards))
		for _, g := range guards {
			out[g.Name()] = g.State().String()
		}
		return out
	}
}
