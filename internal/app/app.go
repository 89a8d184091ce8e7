package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/virtualmercado/shopdrive-sub002/internal/checkout"
	"github.com/virtualmercado/shopdrive-sub002/internal/config"
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/event"
	handler "github.com/virtualmercado/shopdrive-sub002/internal/handler/http"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	providerhttp "github.com/virtualmercado/shopdrive-sub002/internal/provider/http"
	providermock "github.com/virtualmercado/shopdrive-sub002/internal/provider/mock"
	providerredis "github.com/virtualmercado/shopdrive-sub002/internal/provider/redis"
	providerstripe "github.com/virtualmercado/shopdrive-sub002/internal/provider/stripe"
	"github.com/virtualmercado/shopdrive-sub002/internal/service"
	"github.com/virtualmercado/shopdrive-sub002/pkg/database"
	"github.com/virtualmercado/shopdrive-sub002/pkg/health"
	"github.com/virtualmercado/shopdrive-sub002/pkg/httpclient"
	pkgkafka "github.com/virtualmercado/shopdrive-sub002/pkg/kafka"
	"github.com/virtualmercado/shopdrive-sub002/pkg/middleware"
	"github.com/virtualmercado/shopdrive-sub002/pkg/tracing"
)

// App wires together all dependencies and runs the checkout service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	service        *service.CheckoutService
	producer       *pkgkafka.Producer
	redis          *redis.Client
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "checkout",
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	a := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}
	healthHandler := health.NewHandler()

	// Build the collaborators.
	deps, stores, err := a.buildProviders()
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, err
	}

	// Address hints are cached in Redis when it is reachable. The hint is
	// optional so a missing cache only costs latency.
	if cfg.CacheAddresses() {
		client, err := database.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn("redis unavailable, address cache disabled",
				slog.String("addr", cfg.Redis.Addr()),
				slog.String("error", err.Error()),
			)
		} else {
			a.redis = client
			deps.Addresses = providerredis.NewAddressCache(deps.Addresses, client, cfg.AddressCacheTTL(), cfg.AddressNotFoundTTL(), logger)
			healthHandler.RegisterNonCritical("redis", database.RedisChecker(client))
			if cfg.SlowCacheCommandMs > 0 {
				database.SetSlowCommandLogging(time.Duration(cfg.SlowCacheCommandMs)*time.Millisecond, logger)
			}
			logger.Info("address cache enabled", slog.String("addr", cfg.Redis.Addr()))
		}
	}

	// Initialize Kafka producer.
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		deps.Events = event.NewProducer(a.producer, logger)
		healthHandler.RegisterNonCritical("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	a.service = service.NewCheckoutService(stores, deps, service.Config{
		IdleTTL:       cfg.SessionIdleTTL(),
		SweepInterval: time.Duration(cfg.SessionSweepIntervalSec) * time.Second,
		Session: checkout.Options{
			EmailDebounce:          time.Duration(cfg.EmailLookupDebounceMs) * time.Millisecond,
			EmailLookupTimeout:     time.Duration(cfg.EmailLookupTimeoutMs) * time.Millisecond,
			QuoteTimeout:           time.Duration(cfg.CarrierQuoteTimeoutSecs) * time.Second,
			AddressLookupTimeout:   time.Duration(cfg.AddressLookupTimeoutSecs) * time.Second,
			TokenizeTimeout:        time.Duration(cfg.CardTokenizeTimeoutSecs) * time.Second,
			SubmitTimeout:          time.Duration(cfg.OrderSubmitTimeoutSecs) * time.Second,
			LoginAttemptsPerMinute: cfg.LoginAttemptsPerMinute,
		},
	}, logger)

	// HTTP router.
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment
	router := handler.NewRouter(a.service, healthHandler, corsCfg, cfg.AuthJWTSecret, logger)

	// No WriteTimeout: session event streams stay open. Regular routes are
	// bounded by the router's timeout middleware.
	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// buildProviders selects the collaborator implementations for the configured
// provider mode.
func (a *App) buildProviders() (checkout.Dependencies, provider.StoreDirectory, error) {
	cfg := a.cfg

	if cfg.ProviderMode == config.ProviderModeMock {
		defaults, err := cfg.StoreDefaults.Settings()
		if err != nil {
			return checkout.Dependencies{}, nil, err
		}
		account, err := demoAccount()
		if err != nil {
			return checkout.Dependencies{}, nil, err
		}
		a.logger.Info("using in-memory collaborators", slog.String("store", defaults.Name))
		deps := checkout.Dependencies{
			Identity:  providermock.NewIdentityStore(account),
			Rates:     providermock.NewCarrierRates(providermock.DefaultRates(), 200*time.Millisecond),
			Addresses: providermock.NewAddressLookup(providermock.DefaultAddresses()),
			Gateway:   providermock.NewPaymentGateway(),
			Orders:    providermock.NewOrderService(),
		}
		if cfg.PaymentGateway == config.GatewayStripe {
			gw, err := a.stripeGateway()
			if err != nil {
				return checkout.Dependencies{}, nil, err
			}
			deps.Gateway = gw
		}
		return deps, providermock.NewStoreDirectory(&defaults), nil
	}

	// Each collaborator gets its own breaker so one failing service does not
	// cut the others off.
	baseClient := httpclient.New(cfg.HTTPClient)
	client := func(name string) *httpclient.CircuitBreakerClient {
		cbCfg := cfg.CircuitBreaker(name)
		a.logger.Info("circuit breaker initialized",
			slog.String("name", cbCfg.Name),
			slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
			slog.Int("timeout_seconds", cfg.CBTimeout),
			slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
		)
		return httpclient.NewCircuitBreakerClient(baseClient, cbCfg, a.logger)
	}

	deps := checkout.Dependencies{
		Identity:  providerhttp.NewIdentityStore(client("identity"), cfg.IdentityServiceURL),
		Rates:     providerhttp.NewCarrierRates(client("carrier"), cfg.CarrierServiceURL),
		Addresses: providerhttp.NewAddressLookup(client("address"), cfg.AddressServiceURL),
		Orders:    providerhttp.NewOrderService(client("order"), cfg.OrderServiceURL),
	}
	if cfg.PaymentGateway == config.GatewayStripe {
		gw, err := a.stripeGateway()
		if err != nil {
			return checkout.Dependencies{}, nil, err
		}
		deps.Gateway = gw
	} else {
		deps.Gateway = providerhttp.NewPaymentGateway(client("payment-gateway"), cfg.PaymentGatewayURL)
	}
	stores := providerhttp.NewStoreDirectory(client("store"), cfg.StoreServiceURL)
	return deps, stores, nil
}

func (a *App) stripeGateway() (*providerstripe.Gateway, error) {
	gw, err := providerstripe.NewGateway(providerstripe.Config{
		SecretKey:  a.cfg.StripeSecretKey,
		IsTestMode: a.cfg.Environment != "production",
	}, nil, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init stripe gateway: %w", err)
	}
	return gw, nil
}

// demoAccount is the customer seeded in mock mode.
func demoAccount() (providermock.Account, error) {
	return providermock.NewAccount(domain.Profile{
		CustomerID: "cus_demo",
		FullName:   "Cliente Demo",
		Email:      "demo@example.com",
		Phone:      "11999990000",
		Document:   "12345678909",
	}, "demo1234")
}

// Run starts the HTTP server and the session sweeper and blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("provider_mode", a.cfg.ProviderMode),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.service.RunSweeper(sweepCtx)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return errors.Join(err, a.Shutdown())
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. Sessions (ends open event streams so the HTTP drain can finish)
// 2. HTTP server (drain in-flight requests)
// 3. Tracer (flush pending spans from drained requests)
// 4. Kafka producer
// 5. Redis client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drop live sessions.
	a.service.Close()

	// 2. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 3. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close Redis client.
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
