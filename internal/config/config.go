package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	pkgconfig "github.com/virtualmercado/shopdrive-sub002/pkg/config"
	"github.com/virtualmercado/shopdrive-sub002/pkg/database"
	"github.com/virtualmercado/shopdrive-sub002/pkg/httpclient"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// Provider modes.
const (
	ProviderModeHTTP = "http"
	ProviderModeMock = "mock"
)

// Payment gateway backends.
const (
	GatewayHTTP   = "http"
	GatewayStripe = "stripe"
)

// Config holds all configuration for the checkout service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CHECKOUT_HTTP_PORT" envDefault:"8010"`

	// Collaborators. "mock" serves everything from memory.
	ProviderMode       string `env:"PROVIDER_MODE" envDefault:"http"`
	IdentityServiceURL string `env:"IDENTITY_SERVICE_URL" envDefault:"http://localhost:8001"`
	CarrierServiceURL  string `env:"CARRIER_SERVICE_URL" envDefault:"http://localhost:8011"`
	AddressServiceURL  string `env:"ADDRESS_SERVICE_URL" envDefault:"http://localhost:8012"`
	OrderServiceURL    string `env:"ORDER_SERVICE_URL" envDefault:"http://localhost:8003"`
	StoreServiceURL    string `env:"STORE_SERVICE_URL" envDefault:"http://localhost:8002"`

	// Card tokenization
	PaymentGateway    string `env:"PAYMENT_GATEWAY" envDefault:"http"`
	PaymentGatewayURL string `env:"PAYMENT_GATEWAY_URL" envDefault:"http://localhost:8005"`
	StripeSecretKey   string `env:"STRIPE_SECRET_KEY"`

	// Collaborator timeouts
	EmailLookupDebounceMs    int `env:"EMAIL_LOOKUP_DEBOUNCE_MS" envDefault:"500"`
	EmailLookupTimeoutMs     int `env:"EMAIL_LOOKUP_TIMEOUT_MS" envDefault:"3000"`
	CarrierQuoteTimeoutSecs  int `env:"CARRIER_QUOTE_TIMEOUT_SECONDS" envDefault:"12"`
	AddressLookupTimeoutSecs int `env:"ADDRESS_LOOKUP_TIMEOUT_SECONDS" envDefault:"5"`
	CardTokenizeTimeoutSecs  int `env:"CARD_TOKENIZE_TIMEOUT_SECONDS" envDefault:"15"`
	OrderSubmitTimeoutSecs   int `env:"ORDER_SUBMIT_TIMEOUT_SECONDS" envDefault:"20"`

	// Transport shared by the collaborator clients
	HTTPClient httpclient.Config `envPrefix:"HTTP_CLIENT_"`

	// Circuit breaker settings for collaborator calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"15"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Address cache. An empty REDIS_HOST disables it.
	Redis                  database.RedisConfig `envPrefix:"REDIS_"`
	AddressCacheEnabled    bool                 `env:"ADDRESS_CACHE_ENABLED" envDefault:"true"`
	AddressCacheTTLHours   int                  `env:"ADDRESS_CACHE_TTL_HOURS" envDefault:"24"`
	AddressNotFoundTTLMins int                  `env:"ADDRESS_NOT_FOUND_TTL_MINUTES" envDefault:"10"`
	SlowCacheCommandMs     int                  `env:"LOG_SLOW_CACHE_MS" envDefault:"50"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	EventsEnabled bool     `env:"EVENTS_ENABLED" envDefault:"true"`

	// Sessions
	SessionIdleTTLMins      int `env:"SESSION_IDLE_TTL_MINUTES" envDefault:"30"`
	SessionSweepIntervalSec int `env:"SESSION_SWEEP_INTERVAL_SECONDS" envDefault:"60"`
	LoginAttemptsPerMinute  int `env:"LOGIN_ATTEMPTS_PER_MINUTE" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Bearer tokens signed by the identity service. When empty, X-User-ID
	// set by the upstream gateway is trusted as is.
	AuthJWTSecret string `env:"AUTH_JWT_SECRET"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Store settings served by the static directory in mock mode.
	StoreDefaults StoreDefaults `envPrefix:"STORE_DEFAULT_"`
}

// StoreDefaults is the settings template for stores in mock mode.
type StoreDefaults struct {
	Name                string   `env:"NAME" envDefault:"Loja Demo"`
	Currency            string   `env:"CURRENCY" envDefault:"BRL"`
	DeliveryPolicy      string   `env:"DELIVERY_POLICY" envDefault:"delivery_and_pickup"`
	CarrierServices     []string `env:"CARRIER_SERVICES" envDefault:"sedex:SEDEX,pac:PAC" envSeparator:","`
	PaymentMethods      []string `env:"PAYMENT_METHODS" envDefault:"pix,credit_card,boleto" envSeparator:","`
	PixDiscountPercent  string   `env:"PIX_DISCOUNT_PERCENT" envDefault:"5"`
	MaxInstallments     int      `env:"MAX_INSTALLMENTS" envDefault:"6"`
	RequiredGuestFields []string `env:"REQUIRED_GUEST_FIELDS" envSeparator:","`
	WhatsAppNumber      string   `env:"WHATSAPP_NUMBER"`
	PickupAddress       string   `env:"PICKUP_ADDRESS"`
	LocalCourierEnabled bool     `env:"LOCAL_COURIER_ENABLED" envDefault:"false"`
	LocalCourierFee     int64    `env:"LOCAL_COURIER_FEE_CENTS" envDefault:"1000"`
	LocalCourierFreeAt  int64    `env:"LOCAL_COURIER_FREE_ABOVE_CENTS" envDefault:"0"`
	LocalCourierDays    int      `env:"LOCAL_COURIER_DAYS" envDefault:"1"`
}

// Load reads configuration from environment variables.
func Load(opts ...pkgconfig.Option) (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg, opts...); err != nil {
		return nil, fmt.Errorf("load checkout config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.ProviderMode != ProviderModeHTTP && c.ProviderMode != ProviderModeMock {
		return fmt.Errorf("PROVIDER_MODE must be %q or %q, got %q", ProviderModeHTTP, ProviderModeMock, c.ProviderMode)
	}
	if c.PaymentGateway != GatewayHTTP && c.PaymentGateway != GatewayStripe {
		return fmt.Errorf("PAYMENT_GATEWAY must be %q or %q, got %q", GatewayHTTP, GatewayStripe, c.PaymentGateway)
	}
	if c.PaymentGateway == GatewayStripe && c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required when PAYMENT_GATEWAY is %q", GatewayStripe)
	}
	if c.EventsEnabled && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when EVENTS_ENABLED is set")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.SessionIdleTTLMins < 1 {
		return fmt.Errorf("SESSION_IDLE_TTL_MINUTES must be positive, got %d", c.SessionIdleTTLMins)
	}
	if c.AuthJWTSecret != "" && !c.IsDevelopment() && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters long, got %d", len(c.AuthJWTSecret))
	}
	if c.LoginAttemptsPerMinute < 1 {
		return fmt.Errorf("LOGIN_ATTEMPTS_PER_MINUTE must be positive, got %d", c.LoginAttemptsPerMinute)
	}

	if c.ProviderMode == ProviderModeHTTP {
		urls := map[string]string{
			"IDENTITY_SERVICE_URL": c.IdentityServiceURL,
			"CARRIER_SERVICE_URL":  c.CarrierServiceURL,
			"ADDRESS_SERVICE_URL":  c.AddressServiceURL,
			"ORDER_SERVICE_URL":    c.OrderServiceURL,
			"STORE_SERVICE_URL":    c.StoreServiceURL,
		}
		if c.PaymentGateway == GatewayHTTP {
			urls["PAYMENT_GATEWAY_URL"] = c.PaymentGatewayURL
		}
		for name, rawURL := range urls {
			if rawURL == "" {
				return fmt.Errorf("%s is required", name)
			}
			if _, err := url.ParseRequestURI(rawURL); err != nil {
				return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
			}
		}
		return nil
	}

	if _, err := c.StoreDefaults.Settings(); err != nil {
		return err
	}
	return nil
}

// CacheAddresses reports whether the Redis address cache is configured.
func (c *Config) CacheAddresses() bool {
	return c.AddressCacheEnabled && c.Redis.Host != ""
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SessionIdleTTL is how long a session survives without activity.
func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.SessionIdleTTLMins) * time.Minute
}

// AddressCacheTTL is how long a found address hint stays cached.
func (c *Config) AddressCacheTTL() time.Duration {
	return time.Duration(c.AddressCacheTTLHours) * time.Hour
}

// AddressNotFoundTTL is how long an unknown postal code stays cached.
func (c *Config) AddressNotFoundTTL() time.Duration {
	return time.Duration(c.AddressNotFoundTTLMins) * time.Minute
}

// CircuitBreaker returns the breaker settings for a named collaborator.
func (c *Config) CircuitBreaker(name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// Settings converts the defaults into store settings. The store ID is
// filled in per request by the directory.
func (d StoreDefaults) Settings() (domain.StoreSettings, error) {
	if !domain.IsValidPolicy(d.DeliveryPolicy) {
		return domain.StoreSettings{}, fmt.Errorf("invalid STORE_DEFAULT_DELIVERY_POLICY %q", d.DeliveryPolicy)
	}
	pix, err := money.ParsePercent(d.PixDiscountPercent)
	if err != nil {
		return domain.StoreSettings{}, fmt.Errorf("invalid STORE_DEFAULT_PIX_DISCOUNT_PERCENT: %w", err)
	}

	services := make([]domain.CarrierService, 0, len(d.CarrierServices))
	for _, raw := range d.CarrierServices {
		id, name, ok := strings.Cut(strings.TrimSpace(raw), ":")
		if id == "" {
			continue
		}
		if !ok {
			name = strings.ToUpper(id)
		}
		services = append(services, domain.CarrierService{ID: id, Name: name})
	}

	methods := make([]string, 0, len(d.PaymentMethods))
	for _, m := range d.PaymentMethods {
		m = strings.TrimSpace(m)
		if !domain.IsValidPaymentMethod(m) {
			return domain.StoreSettings{}, fmt.Errorf("invalid STORE_DEFAULT_PAYMENT_METHODS entry %q", m)
		}
		methods = append(methods, m)
	}

	return domain.StoreSettings{
		Name:            d.Name,
		Currency:        d.Currency,
		DeliveryPolicy:  d.DeliveryPolicy,
		CarrierServices: services,
		LocalCourier: domain.LocalCourierRule{
			Enabled:       d.LocalCourierEnabled,
			FlatFee:       money.FromCents(d.LocalCourierFee),
			FreeAbove:     money.FromCents(d.LocalCourierFreeAt),
			EstimatedDays: d.LocalCourierDays,
		},
		PaymentMethods:      methods,
		PixDiscountPercent:  pix,
		MaxInstallments:     d.MaxInstallments,
		RequiredGuestFields: d.RequiredGuestFields,
		WhatsAppNumber:      d.WhatsAppNumber,
		PickupAddress:       d.PickupAddress,
	}, nil
}
