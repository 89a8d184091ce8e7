package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	pkgconfig "github.com/virtualmercado/shopdrive-sub002/pkg/config"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// setEnvs is a helper that sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8010, cfg.HTTPPort)
	assert.Equal(t, ProviderModeHTTP, cfg.ProviderMode)
	assert.Equal(t, GatewayHTTP, cfg.PaymentGateway)
	assert.Equal(t, 500, cfg.EmailLookupDebounceMs)
	assert.Equal(t, 12, cfg.CarrierQuoteTimeoutSecs)
	assert.Equal(t, 15, cfg.CardTokenizeTimeoutSecs)
	assert.Equal(t, 20, cfg.OrderSubmitTimeoutSecs)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTTL())
	assert.Equal(t, 24*time.Hour, cfg.AddressCacheTTL())
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "localhost", cfg.Redis.Host)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 10*time.Second, cfg.HTTPClient.Timeout)
	assert.True(t, cfg.CacheAddresses())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"CHECKOUT_HTTP_PORT":             "9000",
		"PROVIDER_MODE":                  "mock",
		"KAFKA_BROKERS":                  "k1:9092,k2:9092",
		"REDIS_HOST":                     "cache",
		"REDIS_READ_TIMEOUT":             "1s",
		"SESSION_IDLE_TTL_MINUTES":       "45",
		"CB_TIMEOUT_SECONDS":             "7",
		"HTTP_CLIENT_MAX_RETRIES":        "4",
		"CORS_ALLOWED_ORIGINS":           "https://a.example,https://b.example",
		"STORE_DEFAULT_NAME":             "Loja Verde",
		"STORE_DEFAULT_MAX_INSTALLMENTS": "3",
	})

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, ProviderModeMock, cfg.ProviderMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, time.Second, cfg.Redis.ReadTimeout)
	assert.Equal(t, 45*time.Minute, cfg.SessionIdleTTL())
	assert.Equal(t, 4, cfg.HTTPClient.MaxRetries)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)

	cb := cfg.CircuitBreaker("identity")
	assert.Equal(t, "identity", cb.Name)
	assert.Equal(t, 7*time.Second, cb.Timeout)
	assert.Equal(t, uint32(5), cb.MinRequests)

	store, err := cfg.StoreDefaults.Settings()
	require.NoError(t, err)
	assert.Equal(t, "Loja Verde", store.Name)
	assert.Equal(t, 3, store.MaxInstallments)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{name: "port out of range", envs: map[string]string{"CHECKOUT_HTTP_PORT": "70000"}, wantErr: "invalid HTTP port"},
		{name: "unknown provider mode", envs: map[string]string{"PROVIDER_MODE": "grpc"}, wantErr: "PROVIDER_MODE"},
		{name: "unknown gateway", envs: map[string]string{"PAYMENT_GATEWAY": "paypal"}, wantErr: "PAYMENT_GATEWAY"},
		{name: "stripe without key", envs: map[string]string{"PAYMENT_GATEWAY": "stripe"}, wantErr: "STRIPE_SECRET_KEY"},
		{name: "bad sample rate", envs: map[string]string{"OTEL_SAMPLE_RATE": "2"}, wantErr: "OTEL_SAMPLE_RATE"},
		{name: "zero idle ttl", envs: map[string]string{"SESSION_IDLE_TTL_MINUTES": "0"}, wantErr: "SESSION_IDLE_TTL_MINUTES"},
		{name: "bad order url", envs: map[string]string{"ORDER_SERVICE_URL": "not a url"}, wantErr: "ORDER_SERVICE_URL"},
		{name: "bad store policy", envs: map[string]string{"PROVIDER_MODE": "mock", "STORE_DEFAULT_DELIVERY_POLICY": "teleport"}, wantErr: "STORE_DEFAULT_DELIVERY_POLICY"},
		{name: "bad store payment", envs: map[string]string{"PROVIDER_MODE": "mock", "STORE_DEFAULT_PAYMENT_METHODS": "pix,cash"}, wantErr: "cash"},
		{name: "short jwt secret in production", envs: map[string]string{"ENVIRONMENT": "production", "AUTH_JWT_SECRET": "short"}, wantErr: "AUTH_JWT_SECRET"},
		{name: "not a number", envs: map[string]string{"CHECKOUT_HTTP_PORT": "abc"}, wantErr: "load checkout config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, tt.envs)

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MockModeSkipsURLs(t *testing.T) {
	setEnvs(t, map[string]string{"PROVIDER_MODE": "mock", "ORDER_SERVICE_URL": "not a url"})

	_, err := Load()

	assert.NoError(t, err)
}

func TestLoad_FromEnvironmentMap(t *testing.T) {
	cfg, err := Load(pkgconfig.WithEnvironment(map[string]string{
		"PROVIDER_MODE":      "mock",
		"CHECKOUT_HTTP_PORT": "8443",
	}))

	require.NoError(t, err)
	assert.Equal(t, ProviderModeMock, cfg.ProviderMode)
	assert.Equal(t, 8443, cfg.HTTPPort)
	assert.Equal(t, 500, cfg.EmailLookupDebounceMs)
}

func TestLoad_JWTSecretInDevelopment(t *testing.T) {
	cfg, err := Load(pkgconfig.WithEnvironment(map[string]string{"AUTH_JWT_SECRET": "dev"}))

	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AuthJWTSecret)
}

func TestStoreDefaults_Settings(t *testing.T) {
	d := StoreDefaults{
		Name:                "Loja",
		Currency:            "BRL",
		DeliveryPolicy:      domain.PolicyPickupOnly,
		CarrierServices:     []string{"sedex:SEDEX", " pac ", ""},
		PaymentMethods:      []string{"pix", "whatsapp"},
		PixDiscountPercent:  "7.5",
		MaxInstallments:     1,
		LocalCourierEnabled: true,
		LocalCourierFee:     800,
		LocalCourierDays:    2,
	}

	s, err := d.Settings()

	require.NoError(t, err)
	assert.Equal(t, []domain.CarrierService{{ID: "sedex", Name: "SEDEX"}, {ID: "pac", Name: "PAC"}}, s.CarrierServices)
	assert.Equal(t, []string{domain.PaymentPix, domain.PaymentWhatsApp}, s.PaymentMethods)
	assert.Equal(t, money.MustPercent("7.5"), s.PixDiscountPercent)
	assert.Equal(t, money.FromCents(800), s.LocalCourier.FlatFee)
	assert.True(t, s.LocalCourier.Enabled)
	assert.Empty(t, s.ID)
}

func TestStoreDefaults_InvalidPercent(t *testing.T) {
	d := StoreDefaults{DeliveryPolicy: domain.PolicyPickupOnly, PixDiscountPercent: "lots"}

	_, err := d.Settings()

	assert.ErrorContains(t, err, "PIX_DISCOUNT_PERCENT")
}
