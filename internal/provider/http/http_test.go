package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/httpclient"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// --- Helpers ---

func newClient(t *testing.T, name string) *httpclient.CircuitBreakerClient {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: 2 * time.Second, MaxConnsPerHost: 4}),
		httpclient.DefaultCircuitBreakerConfig(name),
		logger,
	)
}

func writeData(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": v})
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": code, "message": msg}})
}

// ============================================================================
// Identity
// ============================================================================

func TestIdentityStore_LookupByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/customers/lookup", r.URL.Path)
		assert.Equal(t, "ana+shop@example.com", r.URL.Query().Get("email"))
		writeData(w, http.StatusOK, provider.EmailMatch{Exists: true, Account: &provider.AccountSummary{CustomerID: "cus_1"}})
	}))
	defer srv.Close()

	store := NewIdentityStore(newClient(t, "identity-lookup"), srv.URL)
	match, err := store.LookupByEmail(context.Background(), "ana+shop@example.com")

	require.NoError(t, err)
	assert.True(t, match.Exists)
	require.NotNil(t, match.Account)
	assert.Equal(t, "cus_1", match.Account.CustomerID)
}

func TestIdentityStore_AuthenticateMapsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Password != "pw" {
			writeErr(w, http.StatusUnauthorized, "UNAUTHORIZED", "bad credentials")
			return
		}
		writeData(w, http.StatusOK, domain.Profile{CustomerID: "cus_1", Email: body.Email})
	}))
	defer srv.Close()

	store := NewIdentityStore(newClient(t, "identity-auth"), srv.URL)

	_, err := store.Authenticate(context.Background(), "ana@example.com", "nope")
	assert.ErrorIs(t, err, provider.ErrInvalidCredentials)

	p, err := store.Authenticate(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "cus_1", p.CustomerID)
}

func TestIdentityStore_ProfileNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "cus_x")
	}))
	defer srv.Close()

	_, err := NewIdentityStore(newClient(t, "identity-profile"), srv.URL).Profile(context.Background(), "cus_x")

	assert.ErrorIs(t, err, provider.ErrCustomerNotFound)
}

func TestIdentityStore_MagicLink(t *testing.T) {
	var called atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/auth/magic-link", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		called.Store(true)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := NewIdentityStore(newClient(t, "identity-link"), srv.URL).RequestPasswordlessLink(context.Background(), "ana@example.com")

	require.NoError(t, err)
	assert.True(t, called.Load())
}

// ============================================================================
// Shipping
// ============================================================================

func TestCarrierRates_Quote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req quoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "01310100", req.PostalCode)
		assert.Equal(t, []string{"sedex", "pac"}, req.ServiceIDs)
		writeData(w, http.StatusOK, []domain.CarrierQuote{
			{ServiceID: "sedex", PostalCode: req.PostalCode, Price: money.FromCents(2590), EstimatedDaysMin: 1, EstimatedDaysMax: 2, Available: true},
		})
	}))
	defer srv.Close()

	quotes, err := NewCarrierRates(newClient(t, "carrier-quote"), srv.URL).Quote(context.Background(), "01310100", []string{"sedex", "pac"})

	require.NoError(t, err)
	require.Len(t, quotes, 1)
	assert.Equal(t, money.FromCents(2590), quotes[0].Price)
	assert.True(t, quotes[0].Available)
}

func TestCarrierRates_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewCarrierRates(newClient(t, "carrier-5xx"), srv.URL).Quote(context.Background(), "01310100", []string{"sedex"})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestAddressLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/postal-codes/01310100" {
			writeErr(w, http.StatusNotFound, "NOT_FOUND", "postal code")
			return
		}
		writeData(w, http.StatusOK, domain.AddressHint{Street: "Avenida Paulista", City: "Sao Paulo", State: "SP"})
	}))
	defer srv.Close()
	lookup := NewAddressLookup(newClient(t, "address"), srv.URL)

	hint, err := lookup.Lookup(context.Background(), "01310100")
	require.NoError(t, err)
	assert.Equal(t, "Avenida Paulista", hint.Street)

	_, err = lookup.Lookup(context.Background(), "99999999")
	assert.ErrorIs(t, err, provider.ErrAddressNotFound)
}

// ============================================================================
// Payment gateway
// ============================================================================

func TestPaymentGateway_Tokenize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req tokenizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if req.Number == "4000000000000002" {
			writeErr(w, http.StatusUnprocessableEntity, "PAYMENT_FAILED", "insufficient funds")
			return
		}
		writeData(w, http.StatusCreated, provider.CardToken{Token: "tok_abc", Brand: "visa", Last4: req.Number[len(req.Number)-4:]})
	}))
	defer srv.Close()
	gw := NewPaymentGateway(newClient(t, "gateway"), srv.URL)

	tok, err := gw.TokenizeCard(context.Background(), provider.CardRequest{Number: "4111111111111111", ExpiryMonth: 12, ExpiryYear: 2028, CVV: "123"})
	require.NoError(t, err)
	assert.Equal(t, "tok_abc", tok.Token)
	assert.Equal(t, "1111", tok.Last4)

	_, err = gw.TokenizeCard(context.Background(), provider.CardRequest{Number: "4000000000000002"})
	assert.ErrorIs(t, err, provider.ErrCardRejected)
}

func TestPaymentGateway_TransportErrorIsNotRejection(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewPaymentGateway(newClient(t, "gateway-5xx"), srv.URL).TokenizeCard(context.Background(), provider.CardRequest{Number: "4111111111111111"})

	require.Error(t, err)
	assert.False(t, errors.Is(err, provider.ErrCardRejected))
	assert.Equal(t, int32(1), calls.Load(), "tokenization is never retried")
}

// ============================================================================
// Orders and stores
// ============================================================================

func TestOrderService_SubmitSendsIdempotencyKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "idem-1", r.Header.Get(httpclient.HeaderIdempotencyKey))
		var draft domain.OrderDraft
		require.NoError(t, json.NewDecoder(r.Body).Decode(&draft))
		assert.Equal(t, money.FromCents(9500), draft.Total)
		writeData(w, http.StatusCreated, map[string]string{"id": "ord-9"})
	}))
	defer srv.Close()

	id, err := NewOrderService(newClient(t, "orders"), srv.URL).Submit(context.Background(), domain.OrderDraft{
		IdempotencyKey: "idem-1",
		Total:          money.FromCents(9500),
	})

	require.NoError(t, err)
	assert.Equal(t, "ord-9", id)
}

func TestOrderService_ErrorMessageIsKept(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusConflict, "OUT_OF_STOCK", "product p1 is out of stock")
	}))
	defer srv.Close()

	_, err := NewOrderService(newClient(t, "orders-conflict"), srv.URL).Submit(context.Background(), domain.OrderDraft{IdempotencyKey: "k"})

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "product p1 is out of stock")
}

func TestStoreDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stores/store-1/checkout-settings" {
			writeErr(w, http.StatusNotFound, "NOT_FOUND", "store")
			return
		}
		writeData(w, http.StatusOK, domain.StoreSettings{
			Name:               "Loja Azul",
			DeliveryPolicy:     domain.PolicyPickupOnly,
			PaymentMethods:     []string{domain.PaymentPix},
			PixDiscountPercent: money.MustPercent("7.5"),
		})
	}))
	defer srv.Close()
	dir := NewStoreDirectory(newClient(t, "stores"), srv.URL)

	s, err := dir.Store(context.Background(), "store-1")
	require.NoError(t, err)
	assert.Equal(t, "store-1", s.ID)
	assert.Equal(t, "Loja Azul", s.Name)
	assert.Equal(t, "7.5", s.PixDiscountPercent.String())

	_, err = dir.Store(context.Background(), "nope")
	assert.ErrorIs(t, err, provider.ErrStoreNotFound)
}

func TestEndpoint_EscapesSegments(t *testing.T) {
	assert.Equal(t, "http://x/api/v1/customers/a%2Fb", endpoint("http://x/", "api", "v1", "customers", "a/b"))
}
