package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/httpclient"
	"github.com/virtualmercado/shopdrive-sub002/pkg/tracing"
)

// PaymentGateway tokenizes cards through a gateway exposing a JSON API.
type PaymentGateway struct {
	client  JSONDoer
	baseURL string
}

// NewPaymentGateway creates a card tokenization client.
func NewPaymentGateway(client JSONDoer, baseURL string) *PaymentGateway {
	return &PaymentGateway{client: client, baseURL: baseURL}
}

type tokenizeRequest struct {
	Number      string `json:"number"`
	HolderName  string `json:"holder_name"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	CVV         string `json:"cvv"`
	TaxID       string `json:"tax_id,omitempty"`
	Brand       string `json:"brand,omitempty"`
}

// TokenizeCard exchanges raw card data for a single-use token. A 422
// PAYMENT_FAILED response is an issuer decline.
func (g *PaymentGateway) TokenizeCard(ctx context.Context, req provider.CardRequest) (tok provider.CardToken, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "gateway.TokenizeCard",
		attribute.String("card.brand", req.Brand),
	)
	defer func() { tracing.End(span, err) }()

	u := endpoint(g.baseURL, "api", "v1", "cards", "tokens")
	body := tokenizeRequest{
		Number:      req.Number,
		HolderName:  req.HolderName,
		ExpiryMonth: req.ExpiryMonth,
		ExpiryYear:  req.ExpiryYear,
		CVV:         req.CVV,
		TaxID:       req.TaxID,
		Brand:       req.Brand,
	}
	err = g.client.DoJSON(ctx, http.MethodPost, u, body, &tok)
	switch {
	case errors.Is(err, apperrors.ErrPaymentFailed):
		return provider.CardToken{}, fmt.Errorf("tokenize card: %w: %w", provider.ErrCardRejected, err)
	case err != nil:
		return provider.CardToken{}, fmt.Errorf("tokenize card: %w", err)
	}
	return tok, nil
}

// OrderService submits orders to the order service.
type OrderService struct {
	client  JSONDoer
	baseURL string
}

// NewOrderService creates an order service client.
func NewOrderService(client JSONDoer, baseURL string) *OrderService {
	return &OrderService{client: client, baseURL: baseURL}
}

type orderResponse struct {
	ID string `json:"id"`
}

// Submit creates the order. The draft idempotency key is sent so a
// duplicate delivery of the same draft creates one order.
func (o *OrderService) Submit(ctx context.Context, draft domain.OrderDraft) (orderID string, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "order.Submit",
		attribute.String("checkout.session_id", draft.SessionID),
		attribute.String("payment.method", draft.Payment.Method),
		attribute.Int64("order.total", draft.Total.Cents()),
	)
	defer func() { tracing.End(span, err) }()

	u := endpoint(o.baseURL, "api", "v1", "orders")
	var resp orderResponse
	err = o.client.DoJSON(ctx, http.MethodPost, u, draft, &resp,
		httpclient.WithHeader(httpclient.HeaderIdempotencyKey, draft.IdempotencyKey),
	)
	if err != nil {
		return "", fmt.Errorf("submit order: %w", err)
	}
	if resp.ID == "" {
		return "", errors.New("submit order: response carries no order id")
	}
	return resp.ID, nil
}

// StoreDirectory loads store checkout settings from the store service.
type StoreDirectory struct {
	client  JSONDoer
	baseURL string
}

// NewStoreDirectory creates a store settings client.
func NewStoreDirectory(client JSONDoer, baseURL string) *StoreDirectory {
	return &StoreDirectory{client: client, baseURL: baseURL}
}

// Store returns the checkout settings of a store.
func (d *StoreDirectory) Store(ctx context.Context, storeID string) (s domain.StoreSettings, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "store.Settings",
		attribute.String("store.id", storeID),
	)
	defer func() { tracing.End(span, err) }()

	u := endpoint(d.baseURL, "api", "v1", "stores", storeID, "checkout-settings")
	err = d.client.DoJSON(ctx, http.MethodGet, u, nil, &s)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return domain.StoreSettings{}, provider.ErrStoreNotFound
	case err != nil:
		return domain.StoreSettings{}, fmt.Errorf("load store settings: %w", err)
	}
	if s.ID == "" {
		s.ID = storeID
	}
	return s, nil
}
