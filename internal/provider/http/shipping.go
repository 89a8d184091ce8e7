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
	"github.com/virtualmercado/shopdrive-sub002/pkg/tracing"
)

// CarrierRates talks to the shipping rate service.
type CarrierRates struct {
	client  JSONDoer
	baseURL string
}

// NewCarrierRates creates a carrier rate client.
func NewCarrierRates(client JSONDoer, baseURL string) *CarrierRates {
	return &CarrierRates{client: client, baseURL: baseURL}
}

type quoteRequest struct {
	PostalCode string   `json:"postal_code"`
	ServiceIDs []string `json:"service_ids"`
}

// Quote requests one batched quotation for every service.
func (c *CarrierRates) Quote(ctx context.Context, postalCode string, serviceIDs []string) (quotes []domain.CarrierQuote, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "carrier.Quote",
		attribute.String("postal_code", postalCode),
		attribute.Int("carrier.services", len(serviceIDs)),
	)
	defer func() { tracing.End(span, err) }()

	u := endpoint(c.baseURL, "api", "v1", "shipping", "quotes")
	req := quoteRequest{PostalCode: postalCode, ServiceIDs: serviceIDs}
	if err = c.client.DoJSON(ctx, http.MethodPost, u, req, &quotes); err != nil {
		return nil, fmt.Errorf("quote carriers: %w", err)
	}
	return quotes, nil
}

// AddressLookup talks to the postal code directory.
type AddressLookup struct {
	client  JSONDoer
	baseURL string
}

// NewAddressLookup creates a postal code directory client.
func NewAddressLookup(client JSONDoer, baseURL string) *AddressLookup {
	return &AddressLookup{client: client, baseURL: baseURL}
}

// Lookup resolves a postal code to street data.
func (a *AddressLookup) Lookup(ctx context.Context, postalCode string) (hint domain.AddressHint, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "address.Lookup",
		attribute.String("postal_code", postalCode),
	)
	defer func() { tracing.End(span, err) }()

	u := endpoint(a.baseURL, "api", "v1", "postal-codes", postalCode)
	err = a.client.DoJSON(ctx, http.MethodGet, u, nil, &hint)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return domain.AddressHint{}, provider.ErrAddressNotFound
	case err != nil:
		return domain.AddressHint{}, fmt.Errorf("lookup postal code: %w", err)
	}
	return hint, nil
}
