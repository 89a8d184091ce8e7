package mock

import (
	"context"
	"sync"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// Rate is the tariff of one carrier service.
type Rate struct {
	Base    money.Money
	PerZone money.Money
	MinDays int
	MaxDays int
}

// CarrierRates prices carrier services by postal code zone. The zone is the
// first digit of the postal code, so prices grow with the distance from 0.
type CarrierRates struct {
	mu      sync.RWMutex
	rates   map[string]Rate
	latency time.Duration
}

// NewCarrierRates creates a carrier rate table. Services missing from rates
// are quoted as unavailable.
func NewCarrierRates(rates map[string]Rate, latency time.Duration) *CarrierRates {
	cp := make(map[string]Rate, len(rates))
	for id, r := range rates {
		cp[id] = r
	}
	return &CarrierRates{rates: cp, latency: latency}
}

// DefaultRates returns a sedex/pac tariff.
func DefaultRates() map[string]Rate {
	return map[string]Rate{
		"sedex": {Base: money.FromCents(1990), PerZone: money.FromCents(150), MinDays: 1, MaxDays: 3},
		"pac":   {Base: money.FromCents(1290), PerZone: money.FromCents(100), MinDays: 4, MaxDays: 9},
	}
}

func (c *CarrierRates) Quote(ctx context.Context, postalCode string, serviceIDs []string) ([]domain.CarrierQuote, error) {
	if c.latency > 0 {
		select {
		case <-time.After(c.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	zone := 0
	if postalCode != "" {
		zone = int(postalCode[0] - '0')
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	quotes := make([]domain.CarrierQuote, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		r, ok := c.rates[id]
		if !ok {
			quotes = append(quotes, domain.CarrierQuote{ServiceID: id, PostalCode: postalCode})
			continue
		}
		quotes = append(quotes, domain.CarrierQuote{
			ServiceID:        id,
			PostalCode:       postalCode,
			Price:            r.Base.Add(r.PerZone.Times(zone)),
			EstimatedDaysMin: r.MinDays + zone/3,
			EstimatedDaysMax: r.MaxDays + zone/3,
			Available:        true,
		})
	}
	return quotes, nil
}

// AddressLookup resolves postal codes from a fixed directory.
type AddressLookup struct {
	mu    sync.RWMutex
	hints map[string]domain.AddressHint
}

// NewAddressLookup creates an address directory.
func NewAddressLookup(hints map[string]domain.AddressHint) *AddressLookup {
	cp := make(map[string]domain.AddressHint, len(hints))
	for code, h := range hints {
		cp[code] = h
	}
	return &AddressLookup{hints: cp}
}

// DefaultAddresses returns a small set of known postal codes.
func DefaultAddresses() map[string]domain.AddressHint {
	return map[string]domain.AddressHint{
		"01310100": {Street: "Avenida Paulista", Neighborhood: "Bela Vista", City: "Sao Paulo", State: "SP"},
		"20040002": {Street: "Avenida Rio Branco", Neighborhood: "Centro", City: "Rio de Janeiro", State: "RJ"},
		"30130010": {Street: "Avenida Afonso Pena", Neighborhood: "Centro", City: "Belo Horizonte", State: "MG"},
	}
}

func (a *AddressLookup) Lookup(_ context.Context, postalCode string) (domain.AddressHint, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	h, ok := a.hints[postalCode]
	if !ok {
		return domain.AddressHint{}, provider.ErrAddressNotFound
	}
	return h, nil
}
