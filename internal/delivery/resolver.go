// Package delivery resolves the delivery method of a checkout session and
// keeps the carrier quotes used to price it, keyed by destination postal code.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/metrics"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
	"github.com/virtualmercado/shopdrive-sub002/pkg/validator"
)

var (
	// ErrMethodNotPermitted is returned when the store policy excludes a method.
	ErrMethodNotPermitted = errors.New("delivery method not permitted by store policy")
	// ErrUnknownService is returned for a carrier service the store does not offer.
	ErrUnknownService = errors.New("carrier service is not enabled for this store")
	// ErrQuotePending is returned while the quote backing a carrier method is loading.
	ErrQuotePending = errors.New("carrier quote is still loading")
	// ErrQuoteUnavailable is returned when a carrier does not serve the destination.
	ErrQuoteUnavailable = errors.New("carrier quote is unavailable for this destination")
	// ErrNoPostalCode is returned when quoting is requested without a valid postal code.
	ErrNoPostalCode = errors.New("a valid postal code is required")
	// ErrUnknownMethod is returned for an unrecognized method kind.
	ErrUnknownMethod = errors.New("unknown delivery method")
)

// Address enrichment states.
const (
	EnrichmentIdle     = ""
	EnrichmentPending  = "pending"
	EnrichmentFilled   = "filled"
	EnrichmentNotFound = "not_found"
	EnrichmentFailed   = "failed"
)

// Settings is the store-level delivery configuration.
type Settings struct {
	Policy        string
	Carriers      []domain.CarrierService
	LocalCourier  domain.LocalCourierRule
	Subtotal      money.Money
	QuoteTimeout  time.Duration
	LookupTimeout time.Duration
}

// Option is one renderable delivery choice.
type Option struct {
	Method        domain.DeliveryMethod `json:"method"`
	Name          string                `json:"name"`
	Fee           money.Money           `json:"fee"`
	EstimatedDays *domain.DaysRange     `json:"estimated_days,omitempty"`
	Loading       bool                  `json:"loading"`
	Available     bool                  `json:"available"`
	Selectable    bool                  `json:"selectable"`
}

// Snapshot is a read-only copy of the resolver state.
type Snapshot struct {
	Method        domain.DeliveryMethod `json:"method"`
	Address       domain.Address        `json:"address"`
	AddressErrors map[string]string     `json:"address_errors,omitempty"`
	Options       []Option              `json:"options"`
	Fee           money.Money           `json:"fee"`
	EstimatedDays *domain.DaysRange     `json:"estimated_days,omitempty"`
	QuotesFor     string                `json:"quotes_for,omitempty"`
	QuoteError    string                `json:"quote_error,omitempty"`
	Enrichment    string                `json:"enrichment,omitempty"`
	Valid         bool                  `json:"valid"`
}

// Resolver owns the delivery slice of a session.
type Resolver struct {
	rates     provider.CarrierRates
	addresses provider.AddressLookup
	settings  Settings
	logger    *slog.Logger
	onChange  func()
	wg        sync.WaitGroup

	mu         sync.Mutex
	method     domain.DeliveryMethod
	address    domain.Address
	quotes     map[string]domain.CarrierQuote
	quotedFor  string
	quoteSeq   uint64
	quoting    bool
	quoteErr   string
	enrichSeq  uint64
	enrichment string
}

// NewResolver creates a delivery resolver. addresses may be nil to disable
// enrichment. onChange, if set, is called after every state change and never
// while the resolver's lock is held.
func NewResolver(rates provider.CarrierRates, addresses provider.AddressLookup, settings Settings, logger *slog.Logger, onChange func()) *Resolver {
	if settings.QuoteTimeout <= 0 {
		settings.QuoteTimeout = 12 * time.Second
	}
	if settings.LookupTimeout <= 0 {
		settings.LookupTimeout = 5 * time.Second
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Resolver{
		rates:     rates,
		addresses: addresses,
		settings:  settings,
		logger:    logger,
		onChange:  onChange,
		quotes:    make(map[string]domain.CarrierQuote),
	}
}

// SetAddress replaces the destination. A changed postal code clears every
// cached quote and any carrier selection before a new quotation is issued.
func (r *Resolver) SetAddress(ctx context.Context, addr domain.Address) {
	addr = addr.Normalize()

	r.mu.Lock()
	changed := addr.PostalCode != r.address.PostalCode
	r.address = addr
	var quoteSeq, enrichSeq uint64
	start := false
	if changed {
		r.invalidateLocked()
		if domain.IsValidPostalCode(addr.PostalCode) && domain.AllowsDelivery(r.settings.Policy) {
			start = true
			quoteSeq = r.beginQuoteLocked()
			enrichSeq = r.beginEnrichLocked()
		}
	}
	r.mu.Unlock()

	if start {
		r.startQuote(ctx, quoteSeq, addr.PostalCode)
		r.startEnrichment(ctx, enrichSeq, addr.PostalCode)
	}
	r.onChange()
}

// invalidateLocked drops quotes for the previous postal code.
func (r *Resolver) invalidateLocked() {
	r.quotes = make(map[string]domain.CarrierQuote)
	r.quotedFor = ""
	r.quoteErr = ""
	r.quoting = false
	r.quoteSeq++
	r.enrichSeq++
	r.enrichment = EnrichmentIdle
	if r.method.Kind == domain.DeliveryCarrier {
		r.method = domain.DeliveryMethod{}
	}
}

func (r *Resolver) beginQuoteLocked() uint64 {
	r.quoteSeq++
	r.quoting = len(r.settings.Carriers) > 0
	r.quoteErr = ""
	return r.quoteSeq
}

func (r *Resolver) beginEnrichLocked() uint64 {
	r.enrichSeq++
	if r.addresses != nil {
		r.enrichment = EnrichmentPending
	}
	return r.enrichSeq
}

// Requote refreshes quotes for the current postal code. Existing quotes stay
// visible until the new ones arrive.
func (r *Resolver) Requote(ctx context.Context) error {
	r.mu.Lock()
	postal := r.address.PostalCode
	if !domain.IsValidPostalCode(postal) {
		r.mu.Unlock()
		return ErrNoPostalCode
	}
	if !domain.AllowsDelivery(r.settings.Policy) {
		r.mu.Unlock()
		return ErrMethodNotPermitted
	}
	seq := r.beginQuoteLocked()
	r.mu.Unlock()

	r.startQuote(ctx, seq, postal)
	r.onChange()
	return nil
}

func (r *Resolver) startQuote(ctx context.Context, seq uint64, postal string) {
	if len(r.settings.Carriers) == 0 {
		return
	}
	ids := make([]string, len(r.settings.Carriers))
	for i, c := range r.settings.Carriers {
		ids[i] = c.ID
	}

	// Detach from the request so the quote outlives the edit that started it.
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		qctx, cancel := context.WithTimeout(base, r.settings.QuoteTimeout)
		quotes, err := r.rates.Quote(qctx, postal, ids)
		cancel()

		r.applyQuotes(base, seq, postal, ids, quotes, err)
	}()
}

func (r *Resolver) applyQuotes(ctx context.Context, seq uint64, postal string, ids []string, quotes []domain.CarrierQuote, err error) {
	r.mu.Lock()
	if seq != r.quoteSeq {
		r.mu.Unlock()
		metrics.CarrierQuotes.WithLabelValues(metrics.ResultStale).Inc()
		r.logger.DebugContext(ctx, "discarding stale carrier quotes", slog.String("postal_code", postal))
		return
	}

	byID := make(map[string]domain.CarrierQuote, len(ids))
	for _, q := range quotes {
		if q.PostalCode != "" && q.PostalCode != postal {
			continue
		}
		q.PostalCode = postal
		byID[q.ServiceID] = q
	}
	available := 0
	fresh := make(map[string]domain.CarrierQuote, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok || err != nil {
			q = domain.CarrierQuote{ServiceID: id, PostalCode: postal}
		}
		if q.Available && !q.Price.InRange() {
			r.logger.WarnContext(ctx, "discarding carrier quote with out of range price",
				slog.String("service_id", id),
				slog.Int64("price", q.Price.Cents()),
			)
			q = domain.CarrierQuote{ServiceID: id, PostalCode: postal}
		}
		if q.Available {
			available++
		}
		fresh[id] = q
	}

	r.quotes = fresh
	r.quotedFor = postal
	r.quoting = false
	r.quoteErr = ""
	if err != nil {
		r.quoteErr = "carrier quotation unavailable"
	}
	deselected := false
	if r.method.Kind == domain.DeliveryCarrier && !r.quotes[r.method.ServiceID].Available {
		r.method = domain.DeliveryMethod{}
		deselected = true
	}
	r.mu.Unlock()

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		metrics.CarrierQuotes.WithLabelValues(metrics.ResultTimeout).Inc()
		r.logger.WarnContext(ctx, "carrier quotation timed out", slog.String("postal_code", postal))
	case err != nil:
		metrics.CarrierQuotes.WithLabelValues(metrics.ResultError).Inc()
		r.logger.WarnContext(ctx, "carrier quotation failed",
			slog.String("postal_code", postal),
			slog.String("error", err.Error()),
		)
	default:
		metrics.CarrierQuotes.WithLabelValues(metrics.ResultSuccess).Inc()
		r.logger.InfoContext(ctx, "carrier quotes received",
			slog.String("postal_code", postal),
			slog.Int("services", len(ids)),
			slog.Int("available", available),
		)
	}
	if deselected {
		r.logger.InfoContext(ctx, "selected carrier became unavailable, selection cleared")
	}
	r.onChange()
}

func (r *Resolver) startEnrichment(ctx context.Context, seq uint64, postal string) {
	if r.addresses == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		lctx, cancel := context.WithTimeout(base, r.settings.LookupTimeout)
		hint, err := r.addresses.Lookup(lctx, postal)
		cancel()

		r.mu.Lock()
		if seq != r.enrichSeq || r.address.PostalCode != postal {
			r.mu.Unlock()
			return
		}
		switch {
		case errors.Is(err, provider.ErrAddressNotFound):
			r.enrichment = EnrichmentNotFound
		case err != nil:
			r.enrichment = EnrichmentFailed
		default:
			r.address.Fill(hint)
			r.enrichment = EnrichmentFilled
		}
		r.mu.Unlock()

		if err != nil && !errors.Is(err, provider.ErrAddressNotFound) {
			r.logger.WarnContext(base, "address lookup failed",
				slog.String("postal_code", postal),
				slog.String("error", err.Error()),
			)
		}
		r.onChange()
	}()
}

// SelectMethod selects a delivery method; the zero method clears the selection.
func (r *Resolver) SelectMethod(m domain.DeliveryMethod) error {
	r.mu.Lock()
	if err := r.checkSelectableLocked(m); err != nil {
		r.mu.Unlock()
		return err
	}
	if r.method == m {
		r.mu.Unlock()
		return nil
	}
	r.method = m
	r.mu.Unlock()

	r.onChange()
	return nil
}

func (r *Resolver) checkSelectableLocked(m domain.DeliveryMethod) error {
	switch m.Kind {
	case "":
		return nil
	case domain.DeliveryPickup:
		if !domain.AllowsPickup(r.settings.Policy) {
			return fmt.Errorf("%w: %s", ErrMethodNotPermitted, m.Kind)
		}
	case domain.DeliveryLocalCourier:
		if !domain.AllowsDelivery(r.settings.Policy) || !r.settings.LocalCourier.Enabled {
			return fmt.Errorf("%w: %s", ErrMethodNotPermitted, m.Kind)
		}
	case domain.DeliveryCarrier:
		if !domain.AllowsDelivery(r.settings.Policy) {
			return fmt.Errorf("%w: %s", ErrMethodNotPermitted, m.Kind)
		}
		if !r.carrierEnabled(m.ServiceID) {
			return fmt.Errorf("%w: %s", ErrUnknownService, m.ServiceID)
		}
		if r.quoting {
			return ErrQuotePending
		}
		q, ok := r.quotes[m.ServiceID]
		if !ok || !q.Available || r.quotedFor != r.address.PostalCode {
			return fmt.Errorf("%w: %s", ErrQuoteUnavailable, m.ServiceID)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMethod, m.Kind)
	}
	return nil
}

func (r *Resolver) carrierEnabled(id string) bool {
	for _, c := range r.settings.Carriers {
		if c.ID == id {
			return true
		}
	}
	return false
}

// Valid reports whether a permitted method is selected, the destination is
// complete for non-pickup methods, and a carrier method has a usable quote.
func (r *Resolver) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validLocked()
}

func (r *Resolver) validLocked() bool {
	if r.method.IsZero() {
		return false
	}
	if err := r.checkSelectableLocked(r.method); err != nil {
		return false
	}
	if r.method.Kind == domain.DeliveryPickup {
		return true
	}
	return validator.Validate(r.address) == nil
}

// feeLocked returns the fee and delivery window of the selected method.
func (r *Resolver) feeLocked() (money.Money, *domain.DaysRange) {
	switch r.method.Kind {
	case domain.DeliveryLocalCourier:
		rule := r.settings.LocalCourier
		return rule.Fee(r.settings.Subtotal), &domain.DaysRange{Min: rule.EstimatedDays, Max: rule.EstimatedDays}
	case domain.DeliveryCarrier:
		q := r.quotes[r.method.ServiceID]
		return q.Price, &domain.DaysRange{Min: q.EstimatedDaysMin, Max: q.EstimatedDaysMax}
	}
	return money.Zero, nil
}

// Fee returns the delivery fee of the current selection, zero when nothing
// is selected.
func (r *Resolver) Fee() money.Money {
	r.mu.Lock()
	defer r.mu.Unlock()
	fee, _ := r.feeLocked()
	return fee
}

// Snapshot returns a copy of the resolver state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	fee, days := r.feeLocked()
	s := Snapshot{
		Method:        r.method,
		Address:       r.address,
		AddressErrors: validator.FieldErrors(validator.Validate(r.address)),
		Options:       r.optionsLocked(),
		Fee:           fee,
		EstimatedDays: days,
		QuotesFor:     r.quotedFor,
		QuoteError:    r.quoteErr,
		Enrichment:    r.enrichment,
		Valid:         r.validLocked(),
	}
	if s.Method.Kind == domain.DeliveryPickup {
		s.AddressErrors = nil
	}
	return s
}

func (r *Resolver) optionsLocked() []Option {
	var opts []Option
	if domain.AllowsPickup(r.settings.Policy) {
		opts = append(opts, Option{
			Method:     domain.Pickup(),
			Name:       "Store pickup",
			Available:  true,
			Selectable: true,
		})
	}
	if !domain.AllowsDelivery(r.settings.Policy) {
		return opts
	}
	if rule := r.settings.LocalCourier; rule.Enabled {
		opts = append(opts, Option{
			Method:        domain.LocalCourier(),
			Name:          "Local courier",
			Fee:           rule.Fee(r.settings.Subtotal),
			EstimatedDays: &domain.DaysRange{Min: rule.EstimatedDays, Max: rule.EstimatedDays},
			Available:     true,
			Selectable:    true,
		})
	}
	for _, c := range r.settings.Carriers {
		opt := Option{Method: domain.Carrier(c.ID), Name: c.Name, Loading: r.quoting}
		if q, ok := r.quotes[c.ID]; ok && r.quotedFor == r.address.PostalCode {
			opt.Available = q.Available
			if q.Available {
				opt.Fee = q.Price
				opt.EstimatedDays = &domain.DaysRange{Min: q.EstimatedDaysMin, Max: q.EstimatedDaysMax}
			}
		}
		opt.Selectable = opt.Available && !opt.Loading
		opts = append(opts, opt)
	}
	return opts
}

// Wait blocks until every in-flight quotation and address lookup completed.
func (r *Resolver) Wait() {
	r.wg.Wait()
}
