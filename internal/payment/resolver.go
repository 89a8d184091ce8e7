// Package payment resolves the payment method of a checkout session, sizes
// installment schedules and drives card tokenization.
package payment

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
)

var (
	// ErrMethodNotEnabled is returned when the store does not accept a method.
	ErrMethodNotEnabled = errors.New("payment method is not enabled for this store")
	// ErrNotCreditCard is returned by card operations while another method is selected.
	ErrNotCreditCard = errors.New("credit card is not the selected payment method")
	// ErrTokenizationInFlight is returned for a second tokenization started before the first resolved.
	ErrTokenizationInFlight = errors.New("card tokenization already in progress")
	// ErrCardChanged is returned when card fields were edited while tokenization was in flight.
	ErrCardChanged = errors.New("card details changed during tokenization")
	// ErrInvalidInstallments is returned for an installment count outside the schedule.
	ErrInvalidInstallments = errors.New("installment count is not offered")
)

// Tokenization failure kinds.
const (
	KindRejected  = "rejected"
	KindTransport = "transport"
)

// TokenizationError is a gateway failure classified for the buyer.
type TokenizationError struct {
	Kind string
	Err  error
}

func (e *TokenizationError) Error() string {
	if e.Kind == KindRejected {
		return "card rejected by issuer"
	}
	return "could not process card"
}

func (e *TokenizationError) Unwrap() error {
	return e.Err
}

// InvalidCardError lists card fields that failed local validation. No
// network call is made while it is returned.
type InvalidCardError struct {
	Fields map[string]string
}

func (e *InvalidCardError) Error() string {
	return fmt.Sprintf("invalid card details: %d field(s)", len(e.Fields))
}

// Settings is the store-level payment configuration.
type Settings struct {
	EnabledMethods  []string
	PixDiscount     money.Percent
	MaxInstallments int
	TokenizeTimeout time.Duration
	Now             func() time.Time
}

// CardView is the renderable part of the entered card. It never carries the
// full number or the CVV.
type CardView struct {
	Brand       string            `json:"brand"`
	Last4       string            `json:"last4,omitempty"`
	HolderName  string            `json:"holder_name,omitempty"`
	Expiry      string            `json:"expiry,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
}

// Snapshot is a read-only copy of the resolver state.
type Snapshot struct {
	Method         string                 `json:"method"`
	EnabledMethods []string               `json:"enabled_methods"`
	PixDiscount    money.Percent          `json:"pix_discount_percent"`
	Card           *CardView              `json:"card,omitempty"`
	Credential     *domain.CardCredential `json:"-"`
	HasCredential  bool                   `json:"has_credential"`
	Tokenizing     bool                   `json:"tokenizing"`
	Installments   int                    `json:"installments"`
	LastError      *TokenizationError     `json:"-"`
	Valid          bool                   `json:"valid"`
}

// Resolver owns the payment slice of a session.
type Resolver struct {
	gateway  provider.PaymentGateway
	settings Settings
	logger   *slog.Logger
	onChange func()

	mu           sync.Mutex
	method       string
	card         CardFields
	cardVersion  uint64
	credential   *domain.CardCredential
	tokenizing   bool
	installments int
	lastErr      *TokenizationError
}

// NewResolver creates a payment resolver. onChange, if set, is called after
// every state change and never while the resolver's lock is held.
func NewResolver(gateway provider.PaymentGateway, settings Settings, logger *slog.Logger, onChange func()) *Resolver {
	if settings.TokenizeTimeout <= 0 {
		settings.TokenizeTimeout = 15 * time.Second
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Resolver{
		gateway:      gateway,
		settings:     settings,
		logger:       logger,
		onChange:     onChange,
		installments: 1,
	}
}

func (r *Resolver) enabled(method string) bool {
	for _, m := range r.settings.EnabledMethods {
		if m == method {
			return true
		}
	}
	return false
}

// SelectMethod selects a payment method; the empty string clears the
// selection. Leaving credit card drops any credential but keeps card fields.
func (r *Resolver) SelectMethod(method string) error {
	r.mu.Lock()
	if method != "" && !r.enabled(method) {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMethodNotEnabled, method)
	}
	if r.method == method {
		r.mu.Unlock()
		return nil
	}
	r.method = method
	if method != domain.PaymentCreditCard {
		r.credential = nil
	}
	r.lastErr = nil
	r.mu.Unlock()

	r.onChange()
	return nil
}

// SetCard replaces the entered card fields. Any actual change invalidates a
// previously obtained credential.
func (r *Resolver) SetCard(fields CardFields) {
	fields = fields.normalize()

	r.mu.Lock()
	if fields == r.card {
		r.mu.Unlock()
		return
	}
	r.card = fields
	r.cardVersion++
	r.credential = nil
	r.lastErr = nil
	r.mu.Unlock()

	r.onChange()
}

// SelectInstallments picks the schedule length used for card payments.
func (r *Resolver) SelectInstallments(n int) error {
	if n < 1 || n > MaxCount(r.settings.MaxInstallments) {
		return fmt.Errorf("%w: %d", ErrInvalidInstallments, n)
	}

	r.mu.Lock()
	r.installments = n
	if r.credential != nil {
		r.credential.Installments = n
	}
	r.mu.Unlock()

	r.onChange()
	return nil
}

// Tokenize exchanges the entered card for a gateway credential. It is
// single-flight: a call made while another is outstanding returns
// ErrTokenizationInFlight. A credential still valid for the current fields
// is returned without a network call.
func (r *Resolver) Tokenize(ctx context.Context, taxID string) (domain.CardCredential, error) {
	r.mu.Lock()
	if r.method != domain.PaymentCreditCard {
		r.mu.Unlock()
		return domain.CardCredential{}, ErrNotCreditCard
	}
	if fields := r.card.Validate(r.settings.Now()); fields != nil {
		r.mu.Unlock()
		return domain.CardCredential{}, &InvalidCardError{Fields: fields}
	}
	if r.tokenizing {
		r.mu.Unlock()
		return domain.CardCredential{}, ErrTokenizationInFlight
	}
	if r.credential != nil {
		cred := *r.credential
		r.mu.Unlock()
		return cred, nil
	}

	month, year, _ := ParseExpiry(r.card.Expiry)
	req := provider.CardRequest{
		Number:      r.card.Number,
		HolderName:  r.card.HolderName,
		ExpiryMonth: month,
		ExpiryYear:  year,
		CVV:         r.card.CVV,
		TaxID:       taxID,
		Brand:       DetectBrand(r.card.Number),
	}
	last4 := Last4(r.card.Number)
	version := r.cardVersion
	r.tokenizing = true
	r.lastErr = nil
	r.mu.Unlock()
	r.onChange()

	callCtx, cancel := context.WithTimeout(ctx, r.settings.TokenizeTimeout)
	token, err := r.gateway.TokenizeCard(callCtx, req)
	cancel()

	r.mu.Lock()
	r.tokenizing = false
	if version != r.cardVersion || r.method != domain.PaymentCreditCard {
		r.mu.Unlock()
		metrics.CardTokenizations.WithLabelValues(metrics.ResultStale).Inc()
		r.logger.InfoContext(ctx, "discarding stale card tokenization",
			slog.String("brand", req.Brand),
			slog.String("last4", last4),
		)
		r.onChange()
		return domain.CardCredential{}, ErrCardChanged
	}

	if err != nil {
		tokErr := classify(err)
		r.lastErr = tokErr
		r.mu.Unlock()

		metrics.CardTokenizations.WithLabelValues(resultFor(tokErr, err)).Inc()
		r.logger.WarnContext(ctx, "card tokenization failed",
			slog.String("kind", tokErr.Kind),
			slog.String("brand", req.Brand),
			slog.String("last4", last4),
			slog.String("error", err.Error()),
		)
		r.onChange()
		return domain.CardCredential{}, tokErr
	}

	brand := token.Brand
	if brand == "" {
		brand = req.Brand
	}
	if token.Last4 != "" {
		last4 = token.Last4
	}
	cred := domain.CardCredential{
		Token:        token.Token,
		Brand:        brand,
		Last4:        last4,
		Installments: r.installments,
	}
	r.credential = &cred
	r.mu.Unlock()

	metrics.CardTokenizations.WithLabelValues(metrics.ResultSuccess).Inc()
	r.logger.InfoContext(ctx, "card tokenized",
		slog.String("brand", brand),
		slog.String("last4", last4),
	)
	r.onChange()
	return cred, nil
}

func classify(err error) *TokenizationError {
	if errors.Is(err, provider.ErrCardRejected) {
		return &TokenizationError{Kind: KindRejected, Err: err}
	}
	return &TokenizationError{Kind: KindTransport, Err: err}
}

func resultFor(tokErr *TokenizationError, err error) string {
	switch {
	case tokErr.Kind == KindRejected:
		return metrics.ResultRejected
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}

// InvalidateCredential drops the current credential so the card must be
// tokenized again.
func (r *Resolver) InvalidateCredential() {
	r.mu.Lock()
	if r.credential == nil {
		r.mu.Unlock()
		return
	}
	r.credential = nil
	r.mu.Unlock()

	r.onChange()
}

// Method returns the selected payment method.
func (r *Resolver) Method() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.method
}

// Valid reports whether a payment method is selected and enabled and, for
// credit card, a credential exists for the currently entered fields.
func (r *Resolver) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validLocked()
}

func (r *Resolver) validLocked() bool {
	if r.method == "" || !r.enabled(r.method) {
		return false
	}
	if r.method == domain.PaymentCreditCard {
		return r.credential != nil && !r.tokenizing
	}
	return true
}

// Snapshot returns a copy of the resolver state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Method:         r.method,
		EnabledMethods: append([]string(nil), r.settings.EnabledMethods...),
		PixDiscount:    r.settings.PixDiscount,
		HasCredential:  r.credential != nil,
		Tokenizing:     r.tokenizing,
		Installments:   r.installments,
		LastError:      r.lastErr,
		Valid:          r.validLocked(),
	}
	if r.credential != nil {
		cred := *r.credential
		s.Credential = &cred
	}
	if !r.card.IsEmpty() {
		s.Card = &CardView{
			Brand:       DetectBrand(r.card.Number),
			Last4:       Last4(r.card.Number),
			HolderName:  r.card.HolderName,
			Expiry:      r.card.Expiry,
			FieldErrors: r.card.Validate(r.settings.Now()),
		}
	}
	return s
}
