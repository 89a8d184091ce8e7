// Package checkout coordinates one checkout attempt: it owns the session
// status, aggregates the validity of the identification, delivery and
// payment resolvers, and submits the assembled order exactly once.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/virtualmercado/shopdrive-sub002/internal/delivery"
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/identification"
	"github.com/virtualmercado/shopdrive-sub002/internal/metrics"
	"github.com/virtualmercado/shopdrive-sub002/internal/payment"
	"github.com/virtualmercado/shopdrive-sub002/internal/pricing"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

var (
	// ErrLocked is returned for edits and submissions outside the building status.
	ErrLocked = errors.New("checkout session is not editable")
	// ErrNotReady is returned by Submit while a resolver is not valid.
	ErrNotReady = errors.New("checkout is not ready for submission")
	// ErrSubmitInFlight is returned by Submit while a submission is outstanding.
	ErrSubmitInFlight = errors.New("order submission already in progress")
	// ErrNotFailed is returned by Retry unless the last submission failed.
	ErrNotFailed = errors.New("checkout session has not failed")
	// ErrEmptyCart is returned when a session is started without lines.
	ErrEmptyCart = errors.New("cart has no lines")
)

// SubmissionError is an order service failure. Reason is shown to the buyer
// as is.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	return e.Reason
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// EventPublisher receives checkout lifecycle events. Publish errors are
// logged and never fail the checkout.
type EventPublisher interface {
	PublishCheckoutSubmitted(ctx context.Context, draft domain.OrderDraft) error
	PublishCheckoutSucceeded(ctx context.Context, draft domain.OrderDraft, orderID string) error
	PublishCheckoutFailed(ctx context.Context, draft domain.OrderDraft, reason string) error
}

// Dependencies are the collaborators a session talks to.
type Dependencies struct {
	Identity  provider.IdentityStore
	Rates     provider.CarrierRates
	Addresses provider.AddressLookup
	Gateway   provider.PaymentGateway
	Orders    provider.OrderService
	Events    EventPublisher
}

// Options tunes timeouts and throttles of a session.
type Options struct {
	EmailDebounce          time.Duration
	EmailLookupTimeout     time.Duration
	QuoteTimeout           time.Duration
	AddressLookupTimeout   time.Duration
	TokenizeTimeout        time.Duration
	SubmitTimeout          time.Duration
	LoginAttemptsPerMinute int
	Now                    func() time.Time
}

// Params describes the session to start.
type Params struct {
	ID       string
	Store    domain.StoreSettings
	Lines    []domain.CartLine
	Customer *domain.Profile
}

// Session is one checkout attempt.
type Session struct {
	id       string
	store    domain.StoreSettings
	lines    []domain.CartLine
	subtotal money.Money
	deps     Dependencies
	opts     Options
	logger   *slog.Logger
	notifier *Notifier

	identification *identification.Resolver
	delivery       *delivery.Resolver
	payment        *payment.Resolver

	lastActivity atomic.Int64

	mu      sync.Mutex
	status  string
	orderID string
	failure string
	draft   *domain.OrderDraft
}

// NewSession builds a session in the building status. A non-nil customer
// starts the session authenticated.
func NewSession(p Params, deps Dependencies, opts Options, logger *slog.Logger) (*Session, error) {
	if len(p.Lines) == 0 {
		return nil, ErrEmptyCart
	}
	for _, l := range p.Lines {
		if l.Quantity < 1 || !l.UnitPrice.InRange() {
			return nil, fmt.Errorf("%w: line %s", apperrors.ErrInvalidInput, l.ProductID)
		}
	}
	subtotal, err := domain.Subtotal(p.Lines)
	if err != nil {
		return nil, fmt.Errorf("%w: cart total: %v", apperrors.ErrInvalidInput, err)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = 20 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Session{
		id:       p.ID,
		store:    p.Store,
		lines:    append([]domain.CartLine(nil), p.Lines...),
		subtotal: subtotal,
		deps:     deps,
		opts:     opts,
		logger: logger.With(
			slog.String("session_id", p.ID),
			slog.String("store_id", p.Store.ID),
		),
		notifier: NewNotifier(),
		status:   domain.StatusBuilding,
	}
	s.touch()

	s.identification = identification.NewResolver(deps.Identity, identification.Options{
		Debounce:          opts.EmailDebounce,
		LookupTimeout:     opts.EmailLookupTimeout,
		RequiredFields:    p.Store.RequiredGuestFields,
		AttemptsPerMinute: opts.LoginAttemptsPerMinute,
		Now:               opts.Now,
	}, s.logger, s.changed)

	s.delivery = delivery.NewResolver(deps.Rates, deps.Addresses, delivery.Settings{
		Policy:        p.Store.DeliveryPolicy,
		Carriers:      p.Store.CarrierServices,
		LocalCourier:  p.Store.LocalCourier,
		Subtotal:      s.subtotal,
		QuoteTimeout:  opts.QuoteTimeout,
		LookupTimeout: opts.AddressLookupTimeout,
	}, s.logger, s.changed)

	s.payment = payment.NewResolver(deps.Gateway, payment.Settings{
		EnabledMethods:  p.Store.PaymentMethods,
		PixDiscount:     p.Store.PixDiscountPercent,
		MaxInstallments: p.Store.MaxInstallments,
		TokenizeTimeout: opts.TokenizeTimeout,
		Now:             opts.Now,
	}, s.logger, s.changed)

	if p.Customer != nil {
		s.identification.Authenticate(*p.Customer)
	}
	return s, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// StoreID returns the store the session belongs to.
func (s *Session) StoreID() string { return s.store.ID }

// LastActivity returns the time of the latest change.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Status returns the current status.
func (s *Session) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Subscribe returns a channel signalled after every change to the session.
func (s *Session) Subscribe() (<-chan struct{}, func()) {
	return s.notifier.Subscribe()
}

// Close ends every subscription. The session must not be used afterwards.
func (s *Session) Close() {
	s.notifier.Close()
}

// Wait blocks until the background work of every resolver completed.
func (s *Session) Wait() {
	s.identification.Wait()
	s.delivery.Wait()
}

func (s *Session) touch() {
	s.lastActivity.Store(s.opts.Now().UnixNano())
}

// changed is the change hook of every resolver. It must not take s.mu.
func (s *Session) changed() {
	s.touch()
	s.notifier.Notify()
}

func (s *Session) editableLocked() error {
	if domain.IsTerminalStatus(s.status) {
		return fmt.Errorf("%w: order %s already placed", ErrLocked, s.orderID)
	}
	if s.status != domain.StatusBuilding {
		return fmt.Errorf("%w: %s", ErrLocked, s.status)
	}
	return nil
}

// edit runs fn while holding the session lock, so a submission cannot start
// between the status check and the resolver update.
func (s *Session) edit(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.editableLocked(); err != nil {
		return err
	}
	return fn()
}

func (s *Session) checkEditable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editableLocked()
}

// --- Identification ---

// SetEmail edits the buyer email.
func (s *Session) SetEmail(ctx context.Context, email string) error {
	return s.edit(func() error { return s.identification.SetEmail(ctx, email) })
}

// SetContact edits the guest contact fields.
func (s *Session) SetContact(contact domain.GuestContact) error {
	return s.edit(func() error { return s.identification.SetContact(contact) })
}

// Authenticate attaches a signed-in customer to the session.
func (s *Session) Authenticate(profile domain.Profile) error {
	return s.edit(func() error {
		s.identification.Authenticate(profile)
		return nil
	})
}

// Login authenticates the entered email with a password.
func (s *Session) Login(ctx context.Context, password string) (domain.Profile, error) {
	if err := s.checkEditable(); err != nil {
		return domain.Profile{}, err
	}
	return s.identification.Login(ctx, password)
}

// RequestMagicLink sends a passwordless login link to the entered email.
func (s *Session) RequestMagicLink(ctx context.Context) error {
	if err := s.checkEditable(); err != nil {
		return err
	}
	return s.identification.RequestMagicLink(ctx)
}

// --- Delivery ---

// SetAddress edits the destination address.
func (s *Session) SetAddress(ctx context.Context, addr domain.Address) error {
	return s.edit(func() error {
		s.delivery.SetAddress(ctx, addr)
		return nil
	})
}

// SelectDelivery selects a delivery method.
func (s *Session) SelectDelivery(m domain.DeliveryMethod) error {
	return s.edit(func() error { return s.delivery.SelectMethod(m) })
}

// Requote refreshes carrier quotes for the current destination.
func (s *Session) Requote(ctx context.Context) error {
	return s.edit(func() error { return s.delivery.Requote(ctx) })
}

// --- Payment ---

// SelectPayment selects a payment method.
func (s *Session) SelectPayment(method string) error {
	return s.edit(func() error { return s.payment.SelectMethod(method) })
}

// SetCard edits the entered card fields.
func (s *Session) SetCard(fields payment.CardFields) error {
	return s.edit(func() error {
		s.payment.SetCard(fields)
		return nil
	})
}

// SelectInstallments picks the installment count for card payments.
func (s *Session) SelectInstallments(n int) error {
	return s.edit(func() error { return s.payment.SelectInstallments(n) })
}

// Tokenize exchanges the entered card for a gateway credential. The buyer's
// tax document, when known, is sent along.
func (s *Session) Tokenize(ctx context.Context) (domain.CardCredential, error) {
	if err := s.checkEditable(); err != nil {
		return domain.CardCredential{}, err
	}
	return s.payment.Tokenize(ctx, s.identification.Identity().Document())
}

// --- Signals and totals ---

// Signals are the validity signals of the three resolvers.
type Signals struct {
	Identification bool `json:"identification"`
	Delivery       bool `json:"delivery"`
	Payment        bool `json:"payment"`
}

// Ready reports whether every signal holds.
func (g Signals) Ready() bool {
	return g.Identification && g.Delivery && g.Payment
}

// Signals returns the current validity signals.
func (s *Session) Signals() Signals {
	return Signals{
		Identification: s.identification.Valid(),
		Delivery:       s.delivery.Valid(),
		Payment:        s.payment.Valid(),
	}
}

// totals is the single pricing path used for display and submission.
func (s *Session) totals(deliveryFee money.Money, method string) pricing.Breakdown {
	return pricing.Total(s.subtotal, deliveryFee, method, s.store.PixDiscountPercent)
}

// --- Finalization ---

// Submit assembles the order draft and sends it to the order service. Only
// one submission may be outstanding; a second call returns ErrSubmitInFlight
// without contacting the order service.
func (s *Session) Submit(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.status == domain.StatusSubmitting {
		s.mu.Unlock()
		return "", ErrSubmitInFlight
	}
	if !domain.CanTransition(s.status, domain.StatusSubmitting) {
		err := s.editableLocked()
		s.mu.Unlock()
		return "", err
	}

	identity, idValid := s.identification.Resolve()
	del := s.delivery.Snapshot()
	pay := s.payment.Snapshot()
	if !idValid || !del.Valid || !pay.Valid {
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "checkout submission blocked",
			slog.Bool("identification", idValid),
			slog.Bool("delivery", del.Valid),
			slog.Bool("payment", pay.Valid),
		)
		return "", ErrNotReady
	}

	draft := s.buildDraft(identity, del, pay)
	s.status = domain.StatusSubmitting
	s.draft = &draft
	s.failure = ""
	s.mu.Unlock()
	s.changed()

	// The order call outlives a cancelled request so its outcome is never
	// ambiguous.
	base := context.WithoutCancel(ctx)
	if s.deps.Events != nil {
		if err := s.deps.Events.PublishCheckoutSubmitted(base, draft); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish checkout submitted event",
				slog.String("error", err.Error()),
			)
		}
	}

	callCtx, cancel := context.WithTimeout(base, s.opts.SubmitTimeout)
	orderID, err := s.deps.Orders.Submit(callCtx, draft)
	cancel()

	if err != nil {
		return "", s.fail(base, draft, err)
	}

	s.mu.Lock()
	s.status = domain.StatusSucceeded
	s.orderID = orderID
	s.mu.Unlock()

	metrics.Submissions.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.InfoContext(ctx, "checkout succeeded",
		slog.String("order_id", orderID),
		slog.String("payment_method", draft.Payment.Method),
		slog.Int64("total", draft.Total.Cents()),
	)
	if s.deps.Events != nil {
		if err := s.deps.Events.PublishCheckoutSucceeded(base, draft, orderID); err != nil {
			s.logger.ErrorContext(ctx, "failed to publish checkout succeeded event",
				slog.String("order_id", orderID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.changed()
	return orderID, nil
}

func (s *Session) fail(ctx context.Context, draft domain.OrderDraft, err error) error {
	reason := failureReason(err)

	s.mu.Lock()
	s.status = domain.StatusFailed
	s.failure = reason
	s.mu.Unlock()

	// A card credential is single use; the buyer re-tokenizes before retrying.
	s.payment.InvalidateCredential()

	result := metrics.ResultError
	if errors.Is(err, context.DeadlineExceeded) {
		result = metrics.ResultTimeout
	}
	metrics.Submissions.WithLabelValues(result).Inc()
	s.logger.WarnContext(ctx, "checkout submission failed",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	if s.deps.Events != nil {
		if perr := s.deps.Events.PublishCheckoutFailed(ctx, draft, reason); perr != nil {
			s.logger.ErrorContext(ctx, "failed to publish checkout failed event",
				slog.String("error", perr.Error()),
			)
		}
	}
	s.changed()
	return &SubmissionError{Reason: reason, Err: err}
}

func failureReason(err error) string {
	var appErr *apperrors.AppError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "the order service did not respond in time"
	case errors.As(err, &appErr) && appErr.Message != "":
		return appErr.Message
	}
	return err.Error()
}

// Retry returns a failed session to building. Identification, address and
// cart are kept.
func (s *Session) Retry() error {
	s.mu.Lock()
	if !domain.CanTransition(s.status, domain.StatusBuilding) {
		status := s.status
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFailed, status)
	}
	s.status = domain.StatusBuilding
	s.failure = ""
	s.mu.Unlock()

	s.logger.Info("checkout retry requested")
	s.changed()
	return nil
}

func (s *Session) buildDraft(identity domain.Identity, del delivery.Snapshot, pay payment.Snapshot) domain.OrderDraft {
	breakdown := s.totals(del.Fee, pay.Method)

	draft := domain.OrderDraft{
		IdempotencyKey: uuid.New().String(),
		SessionID:      s.id,
		StoreID:        s.store.ID,
		Currency:       s.store.Currency,
		Identity:       identity,
		Lines:          append([]domain.CartLine(nil), s.lines...),
		Delivery: domain.DraftDelivery{
			Method:        del.Method,
			EstimatedDays: del.EstimatedDays,
		},
		Payment:     domain.DraftPayment{Method: pay.Method},
		Subtotal:    breakdown.Subtotal,
		DeliveryFee: breakdown.DeliveryFee,
		Discount:    breakdown.Discount,
		Total:       breakdown.Total,
		CreatedAt:   s.opts.Now().UTC(),
	}
	if del.Method.Kind != domain.DeliveryPickup {
		addr := del.Address
		draft.Delivery.Destination = &addr
	}

	switch pay.Method {
	case domain.PaymentCreditCard:
		cred := *pay.Credential
		draft.Payment.Credential = &cred
		draft.Payment.Installments = cred.Installments
		draft.Payment.InstallmentAmount = breakdown.Total.Split(cred.Installments)
	case domain.PaymentWhatsApp:
		draft.Payment.WhatsAppNumber = s.store.WhatsAppNumber
		draft.Payment.WhatsAppMessage = whatsAppMessage(draft, s.store)
	}
	return draft
}

// whatsAppMessage is the pre-filled text the buyer sends to the merchant.
func whatsAppMessage(d domain.OrderDraft, store domain.StoreSettings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s! I would like to place this order:\n", store.Name)
	for _, l := range d.Lines {
		name := l.Name
		if name == "" {
			name = l.ProductID
		}
		fmt.Fprintf(&b, "- %dx %s (%s)\n", l.Quantity, name, l.Total().Format(d.Currency))
	}
	fmt.Fprintf(&b, "Delivery: %s (%s)\n", deliveryLabel(d.Delivery.Method), d.DeliveryFee.Format(d.Currency))
	fmt.Fprintf(&b, "Total: %s\n", d.Total.Format(d.Currency))
	if name := d.Identity.Name(); name != "" {
		fmt.Fprintf(&b, "Name: %s\n", name)
	}
	return b.String()
}

func deliveryLabel(m domain.DeliveryMethod) string {
	switch m.Kind {
	case domain.DeliveryPickup:
		return "store pickup"
	case domain.DeliveryLocalCourier:
		return "local courier"
	default:
		return "carrier " + m.ServiceID
	}
}
