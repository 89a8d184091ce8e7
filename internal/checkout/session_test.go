package checkout

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/payment"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// --- Fakes ---

type fakeIdentity struct {
	existing map[string]bool
}

func (f *fakeIdentity) LookupByEmail(_ context.Context, email string) (provider.EmailMatch, error) {
	return provider.EmailMatch{Exists: f.existing[email]}, nil
}

func (f *fakeIdentity) Authenticate(_ context.Context, email, password string) (domain.Profile, error) {
	if !f.existing[email] || password != "pw" {
		return domain.Profile{}, provider.ErrInvalidCredentials
	}
	return domain.Profile{CustomerID: "cus_1", FullName: "Ana Lima", Email: email, Document: "12345678909"}, nil
}

func (f *fakeIdentity) RequestPasswordlessLink(context.Context, string) error { return nil }

func (f *fakeIdentity) Profile(_ context.Context, id string) (domain.Profile, error) {
	return domain.Profile{CustomerID: id}, nil
}

type fakeRates struct {
	block bool
}

func (f *fakeRates) Quote(ctx context.Context, postal string, ids []string) ([]domain.CarrierQuote, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	out := make([]domain.CarrierQuote, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.CarrierQuote{
			ServiceID: id, PostalCode: postal, Price: money.FromCents(2500),
			EstimatedDaysMin: 3, EstimatedDaysMax: 5, Available: true,
		})
	}
	return out, nil
}

type fakeGateway struct {
	calls atomic.Int32
}

func (g *fakeGateway) TokenizeCard(context.Context, provider.CardRequest) (provider.CardToken, error) {
	g.calls.Add(1)
	return provider.CardToken{Token: "tok_1", Brand: "visa", Last4: "1111"}, nil
}

type fakeOrders struct {
	mu      sync.Mutex
	drafts  []domain.OrderDraft
	calls   atomic.Int32
	err     error
	release chan struct{}
	started chan struct{}
}

func (o *fakeOrders) Submit(ctx context.Context, d domain.OrderDraft) (string, error) {
	o.calls.Add(1)
	o.mu.Lock()
	o.drafts = append(o.drafts, d)
	err := o.err
	o.mu.Unlock()
	if o.started != nil {
		o.started <- struct{}{}
	}
	if o.release != nil {
		select {
		case <-o.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}
	return "ord-1", nil
}

func (o *fakeOrders) setErr(err error) {
	o.mu.Lock()
	o.err = err
	o.mu.Unlock()
}

type recordedEvent struct {
	kind    string
	orderID string
	reason  string
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (e *fakeEvents) record(ev recordedEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return e.err
}

func (e *fakeEvents) PublishCheckoutSubmitted(context.Context, domain.OrderDraft) error {
	return e.record(recordedEvent{kind: "submitted"})
}

func (e *fakeEvents) PublishCheckoutSucceeded(_ context.Context, _ domain.OrderDraft, id string) error {
	return e.record(recordedEvent{kind: "succeeded", orderID: id})
}

func (e *fakeEvents) PublishCheckoutFailed(_ context.Context, _ domain.OrderDraft, reason string) error {
	return e.record(recordedEvent{kind: "failed", reason: reason})
}

func (e *fakeEvents) kinds() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.events))
	for i, ev := range e.events {
		out[i] = ev.kind
	}
	return out
}

// --- Helpers ---

var fixedNow = time.Date(2026, time.March, 15, 12, 0, 0, 0, time.UTC)

type harness struct {
	identity *fakeIdentity
	rates    *fakeRates
	gateway  *fakeGateway
	orders   *fakeOrders
	events   *fakeEvents
}

func newHarness() *harness {
	return &harness{
		identity: &fakeIdentity{existing: map[string]bool{"ana@example.com": true}},
		rates:    &fakeRates{},
		gateway:  &fakeGateway{},
		orders:   &fakeOrders{},
		events:   &fakeEvents{},
	}
}

func testStore() domain.StoreSettings {
	return domain.StoreSettings{
		ID:              "store-1",
		Name:            "Loja Azul",
		Currency:        "BRL",
		DeliveryPolicy:  domain.PolicyDeliveryAndPickup,
		CarrierServices: []domain.CarrierService{{ID: "sedex", Name: "SEDEX"}, {ID: "pac", Name: "PAC"}},
		LocalCourier: domain.LocalCourierRule{
			Enabled: true, FlatFee: money.FromCents(1000), EstimatedDays: 1,
		},
		PaymentMethods: []string{
			domain.PaymentPix, domain.PaymentCreditCard, domain.PaymentBoleto, domain.PaymentWhatsApp,
		},
		PixDiscountPercent:  money.MustPercent("5"),
		MaxInstallments:     6,
		RequiredGuestFields: []string{domain.FieldStoreName},
		WhatsAppNumber:      "5511999990000",
	}
}

func testLines() []domain.CartLine {
	return []domain.CartLine{
		{ProductID: "p1", Name: "Caneca", UnitPrice: money.FromCents(2500), Quantity: 2},
		{ProductID: "p2", Name: "Camiseta", UnitPrice: money.FromCents(5000), Quantity: 1},
	}
}

func (h *harness) newSession(t *testing.T, opts Options) *Session {
	t.Helper()
	if opts.EmailDebounce == 0 {
		opts.EmailDebounce = time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	s, err := NewSession(Params{ID: "sess-1", Store: testStore(), Lines: testLines()}, Dependencies{
		Identity: h.identity,
		Rates:    h.rates,
		Gateway:  h.gateway,
		Orders:   h.orders,
		Events:   h.events,
	}, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return s
}

func identifyGuest(t *testing.T, s *Session) {
	t.Helper()
	require.NoError(t, s.SetContact(domain.GuestContact{
		FullName: "Bruno Souza",
		Extra:    map[string]string{domain.FieldStoreName: "Loja do Bruno"},
	}))
	require.NoError(t, s.SetEmail(context.Background(), "bruno@example.com"))
	s.Wait()
	require.True(t, s.Signals().Identification)
}

func validAddress() domain.Address {
	return domain.Address{
		PostalCode:   "01310-100",
		Street:       "Avenida Paulista",
		Number:       "1000",
		Neighborhood: "Bela Vista",
		City:         "Sao Paulo",
		State:        "SP",
	}
}

// readyPix prepares a guest, pickup, PIX session.
func readyPix(t *testing.T, s *Session) {
	t.Helper()
	identifyGuest(t, s)
	require.NoError(t, s.SelectDelivery(domain.Pickup()))
	require.NoError(t, s.SelectPayment(domain.PaymentPix))
	require.True(t, s.Signals().Ready())
}

// ============================================================================
// Construction
// ============================================================================

func TestNewSession_RejectsEmptyCart(t *testing.T) {
	_, err := NewSession(Params{Store: testStore()}, Dependencies{}, Options{}, slog.Default())
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestNewSession_RejectsInvalidLine(t *testing.T) {
	_, err := NewSession(Params{
		Store: testStore(),
		Lines: []domain.CartLine{{ProductID: "p1", UnitPrice: money.FromCents(100), Quantity: 0}},
	}, Dependencies{}, Options{}, slog.Default())
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestNewSession_RejectsOverflowingTotals(t *testing.T) {
	tests := []struct {
		name  string
		lines []domain.CartLine
	}{
		{name: "unit price over limit", lines: []domain.CartLine{
			{ProductID: "p1", UnitPrice: money.MaxAmount + 1, Quantity: 1},
		}},
		{name: "line total wraps", lines: []domain.CartLine{
			{ProductID: "p1", UnitPrice: math.MaxInt64/2 + 1, Quantity: 2},
		}},
		{name: "subtotal over limit", lines: []domain.CartLine{
			{ProductID: "p1", UnitPrice: money.MaxAmount, Quantity: 1},
			{ProductID: "p2", UnitPrice: money.FromCents(1), Quantity: 1},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSession(Params{Store: testStore(), Lines: tt.lines}, Dependencies{}, Options{}, slog.Default())
			assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
			assert.Nil(t, s)
		})
	}
}

func TestNewSession_WithCustomerStartsAuthenticated(t *testing.T) {
	h := newHarness()
	s, err := NewSession(Params{
		Store:    testStore(),
		Lines:    testLines(),
		Customer: &domain.Profile{CustomerID: "cus_7", FullName: "Carla Dias", Email: "carla@example.com"},
	}, Dependencies{Identity: h.identity, Rates: h.rates, Gateway: h.gateway, Orders: h.orders},
		Options{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID())
	assert.True(t, s.Signals().Identification)
	assert.Equal(t, domain.IdentityAuthenticated, s.View().Identification.State)
}

// ============================================================================
// End-to-end scenarios
// ============================================================================

func TestScenarioA_GuestPickupPix(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	readyPix(t, s)

	view := s.View()
	assert.Equal(t, money.FromCents(10000), view.Totals.Subtotal)
	assert.Equal(t, money.FromCents(9500), view.Totals.Total)
	assert.True(t, view.CanSubmit)

	orderID, err := s.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "ord-1", orderID)
	assert.Equal(t, domain.StatusSucceeded, s.Status())

	require.Len(t, h.orders.drafts, 1)
	draft := h.orders.drafts[0]
	assert.Equal(t, money.FromCents(9500), draft.Total, "submitted total equals displayed total")
	assert.Equal(t, view.Totals.Total, draft.Total)
	assert.Equal(t, money.FromCents(500), draft.Discount)
	assert.Equal(t, domain.Pickup(), draft.Delivery.Method)
	assert.Nil(t, draft.Delivery.Destination)
	assert.Equal(t, domain.PaymentPix, draft.Payment.Method)
	assert.NotEmpty(t, draft.IdempotencyKey)
	require.NotNil(t, draft.Identity.Guest)
	assert.Equal(t, "bruno@example.com", draft.Identity.Guest.Email)

	assert.Equal(t, []string{"submitted", "succeeded"}, h.events.kinds())
	assert.Equal(t, "ord-1", s.View().OrderID)
}

func TestScenarioB_ExistingEmailBlocksSubmission(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	require.NoError(t, s.SetContact(domain.GuestContact{
		FullName: "Ana Lima",
		Extra:    map[string]string{domain.FieldStoreName: "Loja da Ana"},
	}))
	require.NoError(t, s.SetEmail(context.Background(), "ana@example.com"))
	s.Wait()
	require.NoError(t, s.SelectDelivery(domain.Pickup()))
	require.NoError(t, s.SelectPayment(domain.PaymentPix))

	signals := s.Signals()
	assert.False(t, signals.Identification)
	assert.True(t, signals.Delivery)
	assert.True(t, signals.Payment)
	assert.Equal(t, domain.IdentityEmailExists, s.View().Identification.State)

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int32(0), h.orders.calls.Load())

	// Logging in unblocks the same session.
	_, err = s.Login(context.Background(), "pw")
	require.NoError(t, err)
	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	require.Len(t, h.orders.drafts, 1)
	require.NotNil(t, h.orders.drafts[0].Identity.Customer)
	assert.Equal(t, "cus_1", h.orders.drafts[0].Identity.Customer.CustomerID)
}

func TestScenarioC_QuoteTimeoutKeepsLocalMethods(t *testing.T) {
	h := newHarness()
	h.rates.block = true
	s := h.newSession(t, Options{QuoteTimeout: 20 * time.Millisecond})
	identifyGuest(t, s)

	require.NoError(t, s.SetAddress(context.Background(), validAddress()))
	s.Wait()

	for _, opt := range s.View().Delivery.Options {
		if opt.Method.Kind == domain.DeliveryCarrier {
			assert.False(t, opt.Available, opt.Method.ServiceID)
			assert.False(t, opt.Selectable, opt.Method.ServiceID)
		}
	}
	assert.Error(t, s.SelectDelivery(domain.Carrier("sedex")))

	require.NoError(t, s.SelectDelivery(domain.LocalCourier()))
	require.NoError(t, s.SelectPayment(domain.PaymentBoleto))

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	draft := h.orders.drafts[0]
	assert.Equal(t, money.FromCents(1000), draft.DeliveryFee)
	assert.Equal(t, money.FromCents(11000), draft.Total)
	require.NotNil(t, draft.Delivery.Destination)
	assert.Equal(t, "01310100", draft.Delivery.Destination.PostalCode)
}

func TestCarrierDelivery_PricesFromQuote(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	identifyGuest(t, s)
	require.NoError(t, s.SetAddress(context.Background(), validAddress()))
	s.Wait()

	require.NoError(t, s.SelectDelivery(domain.Carrier("sedex")))
	require.NoError(t, s.SelectPayment(domain.PaymentPix))

	view := s.View()
	assert.Equal(t, money.FromCents(2500), view.Totals.DeliveryFee)
	// (100.00 + 25.00) * 0.95 = 118.75
	assert.Equal(t, money.FromCents(11875), view.Totals.Total)

	_, err := s.Submit(context.Background())
	require.NoError(t, err)
	draft := h.orders.drafts[0]
	assert.Equal(t, view.Totals.Total, draft.Total)
	require.NotNil(t, draft.Delivery.EstimatedDays)
	assert.Equal(t, 3, draft.Delivery.EstimatedDays.Min)
}

// ============================================================================
// Submission guards
// ============================================================================

func TestSubmit_TwiceIssuesExactlyOneOrderCall(t *testing.T) {
	h := newHarness()
	h.orders.release = make(chan struct{})
	h.orders.started = make(chan struct{}, 1)
	s := h.newSession(t, Options{})
	readyPix(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	<-h.orders.started

	_, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrSubmitInFlight)
	assert.Equal(t, domain.StatusSubmitting, s.Status())
	assert.False(t, s.View().CanSubmit)

	close(h.orders.release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), h.orders.calls.Load())
}

func TestSubmit_EditsRejectedWhileSubmitting(t *testing.T) {
	h := newHarness()
	h.orders.release = make(chan struct{})
	h.orders.started = make(chan struct{}, 1)
	s := h.newSession(t, Options{})
	readyPix(t, s)

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()
	<-h.orders.started

	assert.ErrorIs(t, s.SelectPayment(domain.PaymentBoleto), ErrLocked)
	assert.ErrorIs(t, s.SetEmail(context.Background(), "x@example.com"), ErrLocked)
	assert.ErrorIs(t, s.SelectDelivery(domain.LocalCourier()), ErrLocked)
	_, err := s.Tokenize(context.Background())
	assert.ErrorIs(t, err, ErrLocked)

	close(h.orders.release)
	require.NoError(t, <-done)
}

func TestSubmit_CardWithoutCredentialRejectedLocally(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	identifyGuest(t, s)
	require.NoError(t, s.SelectDelivery(domain.Pickup()))
	require.NoError(t, s.SelectPayment(domain.PaymentCreditCard))
	require.NoError(t, s.SetCard(payment.CardFields{
		Number: "4111111111111111", Expiry: "12/28", HolderName: "BRUNO SOUZA", CVV: "123",
	}))

	_, err := s.Submit(context.Background())

	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int32(0), h.orders.calls.Load())
	assert.Equal(t, int32(0), h.gateway.calls.Load())
	assert.Equal(t, domain.StatusBuilding, s.Status())
}

func TestSubmit_CardFlowCarriesCredentialAndInstallments(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	identifyGuest(t, s)
	require.NoError(t, s.SelectDelivery(domain.Pickup()))
	require.NoError(t, s.SelectPayment(domain.PaymentCreditCard))
	require.NoError(t, s.SetCard(payment.CardFields{
		Number: "4111111111111111", Expiry: "12/28", HolderName: "BRUNO SOUZA", CVV: "123",
	}))
	require.NoError(t, s.SelectInstallments(3))
	_, err := s.Tokenize(context.Background())
	require.NoError(t, err)

	view := s.View()
	require.Len(t, view.Installments, 6)
	assert.Equal(t, money.FromCents(3333), view.Installments[2].Amount)

	_, err = s.Submit(context.Background())
	require.NoError(t, err)
	draft := h.orders.drafts[0]
	require.NotNil(t, draft.Payment.Credential)
	assert.Equal(t, "tok_1", draft.Payment.Credential.Token)
	assert.Equal(t, 3, draft.Payment.Installments)
	assert.Equal(t, money.FromCents(3333), draft.Payment.InstallmentAmount)
	assert.Equal(t, money.FromCents(10000), draft.Total, "no discount for card")
}

func TestSubmit_WhatsAppHandoff(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	identifyGuest(t, s)
	require.NoError(t, s.SelectDelivery(domain.Pickup()))
	require.NoError(t, s.SelectPayment(domain.PaymentWhatsApp))

	_, err := s.Submit(context.Background())

	require.NoError(t, err)
	draft := h.orders.drafts[0]
	assert.Equal(t, "5511999990000", draft.Payment.WhatsAppNumber)
	assert.Contains(t, draft.Payment.WhatsAppMessage, "Loja Azul")
	assert.Contains(t, draft.Payment.WhatsAppMessage, "2x Caneca")
	assert.Contains(t, draft.Payment.WhatsAppMessage, "R$ 100,00")
}

func TestSubmit_SucceededIsTerminal(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	readyPix(t, s)
	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "ord-1")
	assert.ErrorIs(t, s.SelectPayment(domain.PaymentBoleto), ErrLocked)
	assert.ErrorIs(t, s.Authenticate(domain.Profile{CustomerID: "cus_2"}), ErrLocked)
	assert.ErrorIs(t, s.Retry(), ErrNotFailed)
	assert.Equal(t, int32(1), h.orders.calls.Load())
}

func TestSubmit_DraftMatchesOrderCall(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	_, ok := s.Draft()
	assert.False(t, ok, "no draft before the first submission")
	readyPix(t, s)

	_, err := s.Submit(context.Background())
	require.NoError(t, err)

	draft, ok := s.Draft()
	require.True(t, ok)
	require.Len(t, h.orders.drafts, 1)
	assert.Equal(t, h.orders.drafts[0], draft)
	assert.Equal(t, domain.PaymentPix, draft.Payment.Method)
	assert.Equal(t, money.FromCents(9500), draft.Total)
}

func TestAuthenticate_GuestBecomesCustomer(t *testing.T) {
	h := newHarness()
	s := h.newSession(t, Options{})
	require.Equal(t, domain.IdentityUnresolved, s.View().Identification.State)

	require.NoError(t, s.Authenticate(domain.Profile{
		CustomerID: "cus_3", FullName: "Dora Reis", Email: "dora@example.com", Document: "12345678909",
	}))

	assert.Equal(t, domain.IdentityAuthenticated, s.View().Identification.State)
	assert.True(t, s.Signals().Identification)
}

// ============================================================================
// Failure and retry
// ============================================================================

func TestSubmit_FailureKeepsDataAndAllowsRetry(t *testing.T) {
	h := newHarness()
	h.orders.setErr(apperrors.ServiceUnavailable("order service is unavailable", errors.New("dial tcp")))
	s := h.newSession(t, Options{})
	identifyGuest(t, s)
	require.NoError(t, s.SetAddress(context.Background(), validAddress()))
	s.Wait()
	require.NoError(t, s.SelectDelivery(domain.LocalCourier()))
	require.NoError(t, s.SelectPayment(domain.PaymentPix))

	_, err := s.Submit(context.Background())

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, "order service is unavailable", subErr.Reason)
	assert.Equal(t, domain.StatusFailed, s.Status())
	assert.Equal(t, "order service is unavailable", s.View().FailureReason)
	assert.ErrorIs(t, s.SelectPayment(domain.PaymentBoleto), ErrLocked, "edits need a retry first")
	assert.Equal(t, []string{"submitted", "failed"}, h.events.kinds())

	require.NoError(t, s.Retry())
	view := s.View()
	assert.Equal(t, domain.StatusBuilding, view.Status)
	assert.Empty(t, view.FailureReason, "retry clears the previous failure")
	assert.Equal(t, "bruno@example.com", view.Identification.Contact.Email)
	assert.Equal(t, "01310100", view.Delivery.Address.PostalCode)
	assert.Len(t, view.Lines, 2)
	assert.True(t, view.CanSubmit)

	h.orders.setErr(nil)
	orderID, err := s.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ord-1", orderID)
	assert.Equal(t, int32(2), h.orders.calls.Load())

	// Each attempt carries its own idempotency key.
	assert.NotEqual(t, h.orders.drafts[0].IdempotencyKey, h.orders.drafts[1].IdempotencyKey)
}

func TestSubmit_FailureInvalidatesCardCredential(t *testing.T) {
	h := newHarness()
	h.orders.setErr(errors.New("order rejected"))
	s := h.newSession(t, Options{})
	identifyGuest(t, s)
	require.NoError(t, s.SelectDelivery(domain.Pickup()))
	require.NoError(t, s.SelectPayment(domain.PaymentCreditCard))
	require.NoError(t, s.SetCard(payment.CardFields{
		Number: "4111111111111111", Expiry: "12/28", HolderName: "BRUNO SOUZA", CVV: "123",
	}))
	_, err := s.Tokenize(context.Background())
	require.NoError(t, err)

	_, err = s.Submit(context.Background())
	require.Error(t, err)
	require.NoError(t, s.Retry())

	assert.False(t, s.Signals().Payment)
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)

	_, err = s.Tokenize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.gateway.calls.Load())
	assert.True(t, s.Signals().Payment)
}

func TestSubmit_TimeoutResolvesToFailed(t *testing.T) {
	h := newHarness()
	h.orders.release = make(chan struct{})
	s := h.newSession(t, Options{SubmitTimeout: 20 * time.Millisecond})
	readyPix(t, s)

	_, err := s.Submit(context.Background())

	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, domain.StatusFailed, s.Status())
}

func TestSubmit_CancelledRequestDoesNotAbortOrderCall(t *testing.T) {
	h := newHarness()
	h.orders.release = make(chan struct{})
	h.orders.started = make(chan struct{}, 1)
	s := h.newSession(t, Options{})
	readyPix(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(ctx)
		done <- err
	}()
	<-h.orders.started
	cancel()
	close(h.orders.release)

	require.NoError(t, <-done)
	assert.Equal(t, domain.StatusSucceeded, s.Status())
}

func TestSubmit_EventPublishErrorsDoNotFail(t *testing.T) {
	h := newHarness()
	h.events.err = errors.New("broker down")
	s := h.newSession(t, Options{})
	readyPix(t, s)

	_, err := s.Submit(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.StatusSucceeded, s.Status())
}

func TestRetry_OnlyFromFailed(t *testing.T) {
	s := newHarness().newSession(t, Options{})
	assert.ErrorIs(t, s.Retry(), ErrNotFailed)
}

// ============================================================================
// Notifications
// ============================================================================

func TestSession_NotifiesSubscribers(t *testing.T) {
	s := newHarness().newSession(t, Options{})
	ch, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.SelectPayment(domain.PaymentPix))

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}
}

func TestSession_CloseEndsSubscriptions(t *testing.T) {
	s := newHarness().newSession(t, Options{})
	ch, _ := s.Subscribe()

	s.Close()

	_, ok := <-ch
	assert.False(t, ok)
}
