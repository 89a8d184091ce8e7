// Package identification resolves who is checking out: an authenticated
// customer, a guest, or a visitor whose email already has an account.
package identification

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/metrics"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	"github.com/virtualmercado/shopdrive-sub002/pkg/validator"
)

var (
	// ErrReadOnly is returned for edits while the customer is authenticated.
	ErrReadOnly = errors.New("identity is authenticated and read-only")
	// ErrEmailRequired is returned by account actions without a well-formed email.
	ErrEmailRequired = errors.New("a valid email is required")
	// ErrNoAccount is returned by account actions when the email has no account.
	ErrNoAccount = errors.New("no account matches this email")
	// ErrTooManyAttempts is returned when login or link requests are throttled.
	ErrTooManyAttempts = errors.New("too many attempts, try again later")
)

// Options configures a resolver.
type Options struct {
	Debounce       time.Duration
	LookupTimeout  time.Duration
	RequiredFields []string
	// AttemptsPerMinute and AttemptBurst throttle password logins and
	// passwordless link requests together.
	AttemptsPerMinute int
	AttemptBurst      int
	Now               func() time.Time
}

// Snapshot is a read-only copy of the resolver state.
type Snapshot struct {
	State          string                   `json:"state"`
	Contact        domain.GuestContact      `json:"contact"`
	Profile        *domain.Profile          `json:"profile,omitempty"`
	FieldErrors    map[string]string        `json:"field_errors,omitempty"`
	LookupPending  bool                     `json:"lookup_pending"`
	Match          *domain.EmailMatchResult `json:"match,omitempty"`
	RequiredFields []string                 `json:"required_fields,omitempty"`
	Valid          bool                     `json:"valid"`
}

// Resolver owns the identification slice of a session.
type Resolver struct {
	store    provider.IdentityStore
	opts     Options
	logger   *slog.Logger
	onChange func()
	limiter  *rate.Limiter
	wg       sync.WaitGroup

	mu      sync.Mutex
	state   string
	contact domain.GuestContact
	profile *domain.Profile
	match   *domain.EmailMatchResult
	pending bool
	editSeq uint64
	timer   *time.Timer
}

// NewResolver creates an identification resolver in the unresolved state.
// onChange, if set, is called after every state change and never while the
// resolver's lock is held.
func NewResolver(store provider.IdentityStore, opts Options, logger *slog.Logger, onChange func()) *Resolver {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 5 * time.Second
	}
	if opts.AttemptsPerMinute <= 0 {
		opts.AttemptsPerMinute = 5
	}
	if opts.AttemptBurst <= 0 {
		opts.AttemptBurst = 3
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Resolver{
		store:    store,
		opts:     opts,
		logger:   logger,
		onChange: onChange,
		limiter:  rate.NewLimiter(rate.Limit(float64(opts.AttemptsPerMinute)/60), opts.AttemptBurst),
		state:    domain.IdentityUnresolved,
	}
}

// Authenticate marks the session as belonging to a signed-in customer. Any
// pending email lookup is abandoned.
func (r *Resolver) Authenticate(profile domain.Profile) {
	r.mu.Lock()
	r.cancelPendingLocked()
	r.editSeq++
	r.state = domain.IdentityAuthenticated
	p := profile
	r.profile = &p
	r.contact = domain.GuestContact{
		FullName: profile.FullName,
		Email:    profile.Email,
		Phone:    profile.Phone,
		Document: profile.Document,
	}
	r.match = nil
	r.mu.Unlock()

	r.onChange()
}

// SetEmail records an email edit. Well-formed emails are looked up after the
// debounce interval; only the lookup for the latest edit may change state.
func (r *Resolver) SetEmail(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	r.mu.Lock()
	if r.state == domain.IdentityAuthenticated {
		r.mu.Unlock()
		return ErrReadOnly
	}
	if email == r.contact.Email && (r.pending || r.match != nil) {
		r.mu.Unlock()
		return nil
	}
	r.cancelPendingLocked()
	r.editSeq++
	seq := r.editSeq
	r.contact.Email = email
	r.match = nil

	if !wellFormed(email) {
		// A malformed email is reported as a field error and never looked up.
		r.state = domain.IdentityUnresolved
		if email != "" {
			r.state = domain.IdentityGuest
		}
		r.mu.Unlock()
		r.onChange()
		return nil
	}

	r.state = domain.IdentityUnresolved
	r.pending = true
	base := context.WithoutCancel(ctx)
	r.wg.Add(1)
	r.timer = time.AfterFunc(r.opts.Debounce, func() {
		defer r.wg.Done()
		r.lookup(base, seq, email)
	})
	r.mu.Unlock()

	r.onChange()
	return nil
}

// cancelPendingLocked stops a debounce timer that has not fired yet.
func (r *Resolver) cancelPendingLocked() {
	if r.timer != nil && r.timer.Stop() {
		r.wg.Done()
	}
	r.timer = nil
	r.pending = false
}

func (r *Resolver) lookup(ctx context.Context, seq uint64, email string) {
	r.mu.Lock()
	if seq != r.editSeq {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	lctx, cancel := context.WithTimeout(ctx, r.opts.LookupTimeout)
	match, err := r.store.LookupByEmail(lctx, email)
	cancel()

	r.mu.Lock()
	if seq != r.editSeq {
		r.mu.Unlock()
		metrics.EmailLookups.WithLabelValues(metrics.ResultStale).Inc()
		r.logger.DebugContext(ctx, "discarding stale email lookup")
		return
	}
	r.pending = false
	r.timer = nil
	result := metrics.ResultNotFound
	switch {
	case err != nil:
		// Fail open: an unavailable identity store never blocks checkout.
		r.state = domain.IdentityGuest
		result = metrics.ResultError
	case match.Exists:
		r.state = domain.IdentityEmailExists
		r.match = &domain.EmailMatchResult{Email: email, Exists: true, CheckedAt: r.opts.Now()}
		result = metrics.ResultExists
	default:
		r.state = domain.IdentityGuest
		r.match = &domain.EmailMatchResult{Email: email, Exists: false, CheckedAt: r.opts.Now()}
	}
	r.mu.Unlock()

	metrics.EmailLookups.WithLabelValues(result).Inc()
	if err != nil {
		r.logger.WarnContext(ctx, "email lookup failed, continuing as guest",
			slog.String("error", err.Error()),
		)
	}
	r.onChange()
}

// SetContact replaces the guest contact fields other than email.
func (r *Resolver) SetContact(contact domain.GuestContact) error {
	r.mu.Lock()
	if r.state == domain.IdentityAuthenticated {
		r.mu.Unlock()
		return ErrReadOnly
	}
	email := r.contact.Email
	r.contact = contact
	r.contact.FullName = strings.TrimSpace(contact.FullName)
	r.contact.Email = email
	r.mu.Unlock()

	r.onChange()
	return nil
}

// Login authenticates the entered email with a password.
func (r *Resolver) Login(ctx context.Context, password string) (domain.Profile, error) {
	email, err := r.accountEmail()
	if err != nil {
		return domain.Profile{}, err
	}
	if !r.limiter.Allow() {
		return domain.Profile{}, ErrTooManyAttempts
	}

	profile, err := r.store.Authenticate(ctx, email, password)
	if err != nil {
		r.logger.InfoContext(ctx, "checkout login failed", slog.String("error", err.Error()))
		return domain.Profile{}, err
	}

	r.mu.Lock()
	current := r.contact.Email
	r.mu.Unlock()
	if current != email {
		// The email was edited while the login was in flight.
		return domain.Profile{}, ErrEmailRequired
	}

	r.Authenticate(profile)
	r.logger.InfoContext(ctx, "customer logged in during checkout",
		slog.String("customer_id", profile.CustomerID),
	)
	return profile, nil
}

// RequestMagicLink asks the identity store to email a passwordless login link.
func (r *Resolver) RequestMagicLink(ctx context.Context) error {
	email, err := r.accountEmail()
	if err != nil {
		return err
	}
	if !r.limiter.Allow() {
		return ErrTooManyAttempts
	}
	if err := r.store.RequestPasswordlessLink(ctx, email); err != nil {
		r.logger.WarnContext(ctx, "passwordless link request failed", slog.String("error", err.Error()))
		return err
	}
	r.logger.InfoContext(ctx, "passwordless link requested")
	return nil
}

func (r *Resolver) accountEmail() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.state == domain.IdentityAuthenticated:
		return "", ErrReadOnly
	case !wellFormed(r.contact.Email):
		return "", ErrEmailRequired
	case r.state != domain.IdentityEmailExists:
		return "", ErrNoAccount
	}
	return r.contact.Email, nil
}

// Identity returns the resolved actor for an order draft.
func (r *Resolver) Identity() domain.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identityLocked()
}

// Resolve returns the actor together with its validity, read atomically.
func (r *Resolver) Resolve() (domain.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.identityLocked(), r.validLocked()
}

func (r *Resolver) identityLocked() domain.Identity {
	id := domain.Identity{State: r.state}
	switch r.state {
	case domain.IdentityAuthenticated:
		p := *r.profile
		id.Customer = &p
	case domain.IdentityGuest:
		c := r.contact
		id.Guest = &c
	}
	return id
}

// Valid reports whether the actor is authenticated, or a guest whose fields
// all pass validation and whose email matched no account.
func (r *Resolver) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.validLocked()
}

func (r *Resolver) validLocked() bool {
	switch r.state {
	case domain.IdentityAuthenticated:
		return true
	case domain.IdentityGuest:
		if r.pending || (r.match != nil && r.match.Exists) {
			return false
		}
		return len(r.fieldErrorsLocked()) == 0
	}
	return false
}

// guestFields holds the rules every guest must satisfy.
type guestFields struct {
	FullName string `json:"full_name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
}

func (r *Resolver) fieldErrorsLocked() map[string]string {
	fields := validator.FieldErrors(validator.Validate(guestFields{
		FullName: r.contact.FullName,
		Email:    r.contact.Email,
	}))
	for _, name := range r.opts.RequiredFields {
		if err := validator.Var(strings.TrimSpace(r.contact.Field(name)), "required,min=3"); err != nil {
			if fields == nil {
				fields = make(map[string]string)
			}
			fields[name] = "must be at least 3 characters"
		}
	}
	return fields
}

// Snapshot returns a copy of the resolver state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		State:          r.state,
		Contact:        r.contact,
		LookupPending:  r.pending,
		RequiredFields: r.opts.RequiredFields,
		Valid:          r.validLocked(),
	}
	if r.profile != nil {
		p := *r.profile
		s.Profile = &p
	}
	if r.match != nil {
		m := *r.match
		s.Match = &m
	}
	if r.state != domain.IdentityAuthenticated {
		s.FieldErrors = r.fieldErrorsLocked()
	}
	return s
}

// Wait blocks until pending lookups, including debounce timers, completed.
func (r *Resolver) Wait() {
	r.wg.Wait()
}

func wellFormed(email string) bool {
	return email != "" && validator.Var(email, "email") == nil
}
