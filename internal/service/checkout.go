package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/internal/checkout"
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/metrics"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

const (
	// defaultIdleTTL is how long a session survives without any change.
	defaultIdleTTL = 30 * time.Minute
	// defaultSweepInterval is how often idle sessions are looked for.
	defaultSweepInterval = time.Minute
	// MaxLinesPerSession bounds the cart size accepted by Start.
	MaxLinesPerSession = 50
)

// Config tunes the session registry.
type Config struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Session       checkout.Options
	Now           func() time.Time
}

// StartInput holds the parameters for starting a checkout session.
type StartInput struct {
	StoreID string      `json:"store_id" validate:"required"`
	Lines   []LineInput `json:"lines" validate:"required,min=1,max=50,dive"`
}

// LineInput is one cart line of a start request. Prices are in cents.
type LineInput struct {
	ProductID string `json:"product_id" validate:"required"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=100000000000"`
	Quantity  int    `json:"quantity" validate:"required,gte=1,lte=100"`
}

// CheckoutService holds the live checkout sessions of this replica.
type CheckoutService struct {
	stores provider.StoreDirectory
	deps   checkout.Dependencies
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*checkout.Session
}

// NewCheckoutService creates a session registry.
func NewCheckoutService(stores provider.StoreDirectory, deps checkout.Dependencies, cfg Config, logger *slog.Logger) *CheckoutService {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Session.Now == nil {
		cfg.Session.Now = cfg.Now
	}
	return &CheckoutService{
		stores:   stores,
		deps:     deps,
		cfg:      cfg,
		logger:   logger,
		sessions: make(map[string]*checkout.Session),
	}
}

// Start creates a session for a cart. A non-empty userID starts the session
// authenticated when the customer profile can be loaded; otherwise the buyer
// identifies during checkout.
func (s *CheckoutService) Start(ctx context.Context, userID string, input *StartInput) (*checkout.Session, error) {
	if input == nil || input.StoreID == "" {
		return nil, apperrors.InvalidInput("store id is required")
	}
	if len(input.Lines) == 0 {
		return nil, apperrors.InvalidInput("cart has no lines")
	}
	if len(input.Lines) > MaxLinesPerSession {
		return nil, apperrors.InvalidInput(fmt.Sprintf("cart must not exceed %d lines", MaxLinesPerSession))
	}

	store, err := s.stores.Store(ctx, input.StoreID)
	if err != nil {
		if errors.Is(err, provider.ErrStoreNotFound) {
			return nil, apperrors.NotFound("store", input.StoreID)
		}
		return nil, apperrors.ServiceUnavailable("store settings are unavailable", err)
	}

	var customer *domain.Profile
	if userID != "" {
		customer = s.loadCustomer(ctx, userID)
	}

	lines := make([]domain.CartLine, len(input.Lines))
	for i, l := range input.Lines {
		lines[i] = domain.CartLine{
			ProductID: l.ProductID,
			Name:      l.Name,
			UnitPrice: money.FromCents(l.UnitPrice),
			Quantity:  l.Quantity,
		}
	}

	session, err := checkout.NewSession(checkout.Params{
		Store:    store,
		Lines:    lines,
		Customer: customer,
	}, s.deps, s.cfg.Session, s.logger)
	if err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	s.mu.Lock()
	s.sessions[session.ID()] = session
	count := len(s.sessions)
	s.mu.Unlock()
	metrics.ActiveSessions.Set(float64(count))

	s.logger.InfoContext(ctx, "checkout session started",
		slog.String("session_id", session.ID()),
		slog.String("store_id", store.ID),
		slog.Bool("authenticated", customer != nil),
		slog.Int("lines", len(lines)),
	)
	return session, nil
}

func (s *CheckoutService) loadCustomer(ctx context.Context, userID string) *domain.Profile {
	profile, err := s.deps.Identity.Profile(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "customer profile unavailable, starting as guest",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	return &profile
}

// AttachCustomer authenticates a live session as the signed-in customer
// userID. The session must still be building.
func (s *CheckoutService) AttachCustomer(ctx context.Context, session *checkout.Session, userID string) error {
	profile, err := s.deps.Identity.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, provider.ErrCustomerNotFound) {
			return apperrors.NotFound("customer", userID)
		}
		return apperrors.ServiceUnavailable("customer profile is unavailable", err)
	}
	if err := session.Authenticate(profile); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "customer attached to checkout session",
		slog.String("session_id", session.ID()),
		slog.String("customer_id", profile.CustomerID),
	)
	return nil
}

// Get returns a live session.
func (s *CheckoutService) Get(id string) (*checkout.Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("checkout session", id)
	}
	return session, nil
}

// Discard drops a session. A session with an outstanding submission cannot
// be discarded.
func (s *CheckoutService) Discard(id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("checkout session", id)
	}
	if session.Status() == domain.StatusSubmitting {
		s.mu.Unlock()
		return apperrors.Conflict("an order submission is in progress")
	}
	delete(s.sessions, id)
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	session.Close()
	return nil
}

// Len returns the number of live sessions.
func (s *CheckoutService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// ExpireIdle drops every session without activity for the idle TTL. Sessions
// with an outstanding submission are kept.
func (s *CheckoutService) ExpireIdle() int {
	cutoff := s.cfg.Now().Add(-s.cfg.IdleTTL)

	var expired []*checkout.Session
	s.mu.Lock()
	for id, session := range s.sessions {
		if session.Status() == domain.StatusSubmitting || session.LastActivity().After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, session)
	}
	count := len(s.sessions)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(float64(count))
	for _, session := range expired {
		session.Close()
	}
	return len(expired)
}

// RunSweeper expires idle sessions periodically until ctx is done.
func (s *CheckoutService) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.ExpireIdle(); n > 0 {
				s.logger.Info("idle checkout sessions expired", slog.Int("expired", n))
			}
		}
	}
}

// Close drops every session and ends their subscriptions.
func (s *CheckoutService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*checkout.Session)
	s.mu.Unlock()

	metrics.ActiveSessions.Set(0)
	for _, session := range sessions {
		session.Close()
	}
}
