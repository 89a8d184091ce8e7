package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
)

// DeclinedCardNumber is always rejected by the mock gateway.
const DeclinedCardNumber = "4000000000000002"

// PaymentGateway issues random tokens for any card except DeclinedCardNumber.
type PaymentGateway struct {
	mu     sync.Mutex
	issued int
}

// NewPaymentGateway creates a mock card gateway.
func NewPaymentGateway() *PaymentGateway {
	return &PaymentGateway{}
}

func (g *PaymentGateway) TokenizeCard(ctx context.Context, req provider.CardRequest) (provider.CardToken, error) {
	if err := ctx.Err(); err != nil {
		return provider.CardToken{}, err
	}
	if req.Number == DeclinedCardNumber {
		return provider.CardToken{}, fmt.Errorf("tokenize card: %w: do not honor", provider.ErrCardRejected)
	}

	last4 := req.Number
	if len(last4) > 4 {
		last4 = last4[len(last4)-4:]
	}

	g.mu.Lock()
	g.issued++
	g.mu.Unlock()

	return provider.CardToken{
		Token: "tok_" + uuid.NewString(),
		Brand: req.Brand,
		Last4: last4,
	}, nil
}

// Issued returns the number of tokens handed out.
func (g *PaymentGateway) Issued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.issued
}

// OrderService keeps submitted drafts in memory. A draft whose idempotency
// key was already seen returns the original order ID.
type OrderService struct {
	mu     sync.RWMutex
	byKey  map[string]string
	orders map[string]domain.OrderDraft
}

// NewOrderService creates an in-memory order service.
func NewOrderService() *OrderService {
	return &OrderService{
		byKey:  make(map[string]string),
		orders: make(map[string]domain.OrderDraft),
	}
}

func (o *OrderService) Submit(ctx context.Context, draft domain.OrderDraft) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if id, ok := o.byKey[draft.IdempotencyKey]; ok {
		return id, nil
	}
	id := uuid.NewString()
	o.byKey[draft.IdempotencyKey] = id
	o.orders[id] = draft
	return id, nil
}

// Order returns a stored draft by order ID.
func (o *OrderService) Order(id string) (domain.OrderDraft, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	d, ok := o.orders[id]
	return d, ok
}

// Count returns the number of distinct orders created.
func (o *OrderService) Count() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.orders)
}

// StoreDirectory serves explicitly registered stores and falls back to a
// default settings template for any other store ID.
type StoreDirectory struct {
	mu       sync.RWMutex
	stores   map[string]domain.StoreSettings
	defaults *domain.StoreSettings
}

// NewStoreDirectory creates a static store directory. A nil defaults makes
// unknown store IDs fail with provider.ErrStoreNotFound.
func NewStoreDirectory(defaults *domain.StoreSettings, stores ...domain.StoreSettings) *StoreDirectory {
	d := &StoreDirectory{
		stores:   make(map[string]domain.StoreSettings, len(stores)),
		defaults: defaults,
	}
	for _, s := range stores {
		d.stores[s.ID] = s
	}
	return d
}

func (d *StoreDirectory) Store(_ context.Context, storeID string) (domain.StoreSettings, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if s, ok := d.stores[storeID]; ok {
		return s, nil
	}
	if d.defaults == nil {
		return domain.StoreSettings{}, provider.ErrStoreNotFound
	}
	s := *d.defaults
	s.ID = storeID
	return s, nil
}
