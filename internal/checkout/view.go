package checkout

import (
	"time"

	"github.com/virtualmercado/shopdrive-sub002/internal/delivery"
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/identification"
	"github.com/virtualmercado/shopdrive-sub002/internal/payment"
	"github.com/virtualmercado/shopdrive-sub002/internal/pricing"
)

// View is the read-only projection of a session handed to the rendering layer.
type View struct {
	ID             string                  `json:"id"`
	StoreID        string                  `json:"store_id"`
	StoreName      string                  `json:"store_name"`
	Currency       string                  `json:"currency"`
	Status         string                  `json:"status"`
	OrderID        string                  `json:"order_id,omitempty"`
	FailureReason  string                  `json:"failure_reason,omitempty"`
	Lines          []domain.CartLine       `json:"lines"`
	Identification identification.Snapshot `json:"identification"`
	Delivery       delivery.Snapshot       `json:"delivery"`
	Payment        payment.Snapshot        `json:"payment"`
	Totals         pricing.Breakdown       `json:"totals"`
	Installments   []payment.Installment   `json:"installments,omitempty"`
	WhatsAppNumber string                  `json:"whatsapp_number,omitempty"`
	Signals        Signals                 `json:"signals"`
	CanSubmit      bool                    `json:"can_submit"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// View returns the current projection. Totals come from the same pricing
// path Submit uses.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.identification.Snapshot()
	del := s.delivery.Snapshot()
	pay := s.payment.Snapshot()
	totals := s.totals(del.Fee, pay.Method)

	v := View{
		ID:             s.id,
		StoreID:        s.store.ID,
		StoreName:      s.store.Name,
		Currency:       s.store.Currency,
		Status:         s.status,
		OrderID:        s.orderID,
		FailureReason:  s.failure,
		Lines:          append([]domain.CartLine(nil), s.lines...),
		Identification: id,
		Delivery:       del,
		Payment:        pay,
		Totals:         totals,
		Signals: Signals{
			Identification: id.Valid,
			Delivery:       del.Valid,
			Payment:        pay.Valid,
		},
		UpdatedAt: s.LastActivity().UTC(),
	}
	if s.store.AcceptsPayment(domain.PaymentCreditCard) {
		card := s.totals(del.Fee, domain.PaymentCreditCard)
		v.Installments = payment.Schedule(card.Total, s.store.MaxInstallments)
	}
	if s.store.AcceptsPayment(domain.PaymentWhatsApp) {
		v.WhatsAppNumber = s.store.WhatsAppNumber
	}
	v.CanSubmit = s.status == domain.StatusBuilding && v.Signals.Ready()
	return v
}

// Draft returns the order draft of the latest submission, if any.
func (s *Session) Draft() (domain.OrderDraft, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draft == nil {
		return domain.OrderDraft{}, false
	}
	return *s.draft, true
}
