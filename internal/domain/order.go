package domain

import (
	"time"

	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// OrderDraft is the immutable snapshot handed to the order service on submit.
type OrderDraft struct {
	IdempotencyKey string        `json:"idempotency_key"`
	SessionID      string        `json:"session_id"`
	StoreID        string        `json:"store_id"`
	Currency       string        `json:"currency"`
	Identity       Identity      `json:"identity"`
	Lines          []CartLine    `json:"lines"`
	Delivery       DraftDelivery `json:"delivery"`
	Payment        DraftPayment  `json:"payment"`
	Subtotal       money.Money   `json:"subtotal"`
	DeliveryFee    money.Money   `json:"delivery_fee"`
	Discount       money.Money   `json:"discount"`
	Total          money.Money   `json:"total"`
	CreatedAt      time.Time     `json:"created_at"`
}

// DraftDelivery is the delivery part of an order draft.
type DraftDelivery struct {
	Method        DeliveryMethod `json:"method"`
	Destination   *Address       `json:"destination,omitempty"`
	EstimatedDays *DaysRange     `json:"estimated_days,omitempty"`
}

// DraftPayment is the payment part of an order draft.
type DraftPayment struct {
	Method            string          `json:"method"`
	Credential        *CardCredential `json:"credential,omitempty"`
	Installments      int             `json:"installments,omitempty"`
	InstallmentAmount money.Money     `json:"installment_amount,omitempty"`
	WhatsAppNumber    string          `json:"whatsapp_number,omitempty"`
	WhatsAppMessage   string          `json:"whatsapp_message,omitempty"`
}
