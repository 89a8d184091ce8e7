package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	pkgkafka "github.com/virtualmercado/shopdrive-sub002/pkg/kafka"
)

// Kafka topic constants for checkout domain events.
var (
	TopicCheckoutSubmitted = pkgkafka.Topic("checkout", "submitted")
	TopicCheckoutSucceeded = pkgkafka.Topic("checkout", "succeeded")
	TopicCheckoutFailed    = pkgkafka.Topic("checkout", "failed")
)

// Aggregate type constant.
const AggregateTypeCheckout = "checkout_session"

// Source identifier for events originating from the checkout service.
const SourceCheckoutService = "storefront-checkout"

// CheckoutSubmittedData is the payload for a checkout.submitted event.
type CheckoutSubmittedData struct {
	SessionID      string `json:"session_id"`
	StoreID        string `json:"store_id"`
	IdempotencyKey string `json:"idempotency_key"`
	CustomerID     string `json:"customer_id,omitempty"`
	Guest          bool   `json:"guest"`
	DeliveryKind   string `json:"delivery_kind"`
	ServiceID      string `json:"service_id,omitempty"`
	PaymentMethod  string `json:"payment_method"`
	ItemCount      int    `json:"item_count"`
	SubtotalAmount int64  `json:"subtotal_amount"`
	DeliveryAmount int64  `json:"delivery_amount"`
	DiscountAmount int64  `json:"discount_amount"`
	TotalAmount    int64  `json:"total_amount"`
	Currency       string `json:"currency"`
}

// CheckoutSucceededData is the payload for a checkout.succeeded event.
type CheckoutSucceededData struct {
	SessionID     string `json:"session_id"`
	StoreID       string `json:"store_id"`
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	TotalAmount   int64  `json:"total_amount"`
	Currency      string `json:"currency"`
}

// CheckoutFailedData is the payload for a checkout.failed event.
type CheckoutFailedData struct {
	SessionID     string `json:"session_id"`
	StoreID       string `json:"store_id"`
	PaymentMethod string `json:"payment_method"`
	FailureReason string `json:"failure_reason"`
}

// Producer publishes checkout domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the checkout service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishCheckoutSubmitted publishes a checkout.submitted event.
func (p *Producer) PublishCheckoutSubmitted(ctx context.Context, draft domain.OrderDraft) error {
	data := CheckoutSubmittedData{
		SessionID:      draft.SessionID,
		StoreID:        draft.StoreID,
		IdempotencyKey: draft.IdempotencyKey,
		Guest:          draft.Identity.Guest != nil,
		DeliveryKind:   draft.Delivery.Method.Kind,
		ServiceID:      draft.Delivery.Method.ServiceID,
		PaymentMethod:  draft.Payment.Method,
		ItemCount:      len(draft.Lines),
		SubtotalAmount: draft.Subtotal.Cents(),
		DeliveryAmount: draft.DeliveryFee.Cents(),
		DiscountAmount: draft.Discount.Cents(),
		TotalAmount:    draft.Total.Cents(),
		Currency:       draft.Currency,
	}
	if draft.Identity.Customer != nil {
		data.CustomerID = draft.Identity.Customer.CustomerID
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutSubmitted, draft.SessionID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create checkout.submitted event: %w", err)
	}
	event.WithMetadata("idempotency_key", draft.IdempotencyKey)

	if err := p.kafka.Publish(ctx, TopicCheckoutSubmitted, event); err != nil {
		return fmt.Errorf("publish checkout.submitted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.submitted event",
		slog.String("session_id", draft.SessionID),
		slog.String("store_id", draft.StoreID),
	)

	return nil
}

// PublishCheckoutSucceeded publishes a checkout.succeeded event.
func (p *Producer) PublishCheckoutSucceeded(ctx context.Context, draft domain.OrderDraft, orderID string) error {
	data := CheckoutSucceededData{
		SessionID:     draft.SessionID,
		StoreID:       draft.StoreID,
		OrderID:       orderID,
		PaymentMethod: draft.Payment.Method,
		TotalAmount:   draft.Total.Cents(),
		Currency:      draft.Currency,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutSucceeded, draft.SessionID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create checkout.succeeded event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutSucceeded, event); err != nil {
		return fmt.Errorf("publish checkout.succeeded event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.succeeded event",
		slog.String("session_id", draft.SessionID),
		slog.String("order_id", orderID),
	)

	return nil
}

// PublishCheckoutFailed publishes a checkout.failed event.
func (p *Producer) PublishCheckoutFailed(ctx context.Context, draft domain.OrderDraft, reason string) error {
	data := CheckoutFailedData{
		SessionID:     draft.SessionID,
		StoreID:       draft.StoreID,
		PaymentMethod: draft.Payment.Method,
		FailureReason: reason,
	}

	event, err := pkgkafka.NewEvent(TopicCheckoutFailed, draft.SessionID, AggregateTypeCheckout, SourceCheckoutService, data)
	if err != nil {
		return fmt.Errorf("create checkout.failed event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicCheckoutFailed, event); err != nil {
		return fmt.Errorf("publish checkout.failed event: %w", err)
	}

	p.logger.DebugContext(ctx, "published checkout.failed event",
		slog.String("session_id", draft.SessionID),
		slog.String("failure_reason", reason),
	)

	return nil
}
