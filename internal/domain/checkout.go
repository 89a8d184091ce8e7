package domain

import (
	"fmt"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// Checkout session status constants.
const (
	StatusBuilding   = "building"
	StatusSubmitting = "submitting"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// transitions lists the allowed forward moves of a session. Failed may go
// back to Building on retry; Succeeded is terminal.
var transitions = map[string][]string{
	StatusBuilding:   {StatusSubmitting},
	StatusSubmitting: {StatusSucceeded, StatusFailed},
	StatusFailed:     {StatusBuilding},
}

// CanTransition reports whether a session may move from one status to another.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus returns true for statuses that accept no further edits or moves.
func IsTerminalStatus(status string) bool {
	return status == StatusSucceeded
}

// CartLine is a single read-only cart entry handed to checkout.
type CartLine struct {
	ProductID string      `json:"product_id"`
	Name      string      `json:"name,omitempty"`
	UnitPrice money.Money `json:"unit_price"`
	Quantity  int         `json:"quantity"`
}

// Total returns unit price times quantity.
func (l CartLine) Total() money.Money {
	return l.UnitPrice.Times(l.Quantity)
}

// Subtotal sums all cart lines. It fails with money.ErrOutOfRange when a
// line total or the sum exceeds money.MaxAmount.
func Subtotal(lines []CartLine) (money.Money, error) {
	totals := make([]money.Money, 0, len(lines))
	for _, l := range lines {
		t, err := l.UnitPrice.CheckedTimes(l.Quantity)
		if err != nil {
			return money.Zero, fmt.Errorf("line %s: %w", l.ProductID, err)
		}
		totals = append(totals, t)
	}
	return money.Sum(totals...)
}

// EmailMatchResult is the outcome of one email existence lookup.
type EmailMatchResult struct {
	Email     string    `json:"email"`
	Exists    bool      `json:"exists"`
	CheckedAt time.Time `json:"checked_at"`
}
