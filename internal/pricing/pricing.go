// Package pricing computes the payable total of a checkout. It is the only
// place the total is derived; both the session view and the order draft read it.
package pricing

import (
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// Breakdown is the itemized payable amount.
type Breakdown struct {
	Subtotal    money.Money `json:"subtotal"`
	DeliveryFee money.Money `json:"delivery_fee"`
	Discount    money.Money `json:"discount"`
	Total       money.Money `json:"total"`
}

// Total combines subtotal, delivery fee and the payment method discount.
// Only PIX carries a discount; it applies to subtotal plus delivery and is
// rounded half up to the cent once.
func Total(subtotal, deliveryFee money.Money, paymentMethod string, pixDiscount money.Percent) Breakdown {
	gross := subtotal.Add(deliveryFee)
	total := gross
	if paymentMethod == domain.PaymentPix {
		total = gross.ApplyDiscount(pixDiscount)
	}
	return Breakdown{
		Subtotal:    subtotal,
		DeliveryFee: deliveryFee,
		Discount:    gross.Sub(total),
		Total:       total,
	}
}
