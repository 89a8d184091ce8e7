package payment

import (
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
)

// Installment is one row of an interest-free card schedule.
type Installment struct {
	Count        int         `json:"count"`
	Amount       money.Money `json:"amount"`
	InterestFree bool        `json:"interest_free"`
}

// MaxCount returns the longest schedule offered for a store limit.
func MaxCount(maxNoInterest int) int {
	if maxNoInterest < 1 {
		return 1
	}
	return min(maxNoInterest, domain.MaxInstallments)
}

// Schedule lists installment options for a payable total, each amount being
// round(total / n).
func Schedule(total money.Money, maxNoInterest int) []Installment {
	n := MaxCount(maxNoInterest)
	out := make([]Installment, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, Installment{
			Count:        i,
			Amount:       total.Split(i),
			InterestFree: i <= maxNoInterest,
		})
	}
	return out
}
