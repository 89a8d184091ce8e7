package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount expressed in the currency's minor unit (centavos for BRL).
// All arithmetic that can produce fractions of a minor unit goes through
// decimal.Decimal and is rounded half up exactly once.
type Money int64

const (
	// Zero is the zero amount.
	Zero Money = 0
	// MaxAmount is the largest amount the checkout accepts, one trillion in
	// major units.
	MaxAmount Money = 100_000_000_000_000
)

var (
	hundred = decimal.NewFromInt(100)

	// ErrInvalidAmount is returned when a textual amount cannot be parsed.
	ErrInvalidAmount = errors.New("invalid money amount")
	// ErrInvalidPercent is returned for percentages outside [0, 100].
	ErrInvalidPercent = errors.New("percent must be between 0 and 100")
	// ErrOutOfRange is returned when an amount falls outside [0, MaxAmount].
	ErrOutOfRange = errors.New("money amount out of range")
)

// FromCents builds an amount from minor units.
func FromCents(cents int64) Money {
	return Money(cents)
}

// FromDecimal converts a major-unit decimal (e.g. 95.5) to minor units,
// rounding half up to the nearest cent.
func FromDecimal(d decimal.Decimal) Money {
	return Money(d.Mul(hundred).Round(0).IntPart())
}

// Parse reads a major-unit amount such as "95.00" or "95,00".
func Parse(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ",") == 1 && !strings.Contains(s, ".") {
		s = strings.Replace(s, ",", ".", 1)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return FromDecimal(d), nil
}

// Cents returns the amount in minor units.
func (m Money) Cents() int64 {
	return int64(m)
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return m + o
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return m - o
}

// Times multiplies a unit price by a quantity.
func (m Money) Times(qty int) Money {
	return m * Money(qty)
}

// CheckedTimes is Times for untrusted input. It fails with ErrOutOfRange
// when m or the product leaves [0, MaxAmount].
func (m Money) CheckedTimes(qty int) (Money, error) {
	if !m.InRange() || qty < 0 {
		return Zero, ErrOutOfRange
	}
	if qty > 0 && m > MaxAmount/Money(qty) {
		return Zero, ErrOutOfRange
	}
	return m * Money(qty), nil
}

// InRange reports whether 0 <= m <= MaxAmount.
func (m Money) InRange() bool {
	return m >= 0 && m <= MaxAmount
}

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool {
	return m == 0
}

// IsNegative reports whether the amount is below zero.
func (m Money) IsNegative() bool {
	return m < 0
}

// ApplyDiscount returns round(m * (1 - p/100)).
func (m Money) ApplyDiscount(p Percent) Money {
	if p.IsZero() {
		return m
	}
	factor := hundred.Sub(p.d)
	return Money(decimal.NewFromInt(int64(m)).Mul(factor).Div(hundred).Round(0).IntPart())
}

// Split returns round(m / n), the amount of one of n equal installments.
// It returns m unchanged for n < 1.
func (m Money) Split(n int) Money {
	if n <= 1 {
		return m
	}
	return Money(decimal.NewFromInt(int64(m)).Div(decimal.NewFromInt(int64(n))).Round(0).IntPart())
}

// String renders the amount in major units with two decimals, e.g. "95.00".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Format renders the amount for display in the given ISO currency.
// BRL uses the local convention "R$ 1.234,56"; other currencies fall back to
// "USD 1234.56".
func (m Money) Format(currency string) string {
	if !strings.EqualFold(currency, "BRL") {
		return strings.ToUpper(currency) + " " + m.String()
	}

	sign := ""
	if m < 0 {
		sign = "-"
		m = -m
	}
	fixed := m.String()
	intPart, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return sign + "R$ " + b.String() + "," + frac
}

// Sum adds all amounts, failing with ErrOutOfRange when any amount or the
// running total leaves [0, MaxAmount].
func Sum(amounts ...Money) (Money, error) {
	var total Money
	for _, a := range amounts {
		if !a.InRange() || a > MaxAmount-total {
			return Zero, ErrOutOfRange
		}
		total += a
	}
	return total, nil
}
