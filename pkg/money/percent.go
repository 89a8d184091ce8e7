package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Percent is a percentage in the closed range [0, 100], e.g. a PIX discount.
type Percent struct {
	d decimal.Decimal
}

// NewPercent validates and wraps a percentage value.
func NewPercent(v decimal.Decimal) (Percent, error) {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return Percent{}, fmt.Errorf("%w: %s", ErrInvalidPercent, v.String())
	}
	return Percent{d: v}, nil
}

// ParsePercent parses a percentage such as "5" or "2.5".
func ParsePercent(s string) (Percent, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Percent{}, fmt.Errorf("%w: %q", ErrInvalidPercent, s)
	}
	return NewPercent(d)
}

// MustPercent is ParsePercent for constants and tests.
func MustPercent(s string) Percent {
	p, err := ParsePercent(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Decimal returns the underlying value.
func (p Percent) Decimal() decimal.Decimal {
	return p.d
}

// IsZero reports whether the percentage is zero.
func (p Percent) IsZero() bool {
	return p.d.IsZero()
}

func (p Percent) String() string {
	return p.d.String()
}

// MarshalJSON encodes the percentage as a JSON number.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.d.String()), nil
}

// UnmarshalJSON accepts both JSON numbers and quoted strings.
func (p *Percent) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPercent, string(data))
	}
	parsed, err := NewPercent(d)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
