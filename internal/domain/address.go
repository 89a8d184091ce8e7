package domain

import "strings"

// PostalCodeLength is the digit count of a structurally valid CEP.
const PostalCodeLength = 8

// Address is a delivery destination.
type Address struct {
	PostalCode   string `json:"postal_code" validate:"required,len=8,numeric"`
	Street       string `json:"street" validate:"required"`
	Number       string `json:"number" validate:"required"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood" validate:"required"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state" validate:"required,len=2,alpha"`
}

// AddressHint is the best-effort enrichment returned for a postal code.
type AddressHint struct {
	Street       string `json:"street"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
}

// NormalizePostalCode strips everything but digits, so "01310-100" becomes "01310100".
func NormalizePostalCode(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize trims every field, strips the postal code to digits and upper
// cases the state, so blank input never satisfies a required field.
func (a Address) Normalize() Address {
	a.PostalCode = NormalizePostalCode(a.PostalCode)
	a.Street = strings.TrimSpace(a.Street)
	a.Number = strings.TrimSpace(a.Number)
	a.Complement = strings.TrimSpace(a.Complement)
	a.Neighborhood = strings.TrimSpace(a.Neighborhood)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.ToUpper(strings.TrimSpace(a.State))
	return a
}

// IsValidPostalCode reports whether a normalized code has exactly eight digits.
func IsValidPostalCode(code string) bool {
	if len(code) != PostalCodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Fill copies hint values into empty address fields only and reports whether
// anything changed.
func (a *Address) Fill(h AddressHint) bool {
	changed := false
	set := func(dst *string, v string) {
		if strings.TrimSpace(*dst) == "" && v != "" {
			*dst = v
			changed = true
		}
	}
	set(&a.Street, h.Street)
	set(&a.Neighborhood, h.Neighborhood)
	set(&a.City, h.City)
	set(&a.State, strings.ToUpper(h.State))
	return changed
}
