package payment

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/virtualmercado/shopdrive-sub002/pkg/validator"
)

// CardFields are the raw card inputs as entered by the buyer.
type CardFields struct {
	Number     string `json:"number" validate:"required,number,min=13,max=19"`
	Expiry     string `json:"expiry" validate:"required"`
	HolderName string `json:"holder_name" validate:"required,min=3"`
	CVV        string `json:"cvv" validate:"required,number,min=3,max=4"`
}

// normalize strips separators from the number and trims free text.
func (c CardFields) normalize() CardFields {
	c.Number = strings.NewReplacer(" ", "", "-", "", ".", "").Replace(c.Number)
	c.Expiry = strings.ReplaceAll(strings.TrimSpace(c.Expiry), " ", "")
	c.HolderName = strings.Join(strings.Fields(c.HolderName), " ")
	c.CVV = strings.TrimSpace(c.CVV)
	return c
}

// IsEmpty reports whether nothing was entered.
func (c CardFields) IsEmpty() bool {
	return c == CardFields{}
}

// Validate checks field shape, the number check digit and that the expiry
// month has not elapsed. It returns nil when every field is acceptable.
func (c CardFields) Validate(now time.Time) map[string]string {
	fields := validator.FieldErrors(validator.Validate(c))
	if _, bad := fields["number"]; !bad && !LuhnValid(c.Number) {
		fields = setField(fields, "number", "card number is invalid")
	}
	if _, bad := fields["expiry"]; !bad {
		month, year, err := ParseExpiry(c.Expiry)
		switch {
		case err != nil:
			fields = setField(fields, "expiry", "must be a valid MM/YY date")
		case expired(month, year, now):
			fields = setField(fields, "expiry", "card has expired")
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func setField(fields map[string]string, name, msg string) map[string]string {
	if fields == nil {
		fields = make(map[string]string, 1)
	}
	fields[name] = msg
	return fields
}

// ParseExpiry reads "MM/YY" (or "MM/YYYY") into a month and a four-digit year.
func ParseExpiry(s string) (month, year int, err error) {
	mm, yy, ok := strings.Cut(s, "/")
	if !ok {
		return 0, 0, fmt.Errorf("expiry %q: missing separator", s)
	}
	month, err = strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("expiry %q: invalid month", s)
	}
	year, err = strconv.Atoi(yy)
	if err != nil {
		return 0, 0, fmt.Errorf("expiry %q: invalid year", s)
	}
	switch len(yy) {
	case 2:
		year += 2000
	case 4:
	default:
		return 0, 0, fmt.Errorf("expiry %q: invalid year", s)
	}
	return month, year, nil
}

// expired reports whether the card stopped being valid before now. A card is
// usable through the last day of its expiry month.
func expired(month, year int, now time.Time) bool {
	if year != now.Year() {
		return year < now.Year()
	}
	return month < int(now.Month())
}

// LuhnValid reports whether number is all digits and passes the Luhn
// (mod 10) check.
func LuhnValid(number string) bool {
	if number == "" {
		return false
	}
	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		ch := number[i]
		if ch < '0' || ch > '9' {
			return false
		}
		d := int(ch - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

// Last4 returns the last four digits of a card number.
func Last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}

// Card brands.
const (
	BrandVisa       = "visa"
	BrandMastercard = "mastercard"
	BrandAmex       = "amex"
	BrandElo        = "elo"
	BrandHipercard  = "hipercard"
	BrandDiners     = "diners"
	BrandDiscover   = "discover"
	BrandJCB        = "jcb"
	BrandUnknown    = "unknown"
)

// brandRule matches card numbers whose first len(lo) digits fall in [lo, hi].
type brandRule struct {
	brand  string
	lo, hi string
}

// brandTable is checked in order. Elo and Hipercard ranges overlap Visa,
// Mastercard and Discover, so they come first.
var brandTable = []brandRule{
	{BrandElo, "401178", "401179"},
	{BrandElo, "431274", "431274"},
	{BrandElo, "438935", "438935"},
	{BrandElo, "451416", "451416"},
	{BrandElo, "457393", "457393"},
	{BrandElo, "457631", "457632"},
	{BrandElo, "504175", "504175"},
	{BrandElo, "506699", "506778"},
	{BrandElo, "509000", "509999"},
	{BrandElo, "627780", "627780"},
	{BrandElo, "636297", "636297"},
	{BrandElo, "636368", "636368"},
	{BrandElo, "650031", "650033"},
	{BrandElo, "650035", "650051"},
	{BrandElo, "650405", "650439"},
	{BrandElo, "650485", "650538"},
	{BrandElo, "650541", "650598"},
	{BrandElo, "650700", "650718"},
	{BrandElo, "650720", "650727"},
	{BrandElo, "650901", "650920"},
	{BrandElo, "651652", "651679"},
	{BrandElo, "655000", "655019"},
	{BrandElo, "655021", "655058"},
	{BrandHipercard, "606282", "606282"},
	{BrandHipercard, "3841", "3841"},
	{BrandAmex, "34", "34"},
	{BrandAmex, "37", "37"},
	{BrandDiners, "300", "305"},
	{BrandDiners, "36", "36"},
	{BrandDiners, "38", "39"},
	{BrandJCB, "3528", "3589"},
	{BrandDiscover, "6011", "6011"},
	{BrandDiscover, "644", "649"},
	{BrandDiscover, "65", "65"},
	{BrandMastercard, "2221", "2720"},
	{BrandMastercard, "51", "55"},
	{BrandVisa, "4", "4"},
}

// DetectBrand infers the card brand from the leading digits. The result is
// informational; the gateway has the final word.
func DetectBrand(number string) string {
	for _, rule := range brandTable {
		n := len(rule.lo)
		if len(number) < n {
			continue
		}
		prefix := number[:n]
		if prefix >= rule.lo && prefix <= rule.hi {
			return rule.brand
		}
	}
	return BrandUnknown
}
