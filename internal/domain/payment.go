package domain

// Payment methods. The empty string means unselected.
const (
	PaymentPix        = "pix"
	PaymentCreditCard = "credit_card"
	PaymentBoleto     = "boleto"
	PaymentWhatsApp   = "whatsapp"
)

// MaxInstallments caps every installment schedule.
const MaxInstallments = 12

// ValidPaymentMethods returns the set of selectable payment methods.
func ValidPaymentMethods() []string {
	return []string{PaymentPix, PaymentCreditCard, PaymentBoleto, PaymentWhatsApp}
}

// IsValidPaymentMethod checks whether the given string names a payment method.
func IsValidPaymentMethod(method string) bool {
	for _, m := range ValidPaymentMethods() {
		if m == method {
			return true
		}
	}
	return false
}

// CardCredential is the gateway token obtained for the entered card. Raw card
// data never leaves the payment resolver.
type CardCredential struct {
	Token        string `json:"token"`
	Brand        string `json:"brand"`
	Last4        string `json:"last4"`
	Installments int    `json:"installments"`
}
