package domain

import "github.com/virtualmercado/shopdrive-sub002/pkg/money"

// StoreSettings is the checkout configuration of one merchant store.
type StoreSettings struct {
	ID                  string           `json:"id"`
	Name                string           `json:"name"`
	Currency            string           `json:"currency"`
	DeliveryPolicy      string           `json:"delivery_policy"`
	CarrierServices     []CarrierService `json:"carrier_services"`
	LocalCourier        LocalCourierRule `json:"local_courier"`
	PaymentMethods      []string         `json:"payment_methods"`
	PixDiscountPercent  money.Percent    `json:"pix_discount_percent"`
	MaxInstallments     int              `json:"max_installments"`
	RequiredGuestFields []string         `json:"required_guest_fields,omitempty"`
	WhatsAppNumber      string           `json:"whatsapp_number,omitempty"`
	PickupAddress       string           `json:"pickup_address,omitempty"`
}

// AcceptsPayment reports whether a payment method is enabled for the store.
func (s StoreSettings) AcceptsPayment(method string) bool {
	for _, m := range s.PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// CarrierServiceIDs returns the enabled carrier service IDs in store order.
func (s StoreSettings) CarrierServiceIDs() []string {
	ids := make([]string, len(s.CarrierServices))
	for i, c := range s.CarrierServices {
		ids[i] = c.ID
	}
	return ids
}
