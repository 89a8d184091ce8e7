package domain

import "github.com/virtualmercado/shopdrive-sub002/pkg/money"

// Delivery method kinds.
const (
	DeliveryPickup       = "pickup"
	DeliveryLocalCourier = "local_courier"
	DeliveryCarrier      = "carrier"
)

// Store delivery policies.
const (
	PolicyDeliveryOnly      = "delivery_only"
	PolicyDeliveryAndPickup = "delivery_and_pickup"
	PolicyPickupOnly        = "pickup_only"
)

// IsValidPolicy checks whether a delivery policy string is known.
func IsValidPolicy(p string) bool {
	return p == PolicyDeliveryOnly || p == PolicyDeliveryAndPickup || p == PolicyPickupOnly
}

// AllowsPickup reports whether the policy offers store pickup.
func AllowsPickup(policy string) bool {
	return policy == PolicyDeliveryAndPickup || policy == PolicyPickupOnly
}

// AllowsDelivery reports whether the policy offers shipping to an address.
func AllowsDelivery(policy string) bool {
	return policy == PolicyDeliveryAndPickup || policy == PolicyDeliveryOnly
}

// DeliveryMethod is the selected method. The zero value means nothing is
// selected. ServiceID is set only for carrier methods.
type DeliveryMethod struct {
	Kind      string `json:"kind"`
	ServiceID string `json:"service_id,omitempty"`
}

// IsZero reports whether no method is selected.
func (m DeliveryMethod) IsZero() bool {
	return m.Kind == ""
}

// Pickup returns the store pickup method.
func Pickup() DeliveryMethod { return DeliveryMethod{Kind: DeliveryPickup} }

// LocalCourier returns the store's own courier method.
func LocalCourier() DeliveryMethod { return DeliveryMethod{Kind: DeliveryLocalCourier} }

// Carrier returns the method backed by a carrier service quote.
func Carrier(serviceID string) DeliveryMethod {
	return DeliveryMethod{Kind: DeliveryCarrier, ServiceID: serviceID}
}

// CarrierService is a shipping service enabled by the store.
type CarrierService struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CarrierQuote is a priced offer for one service to one postal code.
type CarrierQuote struct {
	ServiceID        string      `json:"service_id"`
	PostalCode       string      `json:"postal_code"`
	Price            money.Money `json:"price"`
	EstimatedDaysMin int         `json:"estimated_days_min"`
	EstimatedDaysMax int         `json:"estimated_days_max"`
	Available        bool        `json:"available"`
}

// LocalCourierRule prices the store's own delivery. A zero FreeAbove disables
// the free-delivery threshold.
type LocalCourierRule struct {
	Enabled       bool        `json:"enabled"`
	FlatFee       money.Money `json:"flat_fee"`
	FreeAbove     money.Money `json:"free_above,omitempty"`
	EstimatedDays int         `json:"estimated_days"`
}

// Fee returns the courier fee for a cart subtotal.
func (r LocalCourierRule) Fee(subtotal money.Money) money.Money {
	if r.FreeAbove > 0 && subtotal >= r.FreeAbove {
		return money.Zero
	}
	return r.FlatFee
}

// DaysRange is an estimated delivery window.
type DaysRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}
