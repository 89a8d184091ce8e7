// Package provider defines the external collaborators checkout depends on.
// Implementations live in the http, mock, redis and stripe subpackages.
package provider

import (
	"context"
	"errors"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
)

var (
	// ErrInvalidCredentials is returned when a password login is refused.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAddressNotFound is returned when no address is known for a postal code.
	ErrAddressNotFound = errors.New("address not found for postal code")
	// ErrCardRejected wraps issuer-level declines reported by the gateway.
	ErrCardRejected = errors.New("card rejected by issuer")
	// ErrStoreNotFound is returned for an unknown store ID.
	ErrStoreNotFound = errors.New("store not found")
	// ErrCustomerNotFound is returned for an unknown customer ID.
	ErrCustomerNotFound = errors.New("customer not found")
)

// AccountSummary is the minimal account data disclosed by an email lookup.
type AccountSummary struct {
	CustomerID string `json:"customer_id"`
	FirstName  string `json:"first_name,omitempty"`
}

// EmailMatch is the result of an email existence lookup.
type EmailMatch struct {
	Exists  bool            `json:"exists"`
	Account *AccountSummary `json:"account,omitempty"`
}

// IdentityStore is the customer account service.
type IdentityStore interface {
	LookupByEmail(ctx context.Context, email string) (EmailMatch, error)
	Authenticate(ctx context.Context, email, password string) (domain.Profile, error)
	RequestPasswordlessLink(ctx context.Context, email string) error
	Profile(ctx context.Context, customerID string) (domain.Profile, error)
}

// CarrierRates quotes shipping services for a destination. Results may be
// partial and come in any order.
type CarrierRates interface {
	Quote(ctx context.Context, postalCode string, serviceIDs []string) ([]domain.CarrierQuote, error)
}

// AddressLookup resolves a postal code to street data. Best effort only.
type AddressLookup interface {
	Lookup(ctx context.Context, postalCode string) (domain.AddressHint, error)
}

// CardRequest carries raw card data to the gateway. It must never be logged.
type CardRequest struct {
	Number      string
	HolderName  string
	ExpiryMonth int
	ExpiryYear  int
	CVV         string
	TaxID       string
	Brand       string
}

// CardToken is the gateway result of a successful tokenization.
type CardToken struct {
	Token string `json:"token"`
	Brand string `json:"brand"`
	Last4 string `json:"last4"`
}

// PaymentGateway exchanges raw card details for a single-use credential.
// Issuer declines are reported with an error wrapping ErrCardRejected.
type PaymentGateway interface {
	TokenizeCard(ctx context.Context, req CardRequest) (CardToken, error)
}

// OrderService persists a submitted order and returns its ID.
type OrderService interface {
	Submit(ctx context.Context, draft domain.OrderDraft) (string, error)
}

// StoreDirectory serves merchant checkout settings.
type StoreDirectory interface {
	Store(ctx context.Context, storeID string) (domain.StoreSettings, error)
}
