package domain

// Identification states.
const (
	IdentityUnresolved    = "unresolved"
	IdentityAuthenticated = "authenticated"
	IdentityGuest         = "guest"
	IdentityEmailExists   = "email_exists"
)

// Guest contact field names a store may require in addition to name and email.
const (
	FieldPhone     = "phone"
	FieldDocument  = "document"
	FieldStoreName = "store_name"
)

// Profile is the account summary of an authenticated customer.
type Profile struct {
	CustomerID string `json:"customer_id"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone,omitempty"`
	Document   string `json:"document,omitempty"`
}

// GuestContact holds the fields an anonymous buyer fills in.
type GuestContact struct {
	FullName string            `json:"full_name"`
	Email    string            `json:"email"`
	Phone    string            `json:"phone,omitempty"`
	Document string            `json:"document,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Field returns the value of a named contact field.
func (c GuestContact) Field(name string) string {
	switch name {
	case "full_name":
		return c.FullName
	case "email":
		return c.Email
	case FieldPhone:
		return c.Phone
	case FieldDocument:
		return c.Document
	default:
		return c.Extra[name]
	}
}

// Identity is the resolved checkout actor. Exactly one of Customer or Guest is
// set once the state is authenticated or guest.
type Identity struct {
	State    string        `json:"state"`
	Customer *Profile      `json:"customer,omitempty"`
	Guest    *GuestContact `json:"guest,omitempty"`
}

// Email returns the buyer's email regardless of identity kind.
func (i Identity) Email() string {
	switch {
	case i.Customer != nil:
		return i.Customer.Email
	case i.Guest != nil:
		return i.Guest.Email
	}
	return ""
}

// Document returns the buyer's tax document, if known.
func (i Identity) Document() string {
	switch {
	case i.Customer != nil:
		return i.Customer.Document
	case i.Guest != nil:
		return i.Guest.Document
	}
	return ""
}

// Name returns the buyer's full name.
func (i Identity) Name() string {
	switch {
	case i.Customer != nil:
		return i.Customer.FullName
	case i.Guest != nil:
		return i.Guest.FullName
	}
	return ""
}
