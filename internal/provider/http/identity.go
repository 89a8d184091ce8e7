package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"

	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/tracing"
)

// IdentityStore talks to the customer account service.
type IdentityStore struct {
	client  JSONDoer
	baseURL string
}

// NewIdentityStore creates an identity store client.
func NewIdentityStore(client JSONDoer, baseURL string) *IdentityStore {
	return &IdentityStore{client: client, baseURL: baseURL}
}

// LookupByEmail asks whether an account exists for email.
func (s *IdentityStore) LookupByEmail(ctx context.Context, email string) (match provider.EmailMatch, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "identity.LookupByEmail")
	defer func() { tracing.End(span, err) }()

	u := endpoint(s.baseURL, "api", "v1", "customers", "lookup") + "?email=" + url.QueryEscape(email)
	if err = s.client.DoJSON(ctx, http.MethodGet, u, nil, &match); err != nil {
		return provider.EmailMatch{}, fmt.Errorf("lookup email: %w", err)
	}
	span.SetAttributes(attribute.Bool("identity.exists", match.Exists))
	return match, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Authenticate verifies a password and returns the customer profile.
func (s *IdentityStore) Authenticate(ctx context.Context, email, password string) (p domain.Profile, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "identity.Authenticate")
	defer func() { tracing.End(span, err) }()

	u := endpoint(s.baseURL, "api", "v1", "auth", "login")
	err = s.client.DoJSON(ctx, http.MethodPost, u, loginRequest{Email: email, Password: password}, &p)
	switch {
	case errors.Is(err, apperrors.ErrUnauthorized), errors.Is(err, apperrors.ErrInvalidInput):
		return domain.Profile{}, provider.ErrInvalidCredentials
	case err != nil:
		return domain.Profile{}, fmt.Errorf("authenticate: %w", err)
	}
	return p, nil
}

type linkRequest struct {
	Email string `json:"email"`
}

// RequestPasswordlessLink asks the account service to email a login link.
func (s *IdentityStore) RequestPasswordlessLink(ctx context.Context, email string) (err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "identity.RequestPasswordlessLink")
	defer func() { tracing.End(span, err) }()

	u := endpoint(s.baseURL, "api", "v1", "auth", "magic-link")
	if err = s.client.DoJSON(ctx, http.MethodPost, u, linkRequest{Email: email}, nil); err != nil {
		return fmt.Errorf("request passwordless link: %w", err)
	}
	return nil
}

// Profile loads the profile of a signed-in customer.
func (s *IdentityStore) Profile(ctx context.Context, customerID string) (p domain.Profile, err error) {
	ctx, span := tracing.StartClientSpan(ctx, tracerName, "identity.Profile",
		attribute.String("customer.id", customerID),
	)
	defer func() { tracing.End(span, err) }()

	u := endpoint(s.baseURL, "api", "v1", "customers", customerID)
	err = s.client.DoJSON(ctx, http.MethodGet, u, nil, &p)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return domain.Profile{}, provider.ErrCustomerNotFound
	case err != nil:
		return domain.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}
