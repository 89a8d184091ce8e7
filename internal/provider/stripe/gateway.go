// Package stripe tokenizes cards as Stripe PaymentMethods.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/paymentmethod"

	"github.com/virtualmercado/shopdrive-sub002/internal/provider"
)

// Config holds Stripe gateway settings.
type Config struct {
	SecretKey  string
	IsTestMode bool
}

// Validate checks that the key matches the configured mode.
func (c Config) Validate() error {
	if c.SecretKey == "" {
		return errors.New("stripe: secret key is required")
	}
	if c.IsTestMode && !strings.HasPrefix(c.SecretKey, "sk_test_") {
		return errors.New("stripe: test mode enabled but secret key is not a test key")
	}
	if !c.IsTestMode && !strings.HasPrefix(c.SecretKey, "sk_live_") {
		return errors.New("stripe: live mode enabled but secret key is not a live key")
	}
	return nil
}

// Gateway implements provider.PaymentGateway. The PaymentMethod ID is used
// as the single-use card credential.
type Gateway struct {
	methods paymentmethod.Client
	logger  *slog.Logger
}

// NewGateway creates a Stripe gateway. A nil backend uses the default
// Stripe API backend.
func NewGateway(cfg Config, backend stripe.Backend, logger *slog.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		backend = stripe.GetBackend(stripe.APIBackend)
	}
	return &Gateway{
		methods: paymentmethod.Client{B: backend, Key: cfg.SecretKey},
		logger:  logger,
	}, nil
}

// TokenizeCard creates a card PaymentMethod. Stripe card errors are
// reported as provider.ErrCardRejected.
func (g *Gateway) TokenizeCard(ctx context.Context, req provider.CardRequest) (provider.CardToken, error) {
	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(req.Number),
			ExpMonth: stripe.Int64(int64(req.ExpiryMonth)),
			ExpYear:  stripe.Int64(int64(req.ExpiryYear)),
			CVC:      stripe.String(req.CVV),
		},
		BillingDetails: &stripe.PaymentMethodBillingDetailsParams{
			Name: stripe.String(req.HolderName),
		},
	}
	params.Context = ctx
	if req.TaxID != "" {
		params.AddMetadata("tax_id", req.TaxID)
	}

	pm, err := g.methods.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Type == stripe.ErrorTypeCard {
			g.logger.InfoContext(ctx, "stripe declined card",
				slog.String("code", string(stripeErr.Code)),
				slog.String("decline_code", string(stripeErr.DeclineCode)),
			)
			return provider.CardToken{}, fmt.Errorf("stripe: %w: %s", provider.ErrCardRejected, stripeErr.Msg)
		}
		return provider.CardToken{}, fmt.Errorf("stripe: failed to create payment method: %w", err)
	}

	tok := provider.CardToken{Token: pm.ID, Brand: req.Brand}
	if pm.Card != nil {
		if pm.Card.Brand != "" {
			tok.Brand = string(pm.Card.Brand)
		}
		tok.Last4 = pm.Card.Last4
	}
	return tok, nil
}
