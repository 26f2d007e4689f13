// internal/services/stripe_gateway.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// StripeGateway charges through Stripe Checkout Sessions.
type StripeGateway struct {
	config config.PaymentConfig
}

func NewStripeGateway(cfg config.PaymentConfig) *StripeGateway {
	// Initialize Stripe
	stripe.Key = cfg.StripeSecretKey

	return &StripeGateway{config: cfg}
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) SignatureHeader() string { return "Stripe-Signature" }

func (g *StripeGateway) CreateCharge(ctx context.Context, req ChargeRequest) (*ProviderCharge, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.config.SuccessURL),
		CancelURL:         stripe.String(g.config.CancelURL),
		ClientReferenceID: stripe.String(req.ChargeID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.Name),
						Description: stripe.String(req.Description),
					},
					UnitAmount: stripe.Int64(minorUnits(req.UnitAmount)),
				},
				Quantity: stripe.Int64(int64(req.Quantity)),
			},
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	params.Context = ctx

	// Add metadata
	params.AddMetadata("charge_id", req.ChargeID.String())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &ProviderCharge{
		ProviderChargeID: s.ID,
		HostedURL:        s.URL,
	}, nil
}

func (g *StripeGateway) VerifySignature(rawBody []byte, signature string) bool {
	if g.config.StripeWebhookSecret == "" || signature == "" {
		return false
	}
	return webhook.ValidatePayload(rawBody, signature, g.config.StripeWebhookSecret) == nil
}

func (g *StripeGateway) ParseEvent(rawBody []byte) (*ProviderEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("failed to parse stripe event: %w", err)
	}
	if event.ID == "" || event.Data == nil {
		return nil, fmt.Errorf("stripe event is missing id or data")
	}

	eventType := string(event.Type)
	parsed := &ProviderEvent{
		ID:      event.ID,
		Kind:    EventKindUnknown,
		RawType: eventType,
	}

	if !strings.HasPrefix(eventType, "checkout.session.") {
		return parsed, nil
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session: %w", err)
	}
	parsed.ProviderChargeID = cs.ID

	switch eventType {
	case "checkout.session.completed":
		if cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			parsed.Kind = EventKindConfirmed
		} else {
			// Delayed payment methods settle with async_payment_succeeded.
			parsed.Kind = EventKindDelayed
		}
	case "checkout.session.async_payment_succeeded":
		parsed.Kind = EventKindConfirmed
	case "checkout.session.async_payment_failed", "checkout.session.expired":
		parsed.Kind = EventKindFailed
	}

	return parsed, nil
}
