// internal/services/payment_gateway.go
package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// PaymentGateway is the boundary to an external payment provider. Provider
// payloads are mapped into ProviderCharge and ProviderEvent here and never
// leak past it.
type PaymentGateway interface {
	Name() string
	SignatureHeader() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*ProviderCharge, error)
	VerifySignature(rawBody []byte, signature string) bool
	ParseEvent(rawBody []byte) (*ProviderEvent, error)
}

type ChargeRequest struct {
	ChargeID    uuid.UUID
	Name        string
	Description string
	UnitAmount  decimal.Decimal
	Quantity    int
	Amount      decimal.Decimal
	Currency    string
	Email       string
	Metadata    map[string]string
}

type ProviderCharge struct {
	ProviderChargeID string `json:"provider_charge_id"`
	HostedURL        string `json:"hosted_url"`
}

type EventKind string

const (
	EventKindConfirmed EventKind = "confirmed"
	EventKindFailed    EventKind = "failed"
	EventKindDelayed   EventKind = "delayed"
	EventKindUnknown   EventKind = "unknown"
)

type ProviderEvent struct {
	ID               string
	Kind             EventKind
	ProviderChargeID string
	RawType          string
}

// NewPaymentGateway builds the gateway selected by PAYMENT_PROVIDER.
func NewPaymentGateway(cfg *config.Config) (PaymentGateway, error) {
	switch cfg.Payment.Provider {
	case "stripe":
		return NewStripeGateway(cfg.Payment), nil
	case "commerce":
		return NewCommerceGateway(cfg.Payment, nil), nil
	case "sandbox":
		return NewSandboxGateway(cfg.Payment, cfg.Frontend.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Payment.Provider)
	}
}

// minorUnits converts an amount to the provider's smallest currency unit.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
