// internal/models/charge.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Charge records one payment attempt with the external provider and the
// mint bookkeeping for the tickets it pays for.
type Charge struct {
	BaseModel
	Provider         string          `json:"provider" gorm:"size:32;not null"`
	ProviderChargeID *string         `json:"provider_charge_id,omitempty" gorm:"size:255;uniqueIndex"`
	Status           ChargeStatus    `json:"status" gorm:"size:20;not null;default:'pending'"`
	Amount           decimal.Decimal `json:"amount" gorm:"type:decimal(12,2);not null"`
	Currency         string          `json:"currency" gorm:"size:3;not null"`
	Quantity         int             `json:"quantity" gorm:"not null"`
	WalletAddress    *string         `json:"wallet_address,omitempty" gorm:"size:42"`
	Email            string          `json:"email,omitempty" gorm:"size:255"`
	BuyerID          *uuid.UUID      `json:"buyer_id,omitempty" gorm:"type:uuid;index"`
	HostedURL        string          `json:"hosted_url,omitempty" gorm:"size:1000"`
	FulfillmentMode  string          `json:"fulfillment_mode" gorm:"size:20"`
	FailureReason    string          `json:"failure_reason,omitempty" gorm:"type:text"`

	MintedTokenID     *string    `json:"minted_token_id,omitempty" gorm:"size:100"`
	MintTxHash        *string    `json:"mint_tx_hash,omitempty" gorm:"size:100"`
	MintRetryCount    int        `json:"mint_retry_count" gorm:"not null;default:0"`
	LastMintError     *string    `json:"last_mint_error,omitempty" gorm:"type:text"`
	NextMintAttemptAt *time.Time `json:"next_mint_attempt_at,omitempty"`
	MintLeaseUntil    *time.Time `json:"-"`
	MintFailedAt      *time.Time `json:"mint_failed_at,omitempty"`
	ConfirmedAt       *time.Time `json:"confirmed_at,omitempty"`

	Tickets []Ticket `json:"tickets,omitempty" gorm:"foreignKey:ChargeID"`
}

// IsMinted reports whether every ticket on the charge has been minted.
func (c *Charge) IsMinted() bool {
	return c.MintedTokenID != nil && *c.MintedTokenID != ""
}

// MintTerminal reports whether mint retries were exhausted.
func (c *Charge) MintTerminal() bool {
	return c.MintFailedAt != nil
}

// WebhookEvent is the audit and dedupe record for one provider notification.
type WebhookEvent struct {
	BaseModel
	Provider         string     `json:"provider" gorm:"size:32;not null;uniqueIndex:idx_webhook_events_provider_event"`
	ProviderEventID  string     `json:"provider_event_id" gorm:"size:255;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventType        string     `json:"event_type" gorm:"size:100"`
	ProviderChargeID string     `json:"provider_charge_id,omitempty" gorm:"size:255;index"`
	Payload          string     `json:"-" gorm:"type:text"`
	SignatureValid   bool       `json:"signature_valid"`
	ProcessedAt      *time.Time `json:"processed_at,omitempty"`
	ProcessingError  *string    `json:"processing_error,omitempty" gorm:"type:text"`
}
