// internal/services/confirmation.go
package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
)

// Confirmer is the confirmation entry point shared by every trigger.
type Confirmer interface {
	ConfirmAndMint(ctx context.Context, chargeID uuid.UUID) (*FulfillmentOutcome, error)
}

// ConfirmationStrategy decides what happens once a charge is committed.
type ConfirmationStrategy interface {
	Name() string
	AfterChargeCreated(ctx context.Context, confirmer Confirmer, charge *models.Charge) (*FulfillmentOutcome, error)
}

// SynchronousConfirmation treats the charge as paid right away. It is the
// development fast path and never waits for a webhook.
type SynchronousConfirmation struct{}

func (SynchronousConfirmation) Name() string { return config.ModeSynchronous }

func (SynchronousConfirmation) AfterChargeCreated(ctx context.Context, confirmer Confirmer, charge *models.Charge) (*FulfillmentOutcome, error) {
	return confirmer.ConfirmAndMint(ctx, charge.ID)
}

// WebhookConfirmation leaves the charge pending until the provider calls
// back, returning the hosted checkout url to the buyer.
type WebhookConfirmation struct{}

func (WebhookConfirmation) Name() string { return config.ModeWebhook }

func (WebhookConfirmation) AfterChargeCreated(ctx context.Context, confirmer Confirmer, charge *models.Charge) (*FulfillmentOutcome, error) {
	return BuildOutcome(charge), nil
}

func NewConfirmationStrategy(mode string) ConfirmationStrategy {
	if mode == config.ModeWebhook {
		return WebhookConfirmation{}
	}
	return SynchronousConfirmation{}
}
