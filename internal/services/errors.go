// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrTierNotFound     = errors.New("ticket tier not found")
	ErrChargeNotFound   = errors.New("charge not found")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// ValidationError reports a request rejected before any side effect.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// CapacityExceededError is returned when a tier cannot hold the requested
// number of additional seats. Nothing is reserved when it is returned.
type CapacityExceededError struct {
	TierID    uuid.UUID
	Requested int
	Remaining int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("tier %s has %d seats remaining, %d requested", e.TierID, e.Remaining, e.Requested)
}

// PaymentGatewayError wraps a failure from the payment provider.
type PaymentGatewayError struct {
	Provider string
	Err      error
}

func (e *PaymentGatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s: %v", e.Provider, e.Err)
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}

// MintingError wraps a minting adapter failure. It is recorded on the
// charge and never fails a request after payment.
type MintingError struct {
	TicketID uuid.UUID
	Err      error
}

func (e *MintingError) Error() string {
	return fmt.Sprintf("mint ticket %s: %v", e.TicketID, e.Err)
}

func (e *MintingError) Unwrap() error {
	return e.Err
}
