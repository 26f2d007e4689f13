// internal/models/common.go
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base model with common fields
type BaseModel struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// BeforeCreate assigns the id in the application so no database extension
// is needed to generate uuids.
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	return nil
}

// JSONB stores a JSON object in a json/text column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}

	if len(bytes) == 0 {
		*j = nil
		return nil
	}
	return json.Unmarshal(bytes, j)
}

// Enums
type EventStatus string

const (
	EventStatusDraft     EventStatus = "draft"
	EventStatusPublished EventStatus = "published"
	EventStatusCanceled  EventStatus = "canceled"
	EventStatusCompleted EventStatus = "completed"
)

type TicketStatus string

const (
	TicketStatusReserved    TicketStatus = "reserved"
	TicketStatusMinted      TicketStatus = "minted"
	TicketStatusTransferred TicketStatus = "transferred"
	TicketStatusUsed        TicketStatus = "used"
	TicketStatusRevoked     TicketStatus = "revoked"
	TicketStatusCanceled    TicketStatus = "canceled"
)

type ChargeStatus string

const (
	ChargeStatusPending   ChargeStatus = "pending"
	ChargeStatusConfirmed ChargeStatus = "confirmed"
	ChargeStatusFailed    ChargeStatus = "failed"
	ChargeStatusDelayed   ChargeStatus = "delayed"
	ChargeStatusRetrying  ChargeStatus = "retrying"
)

// Paid reports whether the provider has confirmed payment for a charge in
// this status. Retrying charges were confirmed before their mint failed.
func (s ChargeStatus) Paid() bool {
	return s == ChargeStatusConfirmed || s == ChargeStatusRetrying
}

// UserType mirrors the user_type claim carried by API tokens.
type UserType string

const (
	UserTypeBuyer     UserType = "buyer"
	UserTypeOrganizer UserType = "organizer"
	UserTypeAdmin     UserType = "admin"
)
