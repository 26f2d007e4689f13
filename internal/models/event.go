// internal/models/event.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Event struct {
	BaseModel
	Title     string      `json:"title" gorm:"size:255;not null"`
	StartsAt  time.Time   `json:"starts_at"`
	VenueName string      `json:"venue_name" gorm:"size:255"`
	Status    EventStatus `json:"status" gorm:"size:20;not null;default:'draft'"`

	Tiers []TicketTier `json:"tiers,omitempty" gorm:"foreignKey:EventID"`
}

// IsPurchasable reports whether tickets can be sold for the event.
func (e *Event) IsPurchasable() bool {
	return e.Status == EventStatusPublished
}

// TicketTier is a priced ticket category within an event. A nil Capacity
// means the tier is unlimited.
type TicketTier struct {
	BaseModel
	EventID  uuid.UUID       `json:"event_id" gorm:"type:uuid;not null;index"`
	Name     string          `json:"name" gorm:"size:100;not null"`
	Capacity *int            `json:"capacity"`
	Price    decimal.Decimal `json:"price" gorm:"type:decimal(12,2);not null"`
	Currency string          `json:"currency" gorm:"size:3;not null;default:'USD'"`
}

func (TicketTier) TableName() string {
	return "ticket_tiers"
}
