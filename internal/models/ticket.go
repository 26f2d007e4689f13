// internal/models/ticket.go
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultSeatRow is the row assigned to every reserved seat.
const DefaultSeatRow = "001"

type Ticket struct {
	BaseModel
	EventID     uuid.UUID    `json:"event_id" gorm:"type:uuid;not null"`
	TierID      uuid.UUID    `json:"tier_id" gorm:"type:uuid;not null"`
	ChargeID    *uuid.UUID   `json:"charge_id,omitempty" gorm:"type:uuid;index"`
	OwnerWallet *string      `json:"owner_wallet,omitempty" gorm:"size:42"`
	Section     string       `json:"section" gorm:"size:100"`
	Row         string       `json:"row" gorm:"column:seat_row;size:10"`
	SeatNumber  int          `json:"seat_number" gorm:"not null"`
	Seat        string       `json:"seat" gorm:"size:10"`
	Status      TicketStatus `json:"status" gorm:"size:20;not null;default:'reserved'"`
	IsArchival  bool         `json:"is_archival" gorm:"not null;default:false"`
	TokenID     *string      `json:"token_id,omitempty" gorm:"size:100"`
	MintTxHash  *string      `json:"mint_tx_hash,omitempty" gorm:"size:100"`
	MetadataURI string       `json:"metadata_uri,omitempty" gorm:"size:500"`
	MintedAt    *time.Time   `json:"minted_at,omitempty"`
}

// FormatSeat renders a seat number the way it is printed on tickets.
func FormatSeat(n int) string {
	return fmt.Sprintf("%03d", n)
}

// IsMinted reports whether the ticket already holds an on-chain token.
func (t *Ticket) IsMinted() bool {
	return t.TokenID != nil && *t.TokenID != ""
}
