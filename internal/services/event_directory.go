// internal/services/event_directory.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
)

// EventInfo is the slice of event data the fulfillment pipeline needs.
type EventInfo struct {
	ID        uuid.UUID          `json:"id"`
	Title     string             `json:"title"`
	StartsAt  time.Time          `json:"starts_at"`
	VenueName string             `json:"venue_name"`
	Status    models.EventStatus `json:"status"`
}

func (e *EventInfo) IsPurchasable() bool {
	return e.Status == models.EventStatusPublished
}

// EventLookup resolves events and tiers owned by the catalog.
type EventLookup interface {
	GetEventByID(ctx context.Context, id uuid.UUID) (*EventInfo, error)
	GetTier(ctx context.Context, eventID, tierID uuid.UUID) (*models.TicketTier, error)
}

type EventDirectory struct {
	db *gorm.DB
}

func NewEventDirectory(db *gorm.DB) *EventDirectory {
	return &EventDirectory{db: db}
}

func (d *EventDirectory) GetEventByID(ctx context.Context, id uuid.UUID) (*EventInfo, error) {
	var event models.Event
	if err := d.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to load event: %w", err)
	}

	return &EventInfo{
		ID:        event.ID,
		Title:     event.Title,
		StartsAt:  event.StartsAt,
		VenueName: event.VenueName,
		Status:    event.Status,
	}, nil
}

func (d *EventDirectory) GetTier(ctx context.Context, eventID, tierID uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := d.db.WithContext(ctx).
		Where("id = ? AND event_id = ?", tierID, eventID).
		First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to load ticket tier: %w", err)
	}
	return &tier, nil
}
