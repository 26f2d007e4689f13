// internal/services/capacity_service.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/database"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
)

// CapacityService tracks issued seats per tier. Seat numbering for a tier is
// serialized by a row lock on the tier, so callers must reserve inside a
// database transaction.
type CapacityService struct {
	db *gorm.DB
}

type SeatReservation struct {
	EventID     uuid.UUID
	TierID      uuid.UUID
	ChargeID    *uuid.UUID
	Quantity    int
	OwnerWallet *string
}

type CapacitySnapshot struct {
	Available    bool  `json:"available"`
	Capacity     *int  `json:"capacity"`
	SoldOut      bool  `json:"sold_out"`
	CurrentCount int64 `json:"current_count"`
	Remaining    *int  `json:"remaining,omitempty"`
}

func NewCapacityService(db *gorm.DB) *CapacityService {
	return &CapacityService{db: db}
}

// ReserveSeats issues quantity seats in the tier, reusing the lowest numbers
// released by canceled tickets first. Either every seat is created or none
// is.
func (s *CapacityService) ReserveSeats(tx *gorm.DB, req SeatReservation) ([]models.Ticket, error) {
	if req.Quantity < 1 {
		return nil, newValidationError("quantity", "must be at least 1")
	}

	tier, err := lockTier(tx, req.EventID, req.TierID)
	if err != nil {
		return nil, err
	}

	taken, err := activeSeatNumbers(tx, req.EventID, req.TierID)
	if err != nil {
		return nil, err
	}
	if err := checkRoom(tier, len(taken), req.Quantity); err != nil {
		return nil, err
	}

	tickets := make([]models.Ticket, 0, req.Quantity)
	for _, seatNumber := range freeSeatNumbers(taken, req.Quantity) {
		tickets = append(tickets, models.Ticket{
			EventID:     req.EventID,
			TierID:      req.TierID,
			ChargeID:    req.ChargeID,
			OwnerWallet: req.OwnerWallet,
			Section:     tier.Name,
			Row:         models.DefaultSeatRow,
			SeatNumber:  seatNumber,
			Seat:        models.FormatSeat(seatNumber),
			Status:      models.TicketStatusReserved,
		})
	}

	if err := tx.Create(&tickets).Error; err != nil {
		return nil, fmt.Errorf("failed to create tickets: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"event_id":   req.EventID,
		"tier_id":    req.TierID,
		"first_seat": tickets[0].Seat,
		"quantity":   req.Quantity,
	}).Debug("Seats reserved")

	return tickets, nil
}

// ReleaseSeats cancels the charge's seats that are still reserved and
// returns how many were freed. It must run inside the caller's transaction.
func (s *CapacityService) ReleaseSeats(tx *gorm.DB, chargeID uuid.UUID) (int64, error) {
	var first models.Ticket
	err := tx.Where("charge_id = ? AND status = ?", chargeID, models.TicketStatusReserved).
		First(&first).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load reserved tickets: %w", err)
	}

	if _, err := lockTier(tx, first.EventID, first.TierID); err != nil {
		return 0, err
	}

	result := tx.Model(&models.Ticket{}).
		Where("charge_id = ? AND status = ?", chargeID, models.TicketStatusReserved).
		Update("status", models.TicketStatusCanceled)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to release seats: %w", result.Error)
	}

	logrus.WithFields(logrus.Fields{
		"charge_id": chargeID,
		"tier_id":   first.TierID,
		"released":  result.RowsAffected,
	}).Info("Seats released")

	return result.RowsAffected, nil
}

// ReinstateSeats gives a charge's canceled seats back to it under new
// numbers. It is used when payment is confirmed after the seats were
// released, and fails with *CapacityExceededError when the tier has no room
// left for all of them.
func (s *CapacityService) ReinstateSeats(ctx context.Context, chargeID uuid.UUID) (int, error) {
	restored := 0
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var canceled []models.Ticket
		err := tx.Where("charge_id = ? AND status = ? AND is_archival = ?", chargeID, models.TicketStatusCanceled, false).
			Order("seat_number ASC").
			Find(&canceled).Error
		if err != nil {
			return fmt.Errorf("failed to load canceled tickets: %w", err)
		}
		if len(canceled) == 0 {
			return nil
		}

		eventID, tierID := canceled[0].EventID, canceled[0].TierID
		tier, err := lockTier(tx, eventID, tierID)
		if err != nil {
			return err
		}

		taken, err := activeSeatNumbers(tx, eventID, tierID)
		if err != nil {
			return err
		}
		if err := checkRoom(tier, len(taken), len(canceled)); err != nil {
			return err
		}

		for i, seatNumber := range freeSeatNumbers(taken, len(canceled)) {
			err := tx.Model(&models.Ticket{}).
				Where("id = ?", canceled[i].ID).
				Updates(map[string]interface{}{
					"seat_number": seatNumber,
					"seat":        models.FormatSeat(seatNumber),
					"status":      models.TicketStatusReserved,
				}).Error
			if err != nil {
				return fmt.Errorf("failed to reinstate seat: %w", err)
			}
		}

		restored = len(canceled)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return restored, nil
}

// CheckCapacity reports availability using the same exclusion rules as
// ReserveSeats. It takes no locks.
func (s *CapacityService) CheckCapacity(ctx context.Context, eventID, tierID uuid.UUID) (*CapacitySnapshot, error) {
	db := s.db.WithContext(ctx)

	var tier models.TicketTier
	if err := db.Where("id = ? AND event_id = ?", tierID, eventID).First(&tier).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to load ticket tier: %w", err)
	}

	count, err := issuedCount(db, eventID, tierID)
	if err != nil {
		return nil, err
	}

	return newCapacitySnapshot(tier.Capacity, count), nil
}

// SetTierCapacity changes a tier's ceiling. A nil capacity removes the
// ceiling. Capacity can never drop below the seats already issued.
func (s *CapacityService) SetTierCapacity(ctx context.Context, eventID, tierID uuid.UUID, capacity *int) (*CapacitySnapshot, error) {
	if capacity != nil && *capacity < 0 {
		return nil, newValidationError("capacity", "must not be negative")
	}

	var snapshot *CapacitySnapshot
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		tier, err := lockTier(tx, eventID, tierID)
		if err != nil {
			return err
		}

		count, err := issuedCount(tx, eventID, tierID)
		if err != nil {
			return err
		}

		if capacity != nil && int64(*capacity) < count {
			return newValidationError("capacity", "cannot be lower than the %d tickets already issued", count)
		}

		if err := tx.Model(tier).Update("capacity", capacity).Error; err != nil {
			return fmt.Errorf("failed to update tier capacity: %w", err)
		}

		snapshot = newCapacitySnapshot(capacity, count)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"event_id": eventID,
		"tier_id":  tierID,
		"capacity": capacity,
	}).Info("Tier capacity updated")

	return snapshot, nil
}

func lockTier(tx *gorm.DB, eventID, tierID uuid.UUID) (*models.TicketTier, error) {
	var tier models.TicketTier
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ? AND event_id = ?", tierID, eventID).
		First(&tier).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTierNotFound
		}
		return nil, fmt.Errorf("failed to lock ticket tier: %w", err)
	}
	return &tier, nil
}

func checkRoom(tier *models.TicketTier, issued, quantity int) error {
	if tier.Capacity == nil || issued+quantity <= *tier.Capacity {
		return nil
	}
	remaining := *tier.Capacity - issued
	if remaining < 0 {
		remaining = 0
	}
	return &CapacityExceededError{
		TierID:    tier.ID,
		Requested: quantity,
		Remaining: remaining,
	}
}

// activeSeatNumbers returns the seat numbers held by tickets that count
// toward capacity. These are the numbers covered by the active-seat index.
func activeSeatNumbers(db *gorm.DB, eventID, tierID uuid.UUID) (map[int]bool, error) {
	var numbers []int
	err := db.Model(&models.Ticket{}).
		Where("event_id = ? AND tier_id = ? AND status <> ? AND is_archival = ?",
			eventID, tierID, models.TicketStatusCanceled, false).
		Pluck("seat_number", &numbers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load issued seats: %w", err)
	}

	taken := make(map[int]bool, len(numbers))
	for _, n := range numbers {
		taken[n] = true
	}
	return taken, nil
}

// freeSeatNumbers picks the lowest quantity numbers not in taken, so holes
// left by canceled seats are filled before the numbering grows.
func freeSeatNumbers(taken map[int]bool, quantity int) []int {
	numbers := make([]int, 0, quantity)
	for n := 1; len(numbers) < quantity; n++ {
		if !taken[n] {
			numbers = append(numbers, n)
		}
	}
	return numbers
}

func issuedCount(db *gorm.DB, eventID, tierID uuid.UUID) (int64, error) {
	var count int64
	err := db.Model(&models.Ticket{}).
		Where("event_id = ? AND tier_id = ? AND status <> ? AND is_archival = ?",
			eventID, tierID, models.TicketStatusCanceled, false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count issued tickets: %w", err)
	}
	return count, nil
}

func newCapacitySnapshot(capacity *int, count int64) *CapacitySnapshot {
	snapshot := &CapacitySnapshot{
		Available:    true,
		Capacity:     capacity,
		CurrentCount: count,
	}
	if capacity != nil {
		remaining := *capacity - int(count)
		if remaining < 0 {
			remaining = 0
		}
		snapshot.Remaining = &remaining
		snapshot.Available = remaining > 0
		snapshot.SoldOut = !snapshot.Available
	}
	return snapshot
}
