// internal/services/charge_store.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/database"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/utils"
)

// ChargeStore persists charges. Every status change is a conditional update
// so concurrent writers can only move a charge forward.
type ChargeStore struct {
	db *gorm.DB
}

// MintFailure is the bookkeeping written after a failed mint attempt.
type MintFailure struct {
	RetryCount int
	Terminal   bool
	NextTry    *time.Time
}

func NewChargeStore(db *gorm.DB) *ChargeStore {
	return &ChargeStore{db: db}
}

func (s *ChargeStore) Create(tx *gorm.DB, charge *models.Charge) error {
	if err := tx.Omit(clause.Associations).Create(charge).Error; err != nil {
		return fmt.Errorf("failed to create charge: %w", err)
	}
	return nil
}

func (s *ChargeStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Charge, error) {
	var charge models.Charge
	err := s.db.WithContext(ctx).
		Preload("Tickets", func(db *gorm.DB) *gorm.DB {
			return db.Order("seat_number ASC")
		}).
		First(&charge, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("failed to load charge: %w", err)
	}
	return &charge, nil
}

func (s *ChargeStore) FindByProviderChargeID(ctx context.Context, provider, providerChargeID string) (*models.Charge, error) {
	var charge models.Charge
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_charge_id = ?", provider, providerChargeID).
		First(&charge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChargeNotFound
		}
		return nil, fmt.Errorf("failed to load charge: %w", err)
	}
	return &charge, nil
}

func (s *ChargeStore) AttachProviderCharge(tx *gorm.DB, chargeID uuid.UUID, pc *ProviderCharge) error {
	err := tx.Model(&models.Charge{}).
		Where("id = ?", chargeID).
		Updates(map[string]interface{}{
			"provider_charge_id": pc.ProviderChargeID,
			"hosted_url":         pc.HostedURL,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to store provider charge: %w", err)
	}
	return nil
}

// MarkConfirmed records provider confirmation. Retrying charges keep their
// status since payment was already confirmed for them.
func (s *ChargeStore) MarkConfirmed(ctx context.Context, chargeID uuid.UUID, at time.Time) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ? AND status IN ?", chargeID, []models.ChargeStatus{
			models.ChargeStatusPending,
			models.ChargeStatusDelayed,
			models.ChargeStatusFailed,
		}).
		Updates(map[string]interface{}{
			"status":       models.ChargeStatusConfirmed,
			"confirmed_at": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to confirm charge: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkFailed moves a pending or delayed charge to failed. It runs on tx so
// the seat release can commit with it.
func (s *ChargeStore) MarkFailed(tx *gorm.DB, chargeID uuid.UUID, reason string) (bool, error) {
	result := tx.Model(&models.Charge{}).
		Where("id = ? AND status IN ?", chargeID, []models.ChargeStatus{
			models.ChargeStatusPending,
			models.ChargeStatusDelayed,
		}).
		Updates(map[string]interface{}{
			"status":         models.ChargeStatusFailed,
			"failure_reason": reason,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark charge failed: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkDelayed moves a pending charge to delayed.
func (s *ChargeStore) MarkDelayed(ctx context.Context, chargeID uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ? AND status = ?", chargeID, models.ChargeStatusPending).
		Update("status", models.ChargeStatusDelayed)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark charge delayed: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ClaimMintLease grants the caller exclusive minting rights until the lease
// expires. It fails when the charge is minted or another lease is live.
func (s *ChargeStore) ClaimMintLease(ctx context.Context, chargeID uuid.UUID, now time.Time, lease time.Duration) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ? AND minted_token_id IS NULL AND (mint_lease_until IS NULL OR mint_lease_until < ?)", chargeID, now).
		Update("mint_lease_until", now.Add(lease))
	if result.Error != nil {
		return false, fmt.Errorf("failed to claim mint lease: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *ChargeStore) ReleaseMintLease(ctx context.Context, chargeID uuid.UUID) error {
	err := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ?", chargeID).
		Update("mint_lease_until", nil).Error
	if err != nil {
		return fmt.Errorf("failed to release mint lease: %w", err)
	}
	return nil
}

// MarkTicketMinted stores the token on a ticket that has none yet.
func (s *ChargeStore) MarkTicketMinted(ctx context.Context, ticketID uuid.UUID, result *MintResult, metadataURI string, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Ticket{}).
		Where("id = ? AND token_id IS NULL", ticketID).
		Updates(map[string]interface{}{
			"status":       models.TicketStatusMinted,
			"token_id":     result.TokenID,
			"mint_tx_hash": result.TransactionHash,
			"metadata_uri": metadataURI,
			"minted_at":    at,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark ticket minted: %w", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// RecordMintSuccess completes the charge. The retry counter is left as is
// so it still reports how many attempts failed before this one.
func (s *ChargeStore) RecordMintSuccess(ctx context.Context, chargeID uuid.UUID, tokenID, txHash string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ? AND minted_token_id IS NULL", chargeID).
		Updates(map[string]interface{}{
			"status":               models.ChargeStatusConfirmed,
			"minted_token_id":      tokenID,
			"mint_tx_hash":         txHash,
			"last_mint_error":      nil,
			"next_mint_attempt_at": nil,
			"mint_failed_at":       nil,
			"mint_lease_until":     nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to record mint success: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// RecordMintFailure increments the retry counter and schedules the next
// attempt, or marks the charge terminal once maxRetries is reached.
func (s *ChargeStore) RecordMintFailure(ctx context.Context, chargeID uuid.UUID, mintErr string, now time.Time, maxRetries int, backoff func(attempt int) time.Duration) (*MintFailure, error) {
	var failure MintFailure
	err := database.WithTransaction(s.db.WithContext(ctx), func(tx *gorm.DB) error {
		var charge models.Charge
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "mint_retry_count", "minted_token_id").
			First(&charge, "id = ?", chargeID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrChargeNotFound
			}
			return fmt.Errorf("failed to lock charge: %w", err)
		}

		failure.RetryCount = charge.MintRetryCount + 1
		updates := map[string]interface{}{
			"mint_retry_count": gorm.Expr("mint_retry_count + ?", 1),
			"last_mint_error":  mintErr,
			"mint_lease_until": nil,
		}

		if failure.RetryCount >= maxRetries {
			failure.Terminal = true
			updates["status"] = models.ChargeStatusConfirmed
			updates["mint_failed_at"] = now
			updates["next_mint_attempt_at"] = nil
		} else {
			next := now.Add(backoff(failure.RetryCount))
			failure.NextTry = &next
			updates["status"] = models.ChargeStatusRetrying
			updates["next_mint_attempt_at"] = next
		}

		err = tx.Model(&models.Charge{}).
			Where("id = ? AND minted_token_id IS NULL", chargeID).
			Updates(updates).Error
		if err != nil {
			return fmt.Errorf("failed to record mint failure: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &failure, nil
}

// MarkSeatsUnavailable parks a paid charge whose released seats could not be
// given back. Like an exhausted mint it waits for an operator.
func (s *ChargeStore) MarkSeatsUnavailable(ctx context.Context, chargeID uuid.UUID, reason string, now time.Time) error {
	err := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ? AND minted_token_id IS NULL", chargeID).
		Updates(map[string]interface{}{
			"status":               models.ChargeStatusConfirmed,
			"last_mint_error":      reason,
			"mint_failed_at":       now,
			"next_mint_attempt_at": nil,
			"mint_lease_until":     nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to park charge without seats: %w", err)
	}
	return nil
}

// ResetTerminal clears the permanent failure marker and gives the charge a
// fresh retry budget.
func (s *ChargeStore) ResetTerminal(ctx context.Context, chargeID uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("id = ? AND mint_failed_at IS NOT NULL AND minted_token_id IS NULL", chargeID).
		Updates(map[string]interface{}{
			"status":               models.ChargeStatusRetrying,
			"mint_failed_at":       nil,
			"mint_retry_count":     0,
			"next_mint_attempt_at": nil,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to reset terminal charge: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListDueRetries returns retrying charges whose next attempt is due.
func (s *ChargeStore) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]models.Charge, error) {
	var charges []models.Charge
	err := s.db.WithContext(ctx).
		Where("status = ? AND mint_failed_at IS NULL AND next_mint_attempt_at <= ?", models.ChargeStatusRetrying, now).
		Order("next_mint_attempt_at ASC").
		Limit(limit).
		Find(&charges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list due retries: %w", err)
	}
	return charges, nil
}

// ListStuck pages through charges that still need a mint: retrying ones
// and those that exhausted their retries.
func (s *ChargeStore) ListStuck(ctx context.Context, params utils.PaginationParams) ([]models.Charge, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Charge{}).
		Where("minted_token_id IS NULL AND (status = ? OR mint_failed_at IS NOT NULL)", models.ChargeStatusRetrying)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count stuck charges: %w", err)
	}

	var charges []models.Charge
	query = utils.ApplySort(query, params, []string{"created_at", "updated_at", "mint_retry_count", "next_mint_attempt_at"})
	query = utils.ApplyPagination(query, params)
	if err := query.Find(&charges).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list stuck charges: %w", err)
	}

	return charges, total, nil
}
