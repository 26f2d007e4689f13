// internal/services/webhook_service.go
package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/models"
	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/monitoring"
)

// Webhook results reported to the provider.
const (
	WebhookProcessed      = "processed"
	WebhookDuplicate      = "duplicate"
	WebhookIgnored        = "ignored"
	WebhookChargeNotFound = "charge_not_found"
	WebhookMalformed      = "malformed"
)

// EventCache remembers processed provider event ids so redeliveries can be
// acknowledged without touching the database.
type EventCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

type RedisEventCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewRedisEventCache(client redis.Cmdable, ttl time.Duration) *RedisEventCache {
	return &RedisEventCache{client: client, ttl: ttl}
}

func (c *RedisEventCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *RedisEventCache) Remember(ctx context.Context, key string) error {
	return c.client.Set(ctx, key, "1", c.ttl).Err()
}

type WebhookResult struct {
	StatusCode int                 `json:"-"`
	Action     string              `json:"action"`
	EventID    string              `json:"event_id"`
	EventType  string              `json:"event_type"`
	Outcome    *FulfillmentOutcome `json:"outcome,omitempty"`
}

type WebhookService struct {
	db          *gorm.DB
	gateway     PaymentGateway
	charges     *ChargeStore
	fulfillment *FulfillmentService
	cache       EventCache
	now         func() time.Time
}

// NewWebhookService wires ingestion for the active gateway. cache may be nil.
func NewWebhookService(db *gorm.DB, gateway PaymentGateway, charges *ChargeStore, fulfillment *FulfillmentService, cache EventCache) *WebhookService {
	return &WebhookService{
		db:          db,
		gateway:     gateway,
		charges:     charges,
		fulfillment: fulfillment,
		cache:       cache,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *WebhookService) SignatureHeader() string {
	return s.gateway.SignatureHeader()
}

// HandleProviderEvent verifies, dedupes and dispatches one notification.
// An error return means the provider should redeliver, except for
// ErrInvalidSignature. Signed payloads that cannot be parsed are stored and
// acknowledged since redelivery would not change them.
func (s *WebhookService) HandleProviderEvent(ctx context.Context, rawBody []byte, signature string) (*WebhookResult, error) {
	provider := s.gateway.Name()

	if !s.gateway.VerifySignature(rawBody, signature) {
		monitoring.TrackWebhook(provider, "invalid_signature")
		logrus.WithField("provider", provider).Warn("Rejected webhook with invalid signature")
		return nil, ErrInvalidSignature
	}

	event, err := s.gateway.ParseEvent(rawBody)
	if err != nil {
		return s.acknowledgeMalformed(ctx, provider, rawBody, err)
	}

	logger := logrus.WithFields(logrus.Fields{
		"provider":           provider,
		"provider_event_id":  event.ID,
		"event_type":         event.RawType,
		"provider_charge_id": event.ProviderChargeID,
	})
	result := &WebhookResult{
		StatusCode: http.StatusOK,
		EventID:    event.ID,
		EventType:  event.RawType,
	}

	cacheKey := fmt.Sprintf("webhook:event:%s:%s", provider, event.ID)
	if s.cache != nil {
		seen, err := s.cache.Seen(ctx, cacheKey)
		if err != nil {
			logger.WithError(err).Warn("Webhook dedupe cache unavailable")
		} else if seen {
			logger.Info("Duplicate webhook acknowledged from cache")
			result.Action = WebhookDuplicate
			monitoring.TrackWebhook(provider, result.Action)
			return result, nil
		}
	}

	record, isNew, err := s.recordEvent(ctx, provider, event, rawBody)
	if err != nil {
		monitoring.TrackWebhook(provider, "error")
		return nil, err
	}
	if !isNew && record.ProcessedAt != nil {
		logger.Info("Duplicate webhook acknowledged")
		result.Action = WebhookDuplicate
		s.remember(ctx, cacheKey)
		monitoring.TrackWebhook(provider, result.Action)
		return result, nil
	}

	action, outcome, err := s.dispatch(ctx, provider, event)
	if err != nil {
		s.markFailed(ctx, record, err)
		monitoring.TrackWebhook(provider, "error")
		logger.WithError(err).Error("Webhook processing failed, provider will redeliver")
		return nil, err
	}

	var note *string
	if action == WebhookChargeNotFound {
		msg := "no charge for provider charge id"
		note = &msg
	}
	if err := s.markProcessed(ctx, record, note); err != nil {
		monitoring.TrackWebhook(provider, "error")
		return nil, err
	}
	s.remember(ctx, cacheKey)

	result.Action = action
	result.Outcome = outcome
	monitoring.TrackWebhook(provider, action)
	logger.WithField("action", action).Info("Webhook handled")
	return result, nil
}

// acknowledgeMalformed keeps an unparseable payload for inspection. The row
// is keyed by the body hash so redeliveries collapse onto it.
func (s *WebhookService) acknowledgeMalformed(ctx context.Context, provider string, rawBody []byte, parseErr error) (*WebhookResult, error) {
	sum := sha256.Sum256(rawBody)
	eventID := "malformed:" + hex.EncodeToString(sum[:])
	msg := parseErr.Error()
	now := s.now()

	record := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       WebhookMalformed,
		Payload:         string(rawBody),
		SignatureValid:  true,
		ProcessedAt:     &now,
		ProcessingError: &msg,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record).Error
	if err != nil {
		monitoring.TrackWebhook(provider, "error")
		return nil, fmt.Errorf("failed to record malformed webhook: %w", err)
	}

	monitoring.TrackWebhook(provider, WebhookMalformed)
	logrus.WithError(parseErr).WithFields(logrus.Fields{
		"provider":          provider,
		"provider_event_id": eventID,
	}).Warn("Acknowledged signed webhook that could not be parsed")

	return &WebhookResult{
		StatusCode: http.StatusOK,
		Action:     WebhookMalformed,
		EventID:    eventID,
	}, nil
}

func (s *WebhookService) dispatch(ctx context.Context, provider string, event *ProviderEvent) (string, *FulfillmentOutcome, error) {
	if event.Kind == EventKindUnknown {
		return WebhookIgnored, nil, nil
	}
	if event.ProviderChargeID == "" {
		return WebhookIgnored, nil, nil
	}

	charge, err := s.charges.FindByProviderChargeID(ctx, provider, event.ProviderChargeID)
	if err != nil {
		if errors.Is(err, ErrChargeNotFound) {
			logrus.WithFields(logrus.Fields{
				"provider":           provider,
				"provider_charge_id": event.ProviderChargeID,
			}).Warn("Webhook references an unknown charge")
			return WebhookChargeNotFound, nil, nil
		}
		return "", nil, err
	}

	var outcome *FulfillmentOutcome
	switch event.Kind {
	case EventKindConfirmed:
		outcome, err = s.fulfillment.ConfirmAndMint(ctx, charge.ID)
	case EventKindFailed:
		outcome, err = s.fulfillment.FailCharge(ctx, charge.ID)
	case EventKindDelayed:
		outcome, err = s.fulfillment.MarkDelayed(ctx, charge.ID)
	}
	if err != nil {
		return "", nil, err
	}
	return WebhookProcessed, outcome, nil
}

// recordEvent inserts the audit row, or returns the existing one when the
// provider event was seen before.
func (s *WebhookService) recordEvent(ctx context.Context, provider string, event *ProviderEvent, rawBody []byte) (*models.WebhookEvent, bool, error) {
	record := &models.WebhookEvent{
		Provider:         provider,
		ProviderEventID:  event.ID,
		EventType:        event.RawType,
		ProviderChargeID: event.ProviderChargeID,
		Payload:          string(rawBody),
		SignatureValid:   true,
	}

	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to record webhook event: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return record, true, nil
	}

	var existing models.WebhookEvent
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", provider, event.ID).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("failed to load webhook event: %w", err)
	}
	return &existing, false, nil
}

func (s *WebhookService) markProcessed(ctx context.Context, record *models.WebhookEvent, note *string) error {
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", record.ID).
		Updates(map[string]interface{}{
			"processed_at":     s.now(),
			"processing_error": note,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	return nil
}

func (s *WebhookService) markFailed(ctx context.Context, record *models.WebhookEvent, cause error) {
	msg := cause.Error()
	err := s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", record.ID).
		Update("processing_error", msg).Error
	if err != nil {
		logrus.WithError(err).WithField("provider_event_id", record.ProviderEventID).Warn("Failed to store webhook processing error")
	}
}

func (s *WebhookService) remember(ctx context.Context, key string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Remember(ctx, key); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Failed to cache processed webhook")
	}
}
