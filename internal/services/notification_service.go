// internal/services/notification_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	pubnub "github.com/pubnub/go/v7"
	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// Notifier tells the buyer's client how fulfillment ended.
type Notifier interface {
	NotifyFulfillment(ctx context.Context, outcome *FulfillmentOutcome) error
}

// NotificationService publishes fulfillment outcomes on the buyer's PubNub
// channel. Without PubNub keys it only logs.
type NotificationService struct {
	publish func(channel string, message interface{}) error
}

func NewNotificationService(cfg config.PubNubConfig) *NotificationService {
	if cfg.PublishKey == "" || cfg.SubscribeKey == "" {
		return &NotificationService{}
	}

	pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.UserID))
	pnConfig.PublishKey = cfg.PublishKey
	pnConfig.SubscribeKey = cfg.SubscribeKey
	pnConfig.SecretKey = cfg.SecretKey
	pn := pubnub.NewPubNub(pnConfig)

	return &NotificationService{
		publish: func(channel string, message interface{}) error {
			_, status, err := pn.Publish().
				Channel(channel).
				Message(message).
				Execute()
			if err != nil {
				return err
			}
			if status.StatusCode >= 400 {
				return fmt.Errorf("publish returned status %d", status.StatusCode)
			}
			return nil
		},
	}
}

func (s *NotificationService) NotifyFulfillment(ctx context.Context, outcome *FulfillmentOutcome) error {
	if outcome == nil || outcome.WalletAddress == "" {
		return nil
	}

	channel := "user-" + strings.ToLower(outcome.WalletAddress)
	message := map[string]interface{}{
		"type":      "ticket_fulfillment",
		"charge_id": outcome.ChargeID.String(),
		"status":    outcome.Status,
		"token_ids": outcome.TokenIDs,
	}
	if outcome.Warning != "" {
		message["warning"] = outcome.Warning
	}

	if s.publish == nil {
		logrus.WithFields(logrus.Fields{
			"channel":   channel,
			"charge_id": outcome.ChargeID,
			"status":    outcome.Status,
		}).Debug("PubNub not configured, skipping fulfillment notification")
		return nil
	}

	if err := s.publish(channel, message); err != nil {
		return fmt.Errorf("failed to publish fulfillment notification: %w", err)
	}
	return nil
}
