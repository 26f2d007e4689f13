// internal/services/retry_worker.go
package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/DouglasAshcroft/unchained-tickets-sub002/internal/config"
)

// RetryWorker re-runs minting for charges whose backoff has elapsed.
type RetryWorker struct {
	fulfillment *FulfillmentService
	charges     *ChargeStore
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

func NewRetryWorker(fulfillment *FulfillmentService, charges *ChargeStore, cfg config.FulfillmentConfig) *RetryWorker {
	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batch := cfg.RetryBatchSize
	if batch <= 0 {
		batch = 20
	}
	return &RetryWorker{
		fulfillment: fulfillment,
		charges:     charges,
		interval:    interval,
		batchSize:   batch,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Run processes due retries every interval until ctx is canceled.
func (w *RetryWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval).Info("Mint retry worker started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Mint retry worker stopped")
			return
		case <-ticker.C:
			if _, err := w.ProcessDue(ctx); err != nil && ctx.Err() == nil {
				logrus.WithError(err).Error("Mint retry batch failed")
			}
		}
	}
}

// ProcessDue runs one batch and returns how many charges were attempted.
func (w *RetryWorker) ProcessDue(ctx context.Context) (int, error) {
	due, err := w.charges.ListDueRetries(ctx, w.now(), w.batchSize)
	if err != nil {
		return 0, err
	}

	attempted := 0
	for _, charge := range due {
		if ctx.Err() != nil {
			break
		}
		outcome, err := w.fulfillment.confirmAndMint(ctx, charge.ID, true)
		attempted++
		if err != nil {
			logrus.WithError(err).WithField("charge_id", charge.ID).Error("Mint retry failed")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"charge_id":   charge.ID,
			"status":      outcome.Status,
			"retry_count": outcome.MintRetryCount,
		}).Info("Mint retry processed")
	}

	return attempted, nil
}
