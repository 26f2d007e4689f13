// internal/monitoring/metrics.go
package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reservations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_reservations_total",
			Help: "Seat reservation attempts by outcome",
		},
		[]string{"outcome"},
	)

	reservedSeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ticket_reserved_seats_total",
			Help: "Seats reserved by committed purchases",
		},
	)

	mintAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_mint_attempts_total",
			Help: "Mint adapter calls by outcome",
		},
		[]string{"outcome"},
	)

	mintDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_mint_duration_seconds",
			Help:    "Duration of mint adapter calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Payment provider notifications by provider and result",
		},
		[]string{"provider", "result"},
	)

	chargeTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charge_transitions_total",
			Help: "Charge status transitions",
		},
		[]string{"status"},
	)
)

// TrackReservation counts a reservation attempt; seats is the number of
// tickets issued when the attempt succeeds.
func TrackReservation(outcome string, seats int) {
	reservations.WithLabelValues(outcome).Inc()
	if seats > 0 {
		reservedSeats.Add(float64(seats))
	}
}

func TrackMint(outcome string, duration time.Duration) {
	mintAttempts.WithLabelValues(outcome).Inc()
	mintDuration.Observe(duration.Seconds())
}

func TrackWebhook(provider, result string) {
	webhookEvents.WithLabelValues(provider, result).Inc()
}

func TrackChargeTransition(status string) {
	chargeTransitions.WithLabelValues(status).Inc()
}

// Handler exposes the default registry for scraping.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
