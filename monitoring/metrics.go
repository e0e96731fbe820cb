// Package monitoring exposes prometheus metrics for the reservation
// workflow.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticketPurchases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_purchases_total",
			Help: "Total ticket purchase attempts by outcome",
		},
		[]string{"outcome"},
	)

	ticketCancellations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_cancellations_total",
			Help: "Total ticket cancellation attempts by outcome",
		},
		[]string{"outcome"},
	)

	purchaseDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ticket_purchase_duration_seconds",
			Help:    "Duration of purchase transactions",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func ObservePurchase(err error, elapsed time.Duration) {
	ticketPurchases.WithLabelValues(outcome(err)).Inc()
	purchaseDuration.Observe(elapsed.Seconds())
}

func ObserveCancellation(err error) {
	ticketCancellations.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
