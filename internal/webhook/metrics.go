package webhook

import "github.com/prometheus/client_golang/prometheus"

// Dispatch outcomes used as the "outcome" label.
const (
	OutcomeDelivered    = "delivered"
	OutcomeFailed       = "failed"
	OutcomeDropped      = "dropped"
	OutcomeSkipped      = "skipped"
	OutcomeLookupFailed = "lookup_failed"
)

var (
	// dispatchTotal counts dispatches by event type and outcome.
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_dispatch_total",
			Help: "Webhook dispatches by event type and outcome.",
		},
		[]string{"event_type", "outcome"},
	)

	// dispatchLat records the duration of delivery attempts.
	dispatchLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_dispatch_duration_seconds",
			Help:    "Duration of webhook delivery attempts in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"event_type"},
	)

	// dispatchInflight gauges deliveries currently on the wire.
	dispatchInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_dispatch_inflight",
			Help: "Current number of in-flight webhook deliveries.",
		},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, dispatchLat, dispatchInflight)
}

func countOutcome(eventType, outcome string) {
	dispatchTotal.WithLabelValues(eventType, outcome).Inc()
}
