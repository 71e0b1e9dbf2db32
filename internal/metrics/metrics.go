// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DeliveriesTotal counts dispatch attempts by provider and terminal status.
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_deliveries_total",
		Help: "Delivery attempts by provider and status.",
	}, []string{"provider", "status"})

	// FallbackTotal counts attempts routed past the primary provider.
	FallbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_fallback_total",
		Help: "Delivery attempts with attempt_index > 0, by provider.",
	}, []string{"provider"})

	// DeliveryLatency tracks end-to-end latency (send to device ack).
	DeliveryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "push_delivery_latency_seconds",
		Help:    "End-to-end delivery latency from dispatch to acknowledgment.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"provider"})

	// SweepExpiredTotal counts records the sweeper promoted to expired.
	SweepExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "push_sweep_expired_total",
		Help: "Delivery records marked expired by the TTL sweeper.",
	})

	// OperatorAlertsTotal counts provider failures that usually indicate
	// misconfiguration rather than device-side unreachability.
	OperatorAlertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "push_operator_alerts_total",
		Help: "UNAUTHORIZED/UNKNOWN provider failures flagged for operators.",
	}, []string{"provider", "error_code"})
)
