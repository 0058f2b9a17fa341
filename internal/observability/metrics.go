// Package observability exposes Prometheus metrics for the sync core.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectionStatus tracks the current connection lifecycle state
	// (1 = active for the labelled status).
	ConnectionStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "synccore_connection_status",
		Help: "Current connection status (1 = active)",
	}, []string{"status"})

	// ReconnectAttempts counts reconnection attempts by outcome.
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synccore_reconnect_attempts_total",
		Help: "Total reconnection attempts by outcome",
	}, []string{"outcome"}) // success, failure

	// ProbeLatency tracks health probe round-trip latency.
	ProbeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "synccore_probe_latency_seconds",
		Help:    "Health probe round-trip latency",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~16s
	})

	// ProbeFailures counts failed or timed-out health probes.
	ProbeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synccore_probe_failures_total",
		Help: "Total failed or timed-out health probes",
	})

	// TransportStaleResponses counts responses dropped for lacking a
	// matching correlation id.
	TransportStaleResponses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "synccore_transport_stale_responses_total",
		Help: "Responses dropped with no matching correlation id",
	})

	// TransportPendingCalls tracks in-flight correlated calls.
	TransportPendingCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "synccore_transport_pending_calls",
		Help: "Current number of in-flight correlated calls",
	})

	// ConflictsDetected counts conflicts by table.
	ConflictsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synccore_conflicts_detected_total",
		Help: "Total conflicts detected between replicas",
	}, []string{"table"})

	// ConflictsResolved counts resolutions by strategy.
	ConflictsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synccore_conflicts_resolved_total",
		Help: "Total conflicts resolved by strategy",
	}, []string{"strategy"})

	// TransactionRollbacks counts rollbacks by outcome.
	TransactionRollbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "synccore_transaction_rollbacks_total",
		Help: "Total transaction rollbacks by outcome",
	}, []string{"outcome"}) // success, failure
)

// SetConnectionStatus flips the status gauge so exactly one labelled status
// is active.
func SetConnectionStatus(status string) {
	for _, s := range []string{"disconnected", "connecting", "connected", "reconnecting", "error"} {
		value := 0.0
		if s == status {
			value = 1.0
		}
		ConnectionStatus.WithLabelValues(s).Set(value)
	}
}
