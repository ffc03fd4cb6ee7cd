// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	LedgerCalls        *prometheus.CounterVec
	LedgerCallDuration *prometheus.HistogramVec
	TokensMoved        *prometheus.CounterVec
	TotalSupply        prometheus.Gauge
	LastSequence       prometheus.Gauge

	// Event metrics
	EventsPublished     *prometheus.CounterVec
	EventPublishErrors  *prometheus.CounterVec
	StreamSubscribers   prometheus.Gauge
	StreamDroppedEvents prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCommit prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_ledger"
	}

	return &Metrics{
		// Ledger metrics
		LedgerCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "calls_total",
			Help:      "Total number of ledger calls by operation and outcome",
		}, []string{"op", "outcome"}),
		LedgerCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Ledger call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		TokensMoved: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_total",
			Help:      "Total base units minted, transferred and burned",
		}, []string{"kind"}),
		TotalSupply: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "total_supply",
			Help:      "Current total supply in base units",
		}),
		LastSequence: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "last_event_sequence",
			Help:      "Sequence number of the last committed event",
		}),

		// Event metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events delivered to sinks",
		}, []string{"sink"}),
		EventPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_errors_total",
			Help:      "Total number of failed sink deliveries",
		}, []string{"sink"}),
		StreamSubscribers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "subscribers",
			Help:      "Current number of websocket event subscribers",
		}),
		StreamDroppedEvents: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "dropped_events_total",
			Help:      "Events dropped for subscribers that could not keep up",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCommit: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_commit_timestamp",
			Help:      "Unix timestamp of last successful ledger commit",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordLedgerCall records one ledger call with its outcome label.
func RecordLedgerCall(op, outcome string, seconds float64) {
	DefaultMetrics.LedgerCalls.WithLabelValues(op, outcome).Inc()
	DefaultMetrics.LedgerCallDuration.WithLabelValues(op).Observe(seconds)
}

// RecordTokens adds amount base units to the counter for kind (mint, transfer, burn).
func RecordTokens(kind string, amount uint64) {
	DefaultMetrics.TokensMoved.WithLabelValues(kind).Add(float64(amount))
}

// UpdateLedgerState updates supply and sequence gauges after a commit.
func UpdateLedgerState(supply, sequence uint64, commitUnix int64) {
	DefaultMetrics.TotalSupply.Set(float64(supply))
	DefaultMetrics.LastSequence.Set(float64(sequence))
	DefaultMetrics.LastSuccessfulCommit.Set(float64(commitUnix))
}

// RecordEventsPublished records a sink delivery.
func RecordEventsPublished(sink string, count int, err error) {
	if err != nil {
		DefaultMetrics.EventPublishErrors.WithLabelValues(sink).Inc()
		return
	}
	DefaultMetrics.EventsPublished.WithLabelValues(sink).Add(float64(count))
}

// UpdateStreamSubscribers sets the subscriber gauge.
func UpdateStreamSubscribers(n int) {
	DefaultMetrics.StreamSubscribers.Set(float64(n))
}

// RecordStreamDrop counts one event dropped for a slow subscriber.
func RecordStreamDrop() {
	DefaultMetrics.StreamDroppedEvents.Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
