// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "crypto_tracker"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration prometheus.Histogram

	// Extraction metrics
	RowsSeen       prometheus.Counter
	RowsSkipped    *prometheus.CounterVec
	RecordsSaved   prometheus.Counter
	SaveErrors     prometheus.Counter
	LastSavedCount prometheus.Gauge

	// Retention metrics
	SnapshotsPruned prometheus.Counter
	HistoryPruned   prometheus.Counter

	// Sink metrics
	SinkErrors *prometheus.CounterVec

	// Feed metrics
	FeedClients prometheus.Gauge

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "cycle",
			Name:      "runs_total",
			Help:      "Total number of extraction cycles by status and failure kind",
		}, []string{"status", "failure"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "cycle",
			Name:      "duration_seconds",
			Help:      "Extraction cycle duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),

		RowsSeen: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "extraction",
			Name:      "rows_seen_total",
			Help:      "Total number of candidate rows examined",
		}),
		RowsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "extraction",
			Name:      "rows_skipped_total",
			Help:      "Total number of rows skipped by reason",
		}, []string{"reason"}),
		RecordsSaved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "records_saved_total",
			Help:      "Total number of records persisted",
		}),
		SaveErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "save_errors_total",
			Help:      "Total number of records that failed to persist",
		}),
		LastSavedCount: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "storage",
			Name:      "last_saved_count",
			Help:      "Number of records saved by the most recent cycle",
		}),

		SnapshotsPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retention",
			Name:      "snapshots_pruned_total",
			Help:      "Total number of snapshot rows removed by membership pruning",
		}),
		HistoryPruned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "retention",
			Name:      "history_pruned_total",
			Help:      "Total number of history points removed by age pruning",
		}),

		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "sink",
			Name:      "errors_total",
			Help:      "Total number of sink publish errors by sink",
		}, []string{"sink"}),

		FeedClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Number of connected live feed clients",
		}),

		LastSuccessfulCycle: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last successful extraction cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// RecordCycle records one extraction cycle.
func RecordCycle(success bool, failure string, saved int, duration time.Duration, at time.Time) {
	status := "failed"
	if success {
		status = "success"
		DefaultMetrics.LastSuccessfulCycle.Set(float64(at.Unix()))
	}
	DefaultMetrics.CyclesTotal.WithLabelValues(status, failure).Inc()
	DefaultMetrics.CycleDuration.Observe(duration.Seconds())
	DefaultMetrics.LastSavedCount.Set(float64(saved))
}

// RecordRowsSeen adds n examined rows.
func RecordRowsSeen(n int) {
	DefaultMetrics.RowsSeen.Add(float64(n))
}

// RecordRowSkipped counts one skipped row.
func RecordRowSkipped(reason string) {
	DefaultMetrics.RowsSkipped.WithLabelValues(reason).Inc()
}

// RecordSave counts one persisted record or one persistence failure.
func RecordSave(err error) {
	if err != nil {
		DefaultMetrics.SaveErrors.Inc()
		return
	}
	DefaultMetrics.RecordsSaved.Inc()
}

// RecordSnapshotsPruned adds n rows removed by membership pruning.
func RecordSnapshotsPruned(n int64) {
	DefaultMetrics.SnapshotsPruned.Add(float64(n))
}

// RecordHistoryPruned adds n points removed by age pruning.
func RecordHistoryPruned(n int64) {
	DefaultMetrics.HistoryPruned.Add(float64(n))
}

// RecordSinkError counts a publish failure for sink.
func RecordSinkError(sink string) {
	DefaultMetrics.SinkErrors.WithLabelValues(sink).Inc()
}

// SetFeedClients sets the connected feed client gauge.
func SetFeedClients(n int) {
	DefaultMetrics.FeedClients.Set(float64(n))
}
