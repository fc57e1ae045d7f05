package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store holds the Prometheus metrics collectors.
type Store struct {
	Registry               *prometheus.Registry // Use a custom registry
	SyncRunning            prometheus.Gauge
	SyncDuration           prometheus.Histogram
	StreamSyncDuration     *prometheus.HistogramVec
	StreamSyncSuccessTotal *prometheus.CounterVec
	StepsExecutedTotal     *prometheus.CounterVec
	StepDuration           *prometheus.HistogramVec
	SoftResetsTotal        *prometheus.CounterVec
	TypingErrorRows        *prometheus.GaugeVec
	UnprocessedRawRows     *prometheus.GaugeVec
	SyncErrorsTotal        *prometheus.CounterVec
	DBConnections          *prometheus.GaugeVec
}

// NewMetricsStore creates and registers Prometheus metrics.
func NewMetricsStore() *Store {
	registry := prometheus.NewRegistry() // Create a non-global registry

	store := &Store{
		Registry: registry,
		SyncRunning: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "dbtyper_up",
			Help: "Indicates if a dbtyper run is in progress (1 = running, 0 = idle).",
		}),
		SyncDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "dbtyper_run_duration_seconds",
			Help:    "Duration of an entire reconciliation run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 15), // 1s to ~9h
		}),
		StreamSyncDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbtyper_stream_sync_duration_seconds",
			Help:    "Duration histogram for reconciling individual streams.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 16), // 100ms to ~1.8 hours
		}, []string{"stream"}),
		StreamSyncSuccessTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "dbtyper_stream_sync_success_total",
			Help: "Total number of streams reconciled successfully.",
		}, []string{"stream"}),
		StepsExecutedTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "dbtyper_steps_executed_total",
			Help: "Total number of reconciliation steps executed, labeled by stream and step.",
		}, []string{"stream", "step"}),
		StepDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dbtyper_step_duration_seconds",
			Help:    "Duration histogram for individual reconciliation steps.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15), // 10ms to ~5min
		}, []string{"step", "status"}), // status: success, failure
		SoftResetsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "dbtyper_soft_resets_total",
			Help: "Total number of soft resets (final table rebuilds from raw history).",
		}, []string{"stream"}),
		TypingErrorRows: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbtyper_typing_error_rows",
			Help: "Final table rows carrying at least one typing error, as of the last sync.",
		}, []string{"stream"}),
		UnprocessedRawRows: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbtyper_unprocessed_raw_rows",
			Help: "Raw rows with _loaded_at unset when the stream status was gathered.",
		}, []string{"stream"}),
		SyncErrorsTotal: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "dbtyper_errors_total",
			Help: "Total number of errors encountered during reconciliation, labeled by type and stream.",
		}, []string{"type", "stream"}), // Types: prepare, status, migration, execution, state_save, cancelled
		DBConnections: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "dbtyper_db_connections_active",
			Help: "Number of open database connections, sampled from sql.DB stats.",
		}, []string{"db_alias"}),
	}

	return store
}
