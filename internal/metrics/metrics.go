package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BoundaryErrorsTotal tracks failures caught by boundaries
	BoundaryErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_boundary_errors_total",
			Help: "Total number of errors caught by error boundaries",
		},
		[]string{"component", "category", "severity"},
	)

	// BoundaryRecoveriesTotal tracks Failed -> Healthy transitions
	BoundaryRecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_boundary_recoveries_total",
			Help: "Total number of boundary recoveries",
		},
		[]string{"component", "trigger"},
	)

	// BoundaryAutoRetriesScheduled tracks scheduled automatic resets
	BoundaryAutoRetriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_boundary_auto_retries_scheduled_total",
			Help: "Total number of automatic resets scheduled",
		},
		[]string{"component", "category"},
	)

	// BoundaryRetryDelay tracks the backoff chosen for automatic resets
	BoundaryRetryDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_boundary_retry_delay_seconds",
			Help:    "Backoff delay before an automatic reset",
			Buckets: []float64{0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"component"},
	)

	// TelemetryEventsTotal tracks exception/message sends by outcome
	TelemetryEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_telemetry_events_total",
			Help: "Total number of telemetry events by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// TelemetryLogsTotal tracks shipped, dropped and failed log records
	TelemetryLogsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_telemetry_logs_total",
			Help: "Total number of log records by outcome",
		},
		[]string{"outcome"},
	)

	// TelemetryQueueLength tracks the log batch buffer
	TelemetryQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_telemetry_queue_length",
			Help: "Number of log records waiting to be shipped",
		},
	)

	// TelemetryFlushLatency tracks log batch send latency
	TelemetryFlushLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "faultline_telemetry_flush_latency_seconds",
			Help:    "Log batch flush latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CollectorIngestedTotal tracks records accepted by the collector
	CollectorIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_collector_ingested_total",
			Help: "Total number of records accepted by the collector",
		},
		[]string{"kind"},
	)

	// CollectorRejectedTotal tracks rejected collector requests
	CollectorRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_collector_rejected_total",
			Help: "Total number of rejected collector requests",
		},
		[]string{"kind", "reason"},
	)

	// StoragePrunedTotal tracks rows removed by retention
	StoragePrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "faultline_storage_pruned_total",
			Help: "Total number of rows removed by retention pruning",
		},
		[]string{"table"},
	)

	// DBConnectionPoolUsage tracks the percentage of the pool in use
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "faultline_db_connection_pool_usage_percent",
			Help: "Percentage of database connection pool in use",
		},
	)

	// DBQueryLatency tracks database query latency
	DBQueryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "faultline_db_query_latency_seconds",
			Help:    "Database query latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
