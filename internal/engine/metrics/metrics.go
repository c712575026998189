package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsClassified tracks classified failures per type and severity
	ErrorsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_errors_classified_total",
			Help: "Total number of failures classified",
		},
		[]string{"type", "severity"},
	)

	// RetryAttempts tracks retry attempts per adapter
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"adapter"},
	)

	// RetryOutcomes tracks terminal retry outcomes per adapter
	RetryOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_retry_outcomes_total",
			Help: "Terminal retry loop outcomes",
		},
		[]string{"adapter", "outcome"},
	)

	// RetryDelay tracks the computed backoff delays
	RetryDelay = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resilience_retry_delay_seconds",
			Help:    "Backoff delay between retry attempts in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// FallbackExecutions tracks fallback strategy runs per strategy and result
	FallbackExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_fallback_executions_total",
			Help: "Total number of fallback strategy executions",
		},
		[]string{"strategy", "result"},
	)

	// RecoveryExecutions tracks recovery workflow runs per workflow and status
	RecoveryExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_recovery_executions_total",
			Help: "Total number of recovery workflow executions",
		},
		[]string{"workflow", "status"},
	)

	// RecoveryDuration tracks recovery workflow wall time
	RecoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resilience_recovery_duration_seconds",
			Help:    "Recovery workflow execution duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workflow"},
	)

	// LogEntries tracks diagnostic records per level
	LogEntries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_log_entries_total",
			Help: "Total number of diagnostic records logged",
		},
		[]string{"level"},
	)

	// LogDeduplicated tracks records suppressed by fingerprint dedup
	LogDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resilience_log_deduplicated_total",
			Help: "Records suppressed from remote sinks by deduplication",
		},
	)

	// SinkFailures tracks failed sink writes per sink
	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resilience_sink_failures_total",
			Help: "Total number of failed sink writes",
		},
		[]string{"sink"},
	)
)
