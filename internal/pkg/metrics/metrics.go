// Package metrics provides Prometheus metrics for the policy engine: scan
// duration, violations found, actions executed, webhook deliveries, job
// queue depth and failures, plus the ambient HTTP/DB/circuit-breaker RED
// metrics the teacher exposes for every service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "policy_engine"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "path"},
	)

	// ScanDurationSeconds tracks end-to-end scan duration (C5).
	ScanDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "Organization scan duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to 512s (~8.5min)
		},
	)

	// ScansTotal counts completed scans by outcome.
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Total number of organization scans by outcome.",
		},
		[]string{"outcome"}, // completed, failed
	)

	// ViolationsFoundTotal counts violations recorded per scan, by policy key.
	ViolationsFoundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_found_total",
			Help:      "Total number of policy violations recorded, by policy key.",
		},
		[]string{"policy_key"},
	)

	// ActionsExecutedTotal counts action-executor attempts by action type and outcome.
	ActionsExecutedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_executed_total",
			Help:      "Total number of remediation actions executed, by action type and outcome.",
		},
		[]string{"action_type", "outcome"}, // outcome: success, failed, skipped
	)

	// WebhookDeliveriesTotal counts webhook deliveries by event type and result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Total number of webhook deliveries received, by event type and result.",
		},
		[]string{"event_type", "result"}, // result: accepted, rejected, ignored
	)

	// JobQueueDepth tracks the number of queued (not yet running) jobs.
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Number of jobs currently queued.",
		},
	)

	// JobsProcessedTotal counts job executions by method and outcome.
	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of job executions, by method and outcome.",
		},
		[]string{"method", "outcome"}, // outcome: success, retry, dead
	)

	// PlatformRateLimitRemaining is the last-seen remaining-quota header from the Platform.
	PlatformRateLimitRemaining = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "platform_rate_limit_remaining",
			Help:      "Remaining Platform API rate-limit quota as of the last response.",
		},
	)

	// DBQueryDurationSeconds tracks database query latency by operation type.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// CircuitBreakerState tracks the Platform Client's circuit breaker state (0=closed, 1=half-open, 2=open).
	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Current Platform Client circuit breaker state (0=closed, 1=half-open, 2=open).",
		},
	)

	// AuthzDecisionsTotal counts C9 authorization decisions by outcome.
	AuthzDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authz_decisions_total",
			Help:      "Total number of C9 authorization decisions, by outcome.",
		},
		[]string{"outcome"}, // authorized, denied, error, test_mode_bypass
	)
)
