// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingest
	ResponsesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_responses_ingested_total",
			Help: "Survey responses accepted by ingest, by transport",
		},
		[]string{"transport"}, // "http", "otlp_http", "otlp_grpc", "cli"
	)

	ResponsesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_responses_rejected_total",
			Help: "Raw responses skipped during normalization, by transport",
		},
		[]string{"transport"},
	)

	// Detection
	DetectionRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldwatch_detection_runs_total",
			Help: "Completed detection runs",
		},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fieldwatch_detection_duration_seconds",
			Help:    "Wall time of a detection run",
			Buckets: prometheus.DefBuckets,
		},
	)

	DetectionCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_detection_candidates_total",
			Help: "Candidate alerts produced, by rule",
		},
		[]string{"rule"},
	)

	RuleFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_rule_failures_total",
			Help: "Rule evaluations that failed or panicked",
		},
		[]string{"rule"},
	)

	// Alerts
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_alerts_created_total",
			Help: "Alerts created by merge, by type and severity",
		},
		[]string{"type", "severity"},
	)

	AlertTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_alert_transitions_total",
			Help: "Operator actions applied to alerts",
		},
		[]string{"action"},
	)

	AlertsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldwatch_alerts_open",
			Help: "Alerts not yet resolved, by status",
		},
		[]string{"status"},
	)

	// Notifications
	NotifierFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_notifier_failures_total",
			Help: "Failed alert notifications, by notifier",
		},
		[]string{"notifier"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldwatch_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// API
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldwatch_api_requests_total",
			Help: "Operator API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldwatch_api_request_duration_seconds",
			Help:    "Operator API request latency",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	WebSocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fieldwatch_websocket_clients",
			Help: "Connected lifecycle event stream clients",
		},
	)
)

// RecordDetection records one detection run.
func RecordDetection(duration time.Duration, candidatesByRule map[string]int) {
	DetectionRuns.Inc()
	DetectionDuration.Observe(duration.Seconds())
	for rule, n := range candidatesByRule {
		DetectionCandidates.WithLabelValues(rule).Add(float64(n))
	}
}

// RecordAPIRequest records a completed API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequests.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
