// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// WebhooksTotal tracks inbound webhook deliveries by outcome.
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Inbound webhook deliveries",
		},
		[]string{"outcome"},
	)

	// QueueDepth tracks tasks waiting in the ingestion queue.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "task_queue_depth",
			Help: "Tasks waiting in the ingestion queue",
		},
	)

	// QueueActive tracks tasks currently executing.
	QueueActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "task_queue_active",
			Help: "Tasks currently executing",
		},
	)

	// QueueTasksTotal tracks completed queue tasks by result.
	QueueTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "task_queue_tasks_total",
			Help: "Completed queue tasks",
		},
		[]string{"result"},
	)

	// BreakerState tracks circuit breaker state (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// RateLimitDenialsTotal tracks denied requests per limiter.
	RateLimitDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_denials_total",
			Help: "Requests denied by the rate limiter",
		},
		[]string{"limiter"},
	)

	// FanoutEventsTotal tracks events published to realtime rooms.
	FanoutEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fanout_events_total",
			Help: "Events published to realtime rooms",
		},
		[]string{"event"},
	)

	// MessagesTotal tracks messages persisted by sender role.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Messages persisted",
		},
		[]string{"sender"},
	)

	// ScheduledJobsTotal tracks scheduled message jobs by final status.
	ScheduledJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduled_jobs_total",
			Help: "Scheduled message jobs executed",
		},
		[]string{"status"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
