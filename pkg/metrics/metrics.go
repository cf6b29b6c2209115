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

	// EventsProcessed tracks inbound events by outcome.
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_events_processed_total",
			Help: "Inbound events processed by the flow runner",
		},
		[]string{"tenant_id", "result"},
	)

	// StepTransitions tracks state machine transitions by step type.
	StepTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_step_transitions_total",
			Help: "Step transitions executed",
		},
		[]string{"tenant_id", "step_type"},
	)

	// InputRetries tracks validation and button-match retries.
	InputRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_input_retries_total",
			Help: "Invalid inputs that re-rendered the current step",
		},
		[]string{"tenant_id"},
	)

	// AuthoringErrors tracks fail-closed terminations caused by broken
	// documents (dangling step references and the like).
	AuthoringErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_authoring_errors_total",
			Help: "Sessions terminated by document authoring errors",
		},
		[]string{"tenant_id", "flow_id"},
	)

	// ActiveSessions tracks sessions currently in the active state.
	ActiveSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flow_active_sessions",
			Help: "Sessions currently active",
		},
		[]string{"tenant_id"},
	)

	// SessionsStarted tracks sessions created by trigger matches.
	SessionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_sessions_started_total",
			Help: "Sessions created by trigger matches",
		},
		[]string{"tenant_id", "flow_id"},
	)

	// SessionsEnded tracks session terminations by status.
	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_sessions_ended_total",
			Help: "Sessions ended, by final status",
		},
		[]string{"tenant_id", "status"},
	)

	// ExternalCallDuration tracks apiCall step round trips.
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flow_external_call_duration_seconds",
			Help:    "Duration of apiCall step invocations",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"tenant_id", "status"},
	)

	// DelayedResumptions tracks delay step scheduling and firing.
	DelayedResumptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_delayed_resumptions_total",
			Help: "Delay step resumptions by phase (scheduled, fired, cancelled)",
		},
		[]string{"phase"},
	)

	// DuplicateEvents tracks deduplicated transport redeliveries.
	DuplicateEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_duplicate_events_total",
			Help: "Inbound events dropped as duplicates",
		},
		[]string{"tenant_id"},
	)

	// OutboundMessages tracks messages handed to the dispatcher.
	OutboundMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flow_outbound_messages_total",
			Help: "Messages handed to the dispatcher",
		},
		[]string{"tenant_id", "kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordExternalCall records one apiCall invocation.
func RecordExternalCall(tenantID, status string, seconds float64) {
	ExternalCallDuration.WithLabelValues(tenantID, status).Observe(seconds)
}
