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

	// LLMStreamDuration tracks LLM streaming response duration.
	LLMStreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_stream_duration_seconds",
			Help:    "LLM streaming response duration",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 45, 60, 90, 120},
		},
		[]string{"model", "outcome"},
	)

	// LLMFragmentsTotal tracks streamed fragments received from the completion service.
	LLMFragmentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_fragments_total",
			Help: "Total streamed fragments received",
		},
		[]string{"model"},
	)

	// TurnsTotal tracks completion turns by final state.
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "completion_turns_total",
			Help: "Completion turns by outcome",
		},
		[]string{"outcome"},
	)

	// SSEConnectionsActive tracks active SSE connections.
	SSEConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sse_connections_active",
			Help: "Number of active SSE connections",
		},
	)

	// SessionsActive tracks sessions held in memory.
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of user sessions loaded in memory",
		},
	)

	// ConversationsTotal tracks total conversations created.
	ConversationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conversations_total",
			Help: "Total conversations created",
		},
	)

	// MessagesTotal tracks total messages appended.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_total",
			Help: "Total messages appended",
		},
		[]string{"role"},
	)

	// DocumentSavesTotal tracks session document writes.
	DocumentSavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_document_saves_total",
			Help: "Session document writes by status",
		},
		[]string{"status"},
	)

	// AuthAttemptsTotal tracks login and signup attempts.
	AuthAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Authentication attempts by action and result",
		},
		[]string{"action", "result"},
	)

	// EventsPublishedTotal tracks session events sent to the event stream.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_events_published_total",
			Help: "Session events published by type and status",
		},
		[]string{"type", "status"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordTurn records metrics for a finished completion turn.
func RecordTurn(model, outcome string, duration float64, fragments int) {
	LLMStreamDuration.WithLabelValues(model, outcome).Observe(duration)
	LLMFragmentsTotal.WithLabelValues(model).Add(float64(fragments))
	TurnsTotal.WithLabelValues(outcome).Inc()
}

// RecordSave records the result of a session document write.
func RecordSave(err error) {
	if err != nil {
		DocumentSavesTotal.WithLabelValues("error").Inc()
		return
	}
	DocumentSavesTotal.WithLabelValues("ok").Inc()
}

// RecordAuth records an authentication attempt.
func RecordAuth(action, result string) {
	AuthAttemptsTotal.WithLabelValues(action, result).Inc()
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}
