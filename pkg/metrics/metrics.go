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

	// WebhookDeliveriesTotal tracks webhook deliveries by pipeline outcome.
	WebhookDeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"},
	)

	// InboundMessagesTotal tracks classified inbound messages.
	InboundMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inbound_messages_total",
			Help: "Inbound customer messages by kind",
		},
		[]string{"kind"},
	)

	// ConversationsCreatedTotal tracks conversations opened.
	ConversationsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversations_created_total",
			Help: "Conversations created",
		},
		[]string{"origin"},
	)

	// AutoRepliesTotal tracks welcome and away messages.
	AutoRepliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auto_replies_total",
			Help: "Automated replies by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// OutboundSendsTotal tracks calls to the provider send API.
	OutboundSendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbound_sends_total",
			Help: "Outbound provider sends by message type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// MediaFetchDuration tracks media resolution, download and upload.
	MediaFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_fetch_duration_seconds",
			Help:    "Time to fetch provider media and store it",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	// RealtimePublishFailuresTotal tracks change events that could not be published.
	RealtimePublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_publish_failures_total",
			Help: "Change events that failed to publish",
		},
		[]string{"table"},
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

// RecordDelivery records the outcome of one webhook delivery.
func RecordDelivery(outcome string) {
	WebhookDeliveriesTotal.WithLabelValues(outcome).Inc()
}

// RecordSend records an outbound provider call.
func RecordSend(msgType string, err error) {
	OutboundSendsTotal.WithLabelValues(msgType, outcome(err)).Inc()
}

// RecordAutoReply records a welcome or away message attempt.
func RecordAutoReply(kind string, err error) {
	AutoRepliesTotal.WithLabelValues(kind, outcome(err)).Inc()
}

// RecordMediaFetch records media handling duration.
func RecordMediaFetch(duration float64, err error) {
	MediaFetchDuration.WithLabelValues(outcome(err)).Observe(duration)
}

// IncrementSSEConnections increments the active SSE connection count.
func IncrementSSEConnections() {
	SSEConnectionsActive.Inc()
}

// DecrementSSEConnections decrements the active SSE connection count.
func DecrementSSEConnections() {
	SSEConnectionsActive.Dec()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
