// Package metrics defines the Prometheus collectors for the command
// pipeline, delivery layer, backend client and WhatsApp session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Inbound messages
	MessagesTotal *prometheus.CounterVec

	// Command pipeline
	CommandsTotal          *prometheus.CounterVec
	CommandDurationSeconds *prometheus.HistogramVec
	AdmissionDenialsTotal  *prometheus.CounterVec
	AuthDenialsTotal       *prometheus.CounterVec
	IntentsTotal           *prometheus.CounterVec

	// Delivery
	DeliveriesTotal      *prometheus.CounterVec
	RetryQueueDepth      prometheus.Gauge
	RetryAttemptsTotal   *prometheus.CounterVec
	RetryDroppedTotal    prometheus.Counter
	AuditDroppedTotal    prometheus.Counter
	WhatsAppConnected    prometheus.Gauge
	WhatsAppEventsTotal  *prometheus.CounterVec
	WebhookNotifications *prometheus.CounterVec
	ScrapeAuthFailures   *prometheus.CounterVec

	// Backend API
	BackendRequestsTotal   *prometheus.CounterVec
	BackendDurationSeconds *prometheus.HistogramVec

	// Rate limiter metrics
	RateLimiterDropped *prometheus.CounterVec
	RateLimiterUsers   *prometheus.GaugeVec

	// Singleflight metrics
	SingleflightDedupTotal *prometheus.CounterVec
}

// New creates a new Metrics instance with all metrics registered
func New(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		MessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_messages_total",
				Help: "Inbound messages by chat type and outcome",
			},
			[]string{"chat_type", "outcome"}, // chat_type: private, group; outcome: command, intent, ignored, throttled
		),

		CommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_commands_total",
				Help: "Dispatched commands by command and outcome",
			},
			[]string{"command", "outcome"}, // outcome: ok, unknown, cooldown, denied, usage, error, timeout, panic
		),

		CommandDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wabot_command_duration_seconds",
				Help:    "Handler execution time in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"command"},
		),

		AdmissionDenialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_admission_denials_total",
				Help: "Admission denials by kind",
			},
			[]string{"kind"}, // kind: cooldown, rate_limit
		),

		AuthDenialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_auth_denials_total",
				Help: "Role gate denials by reason",
			},
			[]string{"reason"}, // reason: not_owner, not_admin, not_merchant, wrong_context
		),

		IntentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_intents_total",
				Help: "Natural language intents detected by intent and source",
			},
			[]string{"intent", "source"}, // source: keyword, llm
		),

		DeliveriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_deliveries_total",
				Help: "Outbound deliveries by message kind and result",
			},
			[]string{"kind", "result"}, // kind: interactive, text, invalid, panic; result: sent, fallback, queued, dropped
		),

		RetryQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabot_retry_queue_depth",
				Help: "Messages waiting in the retry queue",
			},
		),

		RetryAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_retry_attempts_total",
				Help: "Retry queue send attempts by result",
			},
			[]string{"result"}, // result: sent, failed, dropped
		),

		RetryDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wabot_retry_dropped_total",
				Help: "Messages permanently dropped after exhausting retry attempts",
			},
		),

		AuditDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "wabot_audit_dropped_total",
				Help: "Audit records dropped because the buffer was full",
			},
		),

		WhatsAppConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "wabot_whatsapp_connected",
				Help: "1 when the WhatsApp session is connected",
			},
		),

		WhatsAppEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_whatsapp_events_total",
				Help: "WhatsApp connection events by type",
			},
			[]string{"event"}, // event: connected, disconnected, logged_out, pair_success
		),

		WebhookNotifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_webhook_notifications_total",
				Help: "Backend push notifications by topic and status",
			},
			[]string{"topic", "status"}, // status: accepted, rejected, sent, failed
		),

		ScrapeAuthFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_metrics_auth_failures_total",
				Help: "Rejected /metrics scrapes by reason",
			},
			[]string{"reason"}, // reason: missing, mismatch
		),

		BackendRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_backend_requests_total",
				Help: "Backend API calls by endpoint and status",
			},
			[]string{"endpoint", "status"}, // status: success, error, unavailable
		),

		BackendDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "wabot_backend_duration_seconds",
				Help:    "Backend API call duration in seconds including retries",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		),

		RateLimiterDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_rate_limiter_dropped_total",
				Help: "Requests rejected by rate limiters",
			},
			[]string{"limiter"}, // limiter: message, llm
		),

		RateLimiterUsers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wabot_rate_limiter_users",
				Help: "Keys currently tracked by each keyed limiter",
			},
			[]string{"limiter"},
		),

		SingleflightDedupTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wabot_singleflight_dedup_total",
				Help: "Calls deduplicated by singleflight by group",
			},
			[]string{"group"}, // group: role_lookup
		),
	}
}

// RecordMessage records an inbound message.
func (m *Metrics) RecordMessage(chatType, outcome string) {
	m.MessagesTotal.WithLabelValues(chatType, outcome).Inc()
}

// RecordCommand records a dispatch outcome and, for executed handlers, its duration.
func (m *Metrics) RecordCommand(command, outcome string, durationSeconds float64) {
	m.CommandsTotal.WithLabelValues(command, outcome).Inc()
	if durationSeconds > 0 {
		m.CommandDurationSeconds.WithLabelValues(command).Observe(durationSeconds)
	}
}

// RecordAdmissionDenial records a cooldown or rate-limit rejection.
func (m *Metrics) RecordAdmissionDenial(kind string) {
	m.AdmissionDenialsTotal.WithLabelValues(kind).Inc()
}

// RecordAuthDenial records a role gate rejection.
func (m *Metrics) RecordAuthDenial(reason string) {
	m.AuthDenialsTotal.WithLabelValues(reason).Inc()
}

// RecordIntent records a natural language intent match.
func (m *Metrics) RecordIntent(intent, source string) {
	m.IntentsTotal.WithLabelValues(intent, source).Inc()
}

// RecordDelivery records the final result of a delivery.
func (m *Metrics) RecordDelivery(kind, result string) {
	m.DeliveriesTotal.WithLabelValues(kind, result).Inc()
}

// SetRetryQueueDepth updates the retry queue gauge.
func (m *Metrics) SetRetryQueueDepth(depth int) {
	m.RetryQueueDepth.Set(float64(depth))
}

// RecordRetryAttempt records one retry queue send.
func (m *Metrics) RecordRetryAttempt(result string) {
	m.RetryAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordRetryDropped records a message abandoned by the retry queue.
func (m *Metrics) RecordRetryDropped() {
	m.RetryDroppedTotal.Inc()
}

// RecordAuditDropped records an audit record lost to backpressure.
func (m *Metrics) RecordAuditDropped() {
	m.AuditDroppedTotal.Inc()
}

// SetWhatsAppConnected updates the session gauge.
func (m *Metrics) SetWhatsAppConnected(connected bool) {
	if connected {
		m.WhatsAppConnected.Set(1)
		return
	}
	m.WhatsAppConnected.Set(0)
}

// RecordWhatsAppEvent records a connection lifecycle event.
func (m *Metrics) RecordWhatsAppEvent(event string) {
	m.WhatsAppEventsTotal.WithLabelValues(event).Inc()
}

// RecordWebhookNotification records a backend push notification.
func (m *Metrics) RecordWebhookNotification(topic, status string) {
	m.WebhookNotifications.WithLabelValues(topic, status).Inc()
}

// RecordScrapeAuthFailure records a /metrics request with bad credentials.
func (m *Metrics) RecordScrapeAuthFailure(reason string) {
	m.ScrapeAuthFailures.WithLabelValues(reason).Inc()
}

// RecordBackendRequest records a backend call.
func (m *Metrics) RecordBackendRequest(endpoint, status string, durationSeconds float64) {
	m.BackendRequestsTotal.WithLabelValues(endpoint, status).Inc()
	m.BackendDurationSeconds.WithLabelValues(endpoint).Observe(durationSeconds)
}

// RecordRateLimiterDrop records a rejected request for the named limiter.
func (m *Metrics) RecordRateLimiterDrop(limiter string) {
	m.RateLimiterDropped.WithLabelValues(limiter).Inc()
}

// SetRateLimiterUsers records how many keys a limiter tracks.
func (m *Metrics) SetRateLimiterUsers(limiter string, count int) {
	m.RateLimiterUsers.WithLabelValues(limiter).Set(float64(count))
}

// RecordSingleflightDedup records a deduplicated call.
func (m *Metrics) RecordSingleflightDedup(group string) {
	m.SingleflightDedupTotal.WithLabelValues(group).Inc()
}
