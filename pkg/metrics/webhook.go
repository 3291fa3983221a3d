package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts provider webhook deliveries by type and outcome.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// Webhook outcomes.
const (
	WebhookOutcomeProcessed = "processed"
	WebhookOutcomeDuplicate = "duplicate"
	WebhookOutcomeIgnored   = "ignored"
	WebhookOutcomeFailed    = "failed"
	WebhookOutcomeRejected  = "rejected"
)

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Provider webhook deliveries, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Observe records one delivery.
func (w *WebhookMetrics) Observe(eventType, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// Counter returns the counter behind one event type and outcome pair.
func (w *WebhookMetrics) Counter(eventType, outcome string) prometheus.Counter {
	if w == nil || w.events == nil {
		return nil
	}
	return w.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome))
}
