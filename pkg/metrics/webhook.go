package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts inbound channel deliveries.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invsync_webhook_events_total",
		Help: "Channel webhook deliveries by topic and outcome.",
	}, []string{"topic", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

func (w *WebhookMetrics) IncEvent(topic, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(normalizeLabel(topic), normalizeLabel(outcome)).Inc()
}
