package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook outcomes.
const (
	OutcomeSynced     = "synced"
	OutcomeSoftFailed = "soft_failed"
	OutcomeFailed     = "failed"
	OutcomeUnhandled  = "unhandled"
	OutcomeRejected   = "rejected"
	OutcomeMalformed  = "malformed"
)

// CallMetrics exposes counters/histograms for call webhook processing.
type CallMetrics struct {
	webhooksTotal    *prometheus.CounterVec
	webhookDuration  *prometheus.HistogramVec
	providerRequests *prometheus.CounterVec
}

func NewCallMetrics(reg prometheus.Registerer) *CallMetrics {
	m := &CallMetrics{
		webhooksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "call",
			Name:      "webhooks_total",
			Help:      "Total call webhooks by event and outcome",
		}, []string{"event", "outcome"}),
		webhookDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "crm",
			Subsystem: "call",
			Name:      "webhook_duration_seconds",
			Help:      "Latency of call webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crm",
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Voice provider API requests by operation and HTTP status",
		}, []string{"operation", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhooksTotal, m.webhookDuration, m.providerRequests)
	return m
}

func (m *CallMetrics) ObserveWebhook(event, outcome string) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.webhooksTotal.WithLabelValues(event, outcome).Inc()
}

func (m *CallMetrics) ObserveWebhookDuration(event string, seconds float64) {
	if m == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	m.webhookDuration.WithLabelValues(event).Observe(seconds)
}

// ObserveProviderRequest counts one provider attempt. Status 0 means a transport error.
func (m *CallMetrics) ObserveProviderRequest(operation string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.providerRequests.WithLabelValues(operation, label).Inc()
}
