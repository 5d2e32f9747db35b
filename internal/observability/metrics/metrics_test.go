package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matches(metric, labels) {
				return metric
			}
		}
	}
	return nil
}

func matches(metric *dto.Metric, labels map[string]string) bool {
	found := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
			found++
		}
	}
	return found == len(labels)
}

func TestCallMetricsObserveWebhook(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)

	m.ObserveWebhook("call_ended", OutcomeSynced)
	m.ObserveWebhook("call_ended", OutcomeSynced)
	m.ObserveWebhook("", OutcomeMalformed)

	synced := findMetric(t, reg, "crm_call_webhooks_total", map[string]string{"event": "call_ended", "outcome": "synced"})
	require.NotNil(t, synced)
	assert.Equal(t, 2.0, synced.GetCounter().GetValue())

	malformed := findMetric(t, reg, "crm_call_webhooks_total", map[string]string{"event": "unknown", "outcome": "malformed"})
	require.NotNil(t, malformed)
	assert.Equal(t, 1.0, malformed.GetCounter().GetValue())
}

func TestCallMetricsWebhookDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)

	m.ObserveWebhookDuration("call_started", 0.02)
	m.ObserveWebhookDuration("call_started", 0.3)

	metric := findMetric(t, reg, "crm_call_webhook_duration_seconds", map[string]string{"event": "call_started"})
	require.NotNil(t, metric)
	assert.Equal(t, uint64(2), metric.GetHistogram().GetSampleCount())
	assert.InDelta(t, 0.32, metric.GetHistogram().GetSampleSum(), 1e-9)
}

func TestCallMetricsProviderRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCallMetrics(reg)

	m.ObserveProviderRequest("get_call", 200)
	m.ObserveProviderRequest("get_call", 0)

	ok := findMetric(t, reg, "crm_provider_requests_total", map[string]string{"operation": "get_call", "status": "200"})
	require.NotNil(t, ok)
	assert.Equal(t, 1.0, ok.GetCounter().GetValue())

	transport := findMetric(t, reg, "crm_provider_requests_total", map[string]string{"operation": "get_call", "status": "error"})
	require.NotNil(t, transport)
}

func TestCallMetricsNilSafe(t *testing.T) {
	var m *CallMetrics
	m.ObserveWebhook("event", OutcomeSynced)
	m.ObserveWebhookDuration("event", 0.1)
	m.ObserveProviderRequest("get_call", 500)
}
