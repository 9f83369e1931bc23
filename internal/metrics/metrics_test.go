package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// value 从默认注册表读取指标值，找不到时返回 -1
func value(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue metrics
				}
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return -1
}

func TestObservePoll(t *testing.T) {
	ObservePoll("poll-test", "ok", time.Second)
	ObservePoll("poll-test", "ok", time.Second)
	ObservePoll("poll-test", "error", time.Second)

	assert.Equal(t, 2.0, value(t, "connector_poll_cycles_total", map[string]string{"connector": "poll-test", "result": "ok"}))
	assert.Equal(t, 1.0, value(t, "connector_poll_cycles_total", map[string]string{"connector": "poll-test", "result": "error"}))
	assert.Equal(t, 3.0, value(t, "connector_poll_duration_seconds", map[string]string{"connector": "poll-test"}))
}

func TestGauges(t *testing.T) {
	ObserveVehicles("gauge-test", 3)
	assert.Equal(t, 3.0, value(t, "connector_vehicles", map[string]string{"connector": "gauge-test"}))

	SetHealthy("gauge-test", true)
	assert.Equal(t, 1.0, value(t, "connector_healthy", map[string]string{"connector": "gauge-test"}))
	SetHealthy("gauge-test", false)
	assert.Equal(t, 0.0, value(t, "connector_healthy", map[string]string{"connector": "gauge-test"}))
}

func TestCounters(t *testing.T) {
	ObserveTokenRefresh("counter-test", "ok")
	ObserveMappingError("counter-test", "last_record")
	ObserveRequest("counter-test", "list_vehicles", 200, time.Millisecond)

	assert.Equal(t, 1.0, value(t, "tronity_token_refresh_total", map[string]string{"connector": "counter-test", "result": "ok"}))
	assert.Equal(t, 1.0, value(t, "connector_mapping_errors_total", map[string]string{"connector": "counter-test", "document": "last_record"}))
	assert.Equal(t, 1.0, value(t, "tronity_request_duration_seconds", map[string]string{"connector": "counter-test", "status": "200"}))
}

func TestEmptyConnectorIgnored(t *testing.T) {
	ObserveMappingError("", "vehicles")
	ObservePoll("", "ok", time.Second)

	assert.Equal(t, -1.0, value(t, "connector_mapping_errors_total", map[string]string{"connector": "", "document": "vehicles"}))
}
