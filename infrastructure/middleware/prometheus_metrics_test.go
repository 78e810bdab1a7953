package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// newTestMetrics returns metrics on a private registry so tests never
// collide on registration.
func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	return NewPrometheusMetrics(prometheus.NewRegistry())
}

func TestNewPrometheusMetrics(t *testing.T) {
	pm := newTestMetrics(t)

	assert.NotNil(t, pm.executionLatency)
	assert.NotNil(t, pm.operationCounter)
	assert.NotNil(t, pm.systemGauges)
	for _, name := range []string{MetricCertaintyStatus, MetricCapsApplied, MetricLLMRequests, MetricLLMTokens, MetricEmbeddingCache} {
		assert.Contains(t, pm.counters, name)
	}
	for _, name := range []string{MetricCertaintyScore, MetricLLMLatency, MetricRetrievalLatency} {
		assert.Contains(t, pm.histograms, name)
	}
	assert.Contains(t, pm.gauges, MetricBreakerState)

	var _ ports.MetricsCollector = pm
}

func TestNewPrometheusMetrics_DefaultRegistry(t *testing.T) {
	pm := NewPrometheusMetrics(nil)
	require.NotNil(t, pm.Registry())

	families, err := pm.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}

func TestPrometheusMetrics_RecordCounter(t *testing.T) {
	tests := []struct {
		name   string
		metric string
		labels map[string]string
		vec    func(pm *PrometheusMetrics) prometheus.Collector
	}{
		{
			name:   "certainty status",
			metric: MetricCertaintyStatus,
			labels: map[string]string{"task_type": "fault_isolation", "status": "SAFE_TO_PROCEED"},
			vec: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.counters[MetricCertaintyStatus].vec.WithLabelValues("fault_isolation", "SAFE_TO_PROCEED")
			},
		},
		{
			name:   "missing labels become unknown",
			metric: MetricLLMTokens,
			labels: map[string]string{"provider": "openai"},
			vec: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.counters[MetricLLMTokens].vec.WithLabelValues("openai", unknownLabel, unknownLabel)
			},
		},
		{
			name:   "extra labels are dropped",
			metric: MetricCapsApplied,
			labels: map[string]string{"cap": "80", "task_type": "fault_isolation"},
			vec: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.counters[MetricCapsApplied].vec.WithLabelValues("80")
			},
		},
		{
			name:   "unknown metric goes to the operation counter",
			metric: "pipeline_runs",
			labels: map[string]string{"unit": "review"},
			vec: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.operationCounter.WithLabelValues("pipeline_runs", "success", "review")
			},
		},
		{
			name:   "nil labels",
			metric: MetricBreakerFailures,
			vec: func(pm *PrometheusMetrics) prometheus.Collector {
				return pm.counters[MetricBreakerFailures].vec.WithLabelValues(unknownLabel)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := newTestMetrics(t)
			assert.NotPanics(t, func() {
				pm.RecordCounter(tt.metric, 2, tt.labels)
				pm.RecordCounter(tt.metric, 1, tt.labels)
			})
			assert.Equal(t, 3.0, testutil.ToFloat64(tt.vec(pm)))
		})
	}
}

func TestPrometheusMetrics_RecordGauge(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordGauge(MetricBreakerState, 1, map[string]string{"provider": "anthropic"})
	pm.RecordGauge(MetricBreakerState, 2, map[string]string{"provider": "anthropic"})
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.gauges[MetricBreakerState].vec.WithLabelValues("anthropic")))

	pm.RecordGauge("budget_remaining_tokens", 850, map[string]string{"unit": "diagnose"})
	assert.Equal(t, 850.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues("budget_remaining_tokens", "diagnose")))

	pm.RecordGauge("budget_remaining_calls", 3, map[string]string{"unit": ""})
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.systemGauges.WithLabelValues("budget_remaining_calls", unknownLabel)))
}

func TestPrometheusMetrics_Histograms(t *testing.T) {
	pm := newTestMetrics(t)

	pm.RecordHistogram(MetricCertaintyScore, 96, map[string]string{"task_type": "fault_isolation"})
	pm.RecordHistogram(MetricCertaintyScore, 80, map[string]string{"task_type": "fault_isolation"})
	pm.RecordHistogram(MetricRetrievalLatency, 0.2, map[string]string{"filter": "ata", "status": "success"})
	pm.RecordHistogram("rerank_score", 0.5, nil)
	pm.RecordLatency(MetricHTTPLatency, 15*time.Millisecond, map[string]string{"method": "POST", "route": "/api/v1/diagnose"})
	pm.RecordLatency("pipeline_execution", time.Second, map[string]string{"unit": "pipeline"})

	count, err := testutil.GatherAndCount(pm.Registry(),
		MetricCertaintyScore,
		MetricRetrievalLatency,
		"http_request_duration_seconds",
		"operation_duration_seconds",
	)
	require.NoError(t, err)
	assert.Equal(t, 5, count, "one series per label combination")
}

func TestPrometheusMetrics_Handler(t *testing.T) {
	pm := newTestMetrics(t)
	pm.RecordCounter(MetricCertaintyStatus, 1, map[string]string{"task_type": "fault_isolation", "status": "REQUIRE_EXPERT"})

	srv := httptest.NewServer(pm.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `certainty_status_total{status="REQUIRE_EXPERT",task_type="fault_isolation"} 1`)
}
