// Package middleware provides cross-cutting concerns for the diagnosis
// pipeline: Prometheus metrics, budget enforcement and budget tracing.
package middleware

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

const unknownLabel = "unknown"

// Metric names with a dedicated Prometheus vector. Every other name is
// routed to the generic operation vectors.
const (
	MetricCertaintyScore    = "certainty_score"
	MetricCertaintyStatus   = "certainty_status_total"
	MetricCapsApplied       = "certainty_caps_applied_total"
	MetricLLMLatency        = "llm_latency_seconds"
	MetricLLMRequests       = "llm_requests_total"
	MetricLLMTokens         = "llm_tokens_total"
	MetricRetrievalLatency  = "retrieval_latency_seconds"
	MetricEmbeddingCache    = "embedding_cache_total"
	MetricBreakerState      = "llm_circuit_breaker_state"
	MetricBreakerRejections = "llm_circuit_breaker_rejections_total"
	MetricBreakerSuccesses  = "llm_circuit_breaker_success_total"
	MetricBreakerFailures   = "llm_circuit_breaker_failure_total"
	MetricBudgetExceeded    = "budget_exceeded_total"
	MetricHTTPRequests      = "http_requests_total"
	MetricHTTPLatency       = "http_request"
)

type counterVec struct {
	vec    *prometheus.CounterVec
	labels []string
}

type gaugeVec struct {
	vec    *prometheus.GaugeVec
	labels []string
}

type histogramVec struct {
	vec    *prometheus.HistogramVec
	labels []string
}

// PrometheusMetrics implements ports.MetricsCollector on a dedicated
// Prometheus registry. Known metric names map to typed vectors with fixed
// label sets; missing labels are reported as "unknown" and extra labels
// are dropped so a caller can never trigger a cardinality panic.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	counters   map[string]counterVec
	gauges     map[string]gaugeVec
	histograms map[string]histogramVec

	executionLatency *prometheus.HistogramVec
	operationCounter *prometheus.CounterVec
	systemGauges     *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collector. A nil registry is replaced by
// a fresh one carrying the Go runtime and process collectors.
func NewPrometheusMetrics(registry *prometheus.Registry) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)

	pm := &PrometheusMetrics{
		registry:   registry,
		counters:   make(map[string]counterVec),
		gauges:     make(map[string]gaugeVec),
		histograms: make(map[string]histogramVec),
	}

	counter := func(name, help string, labels ...string) {
		pm.counters[name] = counterVec{
			vec:    factory.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels),
			labels: labels,
		}
	}
	histogram := func(name, help string, buckets []float64, labels ...string) {
		pm.histograms[name] = histogramVec{
			vec:    factory.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels),
			labels: labels,
		}
	}

	// Certainty outcomes.
	histogram(MetricCertaintyScore, "Final certainty score per diagnosis.",
		prometheus.LinearBuckets(40, 5, 13), "task_type")
	counter(MetricCertaintyStatus, "Diagnoses by certainty status.", "task_type", "status")
	counter(MetricCapsApplied, "Certainty caps that lowered a score, by limit.", "cap")

	// LLM providers.
	histogram(MetricLLMLatency, "LLM request latency in seconds.",
		prometheus.ExponentialBuckets(0.25, 2, 8), "provider", "model", "status")
	counter(MetricLLMRequests, "LLM requests by outcome.", "provider", "model", "status")
	counter(MetricLLMTokens, "LLM tokens consumed.", "provider", "model", "token_type")
	counter(MetricBreakerRejections, "Requests rejected by an open circuit breaker.", "provider")
	counter(MetricBreakerSuccesses, "Successful requests seen by the circuit breaker.", "provider")
	counter(MetricBreakerFailures, "Failed requests seen by the circuit breaker.", "provider")
	pm.gauges[MetricBreakerState] = gaugeVec{
		vec: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricBreakerState,
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}, []string{"provider"}),
		labels: []string{"provider"},
	}

	// Retrieval.
	histogram(MetricRetrievalLatency, "Document retrieval latency in seconds.",
		prometheus.DefBuckets, "filter", "status")
	counter(MetricEmbeddingCache, "Embedding cache lookups by result.", "result", "model")

	// Budget and HTTP.
	counter(MetricBudgetExceeded, "Units stopped by a budget limit.", "limit_type", "unit")
	counter(MetricHTTPRequests, "HTTP requests by route and status.", "method", "route", "status")
	histogram(MetricHTTPLatency+"_duration_seconds", "HTTP request latency in seconds.",
		prometheus.DefBuckets, "method", "route")

	pm.executionLatency = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "operation_duration_seconds",
			Help:    "Execution time of pipeline operations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "unit"},
	)
	pm.operationCounter = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "operations_total",
			Help: "Pipeline operations without a dedicated counter.",
		},
		[]string{"operation", "status", "unit"},
	)
	pm.systemGauges = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pipeline_state",
			Help: "Current pipeline state values such as remaining budget.",
		},
		[]string{"metric", "unit"},
	)
	return pm
}

// Registry returns the registry the metrics are registered on.
func (pm *PrometheusMetrics) Registry() *prometheus.Registry { return pm.registry }

// Handler serves the registry in the Prometheus exposition format.
func (pm *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{Registry: pm.registry})
}

// RecordLatency records a duration. HTTP requests go to the HTTP latency
// histogram, everything else to the generic operation histogram.
func (pm *PrometheusMetrics) RecordLatency(operation string, duration time.Duration, labels map[string]string) {
	if h, ok := pm.histograms[operation+"_duration_seconds"]; ok {
		h.vec.WithLabelValues(labelValues(labels, h.labels)...).Observe(duration.Seconds())
		return
	}
	pm.executionLatency.WithLabelValues(operation, unitLabel(labels)).Observe(duration.Seconds())
}

// RecordCounter adds value to the counter named metric.
func (pm *PrometheusMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	if c, ok := pm.counters[metric]; ok {
		c.vec.WithLabelValues(labelValues(labels, c.labels)...).Add(value)
		return
	}
	status := labels["status"]
	if status == "" {
		status = "success"
	}
	pm.operationCounter.WithLabelValues(metric, status, unitLabel(labels)).Add(value)
}

// RecordGauge sets the gauge named metric.
func (pm *PrometheusMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	if g, ok := pm.gauges[metric]; ok {
		g.vec.WithLabelValues(labelValues(labels, g.labels)...).Set(value)
		return
	}
	pm.systemGauges.WithLabelValues(metric, unitLabel(labels)).Set(value)
}

// RecordHistogram observes value on the histogram named metric.
func (pm *PrometheusMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	if h, ok := pm.histograms[metric]; ok {
		h.vec.WithLabelValues(labelValues(labels, h.labels)...).Observe(value)
		return
	}
	pm.executionLatency.WithLabelValues(metric, unitLabel(labels)).Observe(value)
}

func labelValues(labels map[string]string, names []string) []string {
	values := make([]string, len(names))
	for i, name := range names {
		v := labels[name]
		if v == "" {
			v = unknownLabel
		}
		values[i] = v
	}
	return values
}

func unitLabel(labels map[string]string) string {
	if u := labels["unit"]; u != "" {
		return u
	}
	return unknownLabel
}

var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
