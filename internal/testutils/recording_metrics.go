package testutils

import (
	"maps"
	"sync"
	"time"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// MetricSample is one recorded observation.
type MetricSample struct {
	Kind   string
	Name   string
	Value  float64
	Labels map[string]string
}

// RecordingMetrics is a MetricsCollector that keeps every observation.
type RecordingMetrics struct {
	mu      sync.Mutex
	samples []MetricSample
}

var _ ports.MetricsCollector = (*RecordingMetrics)(nil)

func (r *RecordingMetrics) record(kind, name string, value float64, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, MetricSample{Kind: kind, Name: name, Value: value, Labels: maps.Clone(labels)})
}

func (r *RecordingMetrics) RecordLatency(operation string, d time.Duration, labels map[string]string) {
	r.record("latency", operation, d.Seconds(), labels)
}

func (r *RecordingMetrics) RecordCounter(metric string, value float64, labels map[string]string) {
	r.record("counter", metric, value, labels)
}

func (r *RecordingMetrics) RecordGauge(metric string, value float64, labels map[string]string) {
	r.record("gauge", metric, value, labels)
}

func (r *RecordingMetrics) RecordHistogram(metric string, value float64, labels map[string]string) {
	r.record("histogram", metric, value, labels)
}

// Samples returns the observations recorded under name.
func (r *RecordingMetrics) Samples(name string) []MetricSample {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []MetricSample
	for _, s := range r.samples {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}
