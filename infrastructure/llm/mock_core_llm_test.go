package llm

import (
	"context"
	"sync"
	"time"
)

type contextKey string

const testContextKey contextKey = "test-key"

// mockCoreLLM is a scriptable CoreLLM.
type mockCoreLLM struct {
	mu sync.Mutex

	Response  string
	TokensIn  int
	TokensOut int
	Error     error
	Model     string
	Delay     time.Duration

	// FailUntilAttempt makes the first N calls fail with Error.
	FailUntilAttempt int

	CallCount   int
	LastPrompt  string
	LastOpts    map[string]any
	LastContext context.Context
}

func newMockCoreLLM() *mockCoreLLM {
	return &mockCoreLLM{
		Response:  "test response",
		TokensIn:  10,
		TokensOut: 20,
		Model:     "test-model",
	}
}

func (m *mockCoreLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	m.mu.Lock()
	m.CallCount++
	call := m.CallCount
	m.LastPrompt = prompt
	m.LastOpts = opts
	m.LastContext = ctx
	delay, failErr, failUntil := m.Delay, m.Error, m.FailUntilAttempt
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return "", 0, 0, ctx.Err()
		case <-time.After(delay):
		}
	}

	if failErr != nil && (failUntil == 0 || call <= failUntil) {
		return "", 0, 0, failErr
	}
	return m.Response, m.TokensIn, m.TokensOut, nil
}

func (m *mockCoreLLM) GetModel() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Model
}

func (m *mockCoreLLM) SetModel(model string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Model = model
}

func (m *mockCoreLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// recordingCollector captures metrics in memory.
type recordingCollector struct {
	mu         sync.Mutex
	counters   map[string]float64
	histograms map[string][]float64
	gauges     map[string]float64
	labels     map[string][]map[string]string
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{
		counters:   map[string]float64{},
		histograms: map[string][]float64{},
		gauges:     map[string]float64{},
		labels:     map[string][]map[string]string{},
	}
}

func (c *recordingCollector) RecordLatency(op string, d time.Duration, labels map[string]string) {
	c.RecordHistogram(op, d.Seconds(), labels)
}

func (c *recordingCollector) RecordCounter(metric string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[metric] += v
	c.labels[metric] = append(c.labels[metric], labels)
}

func (c *recordingCollector) RecordGauge(metric string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gauges[metric] = v
	c.labels[metric] = append(c.labels[metric], labels)
}

func (c *recordingCollector) RecordHistogram(metric string, v float64, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.histograms[metric] = append(c.histograms[metric], v)
	c.labels[metric] = append(c.labels[metric], labels)
}
