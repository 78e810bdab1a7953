package vectorstore

import (
	"context"
	"sync"
	"time"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// fakeEmbedder returns fixed vectors per text and counts calls.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	def     []float32
	err     error
	delay   time.Duration
	calls   int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	delay, err := f.delay, f.err
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	if err != nil {
		return nil, err
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.def, nil
}

func (f *fakeEmbedder) Model() string { return "fake-embedding" }

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeLLM records the last request.
type fakeLLM struct {
	mu       sync.Mutex
	response string
	err      error
	prompt   string
	options  map[string]any
}

func (f *fakeLLM) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	out, _, _, err := f.CompleteWithUsage(ctx, prompt, options)
	return out, err
}

func (f *fakeLLM) CompleteWithUsage(_ context.Context, prompt string, options map[string]any) (string, int, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompt, f.options = prompt, options
	if f.err != nil {
		return "", 0, 0, f.err
	}
	return f.response, len(prompt) / 4, len(f.response) / 4, nil
}

func (f *fakeLLM) EstimateTokens(text string) (int, error) { return len(text) / 4, nil }
func (f *fakeLLM) GetModel() string                        { return "gpt-4-turbo" }

// scriptedRetriever fails with errs in order and then succeeds.
type scriptedRetriever struct {
	mu     sync.Mutex
	errs   []error
	result domain.RetrievalResult
	calls  int
}

func (s *scriptedRetriever) Retrieve(context.Context, ports.RetrievalQuery) (domain.RetrievalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.errs) {
		return domain.RetrievalResult{}, s.errs[s.calls-1]
	}
	return s.result, nil
}

type recordingMetrics struct {
	mu         sync.Mutex
	counters   map[string][]map[string]string
	histograms map[string][]map[string]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counters:   map[string][]map[string]string{},
		histograms: map[string][]map[string]string{},
	}
}

func (m *recordingMetrics) RecordLatency(string, time.Duration, map[string]string) {}
func (m *recordingMetrics) RecordGauge(string, float64, map[string]string)         {}

func (m *recordingMetrics) RecordCounter(metric string, _ float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[metric] = append(m.counters[metric], labels)
}

func (m *recordingMetrics) RecordHistogram(metric string, _ float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms[metric] = append(m.histograms[metric], labels)
}

func (m *recordingMetrics) countWhere(metric, key, value string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, l := range m.counters[metric] {
		if l[key] == value {
			n++
		}
	}
	return n
}
