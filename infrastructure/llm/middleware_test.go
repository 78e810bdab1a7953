package llm

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/time/rate"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

var (
	errServer    = NewProviderError("openai", ErrorTypeServerError, 503, "overloaded", nil)
	errForbidden = NewProviderError("openai", ErrorTypeAuthentication, 401, "bad key", nil)
)

func TestRetryMiddleware(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		failUntil int
		retries   int
		wantCalls int
		wantError bool
		errorMsg  string
	}{
		{name: "success first try", retries: 2, wantCalls: 1},
		{name: "recovers after transient failures", err: errServer, failUntil: 2, retries: 2, wantCalls: 3},
		{name: "gives up after max retries", err: errServer, retries: 2, wantCalls: 3, wantError: true, errorMsg: "after 3 attempts"},
		{name: "does not retry authentication failures", err: errForbidden, retries: 3, wantCalls: 1, wantError: true, errorMsg: "authentication"},
		{name: "does not retry open circuit", err: ErrCircuitOpen, retries: 3, wantCalls: 1, wantError: true, errorMsg: "circuit breaker is open"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockCoreLLM()
			mock.Error = tt.err
			mock.FailUntilAttempt = tt.failUntil
			wrapped := RetryMiddleware(tt.retries, time.Millisecond, 5*time.Millisecond)(mock)

			resp, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
			assert.Equal(t, tt.wantCalls, mock.calls())
			if tt.wantError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "test response", resp)
		})
	}
}

func TestRetryMiddleware_StopsOnContextCancel(t *testing.T) {
	mock := newMockCoreLLM()
	mock.Error = errServer
	wrapped := RetryMiddleware(10, 50*time.Millisecond, time.Second)(mock)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, _, err := wrapped.DoRequest(ctx, "prompt", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, mock.calls())
}

func TestRetryMiddleware_DelayBounds(t *testing.T) {
	r := &retryLLM{baseDelay: 100 * time.Millisecond, maxDelay: time.Second}
	for attempt := range 40 {
		d := r.delay(attempt)
		assert.Positive(t, d)
		assert.LessOrEqual(t, d, time.Second)
	}
	first := r.delay(0)
	assert.GreaterOrEqual(t, first, 75*time.Millisecond)
	assert.LessOrEqual(t, first, 125*time.Millisecond)
}

func TestRateLimitMiddleware(t *testing.T) {
	mock := newMockCoreLLM()
	wrapped := RateLimitMiddleware(rate.Every(time.Hour), 1)(mock)

	_, _, _, err := wrapped.DoRequest(context.Background(), "first", nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, _, err = wrapped.DoRequest(ctx, "second", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrRateLimited)
	assert.Equal(t, 1, mock.calls())
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("times out slow requests", func(t *testing.T) {
		mock := newMockCoreLLM()
		mock.Delay = 200 * time.Millisecond
		wrapped := TimeoutMiddleware(20 * time.Millisecond)(mock)

		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("passes fast requests", func(t *testing.T) {
		mock := newMockCoreLLM()
		wrapped := TimeoutMiddleware(time.Second)(mock)

		resp, in, out, err := wrapped.DoRequest(context.Background(), "prompt", nil)
		require.NoError(t, err)
		assert.Equal(t, "test response", resp)
		assert.Equal(t, 10, in)
		assert.Equal(t, 20, out)
		_, hasDeadline := mock.LastContext.Deadline()
		assert.True(t, hasDeadline)
	})

	t.Run("non positive timeout is a no-op", func(t *testing.T) {
		mock := newMockCoreLLM()
		wrapped := TimeoutMiddleware(0)(mock)
		assert.Same(t, mock, wrapped)
	})
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	mock := newMockCoreLLM()
	mock.Error = errServer
	wrapped := CircuitBreakerMiddleware(2, 50*time.Millisecond)(mock)
	ctx := context.Background()

	for range 2 {
		_, _, _, err := wrapped.DoRequest(ctx, "prompt", nil)
		require.ErrorIs(t, err, errServer)
	}

	_, _, _, err := wrapped.DoRequest(ctx, "prompt", nil)
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, mock.calls(), "open circuit must not reach the provider")

	time.Sleep(60 * time.Millisecond)
	mock.mu.Lock()
	mock.Error = nil
	mock.mu.Unlock()

	resp, _, _, err := wrapped.DoRequest(ctx, "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, "test response", resp)

	_, _, _, err = wrapped.DoRequest(ctx, "prompt", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, mock.calls())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(0, 0)
	cb := NewCircuitBreaker(1, time.Minute)
	cb.now = func() time.Time { return now }

	require.True(t, cb.allow())
	cb.record(errServer)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.allow())

	now = now.Add(2 * time.Minute)
	require.True(t, cb.allow())
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.allow(), "only one probe while half open")

	cb.record(errServer)
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.allow())
}

func TestCircuitBreaker_CancellationDoesNotTrip(t *testing.T) {
	mock := newMockCoreLLM()
	mock.Error = context.Canceled
	wrapped := CircuitBreakerMiddleware(1, time.Minute)(mock)

	for range 3 {
		_, _, _, err := wrapped.DoRequest(context.Background(), "prompt", nil)
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, 3, mock.calls())
}

func TestCircuitBreakerMiddleware_Metrics(t *testing.T) {
	collector := newRecordingCollector()
	mock := newMockCoreLLM()
	mock.Error = errServer
	wrapped := CircuitBreakerMiddlewareWithMetrics(1, time.Minute,
		CollectorBreakerMetrics{Collector: collector, Provider: "openai"})(mock)

	_, _, _, _ = wrapped.DoRequest(context.Background(), "prompt", nil)
	_, _, _, _ = wrapped.DoRequest(context.Background(), "prompt", nil)

	assert.Equal(t, 1.0, collector.counters["llm_circuit_breaker_failure_total"])
	assert.Equal(t, 1.0, collector.counters["llm_circuit_breaker_rejections_total"])
	assert.Equal(t, float64(StateOpen), collector.gauges["llm_circuit_breaker_state"])
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus string
		wantTokens float64
	}{
		{name: "success", wantStatus: "success", wantTokens: 30},
		{name: "error", err: errServer, wantStatus: "error"},
		{name: "circuit open", err: ErrCircuitOpen, wantStatus: "circuit_open"},
		{name: "timeout", err: context.DeadlineExceeded, wantStatus: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := newRecordingCollector()
			mock := newMockCoreLLM()
			mock.Error = tt.err
			wrapped := MetricsMiddleware(collector, "openai")(mock)

			_, _, _, _ = wrapped.DoRequest(context.Background(), "prompt", nil)

			require.Len(t, collector.histograms[MetricLLMLatency], 1)
			assert.Equal(t, 1.0, collector.counters[MetricLLMRequests])
			assert.Equal(t, tt.wantTokens, collector.counters[MetricLLMTokens])

			labels := collector.labels[MetricLLMRequests][0]
			assert.Equal(t, tt.wantStatus, labels["status"])
			assert.Equal(t, "openai", labels["provider"])
			assert.Equal(t, "test-model", labels["model"])
		})
	}
}

func TestMetricsMiddleware_NilCollector(t *testing.T) {
	mock := newMockCoreLLM()
	assert.Same(t, mock, MetricsMiddleware(nil, "openai")(mock))
}

func TestTracingMiddleware(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	mock := newMockCoreLLM()
	wrapped := TracingMiddlewareWithProvider(tp, "aw139-test")(mock)

	ctx := context.WithValue(context.Background(), testContextKey, "kept")
	_, _, _, err := wrapped.DoRequest(ctx, "prompt", map[string]any{"temperature": 0.0})
	require.NoError(t, err)
	assert.Equal(t, "kept", mock.LastContext.Value(testContextKey))

	mock.Error = errors.New("boom")
	_, _, _, err = wrapped.DoRequest(ctx, "prompt", nil)
	require.Error(t, err)

	spans := sr.Ended()
	require.Len(t, spans, 2)

	ok := spans[0]
	assert.Equal(t, "llm.request", ok.Name())
	attrs := attribute.NewSet(ok.Attributes()...)
	model, _ := attrs.Value("llm.model")
	assert.Equal(t, "test-model", model.AsString())
	in, _ := attrs.Value("llm.tokens.input")
	assert.Equal(t, int64(10), in.AsInt64())
	assert.Equal(t, codes.Unset, ok.Status().Code)

	failed := spans[1]
	assert.Equal(t, codes.Error, failed.Status().Code)
	assert.Equal(t, "boom", failed.Status().Description)
}

func TestMiddlewareChain_ConcurrentRequests(t *testing.T) {
	mock := newMockCoreLLM()
	client := NewClientFromCore(mock,
		MetricsMiddleware(newRecordingCollector(), "openai"),
		CircuitBreakerMiddleware(5, time.Second),
		RetryMiddleware(1, time.Millisecond, time.Millisecond),
		TimeoutMiddleware(time.Second),
	)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Complete(context.Background(), "prompt", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, mock.calls())
}
