package llm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerState is the state of a CircuitBreaker.
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitBreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreakerMetrics observes breaker transitions and outcomes.
type CircuitBreakerMetrics interface {
	RecordState(state CircuitBreakerState)
	RecordTrip()
	RecordSuccess()
	RecordFailure()
}

// CircuitBreaker opens after maxFailures consecutive failures and lets a
// single probe through once cooldown has elapsed.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         CircuitBreakerState
	failures      int
	maxFailures   int
	cooldown      time.Duration
	openedAt      time.Time
	probeInFlight bool
	now           func() time.Time
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(maxFailures int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures: max(1, maxFailures),
		cooldown:    cooldown,
		now:         time.Now,
	}
}

// allow reports whether a request may proceed.
func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = StateHalfOpen
		cb.probeInFlight = true
		return true
	case StateHalfOpen:
		if cb.probeInFlight {
			return false
		}
		cb.probeInFlight = true
		return true
	default:
		return true
	}
}

// record updates the breaker with the outcome of an allowed request.
func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probeInFlight = false
	if err == nil {
		cb.failures = 0
		cb.state = StateClosed
		return
	}
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
	}
}

// release ends an allowed request without judging provider health.
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.probeInFlight {
		cb.probeInFlight = false
		cb.state = StateOpen
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

type circuitBreakerLLM struct {
	next    CoreLLM
	cb      *CircuitBreaker
	metrics CircuitBreakerMetrics
}

// CircuitBreakerMiddleware guards requests with a breaker shared by every
// client built from the returned Middleware.
func CircuitBreakerMiddleware(maxFailures int, cooldown time.Duration) Middleware {
	return CircuitBreakerMiddlewareWithMetrics(maxFailures, cooldown, nil)
}

// CircuitBreakerMiddlewareWithMetrics is CircuitBreakerMiddleware with an
// observer. metrics may be nil.
func CircuitBreakerMiddlewareWithMetrics(maxFailures int, cooldown time.Duration, metrics CircuitBreakerMetrics) Middleware {
	cb := NewCircuitBreaker(maxFailures, cooldown)
	return func(next CoreLLM) CoreLLM {
		return &circuitBreakerLLM{next: next, cb: cb, metrics: metrics}
	}
}

func (c *circuitBreakerLLM) DoRequest(ctx context.Context, prompt string, opts map[string]any) (string, int, int, error) {
	if !c.cb.allow() {
		if c.metrics != nil {
			c.metrics.RecordTrip()
			c.metrics.RecordState(c.cb.State())
		}
		return "", 0, 0, ErrCircuitOpen
	}

	response, in, out, err := c.next.DoRequest(ctx, prompt, opts)
	// Caller cancellation says nothing about provider health.
	if errors.Is(err, context.Canceled) {
		c.cb.release()
	} else {
		c.cb.record(err)
	}

	if c.metrics != nil {
		if err == nil {
			c.metrics.RecordSuccess()
		} else {
			c.metrics.RecordFailure()
		}
		c.metrics.RecordState(c.cb.State())
	}
	return response, in, out, err
}

func (c *circuitBreakerLLM) GetModel() string  { return c.next.GetModel() }
func (c *circuitBreakerLLM) SetModel(m string) { c.next.SetModel(m) }

// CollectorBreakerMetrics reports breaker activity to a MetricsCollector
// under the llm_circuit_breaker_* names.
type CollectorBreakerMetrics struct {
	Collector ports.MetricsCollector
	Provider  string
}

func (m CollectorBreakerMetrics) labels() map[string]string {
	return map[string]string{"provider": m.Provider}
}

func (m CollectorBreakerMetrics) RecordState(state CircuitBreakerState) {
	m.Collector.RecordGauge("llm_circuit_breaker_state", float64(state), m.labels())
}

func (m CollectorBreakerMetrics) RecordTrip() {
	m.Collector.RecordCounter("llm_circuit_breaker_rejections_total", 1, m.labels())
}

func (m CollectorBreakerMetrics) RecordSuccess() {
	m.Collector.RecordCounter("llm_circuit_breaker_success_total", 1, m.labels())
}

func (m CollectorBreakerMetrics) RecordFailure() {
	m.Collector.RecordCounter("llm_circuit_breaker_failure_total", 1, m.labels())
}
