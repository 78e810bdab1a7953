package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/testutils"
)

// mockUnit implements ports.Unit for testing middleware functionality.
type mockUnit struct {
	name        string
	executeFunc func(ctx context.Context, state domain.State) (domain.State, error)
	validateErr error
}

func (m *mockUnit) Name() string { return m.name }

func (m *mockUnit) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	if m.executeFunc != nil {
		return m.executeFunc(ctx, state)
	}
	return state, nil
}

func (m *mockUnit) Validate() error { return m.validateErr }

// spendingUnit records tokens and calls like an LLM-backed unit.
func spendingUnit(tokens, calls int64) *mockUnit {
	return &mockUnit{
		name: "diagnose",
		executeFunc: func(_ context.Context, state domain.State) (domain.State, error) {
			return state.AddUsage(tokens, calls), nil
		},
	}
}

type postCheckCall struct {
	usage domain.Usage
	err   error
}

type mockBudgetObserver struct {
	mu        sync.Mutex
	preCheck  []domain.Usage
	postCheck []postCheckCall
}

type observerKey struct{}

func (m *mockBudgetObserver) PreCheck(ctx context.Context, usage domain.Usage, _ Budget) context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.preCheck = append(m.preCheck, usage)
	return context.WithValue(ctx, observerKey{}, "pre-checked")
}

func (m *mockBudgetObserver) PostCheck(ctx context.Context, usage domain.Usage, _ Budget, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Value(observerKey{}) != "pre-checked" {
		panic("PostCheck did not receive the PreCheck context")
	}
	m.postCheck = append(m.postCheck, postCheckCall{usage: usage, err: err})
}

func TestNewBudgetManager(t *testing.T) {
	next := &mockUnit{name: "diagnose"}
	manager := NewBudgetManager(Budget{MaxTokens: 1000}, next, nil)

	assert.Equal(t, "diagnose", manager.Name())
	assert.Same(t, next, manager.Unwrap())
	assert.Panics(t, func() { NewBudgetManager(Budget{}, nil, nil) })
}

func TestBudgetManager_Execute(t *testing.T) {
	tests := []struct {
		name      string
		budget    Budget
		initial   domain.Usage
		spend     domain.Usage
		wantLimit string
	}{
		{name: "within limits", budget: Budget{MaxTokens: 1000, MaxCalls: 2}, spend: domain.Usage{Tokens: 650, Calls: 1}},
		{name: "unlimited", budget: Budget{}, spend: domain.Usage{Tokens: 1_000_000, Calls: 50}},
		{name: "tokens exceeded by the unit", budget: Budget{MaxTokens: 500}, spend: domain.Usage{Tokens: 650, Calls: 1}, wantLimit: "tokens"},
		{name: "calls exceeded by the unit", budget: Budget{MaxCalls: 1}, spend: domain.Usage{Tokens: 10, Calls: 2}, wantLimit: "calls"},
		{name: "exhausted before running", budget: Budget{MaxCalls: 1}, initial: domain.Usage{Calls: 2}, wantLimit: "calls"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewBudgetManager(tt.budget, spendingUnit(tt.spend.Tokens, tt.spend.Calls), nil)
			state := domain.NewState().AddUsage(tt.initial.Tokens, tt.initial.Calls)

			out, err := manager.Execute(context.Background(), state)
			if tt.wantLimit == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.spend, out.Usage())
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrBudgetExceeded)
			var budgetErr *domain.BudgetExceededError
			require.ErrorAs(t, err, &budgetErr)
			assert.Equal(t, tt.wantLimit, budgetErr.LimitType)
			assert.Equal(t, "diagnose", budgetErr.Unit)
		})
	}
}

func TestBudgetManager_Observer(t *testing.T) {
	observer := &mockBudgetObserver{}
	manager := NewBudgetManager(Budget{MaxTokens: 500}, spendingUnit(650, 1), observer)

	_, err := manager.Execute(context.Background(), domain.NewState())
	require.Error(t, err)

	require.Len(t, observer.preCheck, 1)
	require.Len(t, observer.postCheck, 1)
	assert.Equal(t, domain.Usage{Tokens: 650, Calls: 1}, observer.postCheck[0].usage)
	assert.ErrorIs(t, observer.postCheck[0].err, domain.ErrBudgetExceeded)
}

func TestBudgetManager_UnitError(t *testing.T) {
	boom := errors.New("llm offline")
	observer := &mockBudgetObserver{}
	next := &mockUnit{name: "diagnose", executeFunc: func(_ context.Context, s domain.State) (domain.State, error) {
		return s, boom
	}}

	_, err := NewBudgetManager(Budget{MaxTokens: 100}, next, observer).Execute(context.Background(), domain.NewState())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, observer.postCheck[0].err, boom)
}

func TestBudgetManager_Concurrent(t *testing.T) {
	observer := &mockBudgetObserver{}
	manager := NewBudgetManager(Budget{MaxTokens: 1000, MaxCalls: 1}, spendingUnit(400, 1), observer)

	var g errgroup.Group
	for range 50 {
		g.Go(func() error {
			out, err := manager.Execute(context.Background(), domain.NewState())
			if err != nil {
				return err
			}
			if out.Usage().Tokens != 400 {
				return errors.New("usage leaked between requests")
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, observer.postCheck, 50)
}

func TestBudgetManager_Validate(t *testing.T) {
	tests := []struct {
		name    string
		budget  Budget
		next    *mockUnit
		wantErr string
	}{
		{name: "valid", budget: Budget{MaxTokens: 1000, MaxCalls: 10}, next: &mockUnit{name: "u"}},
		{name: "negative tokens", budget: Budget{MaxTokens: -1}, next: &mockUnit{name: "u"}, wantErr: "max_tokens cannot be negative"},
		{name: "negative calls", budget: Budget{MaxCalls: -5}, next: &mockUnit{name: "u"}, wantErr: "max_calls cannot be negative"},
		{name: "invalid unit", next: &mockUnit{name: "u", validateErr: errors.New("unit broken")}, wantErr: "unit broken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBudgetManager(tt.budget, tt.next, nil).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestOTelBudgetObserver(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	metrics := &testutils.RecordingMetrics{}
	observer := NewOTelBudgetObserver(metrics, "diagnose").WithTracerProvider(tp)
	budget := Budget{MaxTokens: 1000, MaxCalls: 2}

	t.Run("usage tracked", func(t *testing.T) {
		manager := NewBudgetManager(budget, spendingUnit(100, 1), observer)
		_, err := manager.Execute(context.Background(), domain.NewState().AddUsage(820, 0))
		require.NoError(t, err)

		spans := sr.Ended()
		require.NotEmpty(t, spans)
		span := spans[len(spans)-1]
		assert.Equal(t, "BudgetManager.Execute", span.Name())
		var events []string
		for _, e := range span.Events() {
			events = append(events, e.Name)
		}
		assert.Contains(t, events, "budget.threshold.warning")

		remaining := metrics.Samples("budget_remaining_calls")
		require.Len(t, remaining, 1)
		assert.Equal(t, 1.0, remaining[0].Value)
		assert.Equal(t, "tokens_and_calls", remaining[0].Labels["budget_limit"])
	})

	t.Run("budget exceeded", func(t *testing.T) {
		manager := NewBudgetManager(budget, spendingUnit(1200, 1), observer)
		_, err := manager.Execute(context.Background(), domain.NewState())
		require.Error(t, err)

		exceeded := metrics.Samples(MetricBudgetExceeded)
		require.Len(t, exceeded, 1)
		assert.Equal(t, map[string]string{"limit_type": "tokens", "unit": "diagnose"}, exceeded[0].Labels)

		spans := sr.Ended()
		span := spans[len(spans)-1]
		assert.Equal(t, "budget limit exceeded", span.Status().Description)
	})
}

func TestBudgetLimitLabel(t *testing.T) {
	assert.Equal(t, "tokens_and_calls", budgetLimitLabel(Budget{MaxTokens: 1, MaxCalls: 1}))
	assert.Equal(t, "tokens_only", budgetLimitLabel(Budget{MaxTokens: 1}))
	assert.Equal(t, "calls_only", budgetLimitLabel(Budget{MaxCalls: 1}))
	assert.Equal(t, "unlimited", budgetLimitLabel(Budget{}))
	assert.True(t, Budget{}.Unlimited())
}
