package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Budget defines the per-request LLM limits enforced around a unit.
type Budget struct {
	// MaxTokens limits the total number of tokens a request may consume.
	// Zero means unlimited token usage.
	MaxTokens int64 `yaml:"max_tokens" json:"max_tokens" validate:"gte=0"`

	// MaxCalls limits the number of LLM calls a request may make.
	// Zero means unlimited calls.
	MaxCalls int64 `yaml:"max_calls" json:"max_calls" validate:"gte=0"`
}

// Unlimited reports whether neither limit is set.
func (b Budget) Unlimited() bool { return b.MaxTokens == 0 && b.MaxCalls == 0 }

// BudgetObserver provides observability hooks for budget operations.
type BudgetObserver interface {
	// PreCheck is called before the wrapped unit runs. The returned
	// context is passed to the unit and to PostCheck.
	PreCheck(ctx context.Context, usage domain.Usage, budget Budget) context.Context

	// PostCheck is called after the wrapped unit ran, with the final usage
	// and the unit or budget error.
	PostCheck(ctx context.Context, usage domain.Usage, budget Budget, elapsed time.Duration, err error)
}

// BudgetManager enforces token and call limits around a unit. Usage is
// read from the request State, so one manager serves concurrent requests
// without shared mutable state.
type BudgetManager struct {
	budget   Budget
	next     ports.Unit
	observer BudgetObserver
}

var _ ports.Unit = (*BudgetManager)(nil)

// NewBudgetManager wraps next with budget enforcement. observer may be nil.
func NewBudgetManager(budget Budget, next ports.Unit, observer BudgetObserver) *BudgetManager {
	if next == nil {
		panic("budget manager: next unit is required")
	}
	return &BudgetManager{
		budget:   budget,
		next:     next,
		observer: observer,
	}
}

// Name returns the wrapped unit's name so pipeline identifiers do not
// change when a budget is configured.
func (bm *BudgetManager) Name() string { return bm.next.Name() }

// Unwrap returns the wrapped unit.
func (bm *BudgetManager) Unwrap() ports.Unit { return bm.next }

// Execute checks the budget, runs the wrapped unit and checks again so
// usage recorded by the unit itself is caught.
func (bm *BudgetManager) Execute(ctx context.Context, state domain.State) (domain.State, error) {
	usage := state.Usage()
	if err := bm.checkBudgetLimits(usage); err != nil {
		return state, err
	}

	if bm.observer != nil {
		ctx = bm.observer.PreCheck(ctx, usage, bm.budget)
	}

	start := time.Now()
	newState, err := bm.next.Execute(ctx, state)
	elapsed := time.Since(start)

	if err == nil {
		err = bm.checkBudgetLimits(newState.Usage())
	}
	if bm.observer != nil {
		bm.observer.PostCheck(ctx, newState.Usage(), bm.budget, elapsed, err)
	}
	return newState, err
}

// Validate checks the limits and the wrapped unit.
func (bm *BudgetManager) Validate() error {
	if bm.budget.MaxTokens < 0 {
		return fmt.Errorf("budget manager: max_tokens cannot be negative, got %d", bm.budget.MaxTokens)
	}
	if bm.budget.MaxCalls < 0 {
		return fmt.Errorf("budget manager: max_calls cannot be negative, got %d", bm.budget.MaxCalls)
	}
	return bm.next.Validate()
}

func (bm *BudgetManager) checkBudgetLimits(usage domain.Usage) error {
	if bm.budget.MaxTokens > 0 && usage.Tokens > bm.budget.MaxTokens {
		return domain.NewBudgetExceededError("tokens", int(bm.budget.MaxTokens), int(usage.Tokens), bm.next.Name())
	}
	if bm.budget.MaxCalls > 0 && usage.Calls > bm.budget.MaxCalls {
		return domain.NewBudgetExceededError("calls", int(bm.budget.MaxCalls), int(usage.Calls), bm.next.Name())
	}
	return nil
}
