package vectorstore

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Default retry schedule: waits of 1s, 2s and 4s.
const (
	DefaultRetryBase = time.Second
	DefaultRetries   = 3
)

// RetryingRetriever retries transient retrieval failures with exponential
// backoff.
type RetryingRetriever struct {
	next       ports.Retriever
	maxRetries uint64
	base       time.Duration
}

var _ ports.Retriever = (*RetryingRetriever)(nil)

// NewRetryingRetriever wraps next. A non-positive base uses
// DefaultRetryBase.
func NewRetryingRetriever(next ports.Retriever, maxRetries uint64, base time.Duration) *RetryingRetriever {
	if base <= 0 {
		base = DefaultRetryBase
	}
	return &RetryingRetriever{next: next, maxRetries: maxRetries, base: base}
}

// Retrieve implements ports.Retriever.
func (r *RetryingRetriever) Retrieve(ctx context.Context, q ports.RetrievalQuery) (domain.RetrievalResult, error) {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))

	var result domain.RetrievalResult
	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		res, err := r.next.Retrieve(ctx, q)
		if err != nil {
			if ctx.Err() == nil && isTransient(err) {
				logger.FromContext(ctx).Warn("retrieval failed, retrying", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	return result, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *ports.RetrievalError
	if errors.As(err, &re) {
		return re.IsRetryable()
	}
	var le *ports.LLMError
	if errors.As(err, &le) {
		return le.IsRetryable()
	}
	return false
}
