package testutils

import (
	"context"
	"strings"
	"sync"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// FakeRetriever answers retrieval queries from canned results keyed by a
// query substring. It is safe for concurrent use.
type FakeRetriever struct {
	mu       sync.Mutex
	results  []cannedResult
	fallback domain.RetrievalResult
	errs     []cannedError
	queries  []ports.RetrievalQuery
}

type cannedResult struct {
	contains string
	result   domain.RetrievalResult
}

type cannedError struct {
	contains string
	err      error
}

var _ ports.Retriever = (*FakeRetriever)(nil)

// NewFakeRetriever returns a retriever that answers every query with
// fallback.
func NewFakeRetriever(fallback domain.RetrievalResult) *FakeRetriever {
	return &FakeRetriever{fallback: fallback}
}

// On answers queries containing substr with result.
func (f *FakeRetriever) On(substr string, result domain.RetrievalResult) *FakeRetriever {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, cannedResult{contains: substr, result: result})
	return f
}

// FailOn fails queries containing substr with err. An empty substr fails
// every query.
func (f *FakeRetriever) FailOn(substr string, err error) *FakeRetriever {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs = append(f.errs, cannedError{contains: substr, err: err})
	return f
}

// Retrieve implements ports.Retriever.
func (f *FakeRetriever) Retrieve(ctx context.Context, q ports.RetrievalQuery) (domain.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.RetrievalResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)

	for _, e := range f.errs {
		if strings.Contains(q.Text, e.contains) {
			return domain.RetrievalResult{}, e.err
		}
	}
	res := f.fallback
	for _, c := range f.results {
		if strings.Contains(q.Text, c.contains) {
			res = c.result
			break
		}
	}
	res.Query = q.Text
	if q.TopK > 0 && len(res.Documents) > q.TopK {
		res.Documents = res.Documents[:q.TopK]
	}
	if q.SkipGeneration {
		res.Answer = ""
	}
	return res, nil
}

// Queries returns a copy of the recorded queries in call order.
func (f *FakeRetriever) Queries() []ports.RetrievalQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.RetrievalQuery(nil), f.queries...)
}
