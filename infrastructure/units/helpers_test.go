package units

import (
	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/testutils"
)

// requestState returns a State carrying req and an execution context.
func requestState(req domain.DiagnosisRequest) domain.State {
	return domain.With(domain.NewState(), domain.KeyRequest, req).
		WithExecutionContext(domain.ExecutionContext{PipelineID: "test-pipeline", RequestID: "req-1"})
}

// retrievedState returns a State after the retrieval stage for the
// sample request.
func retrievedState(wiring bool) domain.State {
	req := testutils.SampleRequest()
	state := requestState(req)
	state = domain.With(state, domain.KeyRetrieval, testutils.SampleRetrieval(req.Query, 5, wiring))
	return state
}
