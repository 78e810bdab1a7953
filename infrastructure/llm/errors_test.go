package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

func TestErrorClassifier_ClassifyHTTPError(t *testing.T) {
	ec := ErrorClassifier{Provider: "openai"}
	tests := []struct {
		status    int
		wantType  ErrorType
		wantMsg   string
		retryable bool
	}{
		{status: 401, wantType: ErrorTypeAuthentication, wantMsg: "openai authentication failed"},
		{status: 403, wantType: ErrorTypeAuthentication, wantMsg: "openai authentication failed"},
		{status: 429, wantType: ErrorTypeRateLimit, wantMsg: "openai rate limit exceeded", retryable: true},
		{status: 404, wantType: ErrorTypeNotFound, wantMsg: "raw"},
		{status: 408, wantType: ErrorTypeTimeout, wantMsg: "raw", retryable: true},
		{status: 504, wantType: ErrorTypeTimeout, wantMsg: "raw", retryable: true},
		{status: 500, wantType: ErrorTypeServerError, wantMsg: "raw", retryable: true},
		{status: 503, wantType: ErrorTypeServerError, wantMsg: "raw", retryable: true},
		{status: 422, wantType: ErrorTypeBadRequest, wantMsg: "raw"},
		{status: 0, wantType: ErrorTypeUnknown, wantMsg: "raw"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("HTTP %d", tt.status), func(t *testing.T) {
			cause := errors.New("cause")
			pe := ec.ClassifyHTTPError(tt.status, "raw", cause)
			assert.Equal(t, tt.wantType, pe.Type)
			assert.Equal(t, tt.wantMsg, pe.Message)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, tt.retryable, pe.IsRetryable())
			assert.ErrorIs(t, pe, cause)
		})
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	ec := ErrorClassifier{Provider: "anthropic"}

	pe := ec.ClassifyContextError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded))
	if assert.NotNil(t, pe) {
		assert.Equal(t, ErrorTypeTimeout, pe.Type)
	}

	pe = ec.ClassifyContextError(context.Canceled)
	if assert.NotNil(t, pe) {
		assert.Equal(t, ErrorTypeNetwork, pe.Type)
	}

	assert.Nil(t, ec.ClassifyContextError(errors.New("other")))
}

func TestProviderError_Error(t *testing.T) {
	pe := NewProviderError("google", ErrorTypeServerError, 503, "unavailable", errors.New("eof"))
	assert.Equal(t, "google error (HTTP 503) [server_error]: unavailable: eof", pe.Error())

	bare := NewProviderError("openai", ErrorTypeUnknown, 0, "", nil)
	assert.Equal(t, "openai error", bare.Error())
}

func TestProviderError_Sentinel(t *testing.T) {
	tests := map[ErrorType]error{
		ErrorTypeAuthentication: ports.ErrAuthenticationFailed,
		ErrorTypeRateLimit:      ports.ErrRateLimited,
		ErrorTypeServerError:    ports.ErrServiceUnavailable,
		ErrorTypeNetwork:        ports.ErrServiceUnavailable,
		ErrorTypeTimeout:        ports.ErrTimeout,
		ErrorTypeBadRequest:     ports.ErrInvalidResponse,
		ErrorTypeContentPolicy:  ports.ErrInvalidResponse,
		ErrorTypeUnknown:        ports.ErrInvalidResponse,
	}
	for errType, want := range tests {
		t.Run(errType.String(), func(t *testing.T) {
			assert.Equal(t, want, (&ProviderError{Type: errType}).Sentinel())
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "circuit open", err: ErrCircuitOpen, want: false},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "rate limit provider error", err: NewProviderError("openai", ErrorTypeRateLimit, 429, "", nil), want: true},
		{name: "bad request provider error", err: NewProviderError("openai", ErrorTypeBadRequest, 400, "", nil), want: false},
		{name: "wrapped provider error", err: fmt.Errorf("call: %w", errServer), want: true},
		{name: "retryable llm error", err: ports.NewLLMError("m", "complete", ports.ErrTimeout), want: true},
		{name: "permanent llm error", err: ports.NewLLMError("m", "complete", ports.ErrAuthenticationFailed), want: false},
		{name: "plain error", err: errors.New("connection reset"), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestErrorType_String(t *testing.T) {
	assert.Equal(t, "rate_limit", ErrorTypeRateLimit.String())
	assert.Equal(t, "unknown", ErrorType(99).String())
}
