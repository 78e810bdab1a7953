// Package testutils provides deterministic fakes of the infrastructure
// ports and maintenance fixtures shared by unit, application and server
// tests.
package testutils

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// MockLLMClient implements the LLMClient interface with deterministic
// responses selected by prompt substring.
// It records every call so tests can assert on prompts and options.
type MockLLMClient struct {
	mu          sync.Mutex
	model       string
	responses   []MockResponse
	fallback    MockResponse
	err         error
	calls       []MockCall
	failAfter   int
	failCounter int
}

// MockResponse defines a pre-configured response pattern for the mock client.
type MockResponse struct {
	// Pattern is matched case-insensitively against the prompt.
	// An empty pattern replaces the default response.
	Pattern string
	// Response is the text returned for matching prompts.
	Response string
	// TokensIn and TokensOut are reported by CompleteWithUsage.
	TokensIn  int
	TokensOut int
}

// MockCall is one recorded request.
type MockCall struct {
	Prompt  string
	Options map[string]any
}

// NewMockLLMClient creates a MockLLMClient whose default response is a
// complete fault isolation diagnosis.
func NewMockLLMClient(model string) *MockLLMClient {
	return &MockLLMClient{
		model: model,
		fallback: MockResponse{
			Response:  SampleDiagnosis,
			TokensIn:  400,
			TokensOut: 250,
		},
		failAfter: -1,
	}
}

// AddResponse registers a response. Responses are matched in the order
// they were added.
func (m *MockLLMClient) AddResponse(response MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if response.Pattern == "" {
		m.fallback = response
		return
	}
	m.responses = append(m.responses, response)
}

// SetError makes every subsequent call fail with err. A nil err clears it.
func (m *MockLLMClient) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// FailAfter makes calls fail with err once n calls have succeeded.
func (m *MockLLMClient) FailAfter(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	m.failCounter = 0
	m.err = err
}

// Complete implements ports.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	out, _, _, err := m.CompleteWithUsage(ctx, prompt, options)
	return out, err
}

// CompleteWithUsage implements ports.LLMClient.
func (m *MockLLMClient) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	if prompt == "" {
		return "", 0, 0, fmt.Errorf("prompt cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Prompt: prompt, Options: options})

	if m.err != nil {
		if m.failAfter < 0 || m.failCounter >= m.failAfter {
			return "", 0, 0, m.err
		}
		m.failCounter++
	}

	r := m.findMatchingResponse(prompt)
	return r.Response, r.TokensIn, r.TokensOut, nil
}

// EstimateTokens approximates four characters per token.
func (m *MockLLMClient) EstimateTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return max(1, len(text)/4), nil
}

// GetModel returns the mock model identifier.
func (m *MockLLMClient) GetModel() string { return m.model }

// Calls returns a copy of the recorded calls.
func (m *MockLLMClient) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of recorded calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *MockLLMClient) findMatchingResponse(prompt string) MockResponse {
	lower := strings.ToLower(prompt)
	for _, r := range m.responses {
		if strings.Contains(lower, strings.ToLower(r.Pattern)) {
			return r
		}
	}
	return m.fallback
}

// Verify interface compliance at compile time.
var _ ports.LLMClient = (*MockLLMClient)(nil)
