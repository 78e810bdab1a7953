package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

func TestOpenAIProvider_DoRequest(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4-turbo",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Check AWDP-24 pin 3."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
		}`))
	}))
	defer server.Close()

	client, err := NewClient("openai", ClientConfig{APIKey: "sk-test", Model: "gpt-4-turbo", BaseURL: server.URL + "/v1"})
	require.NoError(t, err)

	resp, in, out, err := client.CompleteWithUsage(context.Background(), "Generator 1 offline", map[string]any{
		"system":      "You are an AW139 maintenance assistant.",
		"temperature": 0.0,
		"max_tokens":  DefaultMaxTokens,
	})
	require.NoError(t, err)
	assert.Equal(t, "Check AWDP-24 pin 3.", resp)
	assert.Equal(t, 12, in)
	assert.Equal(t, 5, out)

	assert.Equal(t, "gpt-4-turbo", got["model"])
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
	messages, ok := got["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])
	assert.Equal(t, "Generator 1 offline", messages[1].(map[string]any)["content"])
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{name: "unauthorized", status: 401, body: `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`, sentinel: ports.ErrAuthenticationFailed},
		{name: "rate limited", status: 429, body: `{"error":{"message":"slow down","type":"rate_limit_error"}}`, sentinel: ports.ErrRateLimited},
		{name: "server error", status: 500, body: `{"error":{"message":"oops","type":"server_error"}}`, sentinel: ports.ErrServiceUnavailable},
		{name: "no choices", status: 200, body: `{"id":"x","choices":[],"usage":{}}`, sentinel: ports.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client, err := NewClient("openai", ClientConfig{APIKey: "sk-test", Model: "gpt-4-turbo", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "prompt", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestAnthropicProvider_DoRequest(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-3-5-sonnet-20241022",
			"content": [{"type": "text", "text": "Inspect the GCU."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 7, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	client, err := NewClient("anthropic", ClientConfig{APIKey: "key", Model: AnthropicDefaultModel, BaseURL: server.URL + "/"})
	require.NoError(t, err)

	resp, in, out, err := client.CompleteWithUsage(context.Background(), "prompt", map[string]any{
		"temperature": 1.8,
		"system":      "be precise",
	})
	require.NoError(t, err)
	assert.Equal(t, "Inspect the GCU.", resp)
	assert.Equal(t, 7, in)
	assert.Equal(t, 4, out)
	assert.EqualValues(t, 1, got["temperature"], "temperature is clamped to the Anthropic range")
	assert.EqualValues(t, DefaultMaxTokens, got["max_tokens"])
}

func TestAnthropicProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{name: "unauthorized", status: 401, sentinel: ports.ErrAuthenticationFailed},
		{name: "bad request", status: 400, sentinel: ports.ErrInvalidResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"nope"}}`))
			}))
			defer server.Close()

			client, err := NewClient("anthropic", ClientConfig{APIKey: "key", Model: AnthropicDefaultModel, BaseURL: server.URL + "/"})
			require.NoError(t, err)

			_, err = client.Complete(context.Background(), "prompt", nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			var le *ports.LLMError
			require.ErrorAs(t, err, &le)
			assert.False(t, le.IsRetryable())
		})
	}
}

func TestGenerationConfig(t *testing.T) {
	cfg := generationConfig(ParseRequestOptions(map[string]any{
		"system":      "sys",
		"temperature": 0.2,
		"top_p":       0.8,
		"max_tokens":  1024,
		"top_k":       100,
	}, GoogleDefaultModel))

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "sys", cfg.SystemInstruction.Parts[0].Text)
	assert.InDelta(t, 0.2, float64(*cfg.Temperature), 1e-6)
	assert.InDelta(t, 0.8, float64(*cfg.TopP), 1e-6)
	assert.EqualValues(t, 1024, cfg.MaxOutputTokens)
	assert.InDelta(t, 40, float64(*cfg.TopK), 1e-6)

	empty := generationConfig(ParseRequestOptions(map[string]any{"max_tokens": -1}, GoogleDefaultModel))
	assert.Nil(t, empty.SystemInstruction)
	assert.Nil(t, empty.Temperature)
	assert.EqualValues(t, DefaultMaxTokens, empty.MaxOutputTokens)
}

func TestGoogleProvider_Classify(t *testing.T) {
	p := &googleProvider{classifier: ErrorClassifier{Provider: "google"}}

	tests := []struct {
		name     string
		err      error
		wantType ErrorType
	}{
		{name: "quota", err: &googleapi.Error{Code: 429, Message: "quota exceeded"}, wantType: ErrorTypeRateLimit},
		{name: "safety message", err: &googleapi.Error{Code: 400, Message: "Response blocked due to SAFETY"}, wantType: ErrorTypeContentPolicy},
		{name: "safety reason", err: &googleapi.Error{Code: 400, Errors: []googleapi.ErrorItem{{Reason: "SAFETY"}}}, wantType: ErrorTypeContentPolicy},
		{name: "server", err: &googleapi.Error{Code: 503}, wantType: ErrorTypeServerError},
		{name: "deadline", err: context.DeadlineExceeded, wantType: ErrorTypeTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var pe *ProviderError
			require.ErrorAs(t, p.classify(tt.err), &pe)
			assert.Equal(t, tt.wantType, pe.Type)
		})
	}
}
