package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	var got struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"object": "list",
			"data": [{"object": "embedding", "index": 0, "embedding": [0.25, -0.5, 1]}],
			"model": "text-embedding-3-small",
			"usage": {"prompt_tokens": 4, "total_tokens": 4}
		}`))
	}))
	defer server.Close()

	e, err := NewOpenAIEmbedder(ClientConfig{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)
	assert.Equal(t, DefaultEmbeddingModel, e.Model())

	vec, err := e.Embed(context.Background(), "hydraulic\npressure low")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, []string{"hydraulic pressure low"}, got.Input)
	assert.Equal(t, DefaultEmbeddingModel, got.Model)
}

func TestOpenAIEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		sentinel  error
		retryable bool
	}{
		{name: "empty data", status: 200, body: `{"object":"list","data":[]}`, sentinel: ErrEmptyEmbedding},
		{name: "server error", status: 502, body: `{"error":{"message":"bad gateway"}}`, sentinel: ports.ErrServiceUnavailable, retryable: true},
		{name: "unauthorized", status: 401, body: `{"error":{"message":"bad key"}}`, sentinel: ports.ErrAuthenticationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			e, err := NewOpenAIEmbedder(ClientConfig{APIKey: "sk-test", BaseURL: server.URL})
			require.NoError(t, err)

			_, err = e.Embed(context.Background(), "query")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			var le *ports.LLMError
			require.ErrorAs(t, err, &le)
			assert.Equal(t, "embed", le.Operation)
			assert.Equal(t, tt.retryable, le.IsRetryable())
		})
	}
}

func TestNewOpenAIEmbedder_RequiresKey(t *testing.T) {
	_, err := NewOpenAIEmbedder(ClientConfig{})
	assert.ErrorIs(t, err, ErrEmptyAPIKey)
}
