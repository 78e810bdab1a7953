package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeEnv(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{Providers: DefaultProviders()})
	assert.ErrorContains(t, err, "default provider cannot be empty")

	_, err = NewRegistry(RegistryConfig{Providers: DefaultProviders(), DefaultProvider: "cohere"})
	assert.ErrorContains(t, err, `default provider "cohere" not found`)
}

func TestRegistry_ParseSpec(t *testing.T) {
	r, err := NewRegistry(RegistryConfig{Providers: DefaultProviders(), DefaultProvider: "openai"})
	require.NoError(t, err)

	tests := []struct {
		spec         string
		wantProvider string
		wantModel    string
	}{
		{spec: "openai", wantProvider: "openai", wantModel: OpenAIDefaultModel},
		{spec: "openai/gpt-4o", wantProvider: "openai", wantModel: "gpt-4o"},
		{spec: " anthropic ", wantProvider: "anthropic", wantModel: AnthropicDefaultModel},
		{spec: "google/gemini-1.5-pro", wantProvider: "google", wantModel: "gemini-1.5-pro"},
		{spec: "openai/ft:gpt-4o/custom", wantProvider: "openai", wantModel: "ft:gpt-4o/custom"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			provider, model := r.ParseSpec(tt.spec)
			assert.Equal(t, tt.wantProvider, provider)
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestRegistry_GetClient(t *testing.T) {
	r, err := NewRegistry(RegistryConfig{
		Providers:         DefaultProviders(),
		DefaultProvider:   "openai",
		DefaultTimeout:    30 * time.Second,
		DefaultMiddleware: []Middleware{RetryMiddleware(1, time.Millisecond, time.Millisecond)},
		LookupEnv:         fakeEnv(map[string]string{"OPENAI_API_KEY": "sk-test"}),
	})
	require.NoError(t, err)

	t.Run("default client", func(t *testing.T) {
		c, err := r.GetDefaultClient()
		require.NoError(t, err)
		assert.Equal(t, OpenAIDefaultModel, c.GetModel())
	})

	t.Run("clients are cached per spec", func(t *testing.T) {
		a, err := r.GetClient("openai/gpt-4o")
		require.NoError(t, err)
		b, err := r.GetClient("openai/gpt-4o")
		require.NoError(t, err)
		assert.Same(t, a, b)

		d, err := r.GetClient("openai")
		require.NoError(t, err)
		assert.NotSame(t, a, d)
	})

	t.Run("missing api key", func(t *testing.T) {
		_, err := r.GetClient("anthropic")
		assert.ErrorContains(t, err, `ANTHROPIC_API_KEY environment variable not set for provider "anthropic"`)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := r.GetClient("cohere/command")
		assert.ErrorContains(t, err, `unknown provider "cohere"`)
	})

	t.Run("empty spec", func(t *testing.T) {
		_, err := r.GetClient("  ")
		assert.ErrorContains(t, err, "cannot be empty")
	})
}
