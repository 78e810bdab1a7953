package llm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequestOptions(t *testing.T) {
	tests := []struct {
		name      string
		opts      map[string]any
		wantMax   int
		wantModel string
		wantTemp  *float64
		wantTopP  *float64
		wantExtra map[string]any
	}{
		{
			name:      "defaults",
			wantMax:   DefaultMaxTokens,
			wantModel: "gpt-4-turbo",
			wantExtra: map[string]any{},
		},
		{
			name:      "explicit values",
			opts:      map[string]any{"max_tokens": 100, "model": "gpt-4o", "temperature": 0.0, "top_p": 0.9},
			wantMax:   100,
			wantModel: "gpt-4o",
			wantTemp:  ptr(0.0),
			wantTopP:  ptr(0.9),
			wantExtra: map[string]any{},
		},
		{
			name:      "json numbers",
			opts:      map[string]any{"max_tokens": float64(512), "temperature": float32(1.5)},
			wantMax:   512,
			wantModel: "gpt-4-turbo",
			wantTemp:  ptr(1.5),
			wantExtra: map[string]any{},
		},
		{
			name:      "invalid values fall back",
			opts:      map[string]any{"max_tokens": -5, "model": "", "temperature": 3.0, "top_p": 1.5},
			wantMax:   DefaultMaxTokens,
			wantModel: "gpt-4-turbo",
			wantExtra: map[string]any{},
		},
		{
			name:      "fractional max tokens ignored",
			opts:      map[string]any{"max_tokens": 10.5},
			wantMax:   DefaultMaxTokens,
			wantModel: "gpt-4-turbo",
			wantExtra: map[string]any{},
		},
		{
			name:      "extra options kept",
			opts:      map[string]any{"presence_penalty": 0.5, "top_k": 20},
			wantMax:   DefaultMaxTokens,
			wantModel: "gpt-4-turbo",
			wantExtra: map[string]any{"presence_penalty": 0.5, "top_k": 20},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRequestOptions(tt.opts, "gpt-4-turbo")
			assert.Equal(t, tt.wantMax, got.MaxTokens)
			assert.Equal(t, tt.wantModel, got.Model)
			assert.Equal(t, tt.wantTemp, got.Temperature)
			assert.Equal(t, tt.wantTopP, got.TopP)
			assert.Equal(t, tt.wantExtra, got.Extra)
		})
	}
}

func TestValidateBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr string
	}{
		{in: "", want: ""},
		{in: "https://api.example.com/v1", want: "https://api.example.com/v1"},
		{in: "http://127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{in: "ftp://example.com", wantErr: "scheme"},
		{in: "https://", wantErr: "host"},
		{in: "://bad", wantErr: "invalid URL format"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ValidateBaseURL(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidateTimeout(t *testing.T) {
	assert.Equal(t, MinTimeout, ValidateTimeout(10*time.Millisecond))
	assert.Equal(t, 30*time.Second, ValidateTimeout(30*time.Second))
	assert.Equal(t, MaxTimeout, ValidateTimeout(time.Hour))
}

func TestTokensOr(t *testing.T) {
	assert.Equal(t, 42, tokensOr(42, "ignored"))
	assert.Equal(t, 2, tokensOr(0, "eight ch"))
}

func TestBaseProvider_Model(t *testing.T) {
	var b baseProvider
	b.SetModel("gpt-4o")
	assert.Equal(t, "gpt-4o", b.GetModel())
}

func ptr[T any](v T) *T { return &v }
