package llm

import (
	"fmt"
	"net/url"
	"sync"
	"time"
)

// Parameter ranges shared by the providers.
const (
	MinTemperature = 0.0
	MaxTemperature = 2.0
	MinTopP        = 0.0
	MaxTopP        = 1.0
	MinPenalty     = -2.0
	MaxPenalty     = 2.0
	MinTimeout     = 1 * time.Second
	MaxTimeout     = 10 * time.Minute
)

// RequestOptions is the provider independent view of a request option map.
type RequestOptions struct {
	MaxTokens int
	Model     string
	// Temperature and TopP are nil when the provider default applies.
	Temperature *float64
	TopP        *float64
	System      string
	// Extra keeps options the standard fields do not cover.
	Extra map[string]any
}

// ParseRequestOptions reads the standard keys "max_tokens", "model",
// "system", "temperature" and "top_p" from opts. Invalid values fall back
// to the defaults.
func ParseRequestOptions(opts map[string]any, defaultModel string) RequestOptions {
	options := RequestOptions{
		MaxTokens: optionalInt(opts, "max_tokens", DefaultMaxTokens),
		Model:     optionalString(opts, "model", defaultModel),
		System:    optionalString(opts, "system", ""),
		Extra:     make(map[string]any),
	}

	if temp, ok := optionalFloat(opts, "temperature"); ok && temp >= MinTemperature && temp <= MaxTemperature {
		options.Temperature = &temp
	}
	if topP, ok := optionalFloat(opts, "top_p"); ok && topP >= MinTopP && topP <= MaxTopP {
		options.TopP = &topP
	}

	for k, v := range opts {
		switch k {
		case "max_tokens", "model", "system", "temperature", "top_p":
		default:
			options.Extra[k] = v
		}
	}
	return options
}

func optionalInt(opts map[string]any, key string, def int) int {
	switch v := opts[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case int64:
		if v > 0 {
			return int(v)
		}
	case float64:
		if v > 0 && v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

func optionalString(opts map[string]any, key, def string) string {
	if v, ok := opts[key].(string); ok && v != "" {
		return v
	}
	return def
}

func optionalFloat(opts map[string]any, key string) (float64, bool) {
	switch v := opts[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}

// ValidateBaseURL checks that baseURL is an absolute http or https URL.
// An empty string is valid and selects the provider default.
func ValidateBaseURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", nil
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https, got: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL must have a host")
	}
	return u.String(), nil
}

// ValidateTimeout clamps timeout to [MinTimeout, MaxTimeout].
func ValidateTimeout(timeout time.Duration) time.Duration {
	return min(max(timeout, MinTimeout), MaxTimeout)
}

func clampFloat(v, lo, hi float64) float64 { return min(max(v, lo), hi) }

// baseProvider holds the model shared by all providers.
type baseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the configured model.
func (b *baseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel switches the model for subsequent requests.
func (b *baseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// tokensOr returns actual when the provider reported it and an estimate
// of text otherwise.
func tokensOr(actual int, text string) int {
	if actual > 0 {
		return actual
	}
	return CharacterEstimator{}.EstimateTokens(text)
}
