// Package llm adapts the OpenAI, Anthropic and Google SDKs to the
// ports.LLMClient and ports.Embedder contracts used by the diagnosis
// pipeline.
//
// Every provider implements the small CoreLLM interface. Cross-cutting
// behavior such as retries, rate limiting, circuit breaking, timeouts,
// metrics and tracing is layered on top as Middleware:
//
//	client, err := llm.NewClient("openai", llm.ClientConfig{
//	    APIKey: os.Getenv("OPENAI_API_KEY"),
//	    Model:  "gpt-4-turbo",
//	    Middleware: []llm.Middleware{
//	        llm.TracingMiddleware("aw139-certainty"),
//	        llm.MetricsMiddleware(metrics, "openai"),
//	        llm.RetryMiddleware(2, time.Second, 8*time.Second),
//	        llm.RateLimitMiddleware(5, 10),
//	    },
//	})
//
// Middleware listed first is outermost.
package llm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// Generation defaults used by the diagnosis stage.
const (
	DefaultMaxTokens   = 2500
	DefaultTemperature = 0.0
)

// CoreLLM is the minimal contract every provider implements. Middleware
// wraps one CoreLLM in another.
type CoreLLM interface {
	// DoRequest sends prompt with opts and returns the response text with
	// input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model.
	GetModel() string

	// SetModel switches the model for subsequent requests.
	SetModel(model string)
}

// TokenEstimator approximates token counts before a request is made.
type TokenEstimator interface {
	EstimateTokens(text string) int
}

// ClientConfig configures a provider and its middleware chain.
type ClientConfig struct {
	// APIKey authenticates with the provider.
	APIKey string

	// Model is the provider model identifier.
	Model string

	// BaseURL overrides the provider endpoint. Empty uses the default.
	BaseURL string

	// Timeout bounds the underlying HTTP client. Zero leaves it unset.
	Timeout time.Duration

	// TokenEstimator overrides the character based default.
	TokenEstimator TokenEstimator

	// Middleware is applied in order, the first entry outermost.
	Middleware []Middleware
}

// Middleware wraps a CoreLLM with additional behavior.
type Middleware func(CoreLLM) CoreLLM

// Client implements ports.LLMClient on top of a CoreLLM chain.
type Client struct {
	core      CoreLLM
	estimator TokenEstimator
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds the provider registered as providerType and wraps it
// with config.Middleware.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, ErrInvalidModel
	}

	factory, ok := lookupProviderFactory(providerType)
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	return newClientFromCore(core, config), nil
}

// NewClientFromCore wraps an existing CoreLLM. It is used by tests and by
// callers that bring their own provider.
func NewClientFromCore(core CoreLLM, middleware ...Middleware) *Client {
	return newClientFromCore(core, ClientConfig{Middleware: middleware})
}

func newClientFromCore(core CoreLLM, config ClientConfig) *Client {
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}
	estimator := config.TokenEstimator
	if estimator == nil {
		estimator = CharacterEstimator{}
	}
	return &Client{core: core, estimator: estimator}
}

// Complete returns the response text for prompt.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage returns the response text and token usage for prompt.
// Provider failures are returned as *ports.LLMError.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	response, in, out, err := c.core.DoRequest(ctx, prompt, options)
	if err != nil {
		return "", in, out, toLLMError(c.core.GetModel(), "complete", err)
	}
	return response, in, out, nil
}

// EstimateTokens approximates the token count of text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.estimator.EstimateTokens(text), nil
}

// GetModel returns the model of the underlying provider.
func (c *Client) GetModel() string { return c.core.GetModel() }

// toLLMError maps err onto the ports sentinels so callers can decide on
// retries without knowing the provider.
func toLLMError(model, operation string, err error) error {
	var llmErr *ports.LLMError
	if errors.As(err, &llmErr) {
		return err
	}

	sentinel := ports.ErrInvalidResponse
	var pe *ProviderError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		sentinel = ports.ErrTimeout
	case errors.Is(err, ErrCircuitOpen):
		sentinel = ports.ErrServiceUnavailable
	case errors.As(err, &pe):
		sentinel = pe.Sentinel()
	}
	return ports.NewLLMError(model, operation, fmt.Errorf("%w: %w", sentinel, err))
}

// CharacterEstimator assumes roughly four characters per token.
type CharacterEstimator struct{}

// EstimateTokens implements TokenEstimator.
func (CharacterEstimator) EstimateTokens(text string) int { return (len(text) + 3) / 4 }

// ProviderFactory creates a CoreLLM from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider available to NewClient.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

// Providers lists the registered provider types in sorted order.
func Providers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	return slices.Sorted(maps.Keys(providerFactories))
}

func lookupProviderFactory(providerType string) (ProviderFactory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := providerFactories[providerType]
	return f, ok
}
