package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// ProviderConfig describes how to build clients for one provider.
type ProviderConfig struct {
	// Type is the registered provider factory name.
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a spec names only the provider.
	DefaultModel string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Middleware is appended after the registry defaults.
	Middleware []Middleware
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers         map[string]ProviderConfig
	DefaultProvider   string
	DefaultTimeout    time.Duration
	DefaultMiddleware []Middleware
	// LookupEnv resolves API keys. Nil uses os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// DefaultProviders returns the built in provider table.
func DefaultProviders() map[string]ProviderConfig {
	return map[string]ProviderConfig{
		"openai":    {Type: "openai", EnvVar: "OPENAI_API_KEY", DefaultModel: OpenAIDefaultModel},
		"anthropic": {Type: "anthropic", EnvVar: "ANTHROPIC_API_KEY", DefaultModel: AnthropicDefaultModel},
		"google":    {Type: "google", EnvVar: "GOOGLE_API_KEY", DefaultModel: GoogleDefaultModel},
	}
}

// Registry creates LLM clients from "provider" or "provider/model" specs
// and caches one client per resolved spec.
type Registry struct {
	mu                sync.Mutex
	providers         map[string]ProviderConfig
	clients           map[string]*Client
	defaultProvider   string
	defaultTimeout    time.Duration
	defaultMiddleware []Middleware
	lookupEnv         func(string) (string, bool)
}

// NewRegistry validates config and returns an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := config.Providers[config.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}
	lookup := config.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &Registry{
		providers:         config.Providers,
		clients:           make(map[string]*Client),
		defaultProvider:   config.DefaultProvider,
		defaultTimeout:    config.DefaultTimeout,
		defaultMiddleware: config.DefaultMiddleware,
		lookupEnv:         lookup,
	}, nil
}

// GetDefaultClient returns the client for the default provider and model.
func (r *Registry) GetDefaultClient() (*Client, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for spec, creating it on first use.
func (r *Registry) GetClient(spec string) (*Client, error) {
	if strings.TrimSpace(spec) == "" {
		return nil, fmt.Errorf("provider specification cannot be empty")
	}
	provider, model := r.ParseSpec(spec)
	pc, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	key := provider + "/" + model

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[key]; ok {
		return c, nil
	}

	apiKey, _ := r.lookupEnv(pc.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", pc.EnvVar, provider)
	}

	middleware := append(append([]Middleware{}, r.defaultMiddleware...), pc.Middleware...)
	c, err := NewClient(pc.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.defaultTimeout,
		Middleware: middleware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client %q: %w", key, err)
	}
	r.clients[key] = c
	return c, nil
}

// ParseSpec splits "provider/model". A bare provider resolves to its
// default model.
func (r *Registry) ParseSpec(spec string) (provider, model string) {
	provider, model, _ = strings.Cut(strings.TrimSpace(spec), "/")
	if model == "" {
		model = r.providers[provider].DefaultModel
	}
	return provider, model
}
