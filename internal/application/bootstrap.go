package application

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hangarlabs/aw139-certainty/infrastructure/llm"
	"github.com/hangarlabs/aw139-certainty/infrastructure/middleware"
	"github.com/hangarlabs/aw139-certainty/infrastructure/vectorstore"
	"github.com/hangarlabs/aw139-certainty/internal/certainty"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

const serviceName = "aw139-certainty"

// App holds the assembled service and the infrastructure it owns.
type App struct {
	Config   *ServiceConfig
	Service  *DiagnosisService
	Metrics  *middleware.PrometheusMetrics
	Store    *vectorstore.MemoryStore
	Pipeline *LoadedPipeline

	closers []func()
}

// Close releases caches and background goroutines. It is safe to call more
// than once.
func (a *App) Close() {
	for _, c := range a.closers {
		c()
	}
	a.closers = nil
}

// BootstrapOption customizes Bootstrap, mostly for tests.
type BootstrapOption func(*bootstrapper)

type bootstrapper struct {
	lookupEnv func(string) (string, bool)
	embedder  ports.Embedder
	llmClient ports.LLMClient
	documents []vectorstore.Document
}

// WithEmbedder replaces the OpenAI embedder.
func WithEmbedder(e ports.Embedder) BootstrapOption {
	return func(b *bootstrapper) { b.embedder = e }
}

// WithLLMClient replaces the registry default client. Per unit model specs
// are still resolved through the registry.
func WithLLMClient(c ports.LLMClient) BootstrapOption {
	return func(b *bootstrapper) { b.llmClient = c }
}

// WithDocuments replaces the index file with docs.
func WithDocuments(docs []vectorstore.Document) BootstrapOption {
	return func(b *bootstrapper) { b.documents = docs }
}

// WithLookupEnv replaces os.LookupEnv for API key resolution.
func WithLookupEnv(lookup func(string) (string, bool)) BootstrapOption {
	return func(b *bootstrapper) { b.lookupEnv = lookup }
}

// Bootstrap builds the metrics registry, the LLM clients, the retrieval
// stack, the unit registry and the diagnosis pipeline from cfg.
func Bootstrap(ctx context.Context, cfg *ServiceConfig, opts ...BootstrapOption) (*App, error) {
	if cfg == nil {
		return nil, errors.New("service config cannot be nil")
	}
	b := &bootstrapper{}
	for _, opt := range opts {
		opt(b)
	}
	log := logger.FromContext(ctx)
	app := &App{Config: cfg, Metrics: middleware.NewPrometheusMetrics(nil)}

	scorer, err := certainty.NewScorer(cfg.Certainty)
	if err != nil {
		return nil, ports.NewConfigError("certainty", err)
	}

	var registry *llm.Registry
	if cfg.LLM.Enabled {
		registry, err = b.llmRegistry(cfg.LLM, app.Metrics)
		if err != nil {
			return nil, err
		}
		if b.llmClient == nil {
			client, err := registry.GetClient(cfg.LLM.Default)
			if err != nil {
				return nil, ports.NewConfigError("llm.default", err)
			}
			b.llmClient = client
		}
	}

	retriever, err := b.retrievalStack(cfg, app, b.llmClient)
	if err != nil {
		app.Close()
		return nil, err
	}

	unitRegistry := NewDefaultUnitRegistry(Dependencies{
		LLMClient: b.llmClient,
		Retriever: retriever,
		Scorer:    scorer,
		Metrics:   app.Metrics,
	})

	loaderOpts := []LoaderOption{
		WithLoaderMetrics(app.Metrics),
		WithDefaultBudget(cfg.Pipeline.Budget),
	}
	if registry != nil {
		loaderOpts = append(loaderOpts, WithModelResolver(func(spec string) (ports.LLMClient, error) {
			return registry.GetClient(spec)
		}))
	}
	if cfg.Pipeline.DiagnosisMode != "" {
		loaderOpts = append(loaderOpts, WithParameterOverrides(UnitTypeDiagnosis, map[string]any{
			"mode": cfg.Pipeline.DiagnosisMode,
		}))
	}
	loader, err := NewPipelineLoader(unitRegistry, loaderOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}

	var loaded *LoadedPipeline
	if cfg.Pipeline.File != "" {
		loaded, err = loader.LoadFromFile(ctx, cfg.Pipeline.File)
	} else {
		loaded, err = loader.LoadDefault(ctx)
	}
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	app.Pipeline = loaded
	app.Service = NewDiagnosisService(loaded, scorer,
		WithServiceMetrics(app.Metrics),
		WithRequestTimeout(cfg.Pipeline.Timeout),
	)

	log.Info("service ready",
		"documents", app.Store.Len(),
		"pipeline", loaded.Definition.Metadata.Name,
		"llm_enabled", cfg.LLM.Enabled,
		"threshold", scorer.Threshold(),
	)
	return app, nil
}

// llmRegistry builds the provider registry. Every provider gets its own
// circuit breaker and metrics labels; retry, rate limiting, timeout and
// tracing are shared defaults.
func (b *bootstrapper) llmRegistry(cfg LLMConfig, metrics ports.MetricsCollector) (*llm.Registry, error) {
	providers := llm.DefaultProviders()
	for _, name := range slices.Sorted(maps.Keys(providers)) {
		pc := providers[name]
		pc.Middleware = []llm.Middleware{
			llm.MetricsMiddleware(metrics, name),
			llm.CircuitBreakerMiddlewareWithMetrics(cfg.BreakerFailures, cfg.BreakerCooldown,
				llm.CollectorBreakerMetrics{Collector: metrics, Provider: name}),
		}
		providers[name] = pc
	}

	defaultProvider, _, _ := strings.Cut(cfg.Default, "/")
	registry, err := llm.NewRegistry(llm.RegistryConfig{
		Providers:       providers,
		DefaultProvider: defaultProvider,
		DefaultTimeout:  cfg.Timeout,
		DefaultMiddleware: []llm.Middleware{
			llm.TracingMiddleware(serviceName),
			llm.RetryMiddleware(cfg.MaxRetries, cfg.RetryBaseDelay, cfg.RetryMaxDelay),
			llm.RateLimitMiddleware(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
			llm.TimeoutMiddleware(cfg.Timeout),
		},
		LookupEnv: b.lookupEnv,
	})
	if err != nil {
		return nil, ports.NewConfigError("llm", err)
	}
	return registry, nil
}

// retrievalStack composes the retriever:
// CachingRetriever -> RetryingRetriever -> Retriever(MemoryStore, CachedEmbedder).
func (b *bootstrapper) retrievalStack(cfg *ServiceConfig, app *App, answerModel ports.LLMClient) (ports.Retriever, error) {
	docs := b.documents
	if docs == nil {
		var err error
		docs, err = vectorstore.LoadIndex(cfg.Retrieval.IndexPath)
		if err != nil {
			return nil, ports.NewConfigError("retrieval.index_path", err)
		}
	}
	app.Store = vectorstore.NewMemoryStore(docs)

	embedder := b.embedder
	if embedder == nil {
		lookup := b.lookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		apiKey, _ := lookup("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, ports.NewConfigError("OPENAI_API_KEY", errors.New("query embeddings need an OpenAI API key"))
		}
		openAI, err := llm.NewOpenAIEmbedder(llm.ClientConfig{
			APIKey:  apiKey,
			Model:   cfg.LLM.EmbeddingModel,
			Timeout: cfg.LLM.Timeout,
		})
		if err != nil {
			return nil, ports.NewConfigError("llm.embedding_model", err)
		}
		embedder = openAI
	}
	cached, err := vectorstore.NewCachedEmbedder(embedder, cfg.LLM.EmbeddingCacheSize, app.Metrics)
	if err != nil {
		return nil, ports.NewConfigError("llm.embedding_cache_size", err)
	}

	retrieverOpts := []vectorstore.RetrieverOption{
		vectorstore.WithRetrieverConfig(vectorstore.DefaultRetrieverConfig()),
		vectorstore.WithMetrics(app.Metrics),
	}
	if cfg.Retrieval.GenerateAnswers && answerModel != nil {
		retrieverOpts = append(retrieverOpts, vectorstore.WithAnswerModel(answerModel))
	}
	base, err := vectorstore.NewRetriever(app.Store, cached, retrieverOpts...)
	if err != nil {
		return nil, fmt.Errorf("create retriever: %w", err)
	}

	var retriever ports.Retriever = vectorstore.NewRetryingRetriever(base, cfg.Retrieval.MaxRetries, cfg.Retrieval.RetryBase)
	if cfg.Retrieval.CacheItems > 0 && cfg.Retrieval.CacheTTL > 0 {
		store, err := vectorstore.NewResultCache(cfg.Retrieval.CacheItems)
		if err != nil {
			return nil, ports.NewConfigError("retrieval.cache_items", err)
		}
		app.closers = append(app.closers, store.Close)
		retriever = vectorstore.NewCachingRetriever(retriever, store, cfg.Retrieval.CacheTTL)
	}
	return retriever, nil
}
