package vectorstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/evidence"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// MetricRetrievalLatency is the histogram of Retrieve durations.
const MetricRetrievalLatency = "retrieval_latency_seconds"

const tracerName = "github.com/hangarlabs/aw139-certainty/infrastructure/vectorstore"

// ErrEmptyQuery is returned for blank query text.
var ErrEmptyQuery = errors.New("query text cannot be empty")

// RetrieverConfig tunes ranking and answer generation.
type RetrieverConfig struct {
	// DefaultTopK applies when a query does not set TopK.
	DefaultTopK int `yaml:"default_top_k" validate:"min=1,max=50"`
	// ContentChars truncates document content in results.
	ContentChars int `yaml:"content_chars" validate:"min=1"`
	// ContextDocs and ContextChars bound the answer prompt context.
	ContextDocs  int `yaml:"context_docs" validate:"min=1"`
	ContextChars int `yaml:"context_chars" validate:"min=1"`
	// MaxTokens and Temperature are passed to the answer model.
	MaxTokens   int     `yaml:"max_tokens" validate:"min=1"`
	Temperature float64 `yaml:"temperature" validate:"min=0,max=2"`
}

// DefaultRetrieverConfig returns the production settings.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		DefaultTopK:  5,
		ContentChars: 4000,
		ContextDocs:  5,
		ContextChars: 3000,
		MaxTokens:    2500,
		Temperature:  0,
	}
}

// Retriever answers queries from a MemoryStore. It implements
// ports.Retriever and is safe for concurrent use.
type Retriever struct {
	store    *MemoryStore
	embedder ports.Embedder
	llm      ports.LLMClient
	cfg      RetrieverConfig
	metrics  ports.MetricsCollector
	tracer   trace.Tracer
}

var _ ports.Retriever = (*Retriever)(nil)

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithAnswerModel enables answer generation with llm.
func WithAnswerModel(llm ports.LLMClient) RetrieverOption {
	return func(r *Retriever) { r.llm = llm }
}

// WithRetrieverConfig overrides DefaultRetrieverConfig.
func WithRetrieverConfig(cfg RetrieverConfig) RetrieverOption {
	return func(r *Retriever) { r.cfg = cfg }
}

// WithMetrics records retrieval latency on m.
func WithMetrics(m ports.MetricsCollector) RetrieverOption {
	return func(r *Retriever) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracerProvider replaces the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) RetrieverOption {
	return func(r *Retriever) { r.tracer = tp.Tracer(tracerName) }
}

// NewRetriever builds a Retriever over store using embedder for queries.
func NewRetriever(store *MemoryStore, embedder ports.Embedder, opts ...RetrieverOption) (*Retriever, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	r := &Retriever{
		store:    store,
		embedder: embedder,
		cfg:      DefaultRetrieverConfig(),
		metrics:  ports.NopMetrics{},
		tracer:   otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

type scored struct {
	doc      Document
	adjusted float64
}

// Retrieve embeds the query, ranks the filtered corpus by cosine
// similarity plus keyword boosts and keeps the top documents with a
// positive score. Electrical queries without a wiring diagram in the top
// results get the best ranked wiring diagram appended.
func (r *Retriever) Retrieve(ctx context.Context, q ports.RetrievalQuery) (result domain.RetrievalResult, err error) {
	start := time.Now()
	ctx, span := r.tracer.Start(ctx, "retrieval.retrieve", trace.WithAttributes(
		attribute.String("retrieval.filter", q.Filter.Kind.String()),
		attribute.Int("retrieval.top_k", q.TopK),
	))
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.metrics.RecordHistogram(MetricRetrievalLatency, time.Since(start).Seconds(), map[string]string{
			"filter": q.Filter.Kind.String(),
			"status": status,
		})
	}()

	if strings.TrimSpace(q.Text) == "" {
		return domain.RetrievalResult{}, ports.NewRetrievalError(q.Text, "validate", ErrEmptyQuery)
	}
	corpus := r.store.Documents()
	if len(corpus) == 0 {
		return domain.RetrievalResult{}, ports.NewRetrievalError(q.Text, "search", ports.ErrIndexNotLoaded)
	}

	vector, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return domain.RetrievalResult{}, ports.NewRetrievalError(q.Text, "embed", err)
	}

	ranked, err := r.rank(ctx, FilterDocuments(corpus, q.Filter), q.Text, vector)
	if err != nil {
		return domain.RetrievalResult{}, ports.NewRetrievalError(q.Text, "search", err)
	}

	topK := q.TopK
	if topK <= 0 {
		topK = r.cfg.DefaultTopK
	}
	var top []scored
	for _, s := range ranked[:min(topK, len(ranked))] {
		if s.adjusted > 0 {
			top = append(top, s)
		}
	}
	top = r.injectWiringDiagram(ctx, q.Text, top, ranked)

	result = r.buildResult(q.Text, top)
	result.Answer, result.Model = r.answer(ctx, q, top)
	result.ProcessingTimeMs = math.Round(float64(time.Since(start).Microseconds())/10) / 100
	span.SetAttributes(attribute.Int("retrieval.documents", len(result.Documents)))
	return result, nil
}

func (r *Retriever) rank(ctx context.Context, docs []Document, query string, vector []float32) ([]scored, error) {
	out := make([]scored, len(docs))
	for i, d := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = scored{doc: d, adjusted: CosineSimilarity(vector, d.Embedding) + KeywordBoost(query, d.Text)}
	}
	slices.SortStableFunc(out, func(a, b scored) int { return cmp.Compare(b.adjusted, a.adjusted) })
	return out, nil
}

func (r *Retriever) injectWiringDiagram(ctx context.Context, query string, top, ranked []scored) []scored {
	if !NeedsWiringDiagram(query) {
		return top
	}
	for _, s := range top {
		if IsWiringDiagram(s.doc) {
			return top
		}
	}
	// ranked is sorted, so the first wiring diagram is the best one.
	for _, s := range ranked {
		if IsWiringDiagram(s.doc) {
			logger.FromContext(ctx).Debug("injected wiring diagram document",
				"doc_path", s.doc.DocPath, "score", s.adjusted)
			return append(top, s)
		}
	}
	return top
}

func (r *Retriever) buildResult(query string, top []scored) domain.RetrievalResult {
	result := domain.RetrievalResult{
		Query:      query,
		References: make([]string, 0, len(top)),
		Documents:  make([]domain.RetrievedDocument, 0, len(top)),
	}
	for _, s := range top {
		docPath := s.doc.DocPath
		if docPath == "" {
			docPath = "unknown"
		}
		id := evidence.DocumentIdentifier(docPath)
		if result.ATA == "" {
			result.ATA = id
		}
		content := s.doc.Text
		if len(content) > r.cfg.ContentChars {
			content = content[:r.cfg.ContentChars]
		}
		result.References = append(result.References, fmt.Sprintf("ATA %s: %s", id, docPath))
		result.Documents = append(result.Documents, domain.RetrievedDocument{
			DocPath:         docPath,
			Content:         content,
			SimilarityScore: math.Round(s.adjusted*1e4) / 1e4,
			ATAIdentifier:   id,
		})
	}
	return result
}

// answer generates the answer text and reports the model used. Generation
// failures degrade to an error line so the ranked documents are still
// returned.
func (r *Retriever) answer(ctx context.Context, q ports.RetrievalQuery, top []scored) (text, model string) {
	summary := fmt.Sprintf("Found %d matching documents for: %s", len(top), truncate(q.Text, 100))
	if q.SkipGeneration || r.llm == nil || len(top) == 0 {
		return summary, ""
	}

	docs := make([]Document, len(top))
	for i, s := range top {
		docs[i] = s.doc
	}
	system, user, err := BuildAnswerPrompt(q.Text, docs, r.cfg.ContextDocs, r.cfg.ContextChars)
	if err != nil {
		logger.FromContext(ctx).Error("failed to render answer prompt", "error", err)
		return summary, ""
	}

	answer, err := r.llm.Complete(ctx, user, map[string]any{
		"system":      system,
		"max_tokens":  r.cfg.MaxTokens,
		"temperature": r.cfg.Temperature,
	})
	if err != nil {
		logger.FromContext(ctx).Warn("answer generation failed", "error", err, "query_kind", ClassifyQuery(q.Text).String())
		return "Error generating response: " + err.Error(), ""
	}
	return answer, r.llm.GetModel()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
