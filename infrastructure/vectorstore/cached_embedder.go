package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// MetricEmbeddingCache counts embedding cache lookups by result.
const MetricEmbeddingCache = "embedding_cache_total"

// CachedEmbedder memoizes embeddings in an LRU keyed by the sha256 of the
// model and text. Concurrent misses for the same text share one call.
type CachedEmbedder struct {
	next    ports.Embedder
	cache   *lru.Cache[string, []float32]
	group   singleflight.Group
	metrics ports.MetricsCollector
}

var _ ports.Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with a cache of size entries. metrics may
// be nil.
func NewCachedEmbedder(next ports.Embedder, size int, metrics ports.MetricsCollector) (*CachedEmbedder, error) {
	if next == nil {
		return nil, fmt.Errorf("embedder cannot be nil")
	}
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be greater than zero, got %d", size)
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &CachedEmbedder{next: next, cache: cache, metrics: metrics}, nil
}

// Embed returns the cached vector for text or computes it. Callers get
// their own copy.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if v, ok := c.cache.Get(key); ok {
		c.record("hit")
		return slices.Clone(v), nil
	}
	c.record("miss")

	ch := c.group.DoChan(key, func() (any, error) {
		v, err := c.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.cache.Add(key, v)
		return v, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]float32)), nil
	}
}

// Model returns the wrapped embedder's model.
func (c *CachedEmbedder) Model() string { return c.next.Model() }

// Len returns the number of cached vectors.
func (c *CachedEmbedder) Len() int { return c.cache.Len() }

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.next.Model() + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) record(result string) {
	c.metrics.RecordCounter(MetricEmbeddingCache, 1, map[string]string{
		"result": result,
		"model":  c.next.Model(),
	})
}
