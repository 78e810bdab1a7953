package vectorstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/hangarlabs/aw139-certainty/internal/domain"
	"github.com/hangarlabs/aw139-certainty/internal/logger"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// ResultCache is an in-memory ports.CacheStore backed by ristretto. Every
// entry costs 1, so MaxItems bounds the entry count.
type ResultCache struct {
	cache *ristretto.Cache[string, any]
}

var _ ports.CacheStore = (*ResultCache)(nil)

// NewResultCache returns a cache holding at most maxItems entries.
func NewResultCache(maxItems int64) (*ResultCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache size must be greater than zero, got %d", maxItems)
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, any]{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create result cache: %w", err)
	}
	return &ResultCache{cache: cache}, nil
}

// Get implements ports.CacheStore.
func (c *ResultCache) Get(_ context.Context, key string) (any, bool, error) {
	v, ok := c.cache.Get(key)
	return v, ok, nil
}

// Set implements ports.CacheStore. Writes are buffered by ristretto, so
// Set waits for them to be applied before returning.
func (c *ResultCache) Set(_ context.Context, key string, value any, expiration time.Duration) error {
	if expiration < 0 {
		return ports.NewCacheError(key, "set", fmt.Errorf("negative expiration %v", expiration))
	}
	c.cache.SetWithTTL(key, value, 1, expiration)
	c.cache.Wait()
	return nil
}

// Delete implements ports.CacheStore.
func (c *ResultCache) Delete(_ context.Context, key string) error {
	c.cache.Del(key)
	return nil
}

// Clear implements ports.CacheStore.
func (c *ResultCache) Clear(_ context.Context) error {
	c.cache.Clear()
	return nil
}

// Close stops the cache's background goroutines.
func (c *ResultCache) Close() { c.cache.Close() }

// CachingRetriever serves repeated queries from a ports.CacheStore.
type CachingRetriever struct {
	next  ports.Retriever
	store ports.CacheStore
	ttl   time.Duration
}

var _ ports.Retriever = (*CachingRetriever)(nil)

// NewCachingRetriever caches next's results in store for ttl.
func NewCachingRetriever(next ports.Retriever, store ports.CacheStore, ttl time.Duration) *CachingRetriever {
	return &CachingRetriever{next: next, store: store, ttl: ttl}
}

// Retrieve implements ports.Retriever. Cache failures are logged and the
// query is answered by the wrapped retriever.
func (c *CachingRetriever) Retrieve(ctx context.Context, q ports.RetrievalQuery) (domain.RetrievalResult, error) {
	key := CacheKey(q)
	log := logger.FromContext(ctx)

	if v, ok, err := c.store.Get(ctx, key); err != nil {
		log.Warn("retrieval cache read failed", "error", err)
	} else if ok {
		if res, ok := v.(domain.RetrievalResult); ok {
			return cloneResult(res), nil
		}
		log.Warn("retrieval cache entry has unexpected type", "error", ports.NewCacheError(key, "get", ports.ErrCacheCorrupted))
	}

	res, err := c.next.Retrieve(ctx, q)
	if err != nil {
		return domain.RetrievalResult{}, err
	}
	if err := c.store.Set(ctx, key, cloneResult(res), c.ttl); err != nil {
		log.Warn("retrieval cache write failed", "error", err)
	}
	return res, nil
}

// CacheKey identifies a query for caching.
func CacheKey(q ports.RetrievalQuery) string {
	h := sha256.New()
	for _, part := range []string{q.Text, strconv.Itoa(q.TopK), q.Filter.Raw, strconv.FormatBool(q.SkipGeneration)} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "retrieval:" + hex.EncodeToString(h.Sum(nil))
}

func cloneResult(r domain.RetrievalResult) domain.RetrievalResult {
	r.References = slices.Clone(r.References)
	r.Documents = slices.Clone(r.Documents)
	return r
}
