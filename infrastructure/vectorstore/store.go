package vectorstore

import (
	"cmp"
	"context"
	"math"
	"slices"
	"sync"
	"time"
)

// Match is a document with its cosine similarity to a query vector.
type Match struct {
	Document
	Score float64
}

// MemoryStore is an in-memory document index. It is safe for concurrent
// use; Replace swaps the whole index atomically.
type MemoryStore struct {
	mu       sync.RWMutex
	docs     []Document
	loadedAt time.Time
}

// NewMemoryStore returns a store holding docs.
func NewMemoryStore(docs []Document) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(docs)
	return s
}

// Replace swaps the indexed documents.
func (s *MemoryStore) Replace(docs []Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = docs
	s.loadedAt = time.Now()
}

// Reload replaces the index with the contents of path. The current index
// is kept when loading fails.
func (s *MemoryStore) Reload(path string) (int, error) {
	docs, err := LoadIndex(path)
	if err != nil {
		return 0, err
	}
	s.Replace(docs)
	return len(docs), nil
}

// Len returns the number of indexed documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// LoadedAt returns when the index was last replaced.
func (s *MemoryStore) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// Documents returns the indexed documents. The slice must not be modified.
func (s *MemoryStore) Documents() []Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs
}

// Search returns the k documents most similar to vector, best first.
// A non-positive k returns every document.
func (s *MemoryStore) Search(ctx context.Context, vector []float32, k int) ([]Match, error) {
	matches, err := rank(ctx, s.Documents(), vector)
	if err != nil {
		return nil, err
	}
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// rank scores every document against vector and sorts best first. Ties
// keep index order.
func rank(ctx context.Context, docs []Document, vector []float32) ([]Match, error) {
	matches := make([]Match, len(docs))
	for i, d := range docs {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		matches[i] = Match{Document: d, Score: CosineSimilarity(vector, d.Embedding)}
	}
	slices.SortStableFunc(matches, func(a, b Match) int { return cmp.Compare(b.Score, a.Score) })
	return matches, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. Empty
// and zero vectors have similarity 0. Vectors of different length are
// compared over their common prefix.
func CosineSimilarity(a, b []float32) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range n {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
