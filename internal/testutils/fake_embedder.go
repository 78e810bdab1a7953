package testutils

import (
	"context"
	"sync/atomic"

	"github.com/hangarlabs/aw139-certainty/infrastructure/vectorstore"
	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// FakeEmbedder embeds every text as the same vector.
type FakeEmbedder struct {
	Vector []float32
	Err    error
	calls  atomic.Int64
}

var _ ports.Embedder = (*FakeEmbedder)(nil)

// NewFakeEmbedder returns an embedder producing vector.
func NewFakeEmbedder(vector ...float32) *FakeEmbedder {
	return &FakeEmbedder{Vector: vector}
}

// Embed implements ports.Embedder.
func (f *FakeEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]float32(nil), f.Vector...), nil
}

// Model implements ports.Embedder.
func (f *FakeEmbedder) Model() string { return "fake-embedding" }

// Calls returns the number of Embed calls.
func (f *FakeEmbedder) Calls() int64 { return f.calls.Load() }

// SampleIndex returns n ATA 24 index documents whose embeddings all equal
// vector. The first one is a wiring diagram when wiring is true.
func SampleIndex(n int, wiring bool, vector ...float32) []vectorstore.Document {
	docs := SampleDocuments(n, wiring)
	out := make([]vectorstore.Document, len(docs))
	for i, d := range docs {
		out[i] = vectorstore.Document{
			DocPath:   d.DocPath,
			Text:      d.Content,
			Embedding: append([]float32(nil), vector...),
		}
	}
	return out
}
