package main

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hangarlabs/aw139-certainty/infrastructure/vectorstore"
)

func TestGenerate(t *testing.T) {
	opts := options{size: 10, dims: 8, seed: 7}
	docs, err := generate(opts)
	require.NoError(t, err)
	require.Len(t, docs, 10)

	for _, d := range docs {
		require.Len(t, d.Embedding, 8)
		var norm float64
		for _, v := range d.Embedding {
			norm += float64(v) * float64(v)
		}
		assert.InDelta(t, 1, math.Sqrt(norm), 1e-5)
	}
	assert.True(t, vectorstore.IsWiringDiagram(docs[0]))

	again, err := generate(opts)
	require.NoError(t, err)
	assert.Equal(t, docs, again, "same seed, same index")

	_, err = generate(options{size: 0, dims: 8})
	assert.Error(t, err)
}

func TestSave(t *testing.T) {
	docs, err := generate(options{size: 3, dims: 4, seed: 1})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "nested", "embeddings.json")
	require.NoError(t, save(path, docs))

	loaded, err := vectorstore.LoadIndex(path)
	require.NoError(t, err)
	assert.Len(t, loaded, 3)
	assert.Equal(t, docs[0].DocPath, loaded[0].DocPath)
}
