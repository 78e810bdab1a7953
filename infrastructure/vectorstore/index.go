// Package vectorstore holds the in-memory manual index and the retrieval
// pipeline in front of it: query embedding, cosine ranking, manual
// filters, keyword reranking and wiring diagram injection.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/gjson"
)

// ErrInvalidIndex is returned when an index file is not a JSON array of
// documents.
var ErrInvalidIndex = errors.New("invalid embeddings index")

// Document is one indexed manual excerpt.
type Document struct {
	DocPath   string
	Text      string
	Embedding []float32
}

// LoadIndex reads an embeddings.json file.
func LoadIndex(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", path, err)
	}
	docs, err := ParseIndex(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse index %s: %w", path, err)
	}
	return docs, nil
}

// ParseIndex decodes an array of {doc_path, text, embedding} objects.
// Entries without an embedding are kept and never match a query, as the
// index builder sometimes emits them for empty pages.
func ParseIndex(data []byte) ([]Document, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: malformed JSON", ErrInvalidIndex)
	}
	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("%w: top level value is not an array", ErrInvalidIndex)
	}

	docs := make([]Document, 0, int(root.Get("#").Int()))
	var parseErr error
	root.ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			parseErr = fmt.Errorf("%w: entry %d is not an object", ErrInvalidIndex, len(docs))
			return false
		}
		values := entry.Get("embedding").Array()
		embedding := make([]float32, len(values))
		for i, v := range values {
			embedding[i] = float32(v.Float())
		}
		docs = append(docs, Document{
			DocPath:   entry.Get("doc_path").String(),
			Text:      entry.Get("text").String(),
			Embedding: embedding,
		})
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return docs, nil
}

type indexEntry struct {
	DocPath   string    `json:"doc_path"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// WriteIndex encodes docs in the format ParseIndex reads.
func WriteIndex(w io.Writer, docs []Document) error {
	entries := make([]indexEntry, len(docs))
	for i, d := range docs {
		entries[i] = indexEntry{DocPath: d.DocPath, Text: d.Text, Embedding: d.Embedding}
		if entries[i].Embedding == nil {
			entries[i].Embedding = []float32{}
		}
	}
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}
