package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hangarlabs/aw139-certainty/internal/ports"
)

// DefaultEmbeddingModel must match the model the document index was built
// with.
const DefaultEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder embeds query text with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	classifier ErrorClassifier
}

var _ ports.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder builds an embedder from config. An empty
// config.Model selects DefaultEmbeddingModel.
func NewOpenAIEmbedder(config ClientConfig) (*OpenAIEmbedder, error) {
	cc, err := openAIClientConfig(config)
	if err != nil {
		return nil, err
	}
	model := config.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client:     openai.NewClientWithConfig(cc),
		model:      model,
		classifier: ErrorClassifier{Provider: "openai"},
	}, nil
}

// Embed returns the embedding of text. Newlines are replaced with spaces
// as the index builder did.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{strings.ReplaceAll(text, "\n", " ")},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, toLLMError(e.model, "embed", classifyOpenAIError(e.classifier, err))
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, ports.NewLLMError(e.model, "embed", fmt.Errorf("%w: %w", ports.ErrInvalidResponse, ErrEmptyEmbedding))
	}
	return resp.Data[0].Embedding, nil
}

// Model returns the embedding model.
func (e *OpenAIEmbedder) Model() string { return e.model }
