// Package gemini provides harvest services backed by Google Gemini.
package gemini

import (
	"context"
	"fmt"

	"github.com/fwojciec/harvest"
	"google.golang.org/genai"
)

// DefaultEmbeddingModel is the Gemini model used when none is configured.
const DefaultEmbeddingModel = "gemini-embedding-001"

// Ensure Embedder implements harvest.Embedder at compile time.
var _ harvest.Embedder = (*Embedder)(nil)

// ContentEmbedder is the subset of genai.Models used by Embedder.
type ContentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder implements harvest.Embedder using the Gemini embedding API.
type Embedder struct {
	models ContentEmbedder

	// Model name. Defaults to DefaultEmbeddingModel.
	Model string

	// Requested vector length. Zero leaves it to the model.
	Dimension int

	// Optional task hint such as "RETRIEVAL_DOCUMENT".
	TaskType string
}

// NewEmbedder creates an Embedder using the client's Models service.
func NewEmbedder(client *genai.Client) *Embedder {
	return NewEmbedderWith(client.Models)
}

// NewEmbedderWith creates an Embedder over any ContentEmbedder.
func NewEmbedderWith(models ContentEmbedder) *Embedder {
	return &Embedder{models: models, Model: DefaultEmbeddingModel}
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "text to embed required")
	}

	config := &genai.EmbedContentConfig{TaskType: e.TaskType}
	if e.Dimension > 0 {
		dim := int32(e.Dimension)
		config.OutputDimensionality = &dim
	}

	resp, err := e.models.EmbedContent(ctx, e.Model, genai.Text(text), config)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, harvest.Errorf(harvest.EEMBEDDING, "gemini returned no embedding")
	}
	return resp.Embeddings[0].Values, nil
}
