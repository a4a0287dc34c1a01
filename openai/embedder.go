// Package openai provides a harvest.Embedder backed by the OpenAI embeddings API.
package openai

import (
	"context"
	"fmt"
	"math"

	"github.com/fwojciec/harvest"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "text-embedding-3-small"

var _ harvest.Embedder = (*Embedder)(nil)

// Embedder implements harvest.Embedder using OpenAI embeddings.
// Returned vectors are L2-normalized.
type Embedder struct {
	client *openai.Client

	// Model name. Defaults to DefaultModel.
	Model string

	// Requested vector length. Zero leaves it to the model.
	Dimension int
}

// NewEmbedder creates an Embedder authenticated with apiKey.
func NewEmbedder(apiKey string) *Embedder {
	return NewEmbedderWithConfig(openai.DefaultConfig(apiKey))
}

// NewEmbedderWithConfig creates an Embedder from a client configuration,
// allowing a custom base URL for compatible servers.
func NewEmbedderWithConfig(config openai.ClientConfig) *Embedder {
	return &Embedder{
		client: openai.NewClientWithConfig(config),
		Model:  DefaultModel,
	}
}

// Embed returns the normalized embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "text to embed required")
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model:      openai.EmbeddingModel(e.Model),
		Input:      []string{text},
		Dimensions: e.Dimension,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, harvest.Errorf(harvest.EEMBEDDING, "openai returned no embedding")
	}

	src := resp.Data[0].Embedding
	v := make([]float32, len(src))
	for i := range src {
		v[i] = float32(src[i])
	}
	l2normalize(v)
	return v, nil
}

// l2normalize scales v to unit length in place. Zero vectors are left as is.
func l2normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}
