// Package ollama provides a harvest.Embedder backed by a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fwojciec/harvest"
)

// Defaults for a local Ollama installation.
const (
	DefaultURL     = "http://localhost:11434"
	DefaultModel   = "nomic-embed-text"
	DefaultTimeout = 60 * time.Second
)

var _ harvest.Embedder = (*Embedder)(nil)

// Embedder implements harvest.Embedder using Ollama's /api/embed endpoint.
type Embedder struct {
	client  *http.Client
	baseURL string

	// Model name. Defaults to DefaultModel.
	Model string
}

// NewEmbedder creates an Embedder for the Ollama server at baseURL.
// An empty baseURL selects DefaultURL.
func NewEmbedder(baseURL string) *Embedder {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Embedder{
		client:  &http.Client{Timeout: DefaultTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		Model:   DefaultModel,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// Embed returns the embedding of text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "text to embed required")
	}

	body, err := json.Marshal(embedRequest{Model: e.Model, Input: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	defer resp.Body.Close()

	var out embedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("ollama embed: decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama embed: HTTP %d: %s", resp.StatusCode, out.Error)
	}
	if len(out.Embeddings) == 0 || len(out.Embeddings[0]) == 0 {
		return nil, harvest.Errorf(harvest.EEMBEDDING, "ollama returned no embedding")
	}
	return out.Embeddings[0], nil
}
