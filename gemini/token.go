package gemini

import (
	"context"

	"github.com/fwojciec/harvest"
	"google.golang.org/genai"
	"google.golang.org/genai/tokenizer"
)

var _ harvest.TokenCounter = (*TokenCounter)(nil)

// DefaultTokenizerModel is the model whose vocabulary approximates the
// embedding model's for report token counts.
const DefaultTokenizerModel = "gemini-2.5-flash"

// TokenCounter counts article tokens offline with the local Gemini tokenizer.
// No API calls are made.
type TokenCounter struct {
	local *tokenizer.LocalTokenizer
}

// NewTokenCounter loads the tokenizer for model. An empty model selects
// DefaultTokenizerModel.
func NewTokenCounter(model string) (*TokenCounter, error) {
	if model == "" {
		model = DefaultTokenizerModel
	}
	local, err := tokenizer.NewLocalTokenizer(model)
	if err != nil {
		return nil, harvest.WrapError(harvest.EINVALID, err, "load tokenizer for %s", model)
	}
	return &TokenCounter{local: local}, nil
}

// CountTokens returns the number of tokens text occupies as a single user turn.
func (c *TokenCounter) CountTokens(ctx context.Context, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if text == "" {
		return 0, nil
	}

	result, err := c.local.CountTokens([]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return 0, harvest.WrapError(harvest.EINTERNAL, err, "count tokens")
	}
	return int(result.TotalTokens), nil
}
