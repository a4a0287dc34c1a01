// Package readability extracts article text with go-readability. It serves as
// the fallback when the primary extractor finds no content.
package readability

import (
	"strings"

	"github.com/fwojciec/harvest"
	"github.com/go-shiori/go-readability"
)

// Ensure Extractor implements harvest.Extractor at compile time.
var _ harvest.Extractor = (*Extractor)(nil)

// Extractor wraps go-readability to extract the main article from HTML.
type Extractor struct{}

// NewExtractor creates a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract processes raw HTML and returns the article title, text and
// publication date when the page declares one.
func (e *Extractor) Extract(rawHTML string) (*harvest.ExtractResult, error) {
	if rawHTML == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "empty HTML input")
	}

	article, err := readability.FromReader(strings.NewReader(rawHTML), nil)
	if err != nil {
		return nil, err
	}

	out := &harvest.ExtractResult{
		Title: strings.TrimSpace(article.Title),
		Text:  strings.Join(strings.Fields(article.TextContent), " "),
	}
	if article.PublishedTime != nil && !article.PublishedTime.IsZero() {
		t := article.PublishedTime.UTC()
		out.PublishTime = &t
	}
	return out, nil
}
