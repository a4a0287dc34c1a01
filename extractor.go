package harvest

import "time"

// ExtractResult holds the article content extracted from an HTML page.
type ExtractResult struct {
	// Title is the page title taken from metadata or headings.
	Title string

	// Text is the main article text with navigation, footers and ads removed.
	Text string

	// PublishTime is the publication date found in the page, if any.
	PublishTime *time.Time
}

// Extractor pulls the main article out of a page, removing boilerplate.
// Implementations are generic; no site-specific selectors are involved.
type Extractor interface {
	Extract(html string) (*ExtractResult, error)
}
