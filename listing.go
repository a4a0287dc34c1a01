package harvest

import "time"

// DiscoveredLink is an article link found on a channel listing page.
type DiscoveredLink struct {
	URL string

	// Text is the anchor text, usually the headline.
	Text string
}

// LinkSelector extracts article links from a channel listing page.
type LinkSelector interface {
	// ExtractLinks parses HTML and returns article links in document order.
	// The baseURL is used to resolve relative URLs.
	ExtractLinks(html string, baseURL string) ([]DiscoveredLink, error)
}

// DateDetector finds a publish time in page markup. It is consulted when the
// extractors found none.
type DateDetector interface {
	// DetectPublishTime returns nil when the page carries no recognizable date.
	DetectPublishTime(html string) *time.Time
}
