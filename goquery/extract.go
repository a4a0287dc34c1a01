// Package goquery implements CSS-selector based helpers for news sites:
// article link discovery on channel listing pages and publish-time detection.
package goquery

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/harvest"
)

var _ harvest.LinkSelector = (*ListingSelector)(nil)

// DefaultListingSelectors match article links on typical news listing pages.
var DefaultListingSelectors = []string{
	".newslist a[href]",
	".artlist a[href]",
	".list_con a[href]",
	".item a[href]",
	"a.title[href]",
	"main a[href]",
	"article a[href]",
}

// DefaultArticlePattern accepts paths that carry a year segment and end in a
// static page extension, e.g. /2025/0921/123.shtml.
var DefaultArticlePattern = regexp.MustCompile(`/20\d{2}.*\.s?html?$`)

// ListingSelector extracts article links from channel listing pages.
type ListingSelector struct {
	// Selectors are tried in order. Links keep the position of their
	// first match.
	Selectors []string

	// ArticlePattern must match the link path. Nil accepts every link.
	ArticlePattern *regexp.Regexp
}

// NewListingSelector returns a ListingSelector with the default selectors.
func NewListingSelector() *ListingSelector {
	return &ListingSelector{
		Selectors:      DefaultListingSelectors,
		ArticlePattern: DefaultArticlePattern,
	}
}

// ExtractLinks parses HTML and returns article links on the same host as
// baseURL. Links without anchor text are skipped; duplicates keep the first
// occurrence.
func (s *ListingSelector) ExtractLinks(html string, baseURL string) ([]harvest.DiscoveredLink, error) {
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "invalid base URL: %q", baseURL)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, harvest.Errorf(harvest.EINVALID, "failed to parse HTML: %v", err)
	}

	seen := make(map[string]bool)
	var links []harvest.DiscoveredLink

	for _, selector := range s.Selectors {
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			href, exists := sel.Attr("href")
			if !exists || href == "" || isNonHTTPLink(href) {
				return
			}
			text := strings.Join(strings.Fields(sel.Text()), " ")
			if text == "" {
				return
			}

			resolved := resolveURL(base, href)
			if resolved == nil || resolved.Host != base.Host {
				return
			}
			if s.ArticlePattern != nil && !s.ArticlePattern.MatchString(resolved.Path) {
				return
			}

			u := resolved.String()
			if seen[u] {
				return
			}
			seen[u] = true
			links = append(links, harvest.DiscoveredLink{URL: u, Text: text})
		})
	}
	return links, nil
}

// resolveURL resolves a relative URL against a base URL. Fragments are
// stripped, and links pointing back at the base page return nil.
func resolveURL(base *url.URL, href string) *url.URL {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil
	}
	resolved := base.ResolveReference(ref)
	resolved.Fragment = ""

	baseNoFragment := *base
	baseNoFragment.Fragment = ""
	if resolved.String() == baseNoFragment.String() {
		return nil
	}
	return resolved
}

// isNonHTTPLink checks if a href is a non-HTTP link that should be skipped.
func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
