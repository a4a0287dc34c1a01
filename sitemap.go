package harvest

import (
	"context"
	"regexp"
	"time"
)

// SitemapService discovers article URLs from website sitemaps.
type SitemapService interface {
	// DiscoverURLs finds URLs listed in a site's sitemaps.
	// It first checks robots.txt for sitemap directives, then falls back
	// to conventional locations. Sitemap indexes are resolved recursively.
	//
	// If filter is nil, all URLs are returned.
	DiscoverURLs(ctx context.Context, baseURL string, filter *URLFilter) ([]string, error)
}

// URLFilter selects which discovered URLs are collected.
type URLFilter struct {
	// Include patterns - if set, only URLs matching at least one pattern are included.
	Include []*regexp.Regexp

	// Exclude patterns - URLs matching any pattern are excluded.
	Exclude []*regexp.Regexp

	// ModifiedSince drops sitemap entries whose lastmod is older.
	// Entries without lastmod are kept.
	ModifiedSince time.Time
}

// Match returns true if the URL passes the include and exclude patterns.
// If the filter is nil, all URLs pass.
func (f *URLFilter) Match(url string) bool {
	if f == nil {
		return true
	}

	if len(f.Include) > 0 && !matchAny(f.Include, url) {
		return false
	}
	return !matchAny(f.Exclude, url)
}

// Fresh reports whether an entry last modified at lastmod passes ModifiedSince.
func (f *URLFilter) Fresh(lastmod time.Time) bool {
	if f == nil || f.ModifiedSince.IsZero() || lastmod.IsZero() {
		return true
	}
	return !lastmod.Before(f.ModifiedSince)
}

func matchAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
