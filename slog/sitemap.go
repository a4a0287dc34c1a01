package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/harvest"
)

// Ensure LoggingSitemapService implements harvest.SitemapService.
var _ harvest.SitemapService = (*LoggingSitemapService)(nil)

// LoggingSitemapService wraps a SitemapService and logs each discovery run
// together with the filter that shaped it.
type LoggingSitemapService struct {
	next   harvest.SitemapService
	logger *slog.Logger
}

// NewLoggingSitemapService creates a new LoggingSitemapService.
func NewLoggingSitemapService(next harvest.SitemapService, logger *slog.Logger) *LoggingSitemapService {
	return &LoggingSitemapService{next: next, logger: logger}
}

// DiscoverURLs delegates to the wrapped service and logs the discovery run.
func (s *LoggingSitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *harvest.URLFilter) (urls []string, err error) {
	defer func(begin time.Time) {
		attrs := append([]any{"url", baseURL}, filterAttrs(filter)...)
		attrs = append(attrs, "duration", time.Since(begin))
		if err != nil {
			s.logger.ErrorContext(ctx, "sitemap discovery failed", append(attrs, "err", err)...)
			return
		}
		s.logger.InfoContext(ctx, "sitemap discovery", append(attrs, "count", len(urls))...)
	}(time.Now())
	return s.next.DiscoverURLs(ctx, baseURL, filter)
}

func filterAttrs(f *harvest.URLFilter) []any {
	if f == nil {
		return nil
	}
	attrs := []any{"include", len(f.Include), "exclude", len(f.Exclude)}
	if !f.ModifiedSince.IsZero() {
		attrs = append(attrs, "since", f.ModifiedSince.Format(time.DateOnly))
	}
	return attrs
}
