// Package crawl collects articles from websites.
// It coordinates sitemap or listing-page discovery, rate-limited fetching and
// boilerplate removal, producing article records for the ingestion pipeline.
package crawl

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fwojciec/harvest"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of pages fetched in parallel.
const DefaultConcurrency = 4

// Collector turns a site's sitemap or channel listing page into article records.
type Collector struct {
	Sitemaps  harvest.SitemapService
	Fetcher   harvest.Fetcher
	Extractor harvest.Extractor

	// Fallback is tried when Extractor fails or finds no text.
	Fallback harvest.Extractor

	// Links finds article links on listing pages. Required for listing sources.
	Links harvest.LinkSelector

	// Dates supplies a publish time when extraction found none. Optional.
	Dates harvest.DateDetector

	// RateLimiter paces requests per host. Optional.
	RateLimiter harvest.DomainLimiter

	Concurrency int
	RetryDelays []time.Duration
	Logger      *slog.Logger
}

// Source describes a site section to collect.
type Source struct {
	URL     string
	Channel string
	Module  string
	Filter  *harvest.URLFilter

	// Listing marks URL as a channel listing page whose article links are
	// collected instead of the site's sitemap.
	Listing bool
}

// Result holds the outcome of a collection run.
type Result struct {
	Collected int
	Failed    int
	Bytes     int64
}

// ProgressEvent reports progress during collection.
type ProgressEvent struct {
	Type      ProgressType
	Completed int
	Total     int
	URL       string
	Error     error
}

// ProgressType indicates the type of progress event.
type ProgressType int

const (
	ProgressStarted ProgressType = iota
	ProgressCompleted
	ProgressFailed
	ProgressFinished
)

// ProgressFunc is a callback for reporting collection progress.
type ProgressFunc func(event ProgressEvent)

// pageResult holds the outcome of processing a single URL.
type pageResult struct {
	position int
	url      string
	article  *harvest.Article
	err      error
}

// Collect discovers article URLs for src and collects them.
func (c *Collector) Collect(ctx context.Context, src Source, progress ProgressFunc) ([]*harvest.Article, *Result, error) {
	urls, err := c.Discover(ctx, src)
	if err != nil {
		return nil, nil, err
	}
	return c.CollectURLs(ctx, urls, src, progress)
}

// Discover returns the article URLs of src without fetching them.
func (c *Collector) Discover(ctx context.Context, src Source) ([]string, error) {
	if !src.Listing {
		urls, err := c.Sitemaps.DiscoverURLs(ctx, src.URL, src.Filter)
		if err != nil {
			return nil, fmt.Errorf("sitemap discovery: %w", err)
		}
		return urls, nil
	}

	if c.Links == nil {
		return nil, harvest.Errorf(harvest.EINTERNAL, "listing link selector not configured")
	}
	html, err := FetchWithRetryDelays(ctx, src.URL, c.fetch, c.Logger, c.retryDelays())
	if err != nil {
		return nil, fmt.Errorf("listing page: %w", err)
	}
	links, err := c.Links.ExtractLinks(html, src.URL)
	if err != nil {
		return nil, fmt.Errorf("listing page: %w", err)
	}

	urls := make([]string, 0, len(links))
	for _, l := range links {
		if src.Filter.Match(l.URL) {
			urls = append(urls, l.URL)
		}
	}
	return urls, nil
}

// CollectURLs fetches and extracts the given URLs concurrently. Articles are
// returned in input order; pages that fail are counted and skipped.
func (c *Collector) CollectURLs(ctx context.Context, urls []string, src Source, progress ProgressFunc) ([]*harvest.Article, *Result, error) {
	if progress == nil {
		progress = func(ProgressEvent) {}
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	total := len(urls)
	progress(ProgressEvent{Type: ProgressStarted, Total: total})

	resultCh := make(chan pageResult, len(urls))
	var completed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	go func() {
		for i, u := range urls {
			g.Go(func() error {
				resultCh <- c.processURL(gctx, i, u, src)
				return nil
			})
		}
		_ = g.Wait()
		close(resultCh)
	}()

	results := make([]pageResult, len(urls))
	for r := range resultCh {
		n := int(completed.Add(1))
		results[r.position] = r
		if r.err != nil {
			progress(ProgressEvent{Type: ProgressFailed, Completed: n, Total: total, URL: r.url, Error: r.err})
		} else {
			progress(ProgressEvent{Type: ProgressCompleted, Completed: n, Total: total, URL: r.url})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	result := &Result{}
	articles := make([]*harvest.Article, 0, len(urls))
	for _, r := range results {
		if r.err != nil {
			result.Failed++
			continue
		}
		articles = append(articles, r.article)
		result.Collected++
		result.Bytes += int64(len(r.article.Content))
	}

	progress(ProgressEvent{Type: ProgressFinished, Completed: total, Total: total})
	return articles, result, nil
}

// processURL fetches and extracts a single page.
func (c *Collector) processURL(ctx context.Context, position int, url string, src Source) pageResult {
	result := pageResult{position: position, url: url}

	html, err := FetchWithRetryDelays(ctx, url, c.fetch, c.Logger, c.retryDelays())
	if err != nil {
		result.err = err
		return result
	}

	extracted, err := c.extract(html)
	if err != nil {
		result.err = fmt.Errorf("extract %s: %w", url, err)
		return result
	}
	if extracted.PublishTime == nil && c.Dates != nil {
		extracted.PublishTime = c.Dates.DetectPublishTime(html)
	}

	result.article = &harvest.Article{
		URL:         url,
		Title:       extracted.Title,
		Content:     extracted.Text,
		PublishTime: extracted.PublishTime,
		Channel:     src.Channel,
		Module:      src.Module,
	}
	return result
}

// fetch waits on the per-host limiter before fetching url.
func (c *Collector) fetch(ctx context.Context, url string) (string, error) {
	if c.RateLimiter != nil {
		if err := c.RateLimiter.Wait(ctx, Host(url)); err != nil {
			return "", err
		}
	}
	return c.Fetcher.Fetch(ctx, url)
}

func (c *Collector) retryDelays() []time.Duration {
	if c.RetryDelays == nil {
		return DefaultRetryDelays()
	}
	return c.RetryDelays
}

// extract runs the primary extractor and falls back when it yields no text.
func (c *Collector) extract(html string) (*harvest.ExtractResult, error) {
	res, err := c.Extractor.Extract(html)
	if err == nil && strings.TrimSpace(res.Text) != "" {
		return res, nil
	}
	if c.Fallback == nil {
		if err == nil {
			err = harvest.Errorf(harvest.EINVALID, "no article text found")
		}
		return nil, err
	}

	fb, ferr := c.Fallback.Extract(html)
	if ferr != nil {
		return nil, ferr
	}
	if strings.TrimSpace(fb.Text) == "" {
		return nil, harvest.Errorf(harvest.EINVALID, "no article text found")
	}
	// Keep the primary extractor's date and title when the fallback has none.
	if res != nil {
		if fb.PublishTime == nil {
			fb.PublishTime = res.PublishTime
		}
		if fb.Title == "" {
			fb.Title = res.Title
		}
	}
	return fb, nil
}
