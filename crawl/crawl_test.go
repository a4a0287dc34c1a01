package crawl_test

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/crawl"
	"github.com/fwojciec/harvest/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Collect(t *testing.T) {
	t.Parallel()

	t.Run("returns nothing when sitemap has no URLs", func(t *testing.T) {
		t.Parallel()

		c := &crawl.Collector{
			Sitemaps: &mock.SitemapService{
				DiscoverURLsFn: func(context.Context, string, *harvest.URLFilter) ([]string, error) {
					return []string{}, nil
				},
			},
			Fetcher:     &mock.Fetcher{},
			Extractor:   &mock.Extractor{},
			RetryDelays: []time.Duration{0},
		}

		articles, result, err := c.Collect(context.Background(), crawl.Source{URL: "https://example.com"}, nil)

		require.NoError(t, err)
		assert.Empty(t, articles)
		assert.Equal(t, 0, result.Collected)
		assert.Equal(t, 0, result.Failed)
	})

	t.Run("collects articles in sitemap order", func(t *testing.T) {
		t.Parallel()

		published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		var gotFilter *harvest.URLFilter
		filter := &harvest.URLFilter{}
		c := &crawl.Collector{
			Sitemaps: &mock.SitemapService{
				DiscoverURLsFn: func(_ context.Context, _ string, f *harvest.URLFilter) ([]string, error) {
					gotFilter = f
					return []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}, nil
				},
			},
			Fetcher: &mock.Fetcher{
				FetchFn: func(_ context.Context, url string) (string, error) {
					return "<html>" + url + "</html>", nil
				},
			},
			Extractor: &mock.Extractor{
				ExtractFn: func(html string) (*harvest.ExtractResult, error) {
					return &harvest.ExtractResult{Title: "T", Text: "body of " + html, PublishTime: &published}, nil
				},
			},
			Concurrency: 3,
			RetryDelays: []time.Duration{0},
		}
		src := crawl.Source{URL: "https://example.com", Channel: "news", Module: "industry", Filter: filter}

		articles, result, err := c.Collect(context.Background(), src, nil)

		require.NoError(t, err)
		require.Len(t, articles, 3)
		assert.Same(t, filter, gotFilter)
		for i, a := range articles {
			assert.Equal(t, fmt.Sprintf("https://example.com/%d", i+1), a.URL)
			assert.Equal(t, "news", a.Channel)
			assert.Equal(t, "industry", a.Module)
			assert.Equal(t, &published, a.PublishTime)
		}
		assert.Equal(t, 3, result.Collected)
		assert.Positive(t, result.Bytes)
	})

	t.Run("propagates sitemap error", func(t *testing.T) {
		t.Parallel()

		c := &crawl.Collector{
			Sitemaps: &mock.SitemapService{
				DiscoverURLsFn: func(context.Context, string, *harvest.URLFilter) ([]string, error) {
					return nil, errors.New("dns failure")
				},
			},
		}

		_, _, err := c.Collect(context.Background(), crawl.Source{URL: "https://example.com"}, nil)

		assert.ErrorContains(t, err, "dns failure")
	})
}

func TestCollector_CollectURLs(t *testing.T) {
	t.Parallel()

	t.Run("counts failed pages and keeps going", func(t *testing.T) {
		t.Parallel()

		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(_ context.Context, url string) (string, error) {
					if url == "https://example.com/missing" {
						return "", harvest.Errorf(harvest.ENOTFOUND, "HTTP 404")
					}
					return "<html></html>", nil
				},
			},
			Extractor: &mock.Extractor{
				ExtractFn: func(string) (*harvest.ExtractResult, error) {
					return &harvest.ExtractResult{Text: "content"}, nil
				},
			},
			RetryDelays: []time.Duration{0},
		}
		var mu sync.Mutex
		var events []crawl.ProgressType
		progress := func(e crawl.ProgressEvent) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, e.Type)
		}

		articles, result, err := c.CollectURLs(context.Background(),
			[]string{"https://example.com/ok", "https://example.com/missing"}, crawl.Source{}, progress)

		require.NoError(t, err)
		require.Len(t, articles, 1)
		assert.Equal(t, "https://example.com/ok", articles[0].URL)
		assert.Equal(t, 1, result.Failed)
		assert.Equal(t, crawl.ProgressStarted, events[0])
		assert.Equal(t, crawl.ProgressFinished, events[len(events)-1])
		assert.Contains(t, events, crawl.ProgressFailed)
	})

	t.Run("uses fallback extractor when primary finds no text", func(t *testing.T) {
		t.Parallel()

		published := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(context.Context, string) (string, error) { return "<html></html>", nil },
			},
			Extractor: &mock.Extractor{
				ExtractFn: func(string) (*harvest.ExtractResult, error) {
					return &harvest.ExtractResult{Title: "Primary", PublishTime: &published}, nil
				},
			},
			Fallback: &mock.Extractor{
				ExtractFn: func(string) (*harvest.ExtractResult, error) {
					return &harvest.ExtractResult{Text: "fallback text"}, nil
				},
			},
			RetryDelays: []time.Duration{0},
		}

		articles, _, err := c.CollectURLs(context.Background(), []string{"https://example.com/a"}, crawl.Source{}, nil)

		require.NoError(t, err)
		require.Len(t, articles, 1)
		assert.Equal(t, "fallback text", articles[0].Content)
		assert.Equal(t, "Primary", articles[0].Title)
		assert.Equal(t, &published, articles[0].PublishTime)
	})

	t.Run("fails page when no extractor finds text", func(t *testing.T) {
		t.Parallel()

		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(context.Context, string) (string, error) { return "<html></html>", nil },
			},
			Extractor: &mock.Extractor{
				ExtractFn: func(string) (*harvest.ExtractResult, error) {
					return nil, errors.New("no main content")
				},
			},
			RetryDelays: []time.Duration{0},
		}

		articles, result, err := c.CollectURLs(context.Background(), []string{"https://example.com/a"}, crawl.Source{}, nil)

		require.NoError(t, err)
		assert.Empty(t, articles)
		assert.Equal(t, 1, result.Failed)
	})

	t.Run("waits on rate limiter per host", func(t *testing.T) {
		t.Parallel()

		var mu sync.Mutex
		var hosts []string
		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(context.Context, string) (string, error) { return "<html></html>", nil },
			},
			Extractor: &mock.Extractor{
				ExtractFn: func(string) (*harvest.ExtractResult, error) {
					return &harvest.ExtractResult{Text: "x"}, nil
				},
			},
			RateLimiter: &mock.DomainLimiter{
				WaitFn: func(_ context.Context, domain string) error {
					mu.Lock()
					defer mu.Unlock()
					hosts = append(hosts, domain)
					return nil
				},
			},
			RetryDelays: []time.Duration{0},
		}

		_, _, err := c.CollectURLs(context.Background(), []string{"https://www.cheaa.com/news/1.html"}, crawl.Source{}, nil)

		require.NoError(t, err)
		assert.Equal(t, []string{"www.cheaa.com"}, hosts)
	})

	t.Run("returns context error when canceled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(ctx context.Context, _ string) (string, error) { return "", ctx.Err() },
			},
			Extractor:   &mock.Extractor{},
			RetryDelays: []time.Duration{0},
		}

		_, _, err := c.CollectURLs(ctx, []string{"https://example.com/a"}, crawl.Source{}, nil)

		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCollector_Discover(t *testing.T) {
	t.Parallel()

	t.Run("collects links from a listing page", func(t *testing.T) {
		t.Parallel()

		var fetched []string
		var mu sync.Mutex
		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(_ context.Context, url string) (string, error) {
					mu.Lock()
					fetched = append(fetched, url)
					mu.Unlock()
					return "<html>" + url + "</html>", nil
				},
			},
			Links: &mock.LinkSelector{
				ExtractLinksFn: func(html string, baseURL string) ([]harvest.DiscoveredLink, error) {
					assert.Equal(t, "<html>https://example.com/finance/</html>", html)
					assert.Equal(t, "https://example.com/finance/", baseURL)
					return []harvest.DiscoveredLink{
						{URL: "https://example.com/2025/1.html", Text: "One"},
						{URL: "https://example.com/2025/video/2.html", Text: "Two"},
						{URL: "https://example.com/2025/3.html", Text: "Three"},
					}, nil
				},
			},
			Extractor: &mock.Extractor{
				ExtractFn: func(string) (*harvest.ExtractResult, error) {
					return &harvest.ExtractResult{Text: "body"}, nil
				},
			},
			RetryDelays: []time.Duration{},
		}
		src := crawl.Source{
			URL:     "https://example.com/finance/",
			Channel: "finance",
			Listing: true,
			Filter:  &harvest.URLFilter{Exclude: []*regexp.Regexp{regexp.MustCompile(`/video/`)}},
		}

		articles, result, err := c.Collect(context.Background(), src, nil)

		require.NoError(t, err)
		require.Len(t, articles, 2)
		assert.Equal(t, "https://example.com/2025/1.html", articles[0].URL)
		assert.Equal(t, "https://example.com/2025/3.html", articles[1].URL)
		assert.Equal(t, "finance", articles[1].Channel)
		assert.Equal(t, 2, result.Collected)
		assert.Equal(t, "https://example.com/finance/", fetched[0])
		assert.Len(t, fetched, 3)
	})

	t.Run("reports listing fetch errors", func(t *testing.T) {
		t.Parallel()

		c := &crawl.Collector{
			Fetcher: &mock.Fetcher{
				FetchFn: func(context.Context, string) (string, error) {
					return "", harvest.Errorf(harvest.ENOTFOUND, "HTTP 404")
				},
			},
			Links:       &mock.LinkSelector{},
			RetryDelays: []time.Duration{0},
		}

		_, err := c.Discover(context.Background(), crawl.Source{URL: "https://example.com/gone/", Listing: true})

		require.Error(t, err)
		assert.Equal(t, harvest.ENOTFOUND, harvest.ErrorCode(err))
	})

	t.Run("requires a link selector for listing sources", func(t *testing.T) {
		t.Parallel()

		c := &crawl.Collector{}

		_, err := c.Discover(context.Background(), crawl.Source{URL: "https://example.com/", Listing: true})

		require.Error(t, err)
	})
}

func TestCollector_DetectsMissingPublishTime(t *testing.T) {
	t.Parallel()

	detected := time.Date(2025, 9, 21, 0, 0, 0, 0, time.UTC)
	extracted := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &crawl.Collector{
		Fetcher: &mock.Fetcher{
			FetchFn: func(_ context.Context, url string) (string, error) { return url, nil },
		},
		Extractor: &mock.Extractor{
			ExtractFn: func(html string) (*harvest.ExtractResult, error) {
				if html == "https://example.com/dated" {
					return &harvest.ExtractResult{Text: "body", PublishTime: &extracted}, nil
				}
				return &harvest.ExtractResult{Text: "body"}, nil
			},
		},
		Dates: &mock.DateDetector{
			DetectPublishTimeFn: func(string) *time.Time { return &detected },
		},
		RetryDelays: []time.Duration{0},
	}

	articles, _, err := c.CollectURLs(context.Background(),
		[]string{"https://example.com/dated", "https://example.com/undated"}, crawl.Source{}, nil)

	require.NoError(t, err)
	require.Len(t, articles, 2)
	assert.Equal(t, &extracted, articles[0].PublishTime)
	assert.Equal(t, &detected, articles[1].PublishTime)
}
