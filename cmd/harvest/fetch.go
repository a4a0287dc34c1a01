package main

import (
	"fmt"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/crawl"
)

// Run executes the fetch command.
func (c *FetchCmd) Run(deps *Dependencies) error {
	// Compile filters early so bad patterns fail before any network access
	filter, err := c.urlFilter()
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	src := crawl.Source{
		URL:     c.URL,
		Channel: c.Channel,
		Module:  c.Module,
		Filter:  filter,
		Listing: c.Listing,
	}

	if c.Preview {
		urls, err := c.discover(deps, src)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %v\n", err)
			return err
		}
		for _, u := range urls {
			fmt.Fprintln(deps.Stdout, u)
		}
		return nil
	}

	if c.Concurrency > 0 {
		deps.Collector.Concurrency = c.Concurrency
	}

	progress := func(event crawl.ProgressEvent) {
		switch event.Type {
		case crawl.ProgressStarted:
			fmt.Fprintf(deps.Stdout, "  Found %d URLs\n", event.Total)
		case crawl.ProgressFailed:
			fmt.Fprintf(deps.Stderr, "  skip %s: %v\n", crawl.DisplayURL(event.URL, 80), event.Error)
		}
	}

	articles, result, err := deps.Collector.Collect(deps.Ctx, src, progress)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error collecting: %v\n", err)
		return err
	}

	fmt.Fprintf(deps.Stdout, "  Collected %d articles (%s), %d failed\n",
		result.Collected, humanize.IBytes(uint64(result.Bytes)), result.Failed)

	return runPipeline(deps, articles, nil, c.PipelineFlags)
}

// discover lists article URLs for preview. Sitemap previews need only the
// sitemap service; listing previews go through the collector.
func (c *FetchCmd) discover(deps *Dependencies, src crawl.Source) ([]string, error) {
	if src.Listing {
		if deps.Collector == nil {
			return nil, harvest.Errorf(harvest.EINTERNAL, "collector not configured")
		}
		return deps.Collector.Discover(deps.Ctx, src)
	}
	if deps.Sitemaps == nil {
		return nil, harvest.Errorf(harvest.EINTERNAL, "sitemap service not configured")
	}
	return deps.Sitemaps.DiscoverURLs(deps.Ctx, c.URL, src.Filter)
}

func (c *FetchCmd) urlFilter() (*harvest.URLFilter, error) {
	if len(c.Filter) == 0 && len(c.Exclude) == 0 && c.Since == "" {
		return nil, nil
	}

	filter := &harvest.URLFilter{}
	for _, pattern := range c.Filter {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, harvest.Errorf(harvest.EINVALID, "invalid filter pattern %q: %v", pattern, err)
		}
		filter.Include = append(filter.Include, re)
	}
	for _, pattern := range c.Exclude {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, harvest.Errorf(harvest.EINVALID, "invalid exclude pattern %q: %v", pattern, err)
		}
		filter.Exclude = append(filter.Exclude, re)
	}
	if c.Since != "" {
		since, err := harvest.ParsePublishTime(c.Since)
		if err != nil {
			return nil, err
		}
		filter.ModifiedSince = *since
	}
	return filter, nil
}
