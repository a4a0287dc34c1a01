package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fwojciec/harvest"
)

// Run executes the search command.
func (c *SearchCmd) Run(deps *Dependencies) error {
	rng, err := harvest.ParseDateRange(c.Start, c.End)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	results, err := deps.Store.Search(deps.Ctx, c.Query, deps.Embedder, harvest.SearchOptions{
		TopK:      c.TopK,
		DateRange: rng,
		MinScore:  c.MinScore,
	})
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	if c.JSON {
		return writeJSON(deps.Stdout, results)
	}

	if len(results) == 0 {
		fmt.Fprintln(deps.Stdout, "No matching documents.")
		return nil
	}
	for i, r := range results {
		fmt.Fprintf(deps.Stdout, "%d. [%.3f] %s\n", i+1, r.Score, titleOrURL(r.Title, r.URL))
		fmt.Fprintf(deps.Stdout, "   %s  %s  %s\n", formatDate(r.PublishTime), orDash(r.Channel), r.URL)
		if c.Content {
			fmt.Fprintf(deps.Stdout, "\n%s\n\n", r.Content)
		}
	}
	return nil
}

// Run executes the recent command.
func (c *RecentCmd) Run(deps *Dependencies) error {
	if c.Days < 0 {
		err := harvest.Errorf(harvest.EINVALID, "days must not be negative")
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	docs, err := deps.Store.FindByDate(deps.Ctx, harvest.LastDays(time.Now(), c.Days), c.Limit)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	if c.JSON {
		if docs == nil {
			docs = []*harvest.Document{}
		}
		return writeJSON(deps.Stdout, docs)
	}

	if len(docs) == 0 {
		fmt.Fprintf(deps.Stdout, "No documents published in the last %d days.\n", c.Days)
		return nil
	}
	for _, d := range docs {
		fmt.Fprintf(deps.Stdout, "%s  %-12s  %s\n", formatDate(d.PublishTime), orDash(d.Channel), titleOrURL(d.Title, d.URL))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "----------"
	}
	return t.Format("2006-01-02")
}

func titleOrURL(title, url string) string {
	if title == "" {
		return url
	}
	return title
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
