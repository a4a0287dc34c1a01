package main

import (
	"fmt"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/fwojciec/harvest"
)

// Run executes the stats command.
func (c *StatsCmd) Run(deps *Dependencies) error {
	stats, err := deps.Store.Statistics(deps.Ctx)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	if c.JSON {
		return writeJSON(deps.Stdout, stats)
	}

	fmt.Fprintf(deps.Stdout, "Documents:  %d\n", stats.TotalDocuments)
	fmt.Fprintf(deps.Stdout, "Vectors:    %d dimensions, %s\n", stats.Dimension, stats.Metric)
	fmt.Fprintf(deps.Stdout, "Index:      %s\n", humanize.IBytes(uint64(stats.IndexSizeBytes)))
	fmt.Fprintf(deps.Stdout, "Metadata:   %s\n", humanize.IBytes(uint64(stats.MetadataSizeBytes)))
	if stats.EarliestPublishTime != nil {
		fmt.Fprintf(deps.Stdout, "Published:  %s to %s\n", formatDate(stats.EarliestPublishTime), formatDate(stats.LatestPublishTime))
	}

	if len(stats.Channels) > 0 {
		fmt.Fprintln(deps.Stdout, "Channels:")
		names := make([]string, 0, len(stats.Channels))
		for name := range stats.Channels {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(deps.Stdout, "  %-20s %d\n", orDash(name), stats.Channels[name])
		}
	}
	return nil
}
