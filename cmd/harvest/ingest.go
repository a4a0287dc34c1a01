package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/fs"
	"github.com/fwojciec/harvest/ingest"
)

// Run executes the ingest command.
func (c *IngestCmd) Run(deps *Dependencies) error {
	var batch []*harvest.Article
	var rejected []ingest.Failure
	for _, path := range c.Files {
		articles, bad, err := fs.ReadArticles(path)
		if err != nil {
			fmt.Fprintf(deps.Stderr, "error: %s: %s\n", path, harvest.ErrorMessage(err))
			return err
		}
		batch = append(batch, articles...)
		for _, r := range bad {
			rejected = append(rejected, ingest.Failure{URL: r.URL, Reason: harvest.ErrorMessage(r.Err)})
		}
	}

	fmt.Fprintf(deps.Stdout, "Read %d articles\n", len(batch))
	return runPipeline(deps, batch, rejected, c.PipelineFlags)
}

// runPipeline ingests batch into the store, prints the report summary and
// optionally writes the full report as JSON. Records rejected while reading
// the input are listed among the failures.
func runPipeline(deps *Dependencies, batch []*harvest.Article, rejected []ingest.Failure, flags PipelineFlags) error {
	cfg := flags.PipelineConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	p := &ingest.Pipeline{
		Store:        deps.Store,
		Embedder:     deps.Embedder,
		Path:         deps.StorePath,
		Logger:       deps.Logger,
		TokenCounter: deps.TokenCounter,
		Rejected:     rejected,
	}

	report, err := p.Run(deps.Ctx, batch, cfg)
	if report != nil {
		fmt.Fprintln(deps.Stdout, report.Summary())
		for _, f := range report.Failed {
			fmt.Fprintf(deps.Stderr, "  failed %s: %s\n", f.URL, f.Reason)
		}
		if flags.Report != "" {
			if werr := writeReport(flags.Report, report); werr != nil {
				fmt.Fprintf(deps.Stderr, "error: write report: %v\n", werr)
				if err == nil {
					err = werr
				}
			}
		}
	}
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}
	return nil
}

func writeReport(path string, report *ingest.Report) error {
	return fs.WriteFile(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
}
