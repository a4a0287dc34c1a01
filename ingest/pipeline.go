// Package ingest feeds batches of scraped articles into a document store.
//
// Articles are processed one at a time with optional pacing. Embedding
// failures are retried with exponential backoff and isolated to the article
// that caused them; configuration and integrity errors stop the batch.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Pipeline inserts batches into Store and saves it once per batch.
type Pipeline struct {
	Store    harvest.DocumentStore
	Embedder harvest.Embedder

	// Path is the store prefix saved after each batch. Empty skips saving.
	Path string

	// Logger receives per-article progress. Defaults to discarding output.
	Logger *slog.Logger

	// TokenCounter, if set, totals tokens of inserted content for the report.
	TokenCounter harvest.TokenCounter

	// Rejected lists input records refused before the run, such as ones with
	// an unreadable publish time. They open the report's Failed list.
	Rejected []Failure

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Run processes batch in order. The returned report is never nil.
//
// On cancellation the report so far and ctx.Err() are returned and the store
// is not saved. A dimension mismatch or integrity error also stops the run
// without saving.
func (p *Pipeline) Run(ctx context.Context, batch []*harvest.Article, cfg Config) (*Report, error) {
	now := p.Now
	if now == nil {
		now = time.Now
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	report := &Report{
		RunID:            uuid.NewString(),
		StartedAt:        now().UTC(),
		Inserted:         []int{},
		SkippedDuplicate: []string{},
		Failed:           append([]Failure{}, p.Rejected...),
	}
	finish := func(err error) (*Report, error) {
		report.FinishedAt = now().UTC()
		return report, err
	}

	if err := cfg.Validate(); err != nil {
		return finish(err)
	}
	logger = logger.With("run", report.RunID)

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	pacer := rate.NewLimiter(limit, 1)

	for i, a := range batch {
		if a == nil {
			report.Failed = append(report.Failed, Failure{Reason: "nil article"})
			logger.Warn("article failed", "n", i+1, "err", "nil article")
			continue
		}
		if err := pacer.Wait(ctx); err != nil {
			return finish(ctxErr(ctx, err))
		}

		out, err := p.insert(ctx, a, cfg, logger)
		switch {
		case err == nil && out.Status == harvest.DuplicateSkipped:
			report.SkippedDuplicate = append(report.SkippedDuplicate, a.URL)
			logger.Debug("duplicate skipped", "url", a.URL, "reason", out.Reason, "existing", out.ID)
		case err == nil:
			report.Inserted = append(report.Inserted, out.ID)
			report.Bytes += int64(len(a.Content))
			report.Tokens += p.countTokens(ctx, a.Content, logger)
			logger.Debug("inserted", "url", a.URL, "id", out.ID, "n", i+1, "total", len(batch))
		case ctx.Err() != nil:
			return finish(ctx.Err())
		case harvest.IsConfigError(err) || harvest.IsIntegrityError(err):
			logger.Error("aborting batch", "url", a.URL, "err", err)
			return finish(err)
		default:
			report.Failed = append(report.Failed, Failure{URL: a.URL, Reason: harvest.ErrorMessage(err)})
			logger.Warn("article failed", "url", a.URL, "err", err)
		}
	}

	if p.Path != "" {
		if err := p.Store.Save(p.Path); err != nil {
			return finish(err)
		}
	}
	return finish(nil)
}

// insert calls Store.Insert, retrying embedding failures with backoff.
func (p *Pipeline) insert(ctx context.Context, a *harvest.Article, cfg Config, logger *slog.Logger) (harvest.InsertOutcome, error) {
	for attempt := 0; ; attempt++ {
		out, err := p.Store.Insert(ctx, a, p.Embedder)
		if err == nil || !harvest.IsTransient(err) || attempt >= cfg.MaxRetries {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		delay := cfg.Backoff(attempt)
		logger.Info("retrying embedding", "url", a.URL, "attempt", attempt+2, "delay", delay, "err", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return out, ctx.Err()
		case <-timer.C:
		}
	}
}

func (p *Pipeline) countTokens(ctx context.Context, text string, logger *slog.Logger) int {
	if p.TokenCounter == nil {
		return 0
	}
	n, err := p.TokenCounter.CountTokens(ctx, text)
	if err != nil {
		logger.Debug("token count failed", "err", err)
		return 0
	}
	return n
}

// ctxErr prefers the context's own error over the limiter's wrapping of it.
func ctxErr(ctx context.Context, err error) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return err
}
