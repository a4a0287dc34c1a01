package ingest

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Report summarizes one pipeline run. It is JSON-encodable for notification.
type Report struct {
	RunID            string    `json:"runId"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
	Inserted         []int     `json:"inserted"`
	SkippedDuplicate []string  `json:"skippedDuplicate"`
	Failed           []Failure `json:"failed"`

	// Bytes and Tokens total the content of inserted articles.
	Bytes  int64 `json:"bytes"`
	Tokens int   `json:"tokens"`
}

// Failure records an article that could not be inserted.
type Failure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// Summary returns a one-line human-readable account of the run.
func (r *Report) Summary() string {
	s := fmt.Sprintf("inserted %d, skipped %d duplicates, failed %d",
		len(r.Inserted), len(r.SkippedDuplicate), len(r.Failed))
	if r.Bytes > 0 {
		s += " (" + humanize.IBytes(uint64(r.Bytes))
		if r.Tokens > 0 {
			s += ", ~" + humanize.Comma(int64(r.Tokens)) + " tokens"
		}
		s += ")"
	}
	if !r.FinishedAt.IsZero() {
		s += fmt.Sprintf(" in %s", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	}
	return s
}
