package harvest

import (
	"context"
	"time"
)

// Article is a freshly scraped record as supplied by a scraper or source.
type Article struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishTime *time.Time `json:"publishTime,omitempty"`
	Channel     string     `json:"channel"`
	Module      string     `json:"module"`
}

// Validate returns an error if the article contains invalid fields.
func (a *Article) Validate() error {
	if a.URL == "" {
		return Errorf(EINVALID, "article URL required")
	}
	if a.Content == "" {
		return Errorf(EINVALID, "article content required")
	}
	return nil
}

// Document represents a harvested article and its derived state.
// Documents are never mutated after insertion.
type Document struct {
	ID          int        `json:"id"`
	URL         string     `json:"url"`
	ContentHash string     `json:"contentHash"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	PublishTime *time.Time `json:"publishTime,omitempty"`
	Channel     string     `json:"channel"`
	Module      string     `json:"module"`
	Vector      []float32  `json:"-"`
	InsertedAt  time.Time  `json:"insertedAt"`
}

// InsertStatus describes what happened to an inserted article.
type InsertStatus int

// InsertStatus values.
const (
	Inserted InsertStatus = iota
	DuplicateSkipped
)

func (s InsertStatus) String() string {
	switch s {
	case Inserted:
		return "inserted"
	case DuplicateSkipped:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Duplicate reasons reported with DuplicateSkipped.
const (
	DuplicateURL     = "url"
	DuplicateContent = "content"
)

// InsertOutcome is the result of DocumentStore.Insert.
// For Inserted, ID is the new row id. For DuplicateSkipped, ID is the row id of
// the existing document and Reason says which key matched.
type InsertOutcome struct {
	Status InsertStatus
	ID     int
	Reason string
}

// DocumentResult is a single ranked search hit.
type DocumentResult struct {
	ID          int        `json:"id"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Score       float32    `json:"score"`
	PublishTime *time.Time `json:"publishTime,omitempty"`
	Channel     string     `json:"channel,omitempty"`
	Module      string     `json:"module,omitempty"`
	Content     string     `json:"content,omitempty"`
}

// SearchOptions configures DocumentStore.Search.
type SearchOptions struct {
	// Number of results to return. Must be at least 1.
	TopK int `json:"topK"`

	// Restricts results to documents published inside the range.
	// A zero DateRange means no date filtering.
	DateRange DateRange `json:"dateRange"`

	// Drops results scoring below this value when non-zero.
	MinScore float32 `json:"minScore,omitempty"`
}

// Statistics summarizes the contents of a DocumentStore.
type Statistics struct {
	TotalDocuments      int            `json:"totalDocuments"`
	IndexSizeBytes      int64          `json:"indexSizeBytes"`
	MetadataSizeBytes   int64          `json:"metadataSizeBytes"`
	EarliestPublishTime *time.Time     `json:"earliestPublishTime,omitempty"`
	LatestPublishTime   *time.Time     `json:"latestPublishTime,omitempty"`
	Dimension           int            `json:"dimension"`
	Metric              Metric         `json:"metric"`
	Channels            map[string]int `json:"channels"`
	Dates               map[string]int `json:"dates"`
}

// DocumentStore is the consistency boundary over a vector index and its metadata.
type DocumentStore interface {
	// Insert embeds and stores an article unless its URL or content is already
	// present. Embedder failures are returned as EEMBEDDING.
	Insert(ctx context.Context, article *Article, embedder Embedder) (InsertOutcome, error)

	// Search returns documents ranked by similarity to the query text.
	Search(ctx context.Context, query string, embedder Embedder, opts SearchOptions) ([]DocumentResult, error)

	// FindByDate returns documents published inside the range, newest first.
	// A limit of zero or less returns all matches.
	FindByDate(ctx context.Context, r DateRange, limit int) ([]*Document, error)

	// Statistics returns summary figures for the store.
	Statistics(ctx context.Context) (*Statistics, error)

	// Save persists the index and metadata as one logical unit.
	Save(prefix string) error
}
