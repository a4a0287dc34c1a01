package mock

import (
	"context"

	"github.com/fwojciec/harvest"
)

var _ harvest.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is a mock implementation of harvest.DocumentStore.
type DocumentStore struct {
	InsertFn     func(ctx context.Context, article *harvest.Article, embedder harvest.Embedder) (harvest.InsertOutcome, error)
	SearchFn     func(ctx context.Context, query string, embedder harvest.Embedder, opts harvest.SearchOptions) ([]harvest.DocumentResult, error)
	FindByDateFn func(ctx context.Context, r harvest.DateRange, limit int) ([]*harvest.Document, error)
	StatisticsFn func(ctx context.Context) (*harvest.Statistics, error)
	SaveFn       func(prefix string) error
}

func (s *DocumentStore) Insert(ctx context.Context, article *harvest.Article, embedder harvest.Embedder) (harvest.InsertOutcome, error) {
	return s.InsertFn(ctx, article, embedder)
}

func (s *DocumentStore) Search(ctx context.Context, query string, embedder harvest.Embedder, opts harvest.SearchOptions) ([]harvest.DocumentResult, error) {
	return s.SearchFn(ctx, query, embedder, opts)
}

func (s *DocumentStore) FindByDate(ctx context.Context, r harvest.DateRange, limit int) ([]*harvest.Document, error) {
	return s.FindByDateFn(ctx, r, limit)
}

func (s *DocumentStore) Statistics(ctx context.Context) (*harvest.Statistics, error) {
	return s.StatisticsFn(ctx)
}

func (s *DocumentStore) Save(prefix string) error {
	return s.SaveFn(prefix)
}
