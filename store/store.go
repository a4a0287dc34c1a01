// Package store implements harvest.DocumentStore on top of a vector index and
// a metadata store, keeping the two consistent across inserts and saves.
package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/flat"
	"github.com/fwojciec/harvest/fs"
	"github.com/fwojciec/harvest/sqlite"
	"golang.org/x/sync/errgroup"
)

// Defaults applied by New.
const (
	DefaultEmbedTimeout = 30 * time.Second
	DefaultOversample   = 4
)

// IndexPath returns the index file path for a store prefix.
func IndexPath(prefix string) string { return prefix + ".index" }

// MetadataPath returns the metadata file path for a store prefix.
func MetadataPath(prefix string) string { return prefix + ".sqlite" }

// Ensure Store implements harvest.DocumentStore at compile time.
var _ harvest.DocumentStore = (*Store)(nil)

// Store is the consistency boundary over a VectorIndex and a MetadataStore.
// Inserts and saves take the write lock; queries take the read lock.
// Embedding happens outside the lock.
type Store struct {
	mu    sync.RWMutex
	index harvest.VectorIndex
	meta  harvest.MetadataStore

	// EmbedTimeout bounds each embedder call.
	EmbedTimeout time.Duration

	// Oversample multiplies TopK when a date filter discards candidates.
	Oversample int

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// New creates a store from an index and metadata store of equal length.
func New(index harvest.VectorIndex, meta harvest.MetadataStore) (*Store, error) {
	if index.Len() != meta.Len() {
		return nil, harvest.Errorf(harvest.ESTORECORRUPT,
			"index has %d rows but metadata has %d", index.Len(), meta.Len())
	}
	return &Store{
		index:        index,
		meta:         meta,
		EmbedTimeout: DefaultEmbedTimeout,
		Oversample:   DefaultOversample,
		Now:          time.Now,
	}, nil
}

// Create returns an empty store for vectors of the given dimension and metric.
func Create(dim int, metric harvest.Metric) (*Store, error) {
	index, err := flat.New(dim, metric)
	if err != nil {
		return nil, err
	}
	return New(index, sqlite.NewMetadataStore())
}

// Load reads both files of a saved store concurrently.
func Load(prefix string) (*Store, error) {
	ok, err := filesExist(prefix)
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, harvest.Errorf(harvest.ENOTFOUND, "store at %s not found", prefix)
	}

	var (
		index *flat.Index
		meta  *sqlite.MetadataStore
		g     errgroup.Group
	)
	g.Go(func() (err error) {
		index, err = flat.Load(IndexPath(prefix))
		return err
	})
	g.Go(func() (err error) {
		meta, err = sqlite.LoadMetadata(MetadataPath(prefix))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(index, meta)
}

// Open loads the store at prefix if it exists or creates an empty one.
// A loaded store must match the configured dimension and metric.
func Open(prefix string, dim int, metric harvest.Metric) (*Store, error) {
	exists, err := filesExist(prefix)
	if err != nil {
		return nil, err
	}
	if !exists {
		return Create(dim, metric)
	}

	s, err := Load(prefix)
	if err != nil {
		return nil, err
	}
	if d := s.index.Dimension(); d != dim {
		return nil, harvest.Errorf(harvest.EDIMENSION, "store at %s has dimension %d, configured %d", prefix, d, dim)
	}
	if m := s.index.Metric(); m != metric {
		return nil, harvest.Errorf(harvest.EINVALID, "store at %s uses metric %s, configured %s", prefix, m, metric)
	}
	return s, nil
}

// filesExist reports whether both store files exist.
// Exactly one of them existing is ESTORECORRUPT.
func filesExist(prefix string) (bool, error) {
	idx, err := fs.Exists(IndexPath(prefix))
	if err != nil {
		return false, err
	}
	meta, err := fs.Exists(MetadataPath(prefix))
	if err != nil {
		return false, err
	}
	if idx != meta {
		return false, harvest.Errorf(harvest.ESTORECORRUPT,
			"store at %s is incomplete: index present=%t, metadata present=%t", prefix, idx, meta)
	}
	return idx, nil
}

// Dimension returns the vector dimension of the store.
func (s *Store) Dimension() int { return s.index.Dimension() }

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta.Len()
}

// Insert embeds and stores article unless its URL or content is already known.
func (s *Store) Insert(ctx context.Context, article *harvest.Article, embedder harvest.Embedder) (harvest.InsertOutcome, error) {
	if article == nil {
		return harvest.InsertOutcome{}, harvest.Errorf(harvest.EINVALID, "article required")
	}
	if err := article.Validate(); err != nil {
		return harvest.InsertOutcome{}, err
	}
	url, err := harvest.CanonicalURL(article.URL)
	if err != nil {
		return harvest.InsertOutcome{}, err
	}
	hash := harvest.ContentHash(article.Content)

	s.mu.RLock()
	outcome, dup := s.duplicate(url, hash)
	s.mu.RUnlock()
	if dup {
		return outcome, nil
	}

	vec, err := s.embed(ctx, article.Content, embedder)
	if err != nil {
		return harvest.InsertOutcome{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another writer may have inserted the same article while we embedded.
	if outcome, dup := s.duplicate(url, hash); dup {
		return outcome, nil
	}
	if len(vec) != s.index.Dimension() {
		return harvest.InsertOutcome{}, harvest.Errorf(harvest.EDIMENSION,
			"embedder returned dimension %d, store expects %d", len(vec), s.index.Dimension())
	}

	row, err := s.index.Append(vec)
	if err != nil {
		return harvest.InsertOutcome{}, err
	}

	var publishTime *time.Time
	if article.PublishTime != nil {
		t := article.PublishTime.UTC()
		publishTime = &t
	}
	doc := &harvest.Document{
		URL:         url,
		ContentHash: hash,
		Title:       article.Title,
		Content:     article.Content,
		PublishTime: publishTime,
		Channel:     article.Channel,
		Module:      article.Module,
		InsertedAt:  s.Now().UTC(),
	}
	if err := s.meta.Put(row, doc); err != nil {
		if terr := s.index.Truncate(row); terr != nil {
			return harvest.InsertOutcome{}, harvest.WrapError(harvest.ESTORECORRUPT, terr, "rollback after %v", err)
		}
		return harvest.InsertOutcome{}, err
	}

	return harvest.InsertOutcome{Status: harvest.Inserted, ID: row}, nil
}

// duplicate checks the dedup keys. Called with the lock held.
func (s *Store) duplicate(url, hash string) (harvest.InsertOutcome, bool) {
	if id, ok := s.meta.FindByURL(url); ok {
		return harvest.InsertOutcome{Status: harvest.DuplicateSkipped, ID: id, Reason: harvest.DuplicateURL}, true
	}
	if id, ok := s.meta.FindByHash(hash); ok {
		return harvest.InsertOutcome{Status: harvest.DuplicateSkipped, ID: id, Reason: harvest.DuplicateContent}, true
	}
	return harvest.InsertOutcome{}, false
}

// embed calls the embedder under EmbedTimeout and classifies failures.
func (s *Store) embed(ctx context.Context, text string, embedder harvest.Embedder) ([]float32, error) {
	if s.EmbedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.EmbedTimeout)
		defer cancel()
	}
	vec, err := embedder.Embed(ctx, text)
	if err != nil {
		if harvest.ErrorCode(err) == harvest.EDIMENSION {
			return nil, err
		}
		return nil, harvest.WrapError(harvest.EEMBEDDING, err, "embed")
	}
	return vec, nil
}

// Search returns the documents most similar to query.
func (s *Store) Search(ctx context.Context, query string, embedder harvest.Embedder, opts harvest.SearchOptions) ([]harvest.DocumentResult, error) {
	if opts.TopK < 1 {
		return nil, harvest.Errorf(harvest.EINVALID, "top k must be at least 1, got %d", opts.TopK)
	}

	s.mu.RLock()
	empty := s.meta.Len() == 0
	s.mu.RUnlock()
	if empty {
		return []harvest.DocumentResult{}, nil
	}

	vec, err := s.embed(ctx, query, embedder)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(vec) != s.index.Dimension() {
		return nil, harvest.Errorf(harvest.EDIMENSION,
			"query embedding has dimension %d, store expects %d", len(vec), s.index.Dimension())
	}

	hits, err := s.candidates(vec, opts)
	if err != nil {
		return nil, err
	}

	results := make([]harvest.DocumentResult, 0, len(hits))
	for _, h := range hits {
		d, err := s.meta.Get(h.Row)
		if err != nil {
			return nil, harvest.WrapError(harvest.ESTORECORRUPT, err, "hydrate row %d", h.Row)
		}
		results = append(results, harvest.DocumentResult{
			ID:          d.ID,
			Title:       d.Title,
			URL:         d.URL,
			Score:       h.Score,
			PublishTime: d.PublishTime,
			Channel:     d.Channel,
			Module:      d.Module,
			Content:     d.Content,
		})
	}
	return results, nil
}

// candidates runs the index search, applying the date filter with a single
// widening pass when the filter leaves fewer than TopK hits.
// Called with the read lock held.
func (s *Store) candidates(vec []float32, opts harvest.SearchOptions) ([]harvest.Hit, error) {
	if opts.DateRange.IsZero() {
		hits, err := s.index.Search(vec, opts.TopK)
		if err != nil {
			return nil, err
		}
		return filterScore(hits, opts.MinScore), nil
	}

	oversample := max(s.Oversample, 1)
	k := max(opts.TopK, opts.TopK*oversample)
	allowed := s.meta.FilterByDate(opts.DateRange)
	if len(allowed) == 0 {
		return nil, nil
	}

	hits, err := s.index.Search(vec, k)
	if err != nil {
		return nil, err
	}
	kept := keep(hits, allowed, opts)
	if len(kept) < opts.TopK && len(hits) == k && k < s.index.Len() {
		if hits, err = s.index.Search(vec, k*oversample); err != nil {
			return nil, err
		}
		kept = keep(hits, allowed, opts)
	}
	return kept, nil
}

func keep(hits []harvest.Hit, allowed map[int]struct{}, opts harvest.SearchOptions) []harvest.Hit {
	out := make([]harvest.Hit, 0, opts.TopK)
	for _, h := range filterScore(hits, opts.MinScore) {
		if _, ok := allowed[h.Row]; !ok {
			continue
		}
		out = append(out, h)
		if len(out) == opts.TopK {
			break
		}
	}
	return out
}

func filterScore(hits []harvest.Hit, minScore float32) []harvest.Hit {
	if minScore == 0 {
		return hits
	}
	out := hits[:0:0]
	for _, h := range hits {
		if h.Score >= minScore {
			out = append(out, h)
		}
	}
	return out
}

// FindByDate returns documents published inside r, newest first, ties broken
// by lower id. A limit of zero or less returns every match.
func (s *Store) FindByDate(ctx context.Context, r harvest.DateRange, limit int) ([]*harvest.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.meta.FilterByDate(r)
	docs := make([]*harvest.Document, 0, len(ids))
	for id := range ids {
		d, err := s.meta.Get(id)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	slices.SortFunc(docs, func(a, b *harvest.Document) int {
		if c := b.PublishTime.Compare(*a.PublishTime); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

// Statistics summarizes the store contents.
func (s *Store) Statistics(ctx context.Context) (*harvest.Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &harvest.Statistics{
		TotalDocuments:    s.meta.Len(),
		IndexSizeBytes:    s.index.EncodedSize(),
		MetadataSizeBytes: s.meta.PayloadSize(),
		Dimension:         s.index.Dimension(),
		Metric:            s.index.Metric(),
		Channels:          make(map[string]int),
		Dates:             make(map[string]int),
	}
	for _, d := range s.meta.All() {
		if d.Channel != "" {
			st.Channels[d.Channel]++
		}
		if d.PublishTime == nil {
			continue
		}
		st.Dates[d.PublishTime.Format(time.DateOnly)]++
		if st.EarliestPublishTime == nil || d.PublishTime.Before(*st.EarliestPublishTime) {
			st.EarliestPublishTime = d.PublishTime
		}
		if st.LatestPublishTime == nil || d.PublishTime.After(*st.LatestPublishTime) {
			st.LatestPublishTime = d.PublishTime
		}
	}
	return st, nil
}

// Save writes the index and metadata files for prefix. Both files are staged
// concurrently and renamed into place only after both are complete, index
// first. A crash between the two renames leaves a newer index beside the
// previous metadata; Load reports that pair as ESTORECORRUPT rather than
// serving either half.
func (s *Store) Save(prefix string) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	indexStage, err := fs.NewStage(IndexPath(prefix))
	if err != nil {
		return err
	}
	metaStage, err := fs.NewStage(MetadataPath(prefix))
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = indexStage.Abort()
			_ = metaStage.Abort()
		}
	}()

	var g errgroup.Group
	g.Go(func() error { return s.index.Save(indexStage.Path()) })
	g.Go(func() error { return s.meta.Save(metaStage.Path()) })
	if err := g.Wait(); err != nil {
		return err
	}

	if err := indexStage.Commit(); err != nil {
		return err
	}
	return metaStage.Commit()
}
