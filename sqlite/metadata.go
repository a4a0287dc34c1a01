package sqlite

import (
	"context"
	"database/sql"
	"strconv"
	"sync"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/bloom"
	"github.com/fwojciec/harvest/fs"
)

// Bloom filter sizing for the dedup keys.
const (
	bloomInitialCap = 1024
	bloomFPRate     = 0.001
)

// Compile-time interface verification.
var _ harvest.MetadataStore = (*MetadataStore)(nil)

// MetadataStore keeps document metadata in memory, indexed by row id, URL and
// content hash, and persists it as a SQLite file. Content-hash lookups go
// through a Bloom filter first so that the common "new content" case never
// touches the map. It is safe for concurrent use.
type MetadataStore struct {
	mu      sync.RWMutex
	docs    []*harvest.Document
	byURL   map[string]int
	byHash  map[string]int
	hashes  *bloom.Filter
	payload int64
}

// NewMetadataStore returns an empty store.
func NewMetadataStore() *MetadataStore {
	return newMetadataStore(0)
}

func newMetadataStore(n int) *MetadataStore {
	s := &MetadataStore{
		docs:   make([]*harvest.Document, 0, n),
		byURL:  make(map[string]int, n),
		byHash: make(map[string]int, n),
	}
	s.hashes = bloom.NewFilter(uint(max(n, bloomInitialCap)), bloomFPRate, s.hashKeys)
	return s
}

// hashKeys lists every stored content hash. Called with the lock held.
func (s *MetadataStore) hashKeys() []string {
	keys := make([]string, 0, len(s.byHash))
	for h := range s.byHash {
		keys = append(keys, h)
	}
	return keys
}

// Put stores doc under id. Row ids must be assigned contiguously from zero.
func (s *MetadataStore) Put(id int, doc *harvest.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(id, doc)
}

func (s *MetadataStore) put(id int, doc *harvest.Document) error {
	if id < len(s.docs) {
		return harvest.Errorf(harvest.ECONFLICT, "row %d already exists", id)
	}
	if id != len(s.docs) {
		return harvest.Errorf(harvest.EINVALID, "row %d is not the next row (%d)", id, len(s.docs))
	}
	if _, ok := s.byURL[doc.URL]; ok {
		return harvest.Errorf(harvest.ECONFLICT, "url %s already exists", doc.URL)
	}

	doc.ID = id
	s.docs = append(s.docs, doc)
	s.byURL[doc.URL] = id
	if _, ok := s.byHash[doc.ContentHash]; !ok {
		s.byHash[doc.ContentHash] = id
		s.hashes.Add(doc.ContentHash)
	}
	s.payload += payloadSize(doc)
	return nil
}

// Get returns the document stored under id.
func (s *MetadataStore) Get(id int) (*harvest.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id < 0 || id >= len(s.docs) {
		return nil, harvest.Errorf(harvest.ENOTFOUND, "document %d not found", id)
	}
	return s.docs[id], nil
}

func (s *MetadataStore) ContainsURL(url string) bool {
	_, ok := s.FindByURL(url)
	return ok
}

// FindByURL returns the row id of the document with the given canonical URL.
func (s *MetadataStore) FindByURL(url string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byURL[url]
	return id, ok
}

// FindByHash returns the row id of the first document with the given content hash.
func (s *MetadataStore) FindByHash(hash string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hashes.Test(hash) {
		return 0, false
	}
	id, ok := s.byHash[hash]
	return id, ok
}

// FilterByDate returns the ids of documents whose publish time lies in r.
func (s *MetadataStore) FilterByDate(r harvest.DateRange) map[int]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make(map[int]struct{})
	for _, d := range s.docs {
		if d.PublishTime != nil && r.Contains(d.PublishTime) {
			ids[d.ID] = struct{}{}
		}
	}
	return ids
}

// All returns every document in row order. The slice is a copy; the
// documents are shared and must not be modified.
func (s *MetadataStore) All() []*harvest.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*harvest.Document, len(s.docs))
	copy(out, s.docs)
	return out
}

func (s *MetadataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// PayloadSize returns the stored byte size of all records: string fields at
// their UTF-8 length plus eight bytes for the row id and each timestamp.
func (s *MetadataStore) PayloadSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.payload
}

func payloadSize(d *harvest.Document) int64 {
	n := 8 + 8 + len(d.URL) + len(d.ContentHash) + len(d.Title) + len(d.Content) + len(d.Channel) + len(d.Module)
	if d.PublishTime != nil {
		n += 8
	}
	return int64(n)
}

// Save writes the metadata to a SQLite file at path using temp-then-rename.
func (s *MetadataStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stage, err := fs.NewStage(path)
	if err != nil {
		return err
	}
	if err := s.write(context.Background(), stage.Path()); err != nil {
		_ = stage.Abort()
		return err
	}
	return stage.Commit()
}

func (s *MetadataStore) write(ctx context.Context, path string) (err error) {
	db := NewDB(path)
	if err := db.Open(); err != nil {
		return err
	}
	defer func() {
		if cerr := db.Close(); err == nil {
			err = cerr
		}
	}()

	tx, err := db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO documents (row_id, url, content_hash, title, content, publish_time, channel, module, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, d := range s.docs {
		if _, err := stmt.ExecContext(ctx, d.ID, d.URL, d.ContentHash, d.Title, d.Content,
			nullTime(d.PublishTime), d.Channel, d.Module, formatTime(d.InsertedAt)); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO store_info (key, value) VALUES ('format_version', ?), ('row_count', ?)
	`, formatVersion, strconv.Itoa(len(s.docs))); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadMetadata reads a metadata file written by Save. Row ids must be
// contiguous from zero and agree with the recorded row count; any problem
// reading the file is reported as ECORRUPTMETADATA.
func LoadMetadata(path string) (*MetadataStore, error) {
	ok, err := fs.Exists(path)
	if err != nil {
		return nil, harvest.WrapError(harvest.ECORRUPTMETADATA, err, "stat metadata")
	} else if !ok {
		return nil, harvest.Errorf(harvest.ECORRUPTMETADATA, "metadata file %s not found", path)
	}

	db := NewDB(path)
	db.ReadOnly = true
	if err := db.Open(); err != nil {
		return nil, harvest.WrapError(harvest.ECORRUPTMETADATA, err, "open metadata")
	}
	defer db.Close()

	s, err := load(context.Background(), db)
	if err != nil {
		if harvest.ErrorCode(err) == harvest.ECORRUPTMETADATA {
			return nil, err
		}
		return nil, harvest.WrapError(harvest.ECORRUPTMETADATA, err, "read metadata")
	}
	return s, nil
}

func load(ctx context.Context, db *DB) (*MetadataStore, error) {
	info, err := readInfo(ctx, db)
	if err != nil {
		return nil, err
	}
	if info["format_version"] != formatVersion {
		return nil, harvest.Errorf(harvest.ECORRUPTMETADATA, "unsupported metadata version %q", info["format_version"])
	}
	count, err := strconv.Atoi(info["row_count"])
	if err != nil || count < 0 {
		return nil, harvest.Errorf(harvest.ECORRUPTMETADATA, "invalid row count %q", info["row_count"])
	}

	rows, err := db.QueryContext(ctx, `
		SELECT row_id, url, content_hash, title, content, publish_time, channel, module, inserted_at
		FROM documents
		ORDER BY row_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s := newMetadataStore(count)
	for rows.Next() {
		var d harvest.Document
		var publishTime sql.NullString
		var insertedAt string
		if err := rows.Scan(&d.ID, &d.URL, &d.ContentHash, &d.Title, &d.Content,
			&publishTime, &d.Channel, &d.Module, &insertedAt); err != nil {
			return nil, err
		}
		if d.ID != len(s.docs) {
			return nil, harvest.Errorf(harvest.ECORRUPTMETADATA, "row ids not contiguous: expected %d, found %d", len(s.docs), d.ID)
		}
		if d.PublishTime, err = parseNullTime(publishTime, "publish_time"); err != nil {
			return nil, err
		}
		if d.InsertedAt, err = parseTime(insertedAt, "inserted_at"); err != nil {
			return nil, err
		}
		if err := s.put(d.ID, &d); err != nil {
			return nil, harvest.WrapError(harvest.ECORRUPTMETADATA, err, "row %d", d.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(s.docs) != count {
		return nil, harvest.Errorf(harvest.ECORRUPTMETADATA, "metadata has %d rows, header records %d", len(s.docs), count)
	}
	return s, nil
}

func readInfo(ctx context.Context, db *DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM store_info")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	info := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		info[k] = v
	}
	return info, rows.Err()
}
