package mock

import "github.com/fwojciec/harvest"

var _ harvest.VectorIndex = (*VectorIndex)(nil)

// VectorIndex is a mock implementation of harvest.VectorIndex.
type VectorIndex struct {
	AppendFn      func(vec []float32) (int, error)
	SearchFn      func(query []float32, k int) ([]harvest.Hit, error)
	TruncateFn    func(n int) error
	LenFn         func() int
	DimensionFn   func() int
	MetricFn      func() harvest.Metric
	EncodedSizeFn func() int64
	SaveFn        func(path string) error
}

func (x *VectorIndex) Append(vec []float32) (int, error) {
	return x.AppendFn(vec)
}

func (x *VectorIndex) Search(query []float32, k int) ([]harvest.Hit, error) {
	return x.SearchFn(query, k)
}

func (x *VectorIndex) Truncate(n int) error {
	return x.TruncateFn(n)
}

func (x *VectorIndex) Len() int {
	return x.LenFn()
}

func (x *VectorIndex) Dimension() int {
	return x.DimensionFn()
}

func (x *VectorIndex) Metric() harvest.Metric {
	return x.MetricFn()
}

func (x *VectorIndex) EncodedSize() int64 {
	return x.EncodedSizeFn()
}

func (x *VectorIndex) Save(path string) error {
	return x.SaveFn(path)
}

var _ harvest.MetadataStore = (*MetadataStore)(nil)

// MetadataStore is a mock implementation of harvest.MetadataStore.
type MetadataStore struct {
	PutFn          func(id int, doc *harvest.Document) error
	GetFn          func(id int) (*harvest.Document, error)
	ContainsURLFn  func(url string) bool
	FindByURLFn    func(url string) (int, bool)
	FindByHashFn   func(hash string) (int, bool)
	FilterByDateFn func(r harvest.DateRange) map[int]struct{}
	AllFn          func() []*harvest.Document
	LenFn          func() int
	PayloadSizeFn  func() int64
	SaveFn         func(path string) error
}

func (s *MetadataStore) Put(id int, doc *harvest.Document) error {
	return s.PutFn(id, doc)
}

func (s *MetadataStore) Get(id int) (*harvest.Document, error) {
	return s.GetFn(id)
}

func (s *MetadataStore) ContainsURL(url string) bool {
	return s.ContainsURLFn(url)
}

func (s *MetadataStore) FindByURL(url string) (int, bool) {
	return s.FindByURLFn(url)
}

func (s *MetadataStore) FindByHash(hash string) (int, bool) {
	return s.FindByHashFn(hash)
}

func (s *MetadataStore) FilterByDate(r harvest.DateRange) map[int]struct{} {
	return s.FilterByDateFn(r)
}

func (s *MetadataStore) All() []*harvest.Document {
	return s.AllFn()
}

func (s *MetadataStore) Len() int {
	return s.LenFn()
}

func (s *MetadataStore) PayloadSize() int64 {
	return s.PayloadSizeFn()
}

func (s *MetadataStore) Save(path string) error {
	return s.SaveFn(path)
}
