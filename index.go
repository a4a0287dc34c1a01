package harvest

// Metric identifies the similarity function of a vector index.
// The set is closed and chosen when an index is created.
type Metric string

// Supported metrics.
const (
	MetricCosine       Metric = "cosine"
	MetricInnerProduct Metric = "inner_product"
)

// Validate returns EINVALID for an unset or unknown metric.
func (m Metric) Validate() error {
	switch m {
	case MetricCosine, MetricInnerProduct:
		return nil
	case "":
		return Errorf(EINVALID, "similarity metric required")
	default:
		return Errorf(EINVALID, "unknown similarity metric %q", string(m))
	}
}

// Hit is a single nearest-neighbour match.
type Hit struct {
	Row   int
	Score float32
}

// VectorIndex stores fixed-dimension vectors addressed by row id.
type VectorIndex interface {
	// Append adds a vector and returns its row id.
	// Returns EDIMENSION if the vector length differs from Dimension.
	Append(vec []float32) (int, error)

	// Search returns up to k rows ordered by descending score, ties broken
	// by lower row id.
	Search(query []float32, k int) ([]Hit, error)

	// Truncate drops every row at or above n.
	Truncate(n int) error

	Len() int
	Dimension() int
	Metric() Metric

	// EncodedSize returns the number of bytes Save would write.
	EncodedSize() int64

	// Save writes the index to path atomically.
	Save(path string) error
}

// MetadataStore maps row ids to document attributes and owns the dedup keys.
type MetadataStore interface {
	// Put stores a document under id. Returns ECONFLICT if id or the
	// document URL is already present.
	Put(id int, doc *Document) error

	// Get returns the document for id or ENOTFOUND.
	Get(id int) (*Document, error)

	ContainsURL(url string) bool
	FindByURL(url string) (int, bool)
	FindByHash(hash string) (int, bool)

	// FilterByDate returns the ids of documents published inside r.
	// Documents without a publish time are never included.
	FilterByDate(r DateRange) map[int]struct{}

	// All returns every document in row order.
	All() []*Document

	Len() int

	// PayloadSize returns the byte size of the stored record fields.
	PayloadSize() int64

	// Save writes the metadata to path atomically.
	Save(path string) error
}
