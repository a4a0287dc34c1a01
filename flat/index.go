// Package flat implements an exact, in-memory vector index.
//
// Vectors live in one contiguous []float32 and every search is a full scan,
// which keeps results deterministic for the corpus sizes a single node holds.
package flat

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/fs"
)

// File format constants.
const (
	magic      = "HVIX"
	version    = 1
	headerSize = 4 + 2 + 1 + 4 + 8
	footerSize = 8

	// MaxDimension bounds the vector width an index accepts.
	MaxDimension = 1 << 16
)

var metricCodes = map[harvest.Metric]uint8{
	harvest.MetricCosine:       1,
	harvest.MetricInnerProduct: 2,
}

// Ensure Index implements harvest.VectorIndex at compile time.
var _ harvest.VectorIndex = (*Index)(nil)

// Index is a flat vector index. It is safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	dim    int
	metric harvest.Metric
	data   []float32
}

// New creates an empty index.
func New(dim int, metric harvest.Metric) (*Index, error) {
	if dim < 1 || dim > MaxDimension {
		return nil, harvest.Errorf(harvest.EINVALID, "dimension must be between 1 and %d, got %d", MaxDimension, dim)
	}
	if err := metric.Validate(); err != nil {
		return nil, err
	}
	return &Index{dim: dim, metric: metric}, nil
}

func (x *Index) Dimension() int         { return x.dim }
func (x *Index) Metric() harvest.Metric { return x.metric }

func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.data) / x.dim
}

// Append adds vec as a new row. Cosine indexes store the L2-normalized vector.
func (x *Index) Append(vec []float32) (int, error) {
	if len(vec) != x.dim {
		return 0, harvest.Errorf(harvest.EDIMENSION, "vector has dimension %d, index expects %d", len(vec), x.dim)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	row := len(x.data) / x.dim
	start := len(x.data)
	x.data = append(x.data, vec...)
	if x.metric == harvest.MetricCosine {
		normalize(x.data[start:])
	}
	return row, nil
}

// Truncate drops rows n and above.
func (x *Index) Truncate(n int) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	rows := len(x.data) / x.dim
	if n < 0 || n > rows {
		return harvest.Errorf(harvest.EINVALID, "cannot truncate %d rows to %d", rows, n)
	}
	x.data = x.data[:n*x.dim]
	return nil
}

// Search returns the k best rows for query. Scores are cosine similarity or
// inner product depending on the metric; higher is better.
func (x *Index) Search(query []float32, k int) ([]harvest.Hit, error) {
	if k < 1 {
		return nil, harvest.Errorf(harvest.EINVALID, "k must be at least 1, got %d", k)
	}
	if len(query) != x.dim {
		return nil, harvest.Errorf(harvest.EDIMENSION, "query has dimension %d, index expects %d", len(query), x.dim)
	}

	q := query
	if x.metric == harvest.MetricCosine {
		q = slices.Clone(query)
		normalize(q)
	}

	x.mu.RLock()
	rows := len(x.data) / x.dim
	hits := make([]harvest.Hit, rows)
	for r := 0; r < rows; r++ {
		hits[r] = harvest.Hit{Row: r, Score: dot(q, x.data[r*x.dim:(r+1)*x.dim])}
	}
	x.mu.RUnlock()

	slices.SortFunc(hits, compareHits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// compareHits orders by descending score, NaN last, then ascending row.
func compareHits(a, b harvest.Hit) int {
	an, bn := isNaN(a.Score), isNaN(b.Score)
	switch {
	case an && !bn:
		return 1
	case !an && bn:
		return -1
	case !an && a.Score != b.Score:
		if a.Score > b.Score {
			return -1
		}
		return 1
	}
	return a.Row - b.Row
}

// EncodedSize returns the exact size of the file Save writes.
func (x *Index) EncodedSize() int64 {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int64(headerSize + 4*len(x.data) + footerSize)
}

// Save writes the index to path using temp-then-rename.
func (x *Index) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return fs.WriteFile(path, x.encode)
}

func (x *Index) encode(w io.Writer) error {
	h := xxhash.New()
	mw := io.MultiWriter(w, h)

	var hdr [headerSize]byte
	copy(hdr[0:4], magic)
	binary.LittleEndian.PutUint16(hdr[4:6], version)
	hdr[6] = metricCodes[x.metric]
	binary.LittleEndian.PutUint32(hdr[7:11], uint32(x.dim))
	binary.LittleEndian.PutUint64(hdr[11:19], uint64(len(x.data)/x.dim))
	if _, err := mw.Write(hdr[:]); err != nil {
		return err
	}

	buf := make([]byte, 4*x.dim)
	for r := 0; r < len(x.data)/x.dim; r++ {
		for i, f := range x.data[r*x.dim : (r+1)*x.dim] {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
		}
		if _, err := mw.Write(buf); err != nil {
			return err
		}
	}

	var sum [footerSize]byte
	binary.LittleEndian.PutUint64(sum[:], h.Sum64())
	_, err := w.Write(sum[:])
	return err
}

// Load reads an index written by Save.
// Any structural problem is reported as ECORRUPTINDEX.
func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, harvest.WrapError(harvest.ECORRUPTINDEX, err, "open index")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, harvest.WrapError(harvest.ECORRUPTINDEX, err, "stat index")
	}
	return Decode(bufio.NewReader(f), info.Size())
}

// Decode reads an encoded index of the given total size from r.
func Decode(r io.Reader, size int64) (*Index, error) {
	if size < headerSize+footerSize {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "index file too short: %d bytes", size)
	}

	h := xxhash.New()
	tr := io.TeeReader(r, h)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(tr, hdr[:]); err != nil {
		return nil, harvest.WrapError(harvest.ECORRUPTINDEX, err, "read index header")
	}
	if !bytes.Equal(hdr[0:4], []byte(magic)) {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "bad index magic %q", hdr[0:4])
	}
	if v := binary.LittleEndian.Uint16(hdr[4:6]); v != version {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "unsupported index version %d", v)
	}
	metric, ok := metricFromCode(hdr[6])
	if !ok {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "unknown metric code %d", hdr[6])
	}
	dim := int(binary.LittleEndian.Uint32(hdr[7:11]))
	rows := binary.LittleEndian.Uint64(hdr[11:19])
	if dim < 1 || dim > MaxDimension {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "invalid dimension %d", dim)
	}

	payload := uint64(size) - headerSize - footerSize
	rowSize := uint64(dim) * 4
	if payload%rowSize != 0 || payload/rowSize != rows {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "index size %d does not match header (%d rows of %d)", size, rows, dim)
	}

	data := make([]float32, int(rows)*dim)
	buf := make([]byte, 4*dim)
	for r := 0; r < int(rows); r++ {
		if _, err := io.ReadFull(tr, buf); err != nil {
			return nil, harvest.WrapError(harvest.ECORRUPTINDEX, err, "read row %d", r)
		}
		for i := range dim {
			data[r*dim+i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
		}
	}

	var sum [footerSize]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return nil, harvest.WrapError(harvest.ECORRUPTINDEX, err, "read checksum")
	}
	if binary.LittleEndian.Uint64(sum[:]) != h.Sum64() {
		return nil, harvest.Errorf(harvest.ECORRUPTINDEX, "index checksum mismatch")
	}

	return &Index{dim: dim, metric: metric, data: data}, nil
}

func metricFromCode(c uint8) (harvest.Metric, bool) {
	for m, code := range metricCodes {
		if code == c {
			return m, true
		}
	}
	return "", false
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// normalize scales v to unit length in place. Zero vectors are left as is.
func normalize(v []float32) {
	var s float64
	for _, f := range v {
		s += float64(f) * float64(f)
	}
	if s == 0 {
		return
	}
	n := float32(1 / math.Sqrt(s))
	for i := range v {
		v[i] *= n
	}
}

func isNaN(f float32) bool { return f != f }
