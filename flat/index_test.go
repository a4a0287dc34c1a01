package flat_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/flat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("rejects zero dimension", func(t *testing.T) {
		t.Parallel()

		_, err := flat.New(0, harvest.MetricCosine)

		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})

	t.Run("rejects dimension above the maximum", func(t *testing.T) {
		t.Parallel()

		_, err := flat.New(flat.MaxDimension+1, harvest.MetricCosine)

		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})

	t.Run("rejects unknown metric", func(t *testing.T) {
		t.Parallel()

		_, err := flat.New(3, harvest.Metric("euclid"))

		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})
}

func TestIndex_Append(t *testing.T) {
	t.Parallel()

	t.Run("assigns contiguous rows", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricInnerProduct)

		r0, err := x.Append([]float32{1, 0})
		require.NoError(t, err)
		r1, err := x.Append([]float32{0, 1})
		require.NoError(t, err)

		assert.Equal(t, 0, r0)
		assert.Equal(t, 1, r1)
		assert.Equal(t, 2, x.Len())
	})

	t.Run("rejects wrong dimension without mutation", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 3, harvest.MetricCosine)

		_, err := x.Append([]float32{1, 2})

		assert.Equal(t, harvest.EDIMENSION, harvest.ErrorCode(err))
		assert.Equal(t, 0, x.Len())
	})

	t.Run("does not alias caller slice", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricInnerProduct)
		v := []float32{1, 0}
		_, err := x.Append(v)
		require.NoError(t, err)

		v[0] = -5

		hits, err := x.Search([]float32{1, 0}, 1)
		require.NoError(t, err)
		assert.InDelta(t, 1, hits[0].Score, 1e-6)
	})
}

func TestIndex_Search(t *testing.T) {
	t.Parallel()

	t.Run("orders by descending cosine similarity", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricCosine)
		appendAll(t, x, []float32{0, 1}, []float32{10, 0}, []float32{1, 1})

		hits, err := x.Search([]float32{3, 0}, 3)

		require.NoError(t, err)
		require.Len(t, hits, 3)
		assert.Equal(t, 1, hits[0].Row)
		assert.InDelta(t, 1, hits[0].Score, 1e-6)
		assert.Equal(t, 2, hits[1].Row)
		assert.InDelta(t, math.Sqrt2/2, hits[1].Score, 1e-6)
		assert.Equal(t, 0, hits[2].Row)
	})

	t.Run("inner product keeps magnitude", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricInnerProduct)
		appendAll(t, x, []float32{1, 0}, []float32{2, 0})

		hits, err := x.Search([]float32{1, 0}, 1)

		require.NoError(t, err)
		assert.Equal(t, 1, hits[0].Row)
		assert.InDelta(t, 2, hits[0].Score, 1e-6)
	})

	t.Run("breaks ties by lower row", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricCosine)
		appendAll(t, x, []float32{0, 1}, []float32{1, 0}, []float32{2, 0}, []float32{1, 0})

		hits, err := x.Search([]float32{1, 0}, 3)

		require.NoError(t, err)
		assert.Equal(t, []int{1, 2, 3}, rows(hits))
	})

	t.Run("returns all rows when fewer than k", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricCosine)
		appendAll(t, x, []float32{1, 0})

		hits, err := x.Search([]float32{1, 0}, 10)

		require.NoError(t, err)
		assert.Len(t, hits, 1)
	})

	t.Run("empty index returns no hits", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricCosine)

		hits, err := x.Search([]float32{1, 0}, 5)

		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("ranks NaN scores last", func(t *testing.T) {
		t.Parallel()

		nan := float32(math.NaN())
		x := newIndex(t, 2, harvest.MetricInnerProduct)
		appendAll(t, x, []float32{nan, 0}, []float32{-1, 0}, []float32{1, 0})

		hits, err := x.Search([]float32{1, 0}, 3)

		require.NoError(t, err)
		assert.Equal(t, []int{2, 1, 0}, rows(hits))
	})

	t.Run("rejects k below one", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricCosine)

		_, err := x.Search([]float32{1, 0}, 0)

		assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(err))
	})

	t.Run("rejects query of wrong dimension", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 2, harvest.MetricCosine)

		_, err := x.Search([]float32{1, 0, 0}, 1)

		assert.Equal(t, harvest.EDIMENSION, harvest.ErrorCode(err))
	})
}

func TestIndex_Truncate(t *testing.T) {
	t.Parallel()

	x := newIndex(t, 2, harvest.MetricCosine)
	appendAll(t, x, []float32{1, 0}, []float32{0, 1})

	require.NoError(t, x.Truncate(1))
	assert.Equal(t, 1, x.Len())

	assert.Equal(t, harvest.EINVALID, harvest.ErrorCode(x.Truncate(5)))

	row, err := x.Append([]float32{0, 1})
	require.NoError(t, err)
	assert.Equal(t, 1, row, "row ids continue from the truncated length")
}

func TestIndex_SaveLoad(t *testing.T) {
	t.Parallel()

	t.Run("round trips vectors and header", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 3, harvest.MetricInnerProduct)
		appendAll(t, x, []float32{1, 2, 3}, []float32{-1, 0.5, 0})
		path := filepath.Join(t.TempDir(), "a.index")

		require.NoError(t, x.Save(path))

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, x.EncodedSize(), info.Size())

		got, err := flat.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 3, got.Dimension())
		assert.Equal(t, harvest.MetricInnerProduct, got.Metric())
		assert.Equal(t, 2, got.Len())

		want, err := x.Search([]float32{1, 1, 1}, 2)
		require.NoError(t, err)
		have, err := got.Search([]float32{1, 1, 1}, 2)
		require.NoError(t, err)
		assert.Equal(t, want, have)
	})

	t.Run("round trips empty index", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 4, harvest.MetricCosine)
		path := filepath.Join(t.TempDir(), "a.index")
		require.NoError(t, x.Save(path))

		got, err := flat.Load(path)

		require.NoError(t, err)
		assert.Equal(t, 0, got.Len())
		assert.Equal(t, 4, got.Dimension())
		assert.Equal(t, harvest.MetricCosine, got.Metric())
	})

	t.Run("detects flipped byte", func(t *testing.T) {
		t.Parallel()

		path := savedIndex(t)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		data[25] ^= 0xFF
		require.NoError(t, os.WriteFile(path, data, 0644))

		_, err = flat.Load(path)

		assert.Equal(t, harvest.ECORRUPTINDEX, harvest.ErrorCode(err))
	})

	t.Run("detects truncated file", func(t *testing.T) {
		t.Parallel()

		path := savedIndex(t)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(path, data[:len(data)-5], 0644))

		_, err = flat.Load(path)

		assert.Equal(t, harvest.ECORRUPTINDEX, harvest.ErrorCode(err))
	})

	t.Run("detects bad magic", func(t *testing.T) {
		t.Parallel()

		path := savedIndex(t)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		copy(data, "NOPE")
		require.NoError(t, os.WriteFile(path, data, 0644))

		_, err = flat.Load(path)

		assert.Equal(t, harvest.ECORRUPTINDEX, harvest.ErrorCode(err))
	})

	t.Run("rejects oversized dimension in an empty index header", func(t *testing.T) {
		t.Parallel()

		x := newIndex(t, 3, harvest.MetricCosine)
		path := filepath.Join(t.TempDir(), "empty.index")
		require.NoError(t, x.Save(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		copy(data[7:11], []byte{0xFF, 0xFF, 0xFF, 0xFF})
		require.NoError(t, os.WriteFile(path, data, 0644))

		_, err = flat.Load(path)

		require.Error(t, err)
		assert.Equal(t, harvest.ECORRUPTINDEX, harvest.ErrorCode(err))
		assert.Contains(t, harvest.ErrorMessage(err), "invalid dimension")
	})

	t.Run("missing file is corrupt", func(t *testing.T) {
		t.Parallel()

		_, err := flat.Load(filepath.Join(t.TempDir(), "missing.index"))

		assert.Equal(t, harvest.ECORRUPTINDEX, harvest.ErrorCode(err))
	})
}

func newIndex(t *testing.T, dim int, metric harvest.Metric) *flat.Index {
	t.Helper()
	x, err := flat.New(dim, metric)
	require.NoError(t, err)
	return x
}

func appendAll(t *testing.T, x *flat.Index, vecs ...[]float32) {
	t.Helper()
	for _, v := range vecs {
		_, err := x.Append(v)
		require.NoError(t, err)
	}
}

func savedIndex(t *testing.T) string {
	t.Helper()
	x := newIndex(t, 4, harvest.MetricCosine)
	appendAll(t, x, []float32{1, 2, 3, 4}, []float32{4, 3, 2, 1})
	path := filepath.Join(t.TempDir(), "a.index")
	require.NoError(t, x.Save(path))
	return path
}

func rows(hits []harvest.Hit) []int {
	out := make([]int, len(hits))
	for i, h := range hits {
		out[i] = h.Row
	}
	return out
}
