// Package bloom provides a growable Bloom filter used as a negative cache in
// front of exact dedup lookups.
package bloom

import "github.com/bits-and-blooms/bloom/v3"

// Filter wraps a Bloom filter sized for an expected number of keys.
// When more keys than planned are added the filter is rebuilt at twice the
// capacity, so the false positive rate stays near the target. Rebuilding
// needs the keys, which the caller supplies through the keys function.
// Filter is not safe for concurrent use.
type Filter struct {
	f      *bloom.BloomFilter
	fpRate float64
	cap    uint
	n      uint
	keys   func() []string
}

// NewFilter creates a filter sized for n keys with the given false positive
// rate. keys is called to repopulate the filter when it grows; it may be nil
// for filters that never exceed n.
func NewFilter(n uint, fpRate float64, keys func() []string) *Filter {
	if n == 0 {
		n = 1
	}
	return &Filter{
		f:      bloom.NewWithEstimates(n, fpRate),
		fpRate: fpRate,
		cap:    n,
		keys:   keys,
	}
}

// Add records key in the filter.
func (f *Filter) Add(key string) {
	if f.n >= f.cap && f.keys != nil {
		f.grow()
	}
	f.f.AddString(key)
	f.n++
}

// Test reports whether key might have been added.
// False positives are possible; false negatives are not.
func (f *Filter) Test(key string) bool {
	return f.f.TestString(key)
}

// Cap returns the number of keys the filter is currently sized for.
func (f *Filter) Cap() uint {
	return f.cap
}

// EstimatedCount returns the approximate number of distinct keys in the filter.
func (f *Filter) EstimatedCount() uint {
	return uint(f.f.ApproximatedSize())
}

func (f *Filter) grow() {
	f.cap *= 2
	f.f = bloom.NewWithEstimates(f.cap, f.fpRate)
	f.n = 0
	for _, k := range f.keys() {
		f.f.AddString(k)
		f.n++
	}
}
