// Package bloom implements the small fixed-size bloom filter used by
// the Bw-Tree's consolidation replay (component C3) to classify chain
// items as present or deleted without an O(n) set.
//
// The layout mirrors the original BwTree's BloomFilter<T>: one 64-bit
// hash is split into eight 8-bit slices, each indexing a bit inside
// its own 256-bit sub-array. Splitting the hash this way (rather than
// computing eight independent hashes) keeps Insert/Exists to a single
// hash call, which matters since consolidation calls it once per item
// per bloom filter (present-set and deleted-set).
package bloom

import "github.com/cespare/xxhash/v2"

const (
	subFilters   = 8
	subFilterSz  = 32 // bytes -> 256 bits per sub-array
	shiftBits    = 8
	bitOffsetMask  = 0x07 // low 3 bits: which bit within the byte
	byteOffsetMask = 0xF8 // next 5 bits: which byte within the sub-array
)

// HashFunc produces the 64-bit hash used to probe the filter. Callers
// combine a key and/or value into the byte slice fed to the hasher;
// the bwtree package feeds hashBytes of a pre-mixed 64-bit hash
// (mixHash64 of key and value hashes for leaves, the key hash alone for
// inner separators).
type HashFunc func(b []byte) uint64

// Sum64 is the default HashFunc, using xxhash.
func Sum64(b []byte) uint64 {
	return xxhash.Sum64(b)
}

// Filter is a fixed-size (256 bytes total) bloom filter over byte
// slices. It is not safe for concurrent use; each consolidation pass
// owns a private pair of filters (present-set, deleted-set).
type Filter struct {
	arrays [subFilters][subFilterSz]byte
	hash   HashFunc
}

// New creates an empty filter using the given hash function. A nil
// HashFunc defaults to Sum64.
func New(hash HashFunc) *Filter {
	if hash == nil {
		hash = Sum64
	}
	return &Filter{hash: hash}
}

// Insert marks b as present in the filter.
func (f *Filter) Insert(b []byte) {
	h := f.hash(b)
	for i := 0; i < subFilters; i++ {
		idx := (h & byteOffsetMask) >> 3
		bit := byte(1) << (h & bitOffsetMask)
		f.arrays[i][idx] |= bit
		h >>= shiftBits
	}
}

// MightContain reports whether b was possibly inserted. False
// positives are possible; false negatives are not.
func (f *Filter) MightContain(b []byte) bool {
	h := f.hash(b)
	for i := 0; i < subFilters; i++ {
		idx := (h & byteOffsetMask) >> 3
		bit := byte(1) << (h & bitOffsetMask)
		if f.arrays[i][idx]&bit == 0 {
			return false
		}
		h >>= shiftBits
	}
	return true
}

// Reset clears the filter for reuse, avoiding an allocation on the
// next consolidation pass.
func (f *Filter) Reset() {
	for i := range f.arrays {
		for j := range f.arrays[i] {
			f.arrays[i][j] = 0
		}
	}
}
