package runner

import "github.com/cespare/xxhash/v2"

// intComparator is the black-box K=int, V=int comparator lfbench
// exercises both engines with, satisfying bwtree.Comparator and
// skiplist.Comparator at once.
type intComparator struct{}

func (intComparator) CompareKeys(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (intComparator) Less(a, b int) bool { return a < b }

func (intComparator) EqualValues(a, b int) bool { return a == b }

func (intComparator) LessValue(a, b int) bool { return a < b }

func (intComparator) HashKey(k int) uint64 {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(k >> (8 * i))
	}
	return xxhash.Sum64(b[:])
}

func (c intComparator) HashValue(v int) uint64 { return c.HashKey(v) }
