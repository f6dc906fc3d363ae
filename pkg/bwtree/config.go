// Package bwtree implements the lock-free Bw-Tree engine: the
// delta-chain node model (component C3) and traversal/SMO engine
// (component C4) from spec.md.
package bwtree

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// Comparator supplies the total order over K and the equality check
// over V that the tree treats as black-box capabilities (spec.md
// section 3). A Comparator instance is configuration, not a stateless
// function: store and reuse the one passed at construction, per
// spec.md's "known source defects to avoid" note about stateful
// comparator objects.
type Comparator[K any, V any] interface {
	// CompareKeys returns <0, 0 or >0 as a<b, a==b, a>b. Never called
	// with a sentinel (-infinity/+infinity) key; those are handled
	// internally by the tree.
	CompareKeys(a, b K) int
	// EqualValues reports whether two values are the same for
	// duplicate detection and deletion.
	EqualValues(a, b V) bool
	// HashKey produces a hash used only for internal bloom-filter
	// membership during consolidation replay; collisions only cost a
	// few extra set lookups, never correctness.
	HashKey(k K) uint64
	// HashValue produces a hash over V for the same purpose. spec.md
	// section 3 mandates a hash over K for the Bw-Tree's bloom
	// filters; a leaf chain's present/deleted sets are keyed on
	// (key,value) pairs, so HashValue is required too - hashing K
	// alone would collide across every value stored under one key in
	// non-unique mode.
	HashValue(v V) uint64
}

// Config is resolved once at construction, per spec.md section 6.
type Config struct {
	// UniqueKeys, when true, makes a second Insert under an existing
	// key fail regardless of value.
	UniqueKeys bool

	// LeafSplitUpper/InnerSplitUpper bound node item counts: a node
	// whose count exceeds its Upper is split. LeafMergeLower and
	// InnerMergeLower are only validated (each Lower must be < Upper/2);
	// no node is ever merged or removed, however few items it holds.
	LeafSplitUpper  int
	LeafMergeLower  int
	InnerSplitUpper int
	InnerMergeLower int

	// ConsolidationDepthThreshold triggers a chain rebuild once a
	// node's delta depth exceeds it. Source uses 8 for inner nodes;
	// leaves use the same threshold plus LeafDepthAdjustment.
	ConsolidationDepthThreshold int
	LeafDepthAdjustment         int

	// EpochInterval is how often the background reclaimer sweeps.
	EpochInterval time.Duration

	// MappingTableCapacity must be a power of two.
	MappingTableCapacity int

	// Logger is handed to the epoch reclaimer, which logs a debug event
	// for each sweep that reclaims garbage. The tree itself logs
	// nothing, SMOs included. Defaults to a no-op logger.
	Logger zerolog.Logger
}

// DefaultConfig mirrors the thresholds named in spec.md sections 4.3,
// 4.4.6 and 6, which match the constants in the original BwTree
// (DELTA_CHAIN_LENGTH_THRESHOLD=8, *_SIZE_UPPER_THRESHOLD=128,
// *_SIZE_LOWER_THRESHOLD=32, MAPPING_TABLE_SIZE=1<<20).
func DefaultConfig() Config {
	return Config{
		UniqueKeys:                  false,
		LeafSplitUpper:              128,
		LeafMergeLower:              32,
		InnerSplitUpper:             128,
		InnerMergeLower:             32,
		ConsolidationDepthThreshold: 8,
		LeafDepthAdjustment:         0,
		EpochInterval:               40 * time.Millisecond,
		MappingTableCapacity:        1 << 20,
		Logger:                      zerolog.Nop(),
	}
}

func (c Config) validate() error {
	if c.MappingTableCapacity <= 0 || c.MappingTableCapacity&(c.MappingTableCapacity-1) != 0 {
		return errors.Newf("bwtree: mapping table capacity must be a positive power of two, got %d", c.MappingTableCapacity)
	}
	if c.LeafMergeLower >= c.LeafSplitUpper/2 {
		return errors.Newf("bwtree: leaf merge-lower (%d) must be < split-upper/2 (%d)", c.LeafMergeLower, c.LeafSplitUpper/2)
	}
	if c.InnerMergeLower >= c.InnerSplitUpper/2 {
		return errors.Newf("bwtree: inner merge-lower (%d) must be < split-upper/2 (%d)", c.InnerMergeLower, c.InnerSplitUpper/2)
	}
	if c.ConsolidationDepthThreshold <= 0 {
		return errors.Newf("bwtree: consolidation depth threshold must be positive, got %d", c.ConsolidationDepthThreshold)
	}
	if c.EpochInterval <= 0 {
		return errors.Newf("bwtree: epoch interval must be positive, got %d", c.EpochInterval)
	}
	return nil
}
