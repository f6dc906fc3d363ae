// Package index defines the shared contract implemented by both
// concurrency-structure engines (pkg/bwtree and pkg/skiplist): a
// generic interface over concrete implementations, generalized to
// spec.md's K/V model and its five core operations (insert,
// conditional insert, delete, point lookup, range scan).
package index

// Index is the operation contract spec.md section 5 assigns to both
// engines. Both pkg/bwtree.Tree and pkg/skiplist.SkipList satisfy it.
type Index[K, V any] interface {
	// Insert adds (key, value). It reports a duplicate-key error without
	// modifying the index if (key,value) already exists, or if key
	// already has any value under unique-keys semantics.
	Insert(key K, value V) error

	// ConditionalInsert adds (key, value) only if no value equal to
	// value (per the engine's Comparator) is already stored under key.
	// It reports whether the insert happened.
	ConditionalInsert(key K, value V) (bool, error)

	// Delete removes one entry equal to (key, value).
	Delete(key K, value V) error

	// GetValues returns every live value stored under key.
	GetValues(key K) ([]V, error)

	// NeedGC/PerformGC expose the shared epoch reclaimer's manual
	// trigger for callers that want to force a sweep instead of
	// waiting for the background goroutine.
	NeedGC() bool
	PerformGC() int

	// Close stops the engine's background reclaimer. Close assumes no
	// other goroutine is still calling into the index.
	Close()
}

// Iterator is the forward cursor contract spec.md section 5's
// begin()/begin(k)/is_end() describes. Both pkg/bwtree.Iterator and
// pkg/skiplist.Iterator implement it directly.
type Iterator[K, V any] interface {
	// IsEnd reports whether the iterator has no further pairs.
	IsEnd() bool
	// Next advances past the current pair, returning false once IsEnd
	// would report true.
	Next() bool
	// Key returns the current pair's key. Only valid when !IsEnd().
	Key() K
	// Value returns the current pair's value. Only valid when
	// !IsEnd().
	Value() V
	// Close releases resources (typically an epoch guard) held by the
	// iterator.
	Close()
}

// Engine names one of the two index organizations.
type Engine int

const (
	// EngineBwTree selects the lock-free Bw-Tree (pkg/bwtree).
	EngineBwTree Engine = iota
	// EngineSkipList selects the lock-free skip list (pkg/skiplist).
	EngineSkipList
)

// Options records an engine choice and shared parameters, resolved
// from functional options by NewOptions. This package has no
// constructor that consumes it; each engine is built through its own
// New and Config.
type Options struct {
	Engine Engine

	// UniqueKeys rejects a second Insert under an existing key
	// regardless of value. Only meaningful for EngineBwTree; the skip
	// list does not implement unique-keys mode.
	UniqueKeys bool
}

// Option mutates an Options value being built up by NewOptions.
type Option func(*Options)

// WithEngine selects the index organization.
func WithEngine(e Engine) Option {
	return func(o *Options) { o.Engine = e }
}

// WithUniqueKeys toggles unique-key enforcement.
func WithUniqueKeys(unique bool) Option {
	return func(o *Options) { o.UniqueKeys = unique }
}

// NewOptions resolves a list of Option values into an Options struct,
// defaulting to EngineBwTree.
func NewOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
