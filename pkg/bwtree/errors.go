package bwtree

import "github.com/cockroachdb/errors"

// Sentinel errors returned by the public API (spec.md section 5).
var (
	// ErrNotFound is returned when a key has no value in the tree.
	ErrNotFound = errors.New("bwtree: key not found")
	// ErrDuplicateKey is returned by Insert when Config.UniqueKeys is
	// set and the key already has a value.
	ErrDuplicateKey = errors.New("bwtree: duplicate key")
	// ErrValueNotFound is returned by Delete when no entry equal to
	// (key, value) exists, whether or not key has other values.
	ErrValueNotFound = errors.New("bwtree: value not found for key")
	// ErrClosed is returned by Insert, ConditionalInsert, Delete,
	// GetValues, GetValueSet, Begin, BeginAt and ScanRange after Close.
	ErrClosed = errors.New("bwtree: tree is closed")
	// ErrNilComparator is returned by New when cmp is nil.
	ErrNilComparator = errors.New("bwtree: comparator must not be nil")
)

// errAborted is an internal control-flow sentinel: it tells a call
// site in the traversal state machine to restart the operation from
// the root, never escapes the package.
var errAborted = errors.New("bwtree: operation aborted, retry")
