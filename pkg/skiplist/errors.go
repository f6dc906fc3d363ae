package skiplist

import "github.com/cockroachdb/errors"

// Sentinel errors returned by the public API, matching pkg/bwtree's
// vocabulary (spec.md section 5 describes one operation contract
// shared by both engines).
var (
	ErrNotFound      = errors.New("skiplist: key not found")
	ErrValueNotFound = errors.New("skiplist: value not found for key")
	ErrDuplicateKey  = errors.New("skiplist: (key, value) pair already present")
	ErrClosed        = errors.New("skiplist: list is closed")
)
