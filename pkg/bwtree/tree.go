// Package bwtree implements the lock-free Bw-Tree engine: the
// delta-chain node model (component C3) and traversal/SMO engine
// (component C4) from spec.md.
package bwtree

import (
	"sync/atomic"

	"lfindex/internal/epoch"
	"lfindex/pkg/mapping"
)

// Tree is a lock-free ordered index over K, V. All exported methods
// are safe for concurrent use by any number of goroutines.
type Tree[K, V any] struct {
	cfg Config
	cmp Comparator[K, V]

	table     *mapping.Table[Delta[K, V]]
	reclaimer *epoch.Reclaimer

	rootID atomic.Uint64
	closed atomic.Bool
}

// New constructs a Tree with an empty root leaf. cmp supplies the
// total order over K and the black-box operations over V that spec.md
// section 3 requires the tree never assume more about.
func New[K, V any](cmp Comparator[K, V], cfg Config) (*Tree[K, V], error) {
	if cmp == nil {
		return nil, ErrNilComparator
	}
	resolved := cfg
	if resolved.MappingTableCapacity == 0 {
		// The zero Config is not independently useful (a mapping table
		// of capacity 0 can hold nothing), so treat it as "caller wants
		// the defaults" rather than failing validate().
		resolved = DefaultConfig()
	}
	if err := resolved.validate(); err != nil {
		return nil, err
	}

	table, err := mapping.New[Delta[K, V]](resolved.MappingTableCapacity)
	if err != nil {
		return nil, err
	}

	t := &Tree[K, V]{
		cfg:       resolved,
		cmp:       cmp,
		table:     table,
		reclaimer: epoch.New(epoch.Config{Interval: resolved.EpochInterval, Logger: resolved.Logger}),
	}

	rootID, err := table.Allocate()
	if err != nil {
		return nil, err
	}
	table.InstallNew(rootID, newLeafBase[K, V](nil, negInf[K](), posInf[K](), mapping.InvalidID))
	t.rootID.Store(uint64(rootID))
	return t, nil
}

// Insert adds (key, value). If cfg.UniqueKeys is set and key already
// has any value, it returns ErrDuplicateKey without modifying the
// tree. Otherwise, distinct (key, value) pairs are permitted and
// stored as separate entries, but inserting a pair that already exists
// is itself a no-op: it returns ErrDuplicateKey rather than storing a
// second copy (spec.md section 6: "false if (k,v) already present
// (non-unique) or k already present (unique mode)").
func (t *Tree[K, V]) Insert(key K, value V) error {
	return t.retry(func() (bool, error) {
		p, err := t.descend(key)
		if err != nil {
			return false, err
		}
		leaf := p.leaf()
		if t.cfg.UniqueKeys {
			if leafHasKey(leaf.head, t.cmp, key) {
				return true, ErrDuplicateKey
			}
		} else if leafHasValue(leaf.head, t.cmp, key, value) {
			return true, ErrDuplicateKey
		}
		delta := newLeafInsert(leaf.head, key, value)
		if !t.table.CASReplace(leaf.id, leaf.head, delta) {
			return false, nil
		}
		t.maybeConsolidateAndSplit(leaf.id)
		return true, nil
	})
}

// ConditionalInsert adds (key, value) only if key currently has no
// value equal to value under cmp.EqualValues; it reports whether the
// insert happened.
func (t *Tree[K, V]) ConditionalInsert(key K, value V) (bool, error) {
	var inserted bool
	err := t.retry(func() (bool, error) {
		p, err := t.descend(key)
		if err != nil {
			return false, err
		}
		leaf := p.leaf()
		if leafHasValue(leaf.head, t.cmp, key, value) {
			inserted = false
			return true, nil
		}
		delta := newLeafInsert(leaf.head, key, value)
		if !t.table.CASReplace(leaf.id, leaf.head, delta) {
			return false, nil
		}
		t.maybeConsolidateAndSplit(leaf.id)
		inserted = true
		return true, nil
	})
	return inserted, err
}

// Delete removes one (key, value) entry equal under cmp.EqualValues.
// It returns ErrValueNotFound if no such entry exists.
func (t *Tree[K, V]) Delete(key K, value V) error {
	return t.retry(func() (bool, error) {
		p, err := t.descend(key)
		if err != nil {
			return false, err
		}
		leaf := p.leaf()
		if !leafHasValue(leaf.head, t.cmp, key, value) {
			return true, ErrValueNotFound
		}
		delta := newLeafDelete(leaf.head, key, value)
		if !t.table.CASReplace(leaf.id, leaf.head, delta) {
			return false, nil
		}
		t.maybeConsolidateAndSplit(leaf.id)
		return true, nil
	})
}

// GetValues returns every value currently stored under key, in no
// particular order. It returns ErrNotFound if key has no values.
func (t *Tree[K, V]) GetValues(key K) ([]V, error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	guard := t.reclaimer.Join()
	defer guard.Leave()

	var p path[K, V]
	for {
		var err error
		p, err = t.descend(key)
		if err == errAborted {
			continue
		}
		if err != nil {
			return nil, err
		}
		break
	}
	values := collectLeafValues(p.leaf().head, t.cmp, key)
	if len(values) == 0 {
		return nil, ErrNotFound
	}
	return values, nil
}

// GetValueSet returns GetValues deduplicated by cmp.EqualValues.
func (t *Tree[K, V]) GetValueSet(key K) ([]V, error) {
	values, err := t.GetValues(key)
	if err != nil {
		return nil, err
	}
	out := make([]V, 0, len(values))
	for _, v := range values {
		dup := false
		for _, seen := range out {
			if t.cmp.EqualValues(seen, v) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, v)
		}
	}
	return out, nil
}

// NeedGC reports whether the background reclaimer has enough pending
// garbage that a manual PerformGC call is worthwhile.
func (t *Tree[K, V]) NeedGC() bool { return t.reclaimer.NeedGC() }

// PerformGC forces an epoch advance and reclaim pass.
func (t *Tree[K, V]) PerformGC() int { return t.reclaimer.PerformGC() }

// Close stops the background reclaimer and drains all pending garbage.
// Close assumes no other goroutine is still calling into the tree.
func (t *Tree[K, V]) Close() {
	if !t.closed.CompareAndSwap(false, true) {
		return
	}
	t.reclaimer.Close()
}

// retry runs op until it reports done=true, retrying on errAborted (a
// lost CAS race or a stale path) and propagating any other error.
func (t *Tree[K, V]) retry(op func() (done bool, err error)) error {
	if t.closed.Load() {
		return ErrClosed
	}
	guard := t.reclaimer.Join()
	defer guard.Leave()

	for {
		done, err := op()
		if done {
			return err
		}
		if err != nil && err != errAborted {
			return err
		}
	}
}

// leafHasKey reports whether the leaf chain has any entry for key.
func leafHasKey[K, V any](head *Delta[K, V], cmp Comparator[K, V], key K) bool {
	return len(collectLeafValues(head, cmp, key)) > 0
}

// leafHasValue reports whether the leaf chain has an entry equal to
// (key, value), honoring delete overlays newest-first.
func leafHasValue[K, V any](head *Delta[K, V], cmp Comparator[K, V], key K, value V) bool {
	for _, v := range collectLeafValues(head, cmp, key) {
		if cmp.EqualValues(v, value) {
			return true
		}
	}
	return false
}

// collectLeafValues replays a leaf chain exactly (no bloom filter) for
// one key, returning every live value. Reads can afford the exact
// O(depth + matches) cost; only consolidation's O(itemCount) replay
// uses the probabilistic bloom filters (spec.md section 4.3).
func collectLeafValues[K, V any](head *Delta[K, V], cmp Comparator[K, V], key K) []V {
	type seen struct {
		value   V
		deleted bool
	}
	var hits []seen

	has := func(value V) (int, bool) {
		for i, s := range hits {
			if cmp.EqualValues(s.value, value) {
				return i, true
			}
		}
		return -1, false
	}

	var walk func(d *Delta[K, V])
	walk = func(d *Delta[K, V]) {
		for d != nil {
			switch d.kind {
			case kindLeafInsert:
				if cmp.CompareKeys(d.item.key, key) == 0 {
					if _, ok := has(d.item.value); !ok {
						hits = append(hits, seen{value: d.item.value})
					}
				}
				d = d.child
			case kindLeafDelete:
				if cmp.CompareKeys(d.item.key, key) == 0 {
					// First-seen-wins, same as consolidateLeaf: a newer
					// record (insert or delete) for this value already
					// settled its verdict earlier in this walk, so an
					// older delete must not override it.
					if _, ok := has(d.item.value); !ok {
						hits = append(hits, seen{value: d.item.value, deleted: true})
					}
				}
				d = d.child
			case kindLeafSplit, kindLeafRemove:
				d = d.child
			case kindLeafMerge:
				walk(d.rightPtr)
				d = d.child
			case kindLeafBase:
				for _, it := range d.leafItems {
					if cmp.CompareKeys(it.key, key) == 0 {
						if _, ok := has(it.value); !ok {
							hits = append(hits, seen{value: it.value})
						}
					}
				}
				return
			default:
				return
			}
		}
	}
	walk(head)

	out := make([]V, 0, len(hits))
	for _, s := range hits {
		if !s.deleted {
			out = append(out, s.value)
		}
	}
	return out
}
