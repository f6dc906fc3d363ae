package bwtree

import (
	"sort"

	"lfindex/internal/epoch"
	"lfindex/pkg/mapping"
)

// Iterator is a forward cursor over (key, value) pairs in key order,
// per spec.md section 5's begin()/begin(k)/is_end() contract. It pins
// an epoch guard for its entire lifetime, so a long-lived Iterator
// delays reclamation of everything retired after it was created;
// callers should Close it once done.
type Iterator[K, V any] struct {
	tree  *Tree[K, V]
	guard *epoch.Guard

	leafID mapping.NodeID
	items  []leafItem[K, V]
	idx    int

	hasUpper bool
	upper    K

	done bool
	err  error
}

// Begin returns an iterator positioned at the first live (k,v)
// pair in the tree.
func (t *Tree[K, V]) Begin() (*Iterator[K, V], error) {
	return t.beginAt(nil)
}

// BeginAt returns an iterator positioned at the first live (k,v) pair
// with k >= key.
func (t *Tree[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	return t.beginAt(&key)
}

// ScanRange returns an iterator over every live pair with key in
// [lo, hi). It is a thin convenience over BeginAt plus an upper-bound
// check applied to the first pair and on every Next.
func (t *Tree[K, V]) ScanRange(lo, hi K) (*Iterator[K, V], error) {
	it, err := t.BeginAt(lo)
	if err != nil {
		return nil, err
	}
	it.hasUpper = true
	it.upper = hi
	it.advanceToLiveItem()
	return it, nil
}

func (t *Tree[K, V]) beginAt(key *K) (*Iterator[K, V], error) {
	if t.closed.Load() {
		return nil, ErrClosed
	}
	guard := t.reclaimer.Join()

	it := &Iterator[K, V]{tree: t, guard: guard}
	seekKey := key
	var zero K
	if seekKey == nil {
		seekKey = &zero
	}

	var p path[K, V]
	for {
		var err error
		if key == nil {
			p, err = t.descendLeftmost()
		} else {
			p, err = t.descend(*seekKey)
		}
		if err == errAborted {
			continue
		}
		if err != nil {
			guard.Leave()
			return nil, err
		}
		break
	}

	it.loadLeaf(p.leaf().id)
	if key != nil {
		idx := sort.Search(len(it.items), func(i int) bool {
			return t.cmp.CompareKeys(it.items[i].key, *key) >= 0
		})
		it.idx = idx
	}
	it.advanceToLiveItem()
	return it, nil
}

// descendLeftmost walks to the leftmost leaf, honoring help-along just
// like descend.
func (t *Tree[K, V]) descendLeftmost() (path[K, V], error) {
	var p path[K, V]
	id := mapping.NodeID(t.rootID.Load())
	for {
		head := t.table.Load(id)
		if head == nil {
			return nil, errAborted
		}
		if err := t.helpAlong(p, id, head); err != nil {
			return nil, err
		}
		head = t.table.Load(id)
		if head == nil {
			return nil, errAborted
		}
		p = append(p, nodeSnapshot[K, V]{id: id, head: head})
		if head.kind.isLeaf() {
			return p, nil
		}
		seps := flattenInner(head, t.cmp.CompareKeys)
		id = seps[0].childID
	}
}

func (it *Iterator[K, V]) loadLeaf(id mapping.NodeID) {
	it.leafID = id
	head := it.tree.table.Load(id)
	if head == nil {
		it.done = true
		return
	}
	it.items = flattenLeaf(head, it.tree.cmp)
	it.idx = 0
}

// advanceToLiveItem skips to the next in-range item, crossing leaf
// sibling boundaries as needed, stopping (is_end()) at the rightmost
// leaf or the upper bound.
func (it *Iterator[K, V]) advanceToLiveItem() {
	for {
		if it.done {
			return
		}
		if it.idx < len(it.items) {
			if it.hasUpper && it.tree.cmp.CompareKeys(it.items[it.idx].key, it.upper) >= 0 {
				it.done = true
				return
			}
			return
		}
		head := it.tree.table.Load(it.leafID)
		if head == nil {
			it.done = true
			return
		}
		if head.meta.highNodeID == mapping.InvalidID {
			it.done = true
			return
		}
		it.loadLeaf(head.meta.highNodeID)
	}
}

// IsEnd reports whether the iterator has no further pairs.
func (it *Iterator[K, V]) IsEnd() bool { return it.done }

// Next advances past the current pair, returning false once IsEnd
// would report true.
func (it *Iterator[K, V]) Next() bool {
	if it.done {
		return false
	}
	it.idx++
	it.advanceToLiveItem()
	return !it.done
}

// Key returns the current pair's key. Only valid when !IsEnd().
func (it *Iterator[K, V]) Key() K { return it.items[it.idx].key }

// Value returns the current pair's value. Only valid when !IsEnd().
func (it *Iterator[K, V]) Value() V { return it.items[it.idx].value }

// Close releases the iterator's epoch guard. Safe to call more than
// once.
func (it *Iterator[K, V]) Close() {
	if it.guard != nil {
		it.guard.Leave()
		it.guard = nil
	}
}

// flattenLeaf produces an exact (non-bloom) sorted live-item list for
// a leaf chain, used by the iterator where a false-positive dedup from
// the bloom-backed consolidateLeaf would silently skip a live pair
// instead of merely widening a membership check.
func flattenLeaf[K, V any](head *Delta[K, V], cmp Comparator[K, V]) []leafItem[K, V] {
	type seen struct {
		item    leafItem[K, V]
		deleted bool
	}
	var hits []seen
	find := func(key K, value V) (int, bool) {
		for i, s := range hits {
			if cmp.CompareKeys(s.item.key, key) == 0 && cmp.EqualValues(s.item.value, value) {
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
				if _, ok := find(d.item.key, d.item.value); !ok {
					hits = append(hits, seen{item: d.item})
				}
				d = d.child
			case kindLeafDelete:
				// First-seen-wins: a newer record for this (key,value)
				// already settled its verdict earlier in this walk.
				if _, ok := find(d.item.key, d.item.value); !ok {
					hits = append(hits, seen{item: d.item, deleted: true})
				}
				d = d.child
			case kindLeafSplit, kindLeafRemove:
				d = d.child
			case kindLeafMerge:
				walk(d.rightPtr)
				d = d.child
			case kindLeafBase:
				for _, it := range d.leafItems {
					if _, ok := find(it.key, it.value); !ok {
						hits = append(hits, seen{item: it})
					}
				}
				return
			default:
				return
			}
		}
	}
	walk(head)

	out := make([]leafItem[K, V], 0, len(hits))
	for _, s := range hits {
		if !s.deleted {
			out = append(out, s.item)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return cmp.CompareKeys(out[i].key, out[j].key) < 0
	})
	return out
}
