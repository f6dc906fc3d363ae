package skiplist

import "lfindex/internal/epoch"

// Iterator is a forward cursor over (key, value) pairs in key order,
// mirroring pkg/bwtree.Iterator's begin()/begin(k)/is_end() contract
// (spec.md section 5) over the skip list's level-0 chain, which is
// already a trivially scannable ordered list once marked-for-delete
// towers are skipped. It pins an epoch guard for its entire lifetime;
// callers should Close it once done.
type Iterator[K, V any] struct {
	list  *SkipList[K, V]
	guard *epoch.Guard

	node   *node[K, V]
	values []V
	idx    int

	hasUpper bool
	upper    K

	done bool
}

// Begin returns an iterator positioned at the first live (k,v)
// pair in the list.
func (s *SkipList[K, V]) Begin() (*Iterator[K, V], error) {
	return s.beginAt(nil)
}

// BeginAt returns an iterator positioned at the first live (k,v) pair
// with k >= key.
func (s *SkipList[K, V]) BeginAt(key K) (*Iterator[K, V], error) {
	return s.beginAt(&key)
}

// ScanRange returns an iterator over every live pair with key in
// [lo, hi).
func (s *SkipList[K, V]) ScanRange(lo, hi K) (*Iterator[K, V], error) {
	it, err := s.BeginAt(lo)
	if err != nil {
		return nil, err
	}
	it.hasUpper = true
	it.upper = hi
	it.advanceToLiveValue()
	return it, nil
}

func (s *SkipList[K, V]) beginAt(key *K) (*Iterator[K, V], error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	guard := s.reclaimer.Join()
	it := &Iterator[K, V]{list: s, guard: guard}

	var start *node[K, V]
	if key == nil {
		start = s.nextAlive(s.head)
	} else {
		p := s.findPath(*key)
		start = p.succs[0]
	}
	it.loadFrom(start)
	it.advanceToLiveValue()
	return it, nil
}

// nextAlive returns the first node strictly after n, in level-0 order,
// that is not itself marked for delete - skipping logically past any
// deleted towers it passes. Unlike findPath, it never unlinks, since an
// iterator is read-only and must not assume it is safe to mutate
// predecessors it has not validated at every level.
func (s *SkipList[K, V]) nextAlive(n *node[K, V]) *node[K, V] {
	cur := n.next[0].Load().next
	for cur != s.tail && cur.next[0].Load().marked {
		cur = cur.next[0].Load().next
	}
	return cur
}

// loadFrom seeks forward from n until it finds a live tower with a
// non-empty value list, or reaches the tail.
func (it *Iterator[K, V]) loadFrom(n *node[K, V]) {
	for n != nil && n != it.list.tail {
		if !n.next[0].Load().marked {
			if values := collectValues(n); len(values) > 0 {
				it.node = n
				it.values = values
				it.idx = 0
				return
			}
		}
		n = it.list.nextAlive(n)
	}
	it.node = nil
	it.values = nil
	it.done = true
}

// advanceToLiveValue stops at the current (key,value) pair if it is in
// range, or crosses tower boundaries until it finds one that is, or
// sets done once the list or the upper bound is exhausted.
func (it *Iterator[K, V]) advanceToLiveValue() {
	for {
		if it.done {
			return
		}
		if it.idx < len(it.values) {
			if it.hasUpper && !it.list.cmp.Less(it.node.key.key, it.upper) {
				it.done = true
				return
			}
			return
		}
		it.loadFrom(it.list.nextAlive(it.node))
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
	it.advanceToLiveValue()
	return !it.done
}

// Key returns the current pair's key. Only valid when !IsEnd().
func (it *Iterator[K, V]) Key() K { return it.node.key.key }

// Value returns the current pair's value. Only valid when !IsEnd().
func (it *Iterator[K, V]) Value() V { return it.values[it.idx] }

// Close releases the iterator's epoch guard. Safe to call more than
// once.
func (it *Iterator[K, V]) Close() {
	if it.guard != nil {
		it.guard.Leave()
		it.guard = nil
	}
}
