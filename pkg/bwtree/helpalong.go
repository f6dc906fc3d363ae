package bwtree

import (
	"sort"

	"lfindex/pkg/mapping"
)

// helpAlong inspects the freshly loaded head of the node currently
// being visited and, if it is literally an in-progress SMO delta
// (split or merge awaiting its parent-side half, spec.md section
// 4.4.4), completes that half before the caller continues its own
// descent. This is distinct from the in-chain-walk routing in
// findChildID, which can encounter a split/merge delta anywhere in a
// chain while resolving a child pointer and simply routes around it
// without trying to finish anything.
func (t *Tree[K, V]) helpAlong(p path[K, V], id mapping.NodeID, head *Delta[K, V]) error {
	switch head.kind {
	case kindLeafSplit:
		return t.postSeparator(p, id, head.splitKey, head.rightID)
	case kindInnerSplit:
		return t.postSeparator(p, id, head.splitKey, head.rightID)
	case kindLeafMerge:
		return t.removeSeparator(p, id, head.removedID)
	case kindInnerMerge:
		return t.removeSeparator(p, id, head.removedID)
	case kindLeafRemove, kindInnerRemove:
		// This node is logically gone; restart from the root. Nothing
		// in this package posts Remove or Merge deltas (nodes are only
		// ever split), so this branch and the Merge branches above are
		// not reached by the tree's own operations.
		return errAborted
	default:
		return nil
	}
}

// postSeparator installs an index-term-insert delta on the parent of
// id, publishing rightID's separator so future descents reach it
// directly instead of via id's split delta. If id has no parent (id is
// currently the root), it grows the tree by one level instead.
func (t *Tree[K, V]) postSeparator(p path[K, V], id mapping.NodeID, splitKey bound[K], rightID mapping.NodeID) error {
	parent, ok := p.parent()
	if !ok {
		return t.growRoot(id, splitKey, rightID)
	}
	for {
		ph := t.table.Load(parent.id)
		if ph == nil {
			return errAborted
		}
		if separatorPresent(ph, t.cmp.CompareKeys, splitKey, rightID) {
			return nil
		}
		sep := innerSep[K]{key: splitKey, childID: rightID}
		nextSep := nextSeparatorAfter(ph, t.cmp.CompareKeys, splitKey)
		delta := newInnerInsert(ph, sep, nextSep)
		if t.table.CASReplace(parent.id, ph, delta) {
			t.maybeConsolidateAndSplit(parent.id)
			return nil
		}
		// Parent moved; re-check against its new head before retrying,
		// in case another thread already posted this exact separator.
	}
}

// separatorPresent reports whether head's chain already routes keys
// >= splitKey to rightID, which happens once some other thread's
// postSeparator call has already won.
func separatorPresent[K, V any](head *Delta[K, V], cmpKeys func(a, b K) int, splitKey bound[K], rightID mapping.NodeID) bool {
	if splitKey.kind != boundFinite {
		return false
	}
	child, err := findChildID(head, cmpKeys, splitKey.key)
	return err == nil && child == rightID
}

// nextSeparatorAfter finds the separator bound that currently follows
// splitKey in head's chain, used as the new insert delta's right
// boundary for navigation purposes.
func nextSeparatorAfter[K, V any](head *Delta[K, V], cmpKeys func(a, b K) int, splitKey bound[K]) innerSep[K] {
	seps := flattenInner(head, cmpKeys)
	for _, s := range seps {
		if compareBound(cmpKeys, splitKey, s.key) < 0 {
			return s
		}
	}
	return innerSep[K]{key: posInf[K](), childID: mapping.InvalidID}
}

// removeSeparator installs an index-term-delete delta on the parent of
// id, dropping removedID's separator now that its content has been
// absorbed by a merge.
func (t *Tree[K, V]) removeSeparator(p path[K, V], id mapping.NodeID, removedID mapping.NodeID) error {
	parent, ok := p.parent()
	if !ok {
		// A root-level merge leaves the root itself underpopulated,
		// which is fine: root shrinkage is not modeled (spec.md treats
		// the root as always present), so there is nothing to post.
		return nil
	}
	for {
		ph := t.table.Load(parent.id)
		if ph == nil {
			return errAborted
		}
		del, prev, next, found := findSeparatorByChild(ph, t.cmp.CompareKeys, removedID)
		if !found {
			return nil
		}
		delta := newInnerDelete(ph, del, prev, next)
		if t.table.CASReplace(parent.id, ph, delta) {
			return nil
		}
	}
}

// findSeparatorByChild locates the separator routing to childID in
// head's flattened view, along with its predecessor and successor.
func findSeparatorByChild[K, V any](head *Delta[K, V], cmpKeys func(a, b K) int, childID mapping.NodeID) (del, prev, next innerSep[K], found bool) {
	seps := flattenInner(head, cmpKeys)
	for i, s := range seps {
		if s.childID == childID {
			if i == 0 {
				return innerSep[K]{}, innerSep[K]{}, innerSep[K]{}, false
			}
			del = s
			prev = seps[i-1]
			if i+1 < len(seps) {
				next = seps[i+1]
			} else {
				next = innerSep[K]{key: posInf[K](), childID: mapping.InvalidID}
			}
			return del, prev, next, true
		}
	}
	return innerSep[K]{}, innerSep[K]{}, innerSep[K]{}, false
}

// growRoot is called when the node that just split (id) has no
// parent, i.e. it is the current root: it allocates a fresh inner base
// node with two separators (the old root and its new sibling) and
// swings rootID to it.
func (t *Tree[K, V]) growRoot(oldRootID mapping.NodeID, splitKey bound[K], rightID mapping.NodeID) error {
	newID, err := t.table.Allocate()
	if err != nil {
		return err
	}
	seps := []innerSep[K]{
		{key: negInf[K](), childID: oldRootID},
		{key: splitKey, childID: rightID},
	}
	base := newInnerBase[K, V](seps, posInf[K](), mapping.InvalidID)
	t.table.InstallNew(newID, base)
	if !t.rootID.CompareAndSwap(uint64(oldRootID), uint64(newID)) {
		// Someone else grew the root first; our new node is unreachable
		// and can be dropped without ceremony since it was never
		// published anywhere else.
		t.table.Recycle(newID)
	}
	return nil
}

// maybeConsolidateAndSplit applies the size-adjustment policy from
// spec.md section 4.4.6: once a chain's depth crosses the configured
// threshold it is replaced by a fresh base record, and once that base
// record's item count crosses the split-upper threshold the node is
// split in two. Both steps are best-effort: a lost CAS race just means
// another thread's operation already moved the node forward, which is
// always safe to observe and walk away from.
func (t *Tree[K, V]) maybeConsolidateAndSplit(id mapping.NodeID) {
	head := t.table.Load(id)
	if head == nil {
		return
	}
	threshold := t.cfg.ConsolidationDepthThreshold
	if head.kind.isLeaf() {
		threshold += t.cfg.LeafDepthAdjustment
	}
	if head.Depth() > threshold {
		consolidated := consolidate(head, t.cmp)
		if t.table.CASReplace(id, head, consolidated) {
			t.reclaimer.Retire(chainGarbage[K, V]{head: head})
			head = consolidated
		} else {
			head = t.table.Load(id)
			if head == nil {
				return
			}
		}
	}

	upper := t.cfg.InnerSplitUpper
	if head.kind.isLeaf() {
		upper = t.cfg.LeafSplitUpper
	}
	if head.ItemCount() <= upper {
		return
	}
	t.trySplit(id, head)
}

// trySplit consolidates id (if not already a base record) and splits
// the resulting base: it allocates a sibling holding the upper half and
// installs a split delta on id. It does not re-check the item count;
// maybeConsolidateAndSplit has already compared head's count with the
// split threshold before calling it.
func (t *Tree[K, V]) trySplit(id mapping.NodeID, head *Delta[K, V]) {
	base := head
	if head.Depth() != 1 {
		base = consolidate(head, t.cmp)
		if !t.table.CASReplace(id, head, base) {
			return
		}
		t.reclaimer.Retire(chainGarbage[K, V]{head: head})
	}

	if base.kind.isLeaf() {
		t.splitLeafBase(id, base)
		return
	}
	t.splitInnerBase(id, base)
}

func (t *Tree[K, V]) splitLeafBase(id mapping.NodeID, base *Delta[K, V]) {
	n := len(base.leafItems)
	mid := n / 2
	if mid == 0 || mid >= n {
		return
	}
	splitKey := finite(base.leafItems[mid].key)
	rightItems := append([]leafItem[K, V]{}, base.leafItems[mid:]...)
	leftItems := append([]leafItem[K, V]{}, base.leafItems[:mid]...)

	rightID, err := t.table.Allocate()
	if err != nil {
		return
	}
	rightBase := newLeafBase(rightItems, splitKey, base.meta.highKey, base.meta.highNodeID)
	t.table.InstallNew(rightID, rightBase)

	newLeft := newLeafBase(leftItems, base.meta.lowKey, splitKey, rightID)
	// newLeft already holds only the left half, so no item moves out of it.
	delta := newLeafSplit(newLeft, splitKey, rightID, 0)
	if !t.table.CASReplace(id, base, delta) {
		t.table.Recycle(rightID)
		return
	}
}

func (t *Tree[K, V]) splitInnerBase(id mapping.NodeID, base *Delta[K, V]) {
	n := len(base.innerSeps)
	mid := n / 2
	if mid == 0 || mid >= n {
		return
	}
	splitKey := base.innerSeps[mid].key
	rightSeps := append([]innerSep[K]{}, base.innerSeps[mid:]...)
	rightSeps[0] = innerSep[K]{key: negInf[K](), childID: rightSeps[0].childID}
	leftSeps := append([]innerSep[K]{}, base.innerSeps[:mid]...)

	rightID, err := t.table.Allocate()
	if err != nil {
		return
	}
	rightBase := newInnerBase[K, V](rightSeps, base.meta.highKey, base.meta.highNodeID)
	t.table.InstallNew(rightID, rightBase)

	newLeft := newInnerBase[K, V](leftSeps, splitKey, rightID)
	// newLeft already holds only the left half, so no separator moves out of it.
	delta := newInnerSplit(newLeft, splitKey, rightID, 0)
	if !t.table.CASReplace(id, base, delta) {
		t.table.Recycle(rightID)
		return
	}
}

// chainGarbage retires a replaced chain head once no reader could
// still be walking it (spec.md section 4.1). Reclaiming only detaches
// the Go value for GC; it never touches the NodeID or slot.
type chainGarbage[K, V any] struct {
	head *Delta[K, V]
}

func (chainGarbage[K, V]) Reclaim() {}

// flattenInner produces an exact (non-bloom) separator list for an
// inner chain, used by the parent-posting helpers above where an
// occasional false positive from the bloom-backed consolidateInner
// would silently drop a separator instead of merely costing an extra
// lookup. Inner node width is bounded by InnerSplitUpper, so the
// linear dedup scans here are cheap.
func flattenInner[K, V any](head *Delta[K, V], cmpKeys func(a, b K) int) []innerSep[K] {
	type op struct {
		isDelete bool
		sep      innerSep[K]
	}
	var ops []op
	var base []innerSep[K]
	var low innerSep[K]

	d := head
	for d != nil {
		switch d.kind {
		case kindInnerInsert:
			ops = append(ops, op{sep: d.sep})
			d = d.child
		case kindInnerDelete:
			ops = append(ops, op{isDelete: true, sep: d.delSep})
			d = d.child
		case kindInnerSplit, kindInnerRemove, kindInnerAbort:
			d = d.child
		case kindInnerMerge:
			base = append(base, flattenInner(d.rightPtr, cmpKeys)[1:]...)
			d = d.child
		case kindInnerBase:
			low = d.innerSeps[0]
			base = append(base, d.innerSeps[1:]...)
			d = nil
		default:
			d = nil
		}
	}

	out := append([]innerSep[K]{}, base...)
	for i := len(ops) - 1; i >= 0; i-- {
		o := ops[i]
		idx := -1
		for j, s := range out {
			if compareBound(cmpKeys, s.key, o.sep.key) == 0 {
				idx = j
				break
			}
		}
		switch {
		case o.isDelete && idx >= 0:
			out = append(out[:idx], out[idx+1:]...)
		case !o.isDelete && idx >= 0:
			out[idx] = o.sep
		case !o.isDelete:
			out = append(out, o.sep)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compareBound(cmpKeys, out[i].key, out[j].key) < 0
	})
	return append([]innerSep[K]{low}, out...)
}
