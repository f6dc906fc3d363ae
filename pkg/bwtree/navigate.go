package bwtree

import "lfindex/pkg/mapping"

// nodeSnapshot pins one step of a descent: the NodeID visited and the
// chain head observed there. The leaf mutations in tree.go CAS against
// exactly this head; the parent-side helpers in helpalong.go reload the
// parent's head from the mapping table instead.
type nodeSnapshot[K, V any] struct {
	id   mapping.NodeID
	head *Delta[K, V]
}

// path is a root-to-leaf descent: path[0] is the root, path[len-1] is
// the leaf. Kept so a leaf-level split or merge can post the matching
// index-term delta on its immediate parent without a second descent.
type path[K, V any] []nodeSnapshot[K, V]

func (p path[K, V]) leaf() nodeSnapshot[K, V] { return p[len(p)-1] }

// parent returns the last entry of p, which is the immediate parent
// of whatever node is currently being visited when p is the
// not-yet-appended prefix descend passes to helpAlong. It is never
// called against a fully built path (the prefix and the full path are
// distinct slices at every call site in this package).
func (p path[K, V]) parent() (nodeSnapshot[K, V], bool) {
	if len(p) == 0 {
		return nodeSnapshot[K, V]{}, false
	}
	return p[len(p)-1], true
}

// descend walks from the root to the leaf that must contain key,
// helping along any in-progress SMO it finds literally at a node's
// head before continuing (spec.md section 4.4.4). It returns
// errAborted when it observes state that makes the path it already
// built unsafe to use (a removed node whose parent separator has not
// yet caught up); callers retry the whole operation from the root.
func (t *Tree[K, V]) descend(key K) (path[K, V], error) {
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
		// helpAlong may have installed a new head (e.g. completed a
		// split by growing the root); reload before trusting kind.
		head = t.table.Load(id)
		if head == nil {
			return nil, errAborted
		}
		p = append(p, nodeSnapshot[K, V]{id: id, head: head})
		if head.kind.isLeaf() {
			return p, nil
		}
		child, err := findChildID(head, t.cmp.CompareKeys, key)
		if err != nil {
			return nil, err
		}
		id = child
	}
}

// findChildID walks an inner chain applying every insert/delete/split/
// merge delta in order (newest first) until it can resolve key's child
// NodeID, falling back to a binary search over the base record's
// separators (spec.md section 4.4.2). cmpKeys is Comparator.CompareKeys
// bound to its receiver; findChildID itself never needs V.
func findChildID[K, V any](head *Delta[K, V], cmpKeys func(a, b K) int, key K) (mapping.NodeID, error) {
	d := head
	for d != nil {
		switch d.kind {
		case kindInnerInsert:
			if withinSepRange(cmpKeys, key, d.sep.key, d.nextSep.key) {
				return d.sep.childID, nil
			}
			d = d.child
		case kindInnerDelete:
			if withinSepRange(cmpKeys, key, d.delSep.key, d.nextSep.key) {
				return d.prevSep.childID, nil
			}
			d = d.child
		case kindInnerSplit:
			if compareKeyBound(cmpKeys, key, d.splitKey) >= 0 {
				return d.rightID, nil
			}
			d = d.child
		case kindInnerMerge:
			if compareKeyBound(cmpKeys, key, d.mergeKey) >= 0 {
				return findChildID(d.rightPtr, cmpKeys, key)
			}
			d = d.child
		case kindInnerRemove, kindInnerAbort:
			d = d.child
		case kindInnerBase:
			return binarySearchSeps(d.innerSeps, cmpKeys, key), nil
		default:
			return mapping.InvalidID, errAborted
		}
	}
	return mapping.InvalidID, errAborted
}

// withinSepRange reports whether key falls in [lo, hi); hi may be
// +infinity, in which case there is no upper bound.
func withinSepRange[K any](cmpKeys func(a, b K) int, key K, lo, hi bound[K]) bool {
	if compareKeyBound(cmpKeys, key, lo) < 0 {
		return false
	}
	if hi.kind == boundPosInf {
		return true
	}
	return compareKeyBound(cmpKeys, key, hi) < 0
}

// binarySearchSeps returns the childID of the greatest separator whose
// key is <= key; seps[0] (the -infinity low-key entry) is always a
// valid fallback, so lo never underflows below index 0 after the loop.
func binarySearchSeps[K any](seps []innerSep[K], cmpKeys func(a, b K) int, key K) mapping.NodeID {
	lo, hi := 0, len(seps)
	for lo < hi {
		mid := (lo + hi) / 2
		if compareKeyBound(cmpKeys, key, seps[mid].key) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return seps[lo-1].childID
}
