package bwtree

import "lfindex/pkg/mapping"

// deltaKind tags which variant of the delta-chain node model (spec.md
// section 3 "Delta record variants") a Delta record is.
type deltaKind uint8

const (
	kindLeafBase deltaKind = iota
	kindLeafInsert
	kindLeafDelete
	kindLeafSplit
	kindLeafMerge
	kindLeafRemove
	kindInnerBase
	kindInnerInsert
	kindInnerDelete
	kindInnerSplit
	kindInnerMerge
	kindInnerRemove
	kindInnerAbort
)

func (k deltaKind) isLeaf() bool {
	return k <= kindLeafRemove
}

// boundKind distinguishes the implicit -infinity/+infinity sentinels
// from a real, comparable key (spec.md section 3). Sentinels are
// never passed to the caller's Comparator.
type boundKind int8

const (
	boundNegInf boundKind = -1
	boundFinite boundKind = 0
	boundPosInf boundKind = 1
)

// bound wraps a K with -infinity/+infinity sentinels that never reach
// the caller-supplied comparator (design note: avoids the "reading
// uninitialized memory for a dummy key" defect called out in spec.md
// section 9).
type bound[K any] struct {
	kind boundKind
	key  K
}

func negInf[K any]() bound[K] { return bound[K]{kind: boundNegInf} }
func posInf[K any]() bound[K] { return bound[K]{kind: boundPosInf} }
func finite[K any](k K) bound[K] {
	return bound[K]{kind: boundFinite, key: k}
}

// compareBound orders two bounds, consulting cmpKeys only when both
// sides are finite.
func compareBound[K any](cmpKeys func(a, b K) int, a, b bound[K]) int {
	if a.kind == boundFinite && b.kind == boundFinite {
		return cmpKeys(a.key, b.key)
	}
	if a.kind == b.kind {
		return 0
	}
	// negInf < finite < posInf
	return int(a.kind) - int(b.kind)
}

// compareKeyBound orders a plain key against a bound.
func compareKeyBound[K any](cmpKeys func(a, b K) int, k K, b bound[K]) int {
	return compareBound(cmpKeys, finite(k), b)
}

// leafItem is one (key,value) pair stored in a leaf base record.
type leafItem[K, V any] struct {
	key   K
	value V
}

// innerSep is one separator entry in an inner base record. Index 0's
// key is logically -infinity and must never be compared (invariant 2
// in spec.md section 3); it only carries lowChildID's purpose via
// childID.
type innerSep[K any] struct {
	key     bound[K]
	childID mapping.NodeID
}

// meta holds the O(1)-accessible metadata spec.md section 3 requires
// every chain head to expose without walking the chain: low/high key
// pair, chain depth, and item count.
type meta[K any] struct {
	depth      int
	itemCount  int
	lowKey     bound[K] // inner-only; leaves don't use lowKey/lowChildID
	lowChildID mapping.NodeID
	highKey    bound[K]
	highNodeID mapping.NodeID // InvalidID means "+infinity sibling"
}

// Delta is the single tagged-union record type implementing every
// variant in spec.md section 3. Each record is immutable after
// publication and carries a pointer to its child record; a chain plus
// its terminal base record is the logical state of one NodeID.
type Delta[K, V any] struct {
	kind  deltaKind
	child *Delta[K, V]
	meta  meta[K]

	// leafInsert / leafDelete payload
	item leafItem[K, V]

	// innerInsert: (sep, nextSep); innerDelete: (del, prev, next)
	sep     innerSep[K]
	nextSep innerSep[K]
	prevSep innerSep[K]
	delSep  innerSep[K]

	// split (leaf or inner)
	splitKey bound[K]
	rightID  mapping.NodeID

	// merge (leaf or inner)
	mergeKey  bound[K]
	rightPtr  *Delta[K, V]
	removedID mapping.NodeID

	// base record payloads
	leafItems []leafItem[K, V] // sorted by key, stable on insertion order
	innerSeps []innerSep[K]    // sorted by key; index 0 is the low-key entry
}

// Depth returns this chain head's delta depth.
func (d *Delta[K, V]) Depth() int { return d.meta.depth }

// ItemCount returns this chain head's claimed item/separator count.
func (d *Delta[K, V]) ItemCount() int { return d.meta.itemCount }

// IsLeaf reports whether this chain belongs to a leaf node.
func (d *Delta[K, V]) IsLeaf() bool { return d.kind.isLeaf() }

// newLeafBase constructs a leaf base record. items must already be
// sorted by key (stable on insertion order for equal keys).
func newLeafBase[K, V any](items []leafItem[K, V], low, high bound[K], highID mapping.NodeID) *Delta[K, V] {
	return &Delta[K, V]{
		kind:      kindLeafBase,
		leafItems: items,
		meta: meta[K]{
			depth:      1,
			itemCount:  len(items),
			lowKey:     low,
			highKey:    high,
			highNodeID: highID,
		},
	}
}

// newInnerBase constructs an inner base record. seps[0] is the
// low-key entry; its key field is ignored for comparisons.
func newInnerBase[K, V any](seps []innerSep[K], high bound[K], highID mapping.NodeID) *Delta[K, V] {
	return &Delta[K, V]{
		kind:      kindInnerBase,
		innerSeps: seps,
		meta: meta[K]{
			depth:      1,
			itemCount:  len(seps),
			lowKey:     negInf[K](),
			lowChildID: seps[0].childID,
			highKey:    high,
			highNodeID: highID,
		},
	}
}

func childMeta[K, V any](child *Delta[K, V]) meta[K] {
	return child.meta
}

// newLeafInsert prepends a LeafInsert delta over child.
func newLeafInsert[K, V any](child *Delta[K, V], key K, value V) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	m.itemCount++
	return &Delta[K, V]{kind: kindLeafInsert, child: child, meta: m, item: leafItem[K, V]{key: key, value: value}}
}

// newLeafDelete prepends a LeafDelete delta over child.
func newLeafDelete[K, V any](child *Delta[K, V], key K, value V) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	if m.itemCount > 0 {
		m.itemCount--
	}
	return &Delta[K, V]{kind: kindLeafDelete, child: child, meta: m, item: leafItem[K, V]{key: key, value: value}}
}

// newLeafSplit prepends a LeafSplit delta: the chain's own high key
// tightens to splitKey and its sibling becomes rightID. rightCount is
// subtracted from child's item count: it is the number of child's
// items that now belong to the sibling.
func newLeafSplit[K, V any](child *Delta[K, V], splitKey bound[K], rightID mapping.NodeID, rightCount int) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	m.itemCount -= rightCount
	m.highKey = splitKey
	m.highNodeID = rightID
	return &Delta[K, V]{kind: kindLeafSplit, child: child, meta: m, splitKey: splitKey, rightID: rightID}
}

func newInnerSplit[K, V any](child *Delta[K, V], splitKey bound[K], rightID mapping.NodeID, rightCount int) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	m.itemCount -= rightCount
	m.highKey = splitKey
	m.highNodeID = rightID
	return &Delta[K, V]{kind: kindInnerSplit, child: child, meta: m, splitKey: splitKey, rightID: rightID}
}

// newLeafMerge prepends a LeafMerge delta: rightPtr is the victim's
// surviving sub-chain, spliced onto this node logically.
func newLeafMerge[K, V any](child *Delta[K, V], mergeKey bound[K], rightPtr *Delta[K, V], removedID mapping.NodeID) *Delta[K, V] {
	m := childMeta(child)
	m.depth += rightPtr.meta.depth // sum, not max: spec.md invariant 5
	m.itemCount += rightPtr.meta.itemCount
	m.highKey = rightPtr.meta.highKey
	m.highNodeID = rightPtr.meta.highNodeID
	return &Delta[K, V]{kind: kindLeafMerge, child: child, meta: m, mergeKey: mergeKey, rightPtr: rightPtr, removedID: removedID}
}

func newInnerMerge[K, V any](child *Delta[K, V], mergeKey bound[K], rightPtr *Delta[K, V], removedID mapping.NodeID) *Delta[K, V] {
	m := childMeta(child)
	m.depth += rightPtr.meta.depth
	m.itemCount += rightPtr.meta.itemCount
	m.highKey = rightPtr.meta.highKey
	m.highNodeID = rightPtr.meta.highNodeID
	return &Delta[K, V]{kind: kindInnerMerge, child: child, meta: m, mergeKey: mergeKey, rightPtr: rightPtr, removedID: removedID}
}

// newLeafRemove/newInnerRemove mark a node as logically destroyed;
// removedID is this node's own id, recorded here so the node serves
// as the container the reclaimer uses to recycle the id (spec.md
// section 3, Lifecycle).
func newLeafRemove[K, V any](child *Delta[K, V], removedID mapping.NodeID) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	return &Delta[K, V]{kind: kindLeafRemove, child: child, meta: m, removedID: removedID}
}

func newInnerRemove[K, V any](child *Delta[K, V], removedID mapping.NodeID) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	return &Delta[K, V]{kind: kindInnerRemove, child: child, meta: m, removedID: removedID}
}

// newInnerInsert prepends an index-term-insert delta: a new
// separator sep, whose right boundary is nextSep (used to bound the
// navigation range; nextSep.childID is not itself meaningful here,
// only nextSep.key).
func newInnerInsert[K, V any](child *Delta[K, V], sep, nextSep innerSep[K]) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	m.itemCount++
	return &Delta[K, V]{kind: kindInnerInsert, child: child, meta: m, sep: sep, nextSep: nextSep}
}

// newInnerDelete prepends an index-term-delete delta: del is absorbed
// by prev, bounded on the right by next.
func newInnerDelete[K, V any](child *Delta[K, V], del, prev, next innerSep[K]) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	if m.itemCount > 0 {
		m.itemCount--
	}
	return &Delta[K, V]{kind: kindInnerDelete, child: child, meta: m, delSep: del, prevSep: prev, nextSep: next}
}

// newInnerAbort installs a transient mutex-like delta blocking other
// SMOs on this node while a remove is attempted (spec.md section
// 4.4.6).
func newInnerAbort[K, V any](child *Delta[K, V]) *Delta[K, V] {
	m := childMeta(child)
	m.depth++
	return &Delta[K, V]{kind: kindInnerAbort, child: child, meta: m}
}
