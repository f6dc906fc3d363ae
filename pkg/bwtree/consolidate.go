package bwtree

import (
	"sort"

	"lfindex/internal/bloom"
)

// mixHash64 folds a key hash and a value hash into one probe value for
// the (key,value)-keyed bloom filters a leaf chain's replay uses. A
// plain xor would make (a,b) and (b,a) collide for swapped hash pairs;
// multiplying one side by an odd constant first avoids that without a
// second hash pass.
func mixHash64(a, b uint64) uint64 {
	return a*1099511628211 ^ b
}

// consolidateLeaf replays a leaf chain (spec.md section 4.3) into a
// single sorted base record. The two bloom filters are the only
// present/deleted bookkeeping kept during replay: a hash collision can
// at worst drop a live item or resurrect a deleted one with vanishing
// probability, which is the same tradeoff the original BwTree accepts
// (see DESIGN.md) rather than a defect introduced here.
func consolidateLeaf[K, V any](head *Delta[K, V], cmp Comparator[K, V]) *Delta[K, V] {
	present := bloom.New(nil)
	deleted := bloom.New(nil)

	// itemCount at the head is already the net count after every
	// insert/delete/split/merge adjustment folded into the chain, so
	// the replay below appends into this slice without reallocating it
	// (spec.md section 9, "known source defect to avoid" about
	// reallocating during consolidation). When the high key is finite,
	// the filter after the replay copies the survivors into a second
	// slice.
	out := make([]leafItem[K, V], 0, head.meta.itemCount)

	var walk func(d *Delta[K, V])
	walk = func(d *Delta[K, V]) {
		for d != nil {
			switch d.kind {
			case kindLeafInsert:
				h := mixHash64(cmp.HashKey(d.item.key), cmp.HashValue(d.item.value))
				if !deleted.MightContain(hashBytes(h)) && !present.MightContain(hashBytes(h)) {
					present.Insert(hashBytes(h))
					out = append(out, d.item)
				}
				d = d.child
			case kindLeafDelete:
				h := mixHash64(cmp.HashKey(d.item.key), cmp.HashValue(d.item.value))
				if !present.MightContain(hashBytes(h)) {
					deleted.Insert(hashBytes(h))
				}
				d = d.child
			case kindLeafSplit, kindLeafRemove:
				d = d.child
			case kindLeafMerge:
				walk(d.rightPtr)
				d = d.child
			case kindLeafBase:
				for _, it := range d.leafItems {
					h := mixHash64(cmp.HashKey(it.key), cmp.HashValue(it.value))
					if !deleted.MightContain(hashBytes(h)) && !present.MightContain(hashBytes(h)) {
						present.Insert(hashBytes(h))
						out = append(out, it)
					}
				}
				return
			default:
				return
			}
		}
	}
	walk(head)

	if head.meta.highKey.kind != boundPosInf {
		filtered := out[:0:0]
		for _, it := range out {
			if cmp.CompareKeys(it.key, head.meta.highKey.key) < 0 {
				filtered = append(filtered, it)
			}
		}
		out = filtered
	}

	sort.SliceStable(out, func(i, j int) bool {
		return cmp.CompareKeys(out[i].key, out[j].key) < 0
	})

	return &Delta[K, V]{
		kind:      kindLeafBase,
		leafItems: out,
		meta: meta[K]{
			depth:      1,
			itemCount:  len(out),
			lowKey:     head.meta.lowKey,
			highKey:    head.meta.highKey,
			highNodeID: head.meta.highNodeID,
		},
	}
}

// consolidateInner replays an inner chain into a single sorted base
// record, the index-node counterpart of consolidateLeaf.
func consolidateInner[K, V any](head *Delta[K, V], cmp Comparator[K, V]) *Delta[K, V] {
	present := bloom.New(nil)
	deleted := bloom.New(nil)

	out := make([]innerSep[K], 0, head.meta.itemCount+1)
	var low innerSep[K]
	haveLow := false

	var walk func(d *Delta[K, V])
	walk = func(d *Delta[K, V]) {
		for d != nil {
			switch d.kind {
			case kindInnerInsert:
				h := cmp.HashKey(d.sep.key.key)
				b := hashBytes(h)
				if !deleted.MightContain(b) && !present.MightContain(b) {
					present.Insert(b)
					out = append(out, d.sep)
				}
				d = d.child
			case kindInnerDelete:
				h := cmp.HashKey(d.delSep.key.key)
				b := hashBytes(h)
				if !present.MightContain(b) {
					deleted.Insert(b)
				}
				d = d.child
			case kindInnerSplit, kindInnerRemove, kindInnerAbort:
				d = d.child
			case kindInnerMerge:
				walk(d.rightPtr)
				d = d.child
			case kindInnerBase:
				if !haveLow {
					low = d.innerSeps[0]
					haveLow = true
				}
				for _, sep := range d.innerSeps[1:] {
					h := cmp.HashKey(sep.key.key)
					b := hashBytes(h)
					if !deleted.MightContain(b) && !present.MightContain(b) {
						present.Insert(b)
						out = append(out, sep)
					}
				}
				return
			default:
				return
			}
		}
	}
	walk(head)

	if head.meta.highKey.kind != boundPosInf {
		filtered := out[:0:0]
		for _, sep := range out {
			if sep.key.kind == boundFinite && cmp.CompareKeys(sep.key.key, head.meta.highKey.key) < 0 {
				filtered = append(filtered, sep)
			}
		}
		out = filtered
	}

	sort.SliceStable(out, func(i, j int) bool {
		return compareBound(cmp.CompareKeys, out[i].key, out[j].key) < 0
	})

	if !haveLow {
		low = innerSep[K]{key: negInf[K](), childID: head.meta.lowChildID}
	} else {
		low.childID = head.meta.lowChildID
	}
	full := make([]innerSep[K], 0, len(out)+1)
	full = append(full, low)
	full = append(full, out...)

	return &Delta[K, V]{
		kind:      kindInnerBase,
		innerSeps: full,
		meta: meta[K]{
			depth:      1,
			itemCount:  len(full),
			lowKey:     negInf[K](),
			lowChildID: low.childID,
			highKey:    head.meta.highKey,
			highNodeID: head.meta.highNodeID,
		},
	}
}

// consolidate dispatches to the leaf or inner replay depending on the
// chain's kind.
func consolidate[K, V any](head *Delta[K, V], cmp Comparator[K, V]) *Delta[K, V] {
	if head.kind.isLeaf() {
		return consolidateLeaf(head, cmp)
	}
	return consolidateInner(head, cmp)
}

// hashBytes renders a 64-bit hash as the byte slice the bloom filter's
// HashFunc re-hashes. The filter is keyed on b, not on h directly, so
// that callers can plug in a different bloom.HashFunc without this
// package caring; xxhash.Sum64 of 8 bytes is cheap enough that a
// second pass over an already-mixed hash costs nothing measurable next
// to the pointer chasing the rest of replay does.
func hashBytes(h uint64) []byte {
	var b [8]byte
	b[0] = byte(h)
	b[1] = byte(h >> 8)
	b[2] = byte(h >> 16)
	b[3] = byte(h >> 24)
	b[4] = byte(h >> 32)
	b[5] = byte(h >> 40)
	b[6] = byte(h >> 48)
	b[7] = byte(h >> 56)
	return b[:]
}
