// Package mapping implements the NodeID indirection table and
// allocator shared by the Bw-Tree engine (component C2).
//
// Every logical node is addressed by a NodeID, never by a raw
// pointer: the table maps a NodeID to the current head of that
// node's delta chain. Every structural mutation in pkg/bwtree
// linearizes through CASReplace on exactly one slot.
package mapping

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// NodeID identifies a logical node. InvalidID denotes "no sibling"
// (rightmost) or an unused slot.
type NodeID uint64

// InvalidID is the distinguished "+infinity sibling" / "unused slot"
// sentinel.
const InvalidID NodeID = ^NodeID(0)

// freeNode is one entry of the lock-free Treiber stack of recycled
// NodeIDs.
type freeNode struct {
	id   NodeID
	next *freeNode
}

// Table is a fixed-capacity array of atomic head pointers, indexed by
// NodeID, plus the monotonic allocator and free-list that hand out
// and recycle NodeIDs.
//
// T is the delta-chain head type (a *Delta in pkg/bwtree); Table is
// agnostic to what it points to.
type Table[T any] struct {
	slots []atomic.Pointer[T]

	nextID atomic.Uint64
	free   atomic.Pointer[freeNode]
}

// New creates a table with the given capacity, which must be a power
// of two per spec.md section 6.
func New[T any](capacity int) (*Table[T], error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, errors.Newf("mapping: capacity must be a positive power of two, got %d", capacity)
	}
	return &Table[T]{
		slots: make([]atomic.Pointer[T], capacity),
	}, nil
}

// Capacity returns the fixed slot count.
func (t *Table[T]) Capacity() int {
	return len(t.slots)
}

// Allocate returns a fresh or recycled NodeID with its slot left
// empty (nil). The caller must InstallNew before the ID becomes
// visible to other threads, e.g. by publishing it into a parent's
// separator list.
func (t *Table[T]) Allocate() (NodeID, error) {
	for {
		head := t.free.Load()
		if head == nil {
			break
		}
		if t.free.CompareAndSwap(head, head.next) {
			return head.id, nil
		}
	}

	id := t.nextID.Add(1) - 1
	if int(id) >= len(t.slots) {
		return InvalidID, errors.Newf("mapping: table exhausted at capacity %d", len(t.slots))
	}
	return NodeID(id), nil
}

// InstallNew unconditionally publishes ptr into id's slot. Only legal
// for a freshly allocated id whose slot is still nil; this is not a
// linearization point for any existing node's readers because no
// reader could yet know about id.
func (t *Table[T]) InstallNew(id NodeID, ptr *T) {
	t.slots[id].Store(ptr)
}

// Load acquire-loads the current head pointer for id.
func (t *Table[T]) Load(id NodeID) *T {
	if id == InvalidID {
		return nil
	}
	return t.slots[id].Load()
}

// CASReplace is the sole linearization point for every mutation: it
// swaps id's head pointer from old to new iff the slot still holds
// old.
func (t *Table[T]) CASReplace(id NodeID, old, new *T) bool {
	return t.slots[id].CompareAndSwap(old, new)
}

// Invalidate stores nil into id's slot. Called only by the reclaimer
// when physically freeing a chain whose NodeID is being recycled.
func (t *Table[T]) Invalidate(id NodeID) {
	t.slots[id].Store(nil)
}

// Recycle returns id to the free stack. Must only be called for an id
// no other thread can still reach. pkg/bwtree calls it directly, with
// no epoch wait, only for ids allocated by a split or a root growth
// whose publishing CAS failed, so the id was never visible elsewhere.
func (t *Table[T]) Recycle(id NodeID) {
	t.Invalidate(id)
	node := &freeNode{id: id}
	for {
		head := t.free.Load()
		node.next = head
		if t.free.CompareAndSwap(head, node) {
			return
		}
	}
}
