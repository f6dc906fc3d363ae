// Package epoch implements the epoch-based safe-memory-reclamation
// scheme shared by the Bw-Tree and skip-list engines (component C1).
//
// A singly-linked list of epoch descriptors, oldest to newest, tracks
// how many threads are currently "inside" each epoch and what garbage
// was retired while that epoch was current. A background goroutine
// periodically advances the current epoch and seals/drains epochs that
// have become quiescent. The sealing step uses the same large-sentinel
// CAS trick as Couchbase's nitro skiplist access barrier: sealing adds
// a large negative bias to the active count so that any thread racing
// to join the epoch observes a negative post-increment value and knows
// to retry against the (by-then-installed) new current epoch.
package epoch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// sealSentinel is added to an epoch's active count when it is sealed.
// Chosen to match spec: -2^31, large enough that no realistic number
// of concurrent joiners can push the counter back to zero or positive.
const sealSentinel = int32(-1 << 31)

// Garbage is anything that can be retired into an epoch and later
// reclaimed once no reader could still observe it. Reclaim is called
// at most once, from the goroutine that drains the sealed epoch.
type Garbage interface {
	Reclaim()
}

type garbageNode struct {
	obj  Garbage
	next *garbageNode
}

// epochNode is one descriptor in the epoch chain.
type epochNode struct {
	active  atomic.Int32
	garbage atomic.Pointer[garbageNode]
	pending atomic.Int64 // count of un-drained garbage nodes
	next    atomic.Pointer[epochNode]
	seq     uint64
}

func newEpochNode(seq uint64) *epochNode {
	return &epochNode{seq: seq}
}

// push adds g to this epoch's garbage stack (Treiber stack, lock-free).
func (n *epochNode) push(g Garbage) {
	node := &garbageNode{obj: g}
	for {
		head := n.garbage.Load()
		node.next = head
		if n.garbage.CompareAndSwap(head, node) {
			n.pending.Add(1)
			return
		}
	}
}

// drain reclaims every garbage node chained on this (already sealed)
// epoch and returns how many were freed.
func (n *epochNode) drain() int {
	head := n.garbage.Swap(nil)
	count := 0
	for head != nil {
		head.obj.Reclaim()
		head = head.next
		count++
	}
	n.pending.Add(-int64(count))
	return count
}

// Config controls the reclaimer's background sweep cadence and
// observability. The zero value is usable: Interval defaults to 40ms
// (spec.md's 8-50ms range) and Logger defaults to a no-op logger.
type Config struct {
	// Interval is how often the background goroutine advances the
	// epoch and attempts to reclaim sealed epochs.
	Interval time.Duration
	// Logger receives debug events for epoch advances and reclaim
	// sweeps. Defaults to zerolog.Nop() - reclamation is silent unless
	// a caller opts in.
	Logger zerolog.Logger
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 40 * time.Millisecond
	}
	return c
}

// Reclaimer owns the epoch chain for one tree instance.
type Reclaimer struct {
	oldest atomic.Pointer[epochNode]
	current atomic.Pointer[epochNode]

	advanceMu sync.Mutex
	reclaimMu sync.Mutex

	nextSeq atomic.Uint64

	cfg Config

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New creates a reclaimer and starts its background sweep goroutine.
// Callers must call Close to stop the goroutine and drain remaining
// garbage.
func New(cfg Config) *Reclaimer {
	cfg = cfg.withDefaults()
	first := newEpochNode(1)
	r := &Reclaimer{
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
	r.nextSeq.Store(2)
	r.oldest.Store(first)
	r.current.Store(first)

	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Reclaimer) run() {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.Advance()
			n := r.Reclaim()
			if n > 0 {
				r.cfg.Logger.Debug().Int("reclaimed", n).Msg("epoch sweep")
			}
		}
	}
}

// Guard represents one thread's membership in an epoch. It must be
// released exactly once via Leave.
type Guard struct {
	mgr  *Reclaimer
	node *epochNode
}

// Join enters the current epoch. The returned guard pins every object
// reachable at the moment of Join against reclamation until Leave is
// called.
func (r *Reclaimer) Join() *Guard {
	for {
		node := r.current.Load()
		n := node.active.Add(1)
		if n > 0 {
			return &Guard{mgr: r, node: node}
		}
		// We raced a seal: node was (or is being) sealed, so our
		// increment landed on a deeply negative counter. Undo it and
		// retry against whatever is current now.
		node.active.Add(-1)
	}
}

// Leave releases the guard, decrementing the active count of the
// epoch it originally joined - never whatever is current at the time
// of Leave.
func (g *Guard) Leave() {
	if g == nil || g.node == nil {
		return
	}
	g.node.active.Add(-1)
	g.node = nil
}

// Epoch returns the sequence number of the epoch this guard joined.
func (g *Guard) Epoch() uint64 {
	if g == nil || g.node == nil {
		return 0
	}
	return g.node.seq
}

// Retire pushes obj onto the garbage stack of the epoch that is
// current at the moment of the call. Because that epoch is >= any
// epoch a concurrent reader could have joined before this retire,
// no reader that has already left could still be holding a reference.
func (r *Reclaimer) Retire(obj Garbage) {
	if obj == nil {
		return
	}
	r.current.Load().push(obj)
}

// Advance installs a new current epoch, linking it after the previous
// one. Called by the background sweep and by writers that want to
// force a fresh epoch boundary (e.g. after a structural modification).
func (r *Reclaimer) Advance() uint64 {
	r.advanceMu.Lock()
	defer r.advanceMu.Unlock()

	seq := r.nextSeq.Add(1) - 1
	next := newEpochNode(seq)
	old := r.current.Load()
	old.next.Store(next)
	r.current.Store(next)
	return seq
}

// Reclaim walks the epoch chain from the oldest descriptor, sealing
// and draining every non-current epoch whose active count is zero.
// It stops at the first epoch it cannot seal (still has readers, or
// is the current epoch), preserving oldest-to-newest reclamation
// order. Returns the number of garbage objects freed.
func (r *Reclaimer) Reclaim() int {
	r.reclaimMu.Lock()
	defer r.reclaimMu.Unlock()

	reclaimed := 0
	for {
		node := r.oldest.Load()
		cur := r.current.Load()
		if node == cur {
			return reclaimed
		}
		if !node.active.CompareAndSwap(0, sealSentinel) {
			// Either still has active readers, or (shouldn't happen
			// under reclaimMu, but defensively) already sealed.
			return reclaimed
		}
		reclaimed += node.drain()
		nextNode := node.next.Load()
		if nextNode == nil {
			// Shouldn't happen: a sealed non-current node always has
			// a successor installed by Advance before it could have
			// been observed as non-current.
			return reclaimed
		}
		r.oldest.Store(nextNode)
	}
}

// NeedGC reports whether enough garbage is pending that a manual
// PerformGC call is worthwhile. Worker threads consult this under
// memory pressure per spec.md section 4.1.
func (r *Reclaimer) NeedGC() bool {
	return r.PendingCount() > 0 && r.oldest.Load() != r.current.Load()
}

// PerformGC is the manual-trigger counterpart to the background
// sweep: advance the epoch and reclaim everything now safe to free.
func (r *Reclaimer) PerformGC() int {
	r.Advance()
	return r.Reclaim()
}

// PendingCount returns the total number of not-yet-reclaimed garbage
// objects across all epochs (including the current one).
func (r *Reclaimer) PendingCount() int64 {
	var total int64
	for node := r.oldest.Load(); node != nil; node = node.next.Load() {
		total += node.pending.Load()
		if node == r.current.Load() {
			break
		}
	}
	return total
}

// ActiveGuardCount sums active guards across the whole chain; used by
// tests and debug tooling, never on the hot path.
func (r *Reclaimer) ActiveGuardCount() int {
	total := 0
	for node := r.oldest.Load(); node != nil; node = node.next.Load() {
		if v := int(node.active.Load()); v > 0 {
			total += v
		}
		if node == r.current.Load() {
			break
		}
	}
	return total
}

// Close stops the background goroutine and drains every epoch,
// including the current one, by repeatedly advancing past it. After
// Close returns, every object ever retired has been reclaimed.
func (r *Reclaimer) Close() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
	r.wg.Wait()

	// Assumes quiescence (no active readers) at teardown, as spec.md
	// requires for destruction. Advancing twice guarantees even the
	// epoch that was current when Close was called becomes sealable.
	r.Advance()
	r.Advance()
	r.Reclaim()
}
