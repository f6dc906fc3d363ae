package epoch

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type counterGarbage struct {
	n *int64
}

func (c counterGarbage) Reclaim() { atomic.AddInt64(c.n, 1) }

func TestRetireReclaimedAfterGuardLeaves(t *testing.T) {
	r := New(Config{Interval: time.Hour}) // background sweep disabled for the test
	defer r.Close()

	var reclaimed int64
	g := r.Join()
	r.Retire(counterGarbage{n: &reclaimed})
	r.Advance()
	if n := r.Reclaim(); n != 0 {
		t.Fatalf("Reclaim with an active guard reclaimed %d, want 0", n)
	}
	g.Leave()
	if n := r.Reclaim(); n != 1 {
		t.Fatalf("Reclaim after guard left reclaimed %d, want 1", n)
	}
	if got := atomic.LoadInt64(&reclaimed); got != 1 {
		t.Fatalf("garbage reclaimed %d times, want 1", got)
	}
}

func TestReclaimStopsAtCurrentEpoch(t *testing.T) {
	r := New(Config{Interval: time.Hour})
	defer r.Close()

	var n int64
	r.Retire(counterGarbage{n: &n})
	if got := r.Reclaim(); got != 0 {
		t.Fatalf("Reclaim before any Advance reclaimed %d, want 0 (garbage is in the current epoch)", got)
	}
}

func TestPendingCountTracksRetiredGarbage(t *testing.T) {
	r := New(Config{Interval: time.Hour})
	defer r.Close()

	var n int64
	for i := 0; i < 5; i++ {
		r.Retire(counterGarbage{n: &n})
	}
	if got := r.PendingCount(); got != 5 {
		t.Fatalf("PendingCount = %d, want 5", got)
	}
	r.Advance()
	r.Reclaim()
	if got := r.PendingCount(); got != 0 {
		t.Fatalf("PendingCount after reclaim = %d, want 0", got)
	}
}

func TestConcurrentJoinLeaveNeverGoesNegative(t *testing.T) {
	r := New(Config{Interval: 2 * time.Millisecond})
	defer r.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(8)
	for i := 0; i < 8; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				g := r.Join()
				g.Leave()
			}
		}()
	}
	time.Sleep(30 * time.Millisecond)
	close(stop)
	wg.Wait()
}
