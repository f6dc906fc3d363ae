package runner

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lfindex/pkg/bwtree"
	"lfindex/pkg/index"
	"lfindex/pkg/skiplist"
)

// Stats accumulates per-run counters reported after Run returns.
// Inserts/Deletes/Reads/NotFound are updated with atomic.AddInt64 from
// worker goroutines and must only be read after g.Wait() returns.
type Stats struct {
	RunID     string
	Inserts   int64
	Deletes   int64
	Reads     int64
	NotFound  int64
	GCPasses  int
	WallClock time.Duration
}

// Run drives cfg.Workers goroutines against the selected engine for
// cfg.Operations total operations or until cfg.Duration elapses,
// whichever comes first, analogous to the source repository's
// multi-threaded stress drivers.
func Run(ctx context.Context, cfg WorkloadConfig, log zerolog.Logger) (Stats, error) {
	runID := uuid.New().String()
	log = log.With().Str("run_id", runID).Str("engine", cfg.Engine).Logger()

	var idx index.Index[int, int]
	switch cfg.Engine {
	case "skiplist":
		idx = skiplist.New[int, int](intComparator{}, skiplist.Config{})
	default:
		bcfg := bwtree.DefaultConfig()
		bcfg.UniqueKeys = cfg.UniqueKeys
		tree, err := bwtree.New[int, int](intComparator{}, bcfg)
		if err != nil {
			return Stats{}, err
		}
		idx = tree
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var stats Stats
	stats.RunID = runID
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	opsPerWorker := cfg.Operations / max(cfg.Workers, 1)
	for w := 0; w < cfg.Workers; w++ {
		seed := int64(w) + 1
		g.Go(func() error {
			runWorker(gctx, idx, cfg, seed, opsPerWorker, &stats)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	stats.WallClock = time.Since(start)
	stats.GCPasses = idx.PerformGC()
	log.Info().
		Int64("inserts", stats.Inserts).
		Int64("deletes", stats.Deletes).
		Int64("reads", stats.Reads).
		Int64("not_found", stats.NotFound).
		Dur("wall_clock", stats.WallClock).
		Msg("lfbench run complete")
	return stats, nil
}

func runWorker(ctx context.Context, idx index.Index[int, int], cfg WorkloadConfig, seed int64, ops int, stats *Stats) {
	r := rand.New(rand.NewSource(seed))
	for i := 0; i < ops; i++ {
		select {
		case <-ctx.Done():
			return
		default:
		}
		key := r.Intn(max(cfg.KeySpace, 1))
		switch r.Intn(3) {
		case 0:
			if idx.Insert(key, key) == nil {
				atomic.AddInt64(&stats.Inserts, 1)
			}
		case 1:
			if idx.Delete(key, key) == nil {
				atomic.AddInt64(&stats.Deletes, 1)
			}
		default:
			if _, err := idx.GetValues(key); err != nil {
				atomic.AddInt64(&stats.NotFound, 1)
			} else {
				atomic.AddInt64(&stats.Reads, 1)
			}
		}
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
