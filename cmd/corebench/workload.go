package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/oba-ldap/corekv/internal/runtime"
	"github.com/oba-ldap/corekv/internal/txn"
)

// workerStats accumulates one worker's outcome counts; fields are only
// ever touched by their owning goroutine, then summed after errgroup.Wait.
type workerStats struct {
	commits int64
	aborts  map[txn.AbortReason]int64
}

// report is the summary corebench prints, grounded in the teacher's
// benchmarks.Report text-table style.
type report struct {
	protocol       runtime.ProtocolKind
	workers        int
	duration       time.Duration
	commits        int64
	abortsByReason map[txn.AbortReason]int64
}

func runBenchmark(cfg benchConfig) (*report, error) {
	rt, err := runtime.New(cfg.runtime, prometheus.NewRegistry())
	if err != nil {
		return nil, fmt.Errorf("building runtime: %w", err)
	}
	defer rt.Close()

	seedWorkload(rt, cfg)

	statsCh := make(chan workerStats, cfg.workers)
	start := time.Now()

	var g errgroup.Group
	for w := 0; w < cfg.workers; w++ {
		w := w
		g.Go(func() error {
			statsCh <- runWorker(rt, cfg, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(statsCh)

	rep := &report{
		protocol:       cfg.runtime.Protocol,
		workers:        cfg.workers,
		duration:       time.Since(start),
		abortsByReason: make(map[txn.AbortReason]int64),
	}
	for s := range statsCh {
		rep.commits += s.commits
		for reason, n := range s.aborts {
			rep.abortsByReason[reason] += n
		}
	}
	return rep, nil
}

// seedWorkload pre-populates the key space so the read/scan mix has
// something to find from the very first worker iteration.
func seedWorkload(rt *runtime.Runtime, cfg benchConfig) {
	t := rt.Begin(0)
	for i := 0; i < cfg.keySpace; i++ {
		key := benchKey(i)
		_ = t.Write(key, []byte(fmt.Sprintf("seed-%d", i)))
	}
	_ = t.Commit()
}

func benchKey(i int) []byte {
	return []byte(fmt.Sprintf("k%08d", i))
}

func runWorker(rt *runtime.Runtime, cfg benchConfig, seed int) workerStats {
	rng := rand.New(rand.NewSource(int64(seed) + 1))
	flags := txn.Flags(0)
	if cfg.lowLevel {
		flags |= txn.LowLevelScan
	}

	stats := workerStats{aborts: make(map[txn.AbortReason]int64)}

	for i := 0; i < cfg.opsPerWork; i++ {
		t := rt.Begin(flags)
		roll := rng.Float64()

		switch {
		case roll < cfg.scanRatio:
			lo := benchKey(rng.Intn(cfg.keySpace))
			hi := benchKey(min(cfg.keySpace, rng.Intn(cfg.keySpace)+16))
			_ = t.Scan(lo, hi, func(k, v []byte) bool { return true })
		case roll < cfg.scanRatio+cfg.writeRatio:
			key := benchKey(rng.Intn(cfg.keySpace))
			_ = t.Write(key, []byte(fmt.Sprintf("v-%d-%d", seed, i)))
		default:
			key := benchKey(rng.Intn(cfg.keySpace))
			_, _ = t.Read(key)
		}

		err := t.Commit()
		if err == nil {
			stats.commits++
			continue
		}
		if aerr, ok := err.(*txn.AbortError); ok {
			stats.aborts[aerr.Reason()]++
		}
	}
	return stats
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
