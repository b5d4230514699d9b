package protocol

import (
	"go.uber.org/atomic"

	"github.com/oba-ldap/corekv/internal/corelog"
	"github.com/oba-ldap/corekv/internal/metrics"
	"github.com/oba-ldap/corekv/internal/reclaim"
	"github.com/oba-ldap/corekv/internal/record"
)

// GlobalConfig tunes Protocol P1.
type GlobalConfig struct {
	// MaxChainLength is the chain-length threshold past which a spill
	// triggers truncation. Defaults to 10 when <= 0.
	MaxChainLength int
}

// DefaultGlobalConfig returns spec.md §6's defaults.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{MaxChainLength: 10}
}

// Global is Protocol P1: a single process-wide atomic counter mints commit
// TIDs, every commit spills history (never overwrites in place), and chain
// length above MaxChainLength triggers truncation down to the version
// still visible to the oldest active snapshot.
type Global struct {
	counter        atomic.Uint64
	lastConsistent atomic.Uint64
	inflight       *inflightSet
	reclaimer      *reclaim.Reclaimer
	metrics        *metrics.Metrics
	logger         corelog.Logger
	maxChainLength int
}

// NewGlobal constructs Protocol P1. reclaimer and metrics/logger may be
// shared with the rest of the runtime.
func NewGlobal(cfg GlobalConfig, reclaimer *reclaim.Reclaimer, m *metrics.Metrics, logger corelog.Logger) *Global {
	maxLen := cfg.MaxChainLength
	if maxLen <= 0 {
		maxLen = DefaultGlobalConfig().MaxChainLength
	}
	g := &Global{
		inflight:       newInflightSet(),
		reclaimer:      reclaimer,
		metrics:        m,
		logger:         logger,
		maxChainLength: maxLen,
	}
	g.counter.Store(record.MinTID + 1)
	return g
}

func (g *Global) Name() string { return "global" }

// NewSnapshot reads one above lastConsistent: EndCommit publishes
// commitTID-1 there, so the snapshot covers the latest finished commit.
func (g *Global) NewSnapshot(readOnly bool) Snapshot {
	tid := g.lastConsistent.Load() + 1
	g.inflight.add(tid)
	return Snapshot{TID: tid, Core: -1}
}

func (g *Global) EndSnapshot(snap Snapshot) {
	g.inflight.remove(snap.TID)
}

func (g *Global) CanReadTID(t uint64, snap Snapshot) bool {
	return true
}

func (g *Global) CanOverwriteRecordTID(prev, cur uint64) bool {
	return false
}

func (g *Global) BeginCommit(snap Snapshot) (CommitTicket, int) {
	return noopTicket{}, -1
}

func (g *Global) GenCommitTID(ticket CommitTicket, core int, writeNodes []*record.VR) uint64 {
	return g.counter.Inc()
}

// OnLogicalNodeSpill implements spec.md §4.4's P1 GC policy: past
// maxChainLength, find the oldest version still potentially visible to any
// live snapshot and free everything older. This is the same "find oldest
// active snapshot, free everything older" shape as the teacher's
// mvcc.GarbageCollector.Collect / collectEntryVersions
// (internal/storage/mvcc/gc.go): Collect calls
// getOldestVisibleTimestamp() (our g.inflight.oldest()) and, when no
// snapshot is active, falls back to "everything except the latest version
// is collectible" (our hasActive==false branch below); collectEntryVersions
// then walks a version chain to find the first version visible at-or-before
// that boundary and frees everything older (our cutAfter walk down
// vr.Next() and the g.reclaimer.Defer of victimChain). Adapted from a
// PageID-addressed, on-disk chain to an in-memory VR linked list, since
// durability/on-disk format are explicit spec.md Non-goals.
func (g *Global) OnLogicalNodeSpill(ctx SpillContext) {
	vr := ctx.VR
	if vr.ChainLength() <= g.maxChainLength {
		return
	}

	oldest, hasActive := g.inflight.oldest()
	cutAfter := vr
	if !hasActive {
		// No live reader needs any history past the head.
	} else {
		for cutAfter != nil && cutAfter.Version() > oldest {
			cutAfter = cutAfter.Next()
		}
		if cutAfter == nil {
			return
		}
	}

	victimChain := cutAfter.Next()
	if victimChain == nil {
		return
	}

	n := victimChain.ChainLength()
	g.reclaimer.Defer(func() {
		cutAfter.SetNext(nil)
		if g.metrics != nil {
			g.metrics.GCReclaimed.Add(float64(n))
		}
		if g.logger != nil {
			g.logger.Debugw("truncated version chain", "released", n)
		}
	})
}

func (g *Global) OnLogicalDelete(ctx DeleteContext) {
	g.reclaimer.Defer(func() {
		ctx.Remove()
		if g.metrics != nil {
			g.metrics.GCReclaimed.Inc()
		}
	})
}

func (g *Global) EndCommit(ticket CommitTicket, commitTID uint64) {
	ticket.Release()
	for {
		cur := g.lastConsistent.Load()
		next := commitTID - 1
		if next <= cur {
			return
		}
		if g.lastConsistent.CAS(cur, next) {
			return
		}
	}
}

func (g *Global) ConsistentSnapshotTID() (bool, uint64) {
	return true, g.lastConsistent.Load()
}

func (g *Global) Close() {}
