package protocol

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/oba-ldap/corekv/internal/corelog"
	"github.com/oba-ldap/corekv/internal/metrics"
	"github.com/oba-ldap/corekv/internal/reclaim"
	"github.com/oba-ldap/corekv/internal/record"
)

// EpochConfig tunes Protocol P2's composite core|serial|epoch TID layout
// and the epoch advancer's period.
type EpochConfig struct {
	// NMaxCores bounds how many concurrent commit streams the protocol
	// serializes independently. Defaults to 8 when <= 0; must be
	// <= 1<<CoreBits.
	NMaxCores int
	// CoreBits is the width of the core field in a TID. Defaults to 8
	// (256 cores) when <= 0.
	CoreBits uint
	// EpochPeriod is how often the epoch advancer ticks. Defaults to 10ms.
	EpochPeriod time.Duration
}

// DefaultEpochConfig returns spec.md §9.2's defaults.
func DefaultEpochConfig() EpochConfig {
	return EpochConfig{NMaxCores: 8, CoreBits: 8, EpochPeriod: 10 * time.Millisecond}
}

// TID layout, most to least significant: epoch | core | serial. Packing the
// epoch highest keeps TIDs from the same core monotone across epochs, which
// CanReadTID / CanOverwriteRecordTID rely on.
type tidLayout struct {
	coreBits   uint
	coreShift  uint
	coreMask   uint64
	serialMask uint64
}

func newTIDLayout(coreBits uint) tidLayout {
	return tidLayout{
		coreBits:   coreBits,
		coreShift:  coreBits,
		coreMask:   (uint64(1)<<coreBits - 1) << coreBits,
		serialMask: uint64(1)<<coreBits - 1,
	}
}

func (l tidLayout) make(epoch uint64, core int, serial uint64) uint64 {
	return (epoch << (2 * l.coreBits)) | (uint64(core) << l.coreShift) | (serial & l.serialMask)
}

func (l tidLayout) epochOf(tid uint64) uint64 {
	return tid >> (2 * l.coreBits)
}

func (l tidLayout) coreOf(tid uint64) int {
	return int((tid & l.coreMask) >> l.coreShift)
}

func (l tidLayout) serialOf(tid uint64) uint64 {
	return tid & l.serialMask
}

// coreState is one core's commit-serialization lane: a mutex standing in
// for the original's per-core spinlock (Go mutexes already adaptively spin
// then park, so reinventing a busy-wait lock here would fight the runtime
// scheduler rather than cooperate with it) and a monotone per-epoch serial
// counter.
type coreState struct {
	mu     sync.Mutex
	serial uint64
	epoch  uint64 // the epoch serial counts within
}

// epochTicket is the CommitTicket Epoch hands out: it holds the core lock
// for the duration of commit install.
type epochTicket struct {
	core *coreState
}

func (t *epochTicket) Release() { t.core.mu.Unlock() }

// Epoch is Protocol P2: commit TIDs are core|serial pairs stamped with the
// epoch they were minted in, so CanOverwriteRecordTID allows in-place
// overwrite within one epoch (no reader holds a snapshot from this epoch
// that still needs the prior value) while forcing a spill across an epoch
// boundary. A dedicated advancer goroutine periodically closes out the
// current epoch and drains work the closed epoch's commits deferred.
type Epoch struct {
	layout  tidLayout
	cores   []*coreState
	nextCPU atomic.Int64

	currentEpoch   atomic.Uint64
	lastConsistent atomic.Uint64

	deferredMu sync.Mutex
	deferred   map[uint64][]func() // epoch -> work to run once that epoch is no longer current

	reclaimer *reclaim.Reclaimer
	metrics   *metrics.Metrics
	logger    corelog.Logger

	period time.Duration
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewEpoch constructs Protocol P2 and starts its epoch advancer goroutine.
func NewEpoch(cfg EpochConfig, reclaimer *reclaim.Reclaimer, m *metrics.Metrics, logger corelog.Logger) *Epoch {
	def := DefaultEpochConfig()
	if cfg.NMaxCores <= 0 {
		cfg.NMaxCores = def.NMaxCores
	}
	if cfg.CoreBits <= 0 {
		cfg.CoreBits = def.CoreBits
	}
	if cfg.EpochPeriod <= 0 {
		cfg.EpochPeriod = def.EpochPeriod
	}

	e := &Epoch{
		layout:    newTIDLayout(cfg.CoreBits),
		cores:     make([]*coreState, cfg.NMaxCores),
		deferred:  make(map[uint64][]func()),
		reclaimer: reclaimer,
		metrics:   m,
		logger:    logger,
		period:    cfg.EpochPeriod,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	for i := range e.cores {
		e.cores[i] = &coreState{}
	}
	e.currentEpoch.Store(1)
	go e.advanceLoop()
	return e
}

func (e *Epoch) Name() string { return "epoch" }

// pickCore assigns a round-robin core id. True CPU pinning is out of scope
// (spec.md §1 treats the scheduler as an external collaborator); this only
// needs to spread commit serialization across the configured lane count.
func (e *Epoch) pickCore() int {
	n := int64(len(e.cores))
	return int(e.nextCPU.Inc()-1) % int(n)
}

func (e *Epoch) NewSnapshot(readOnly bool) Snapshot {
	core := e.pickCore()
	epoch := e.currentEpoch.Load()
	// The TID is the top of the current epoch (highest core, highest
	// serial), so every version CanReadTID accepts compares <= it.
	tid := e.layout.make(epoch, len(e.cores)-1, e.layout.serialMask)
	return Snapshot{TID: tid, Core: core}
}

func (e *Epoch) EndSnapshot(snap Snapshot) {}

func (e *Epoch) CanReadTID(t uint64, snap Snapshot) bool {
	return e.layout.epochOf(t) <= e.layout.epochOf(snap.TID)
}

func (e *Epoch) CanOverwriteRecordTID(prev, cur uint64) bool {
	return e.layout.epochOf(prev) == e.layout.epochOf(cur)
}

func (e *Epoch) BeginCommit(snap Snapshot) (CommitTicket, int) {
	core := snap.Core
	if core < 0 || core >= len(e.cores) {
		core = e.pickCore()
	}
	cs := e.cores[core]
	cs.mu.Lock()
	return &epochTicket{core: cs}, core
}

// GenCommitTID mints core|serial|epoch. A serial counter that would overflow
// its field forces the caller to wait for the epoch to advance rather than
// wrapping into another core's territory; since the lane's mutex is held
// for the whole commit, any other transaction on this lane is already
// waiting behind it and will observe the new epoch when it runs.
func (e *Epoch) GenCommitTID(ticket CommitTicket, core int, writeNodes []*record.VR) uint64 {
	t := ticket.(*epochTicket)
	cs := t.core

	for {
		epoch := e.currentEpoch.Load()
		if cs.epoch != epoch {
			cs.epoch = epoch
			cs.serial = 0
		}
		serial := cs.serial + 1
		if serial >= e.layout.serialMask {
			e.waitAnEpoch(epoch)
			continue
		}
		cs.serial = serial
		return e.layout.make(epoch, core, serial)
	}
}

func (e *Epoch) OnLogicalNodeSpill(ctx SpillContext) {
	vr := ctx.VR
	epoch := e.layout.epochOf(vr.Version())
	e.scheduleForEpoch(epoch, func() {
		if e.metrics != nil {
			e.metrics.GCReclaimed.Inc()
		}
	})
}

func (e *Epoch) OnLogicalDelete(ctx DeleteContext) {
	epoch := e.currentEpoch.Load()
	e.scheduleForEpoch(epoch, func() {
		ctx.Remove()
		if e.metrics != nil {
			e.metrics.GCReclaimed.Inc()
		}
	})
}

// scheduleForEpoch defers fn until the epoch advancer has confirmed no
// reader can still hold a snapshot from epoch (i.e. lastConsistent has
// passed it), routing through the reclaimer so EnterRegion callers are
// still respected even after the epoch boundary clears.
func (e *Epoch) scheduleForEpoch(epoch uint64, fn func()) {
	if e.lastConsistent.Load() >= epoch {
		e.reclaimer.Defer(fn)
		return
	}
	e.deferredMu.Lock()
	e.deferred[epoch] = append(e.deferred[epoch], fn)
	e.deferredMu.Unlock()
}

func (e *Epoch) EndCommit(ticket CommitTicket, commitTID uint64) {
	ticket.Release()
}

func (e *Epoch) ConsistentSnapshotTID() (bool, uint64) {
	epoch := e.lastConsistent.Load()
	if epoch == 0 {
		return false, 0
	}
	return true, e.layout.make(epoch, len(e.cores)-1, e.layout.serialMask)
}

// waitAnEpoch blocks the caller (who must not be holding any core lock it
// doesn't already own) until the advancer has moved past startEpoch.
func (e *Epoch) waitAnEpoch(startEpoch uint64) {
	for e.currentEpoch.Load() <= startEpoch {
		time.Sleep(time.Millisecond)
	}
}

// advanceLoop is the dedicated epoch-advancer goroutine: every period, it
// bumps the current epoch, acquires and releases every core lock in order
// to confirm no commit is still in flight in the epoch it is retiring,
// publishes the new lastConsistent boundary, and drains deferred work for
// every epoch now provably quiesced.
func (e *Epoch) advanceLoop() {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.advanceOnce()
		}
	}
}

func (e *Epoch) advanceOnce() {
	retiring := e.currentEpoch.Inc() - 1

	for _, cs := range e.cores {
		cs.mu.Lock()
	}
	e.lastConsistent.Store(retiring)
	for _, cs := range e.cores {
		cs.mu.Unlock()
	}

	if e.metrics != nil {
		e.metrics.EpochAdvances.Inc()
	}
	if e.logger != nil {
		e.logger.Debugw("epoch advanced", "retired", retiring)
	}

	e.deferredMu.Lock()
	var ready []func()
	for epoch, fns := range e.deferred {
		if epoch <= retiring {
			ready = append(ready, fns...)
			delete(e.deferred, epoch)
		}
	}
	e.deferredMu.Unlock()

	for _, fn := range ready {
		e.reclaimer.Defer(fn)
	}
}

func (e *Epoch) Close() {
	close(e.stopCh)
	<-e.doneCh
}
