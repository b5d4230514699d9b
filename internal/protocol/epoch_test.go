package protocol

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/corekv/internal/corelog"
	"github.com/oba-ldap/corekv/internal/metrics"
	"github.com/oba-ldap/corekv/internal/reclaim"
)

func newTestEpoch(t *testing.T, cfg EpochConfig) *Epoch {
	t.Helper()
	r := reclaim.New(0)
	m := metrics.New(prometheus.NewRegistry(), "test")
	e := NewEpoch(cfg, r, m, corelog.Nop())
	t.Cleanup(e.Close)
	return e
}

func TestTIDLayoutRoundTrip(t *testing.T) {
	l := newTIDLayout(8)
	tid := l.make(7, 3, 42)
	require.Equal(t, uint64(7), l.epochOf(tid))
	require.Equal(t, 3, l.coreOf(tid))
	require.Equal(t, uint64(42), l.serialOf(tid))
}

func TestEpochGenCommitTIDSameCoreMonotonic(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour})
	snap := Snapshot{Core: 0}
	ticket, core := e.BeginCommit(snap)
	a := e.GenCommitTID(ticket, core, nil)
	ticket.Release()

	ticket2, core2 := e.BeginCommit(Snapshot{Core: 0})
	b := e.GenCommitTID(ticket2, core2, nil)
	ticket2.Release()

	require.Less(t, a, b)
}

func TestEpochCanOverwriteWithinSameEpoch(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour})
	epoch := e.currentEpoch.Load()
	prev := e.layout.make(epoch, 0, 1)
	cur := e.layout.make(epoch, 0, 2)
	require.True(t, e.CanOverwriteRecordTID(prev, cur))
}

func TestEpochCannotOverwriteAcrossEpochs(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour})
	prev := e.layout.make(1, 0, 1)
	cur := e.layout.make(2, 0, 1)
	require.False(t, e.CanOverwriteRecordTID(prev, cur))
}

func TestEpochCanReadTIDRespectsSnapshotEpoch(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour})
	snap := Snapshot{TID: e.layout.make(3, 0, e.layout.serialMask)}
	require.True(t, e.CanReadTID(e.layout.make(2, 0, 1), snap))
	require.False(t, e.CanReadTID(e.layout.make(4, 0, 1), snap))
}

func TestEpochAdvanceOnceBumpsLastConsistent(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour})
	before := e.currentEpoch.Load()
	e.advanceOnce()
	require.Equal(t, before, e.lastConsistent.Load())
	require.Equal(t, before+1, e.currentEpoch.Load())
}

func TestEpochScheduleForEpochDrainsOnAdvance(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour})
	ran := false
	e.scheduleForEpoch(e.currentEpoch.Load(), func() { ran = true })
	require.False(t, ran)

	e.advanceOnce()
	e.reclaimer.TriggerSweep()
	require.True(t, ran)
}

func TestEpochPickCoreRoundRobins(t *testing.T) {
	e := newTestEpoch(t, EpochConfig{NMaxCores: 3, CoreBits: 8, EpochPeriod: time.Hour})
	seen := map[int]bool{}
	for i := 0; i < 6; i++ {
		seen[e.pickCore()] = true
	}
	require.Len(t, seen, 3)
}
