package txn

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/corekv/internal/corelog"
	"github.com/oba-ldap/corekv/internal/index"
	"github.com/oba-ldap/corekv/internal/metrics"
	"github.com/oba-ldap/corekv/internal/protocol"
	"github.com/oba-ldap/corekv/internal/reclaim"
)

type harness struct {
	idx   *index.Index
	proto protocol.Protocol
	rec   *reclaim.Reclaimer
	m     *metrics.Metrics
}

func newGlobalHarness(t *testing.T) *harness {
	t.Helper()
	r := reclaim.New(0)
	m := metrics.New(prometheus.NewRegistry(), "test")
	g := protocol.NewGlobal(protocol.DefaultGlobalConfig(), r, m, corelog.Nop())
	return &harness{idx: index.New(), proto: g, rec: r, m: m}
}

func newEpochHarness(t *testing.T) *harness {
	t.Helper()
	r := reclaim.New(0)
	m := metrics.New(prometheus.NewRegistry(), "test")
	e := protocol.NewEpoch(protocol.EpochConfig{NMaxCores: 2, CoreBits: 8, EpochPeriod: time.Hour}, r, m, corelog.Nop())
	t.Cleanup(e.Close)
	return &harness{idx: index.New(), proto: e, rec: r, m: m}
}

func (h *harness) begin(flags Flags) *Txn {
	return Begin(h.proto, h.idx, h.rec, h.m, corelog.Nop(), flags, 16)
}

func TestBlindWriteThenRead(t *testing.T) {
	h := newGlobalHarness(t)

	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("a"), []byte("1")))
	require.NoError(t, t1.Commit())
	require.Equal(t, StateCommitted, t1.State())

	t2 := h.begin(0)
	v, err := t2.Read([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
	require.NoError(t, t2.Commit())
}

func TestReadAbsentKeyReturnsNilNotError(t *testing.T) {
	h := newGlobalHarness(t)
	t1 := h.begin(0)
	v, err := t1.Read([]byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestWriteSkewPhantomCaughtByAbsentRange(t *testing.T) {
	h := newGlobalHarness(t)

	t1 := h.begin(0)
	var seen [][]byte
	require.NoError(t, t1.Scan([]byte("a"), []byte("z"), func(k, v []byte) bool {
		seen = append(seen, k)
		return true
	}))
	require.Empty(t, seen)

	t2 := h.begin(0)
	require.NoError(t, t2.Write([]byte("m"), []byte("1")))
	require.NoError(t, t2.Commit())

	err := t1.Commit()
	require.Error(t, err)
	aerr, ok := err.(*AbortError)
	require.True(t, ok)
	require.Equal(t, AbortReadAbsenceInterference, aerr.Reason())
	require.Equal(t, StateAborted, t1.State())
}

func TestWriteSkewPhantomCaughtUnderLowLevelScan(t *testing.T) {
	h := newGlobalHarness(t)

	t1 := h.begin(LowLevelScan)
	require.NoError(t, t1.Scan([]byte("a"), []byte("z"), func(k, v []byte) bool { return true }))

	t2 := h.begin(0)
	require.NoError(t, t2.Write([]byte("m"), []byte("1")))
	require.NoError(t, t2.Commit())

	err := t1.Commit()
	require.Error(t, err)
	aerr := err.(*AbortError)
	require.Equal(t, AbortNodeScanWriteVersionChanged, aerr.Reason())
}

func TestVersionChainSpillUnderGlobal(t *testing.T) {
	h := newGlobalHarness(t)

	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("k"), []byte("v1")))
	require.NoError(t, t1.Commit())

	tBefore := h.begin(0)
	vOld, err := tBefore.Read([]byte("k")) // snapshot taken before T2 commits
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), vOld)

	t2 := h.begin(0)
	require.NoError(t, t2.Write([]byte("k"), []byte("v2")))
	require.NoError(t, t2.Commit())

	t3 := h.begin(0)
	vNew, err := t3.Read([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), vNew)

	vr, ok := h.idx.Find([]byte("k"))
	require.True(t, ok)
	// Protocol P1 never overwrites in place, so the initial MIN_TID
	// tombstone stays below v1: the chain is v2 -> v1 -> tombstone.
	require.Equal(t, 3, vr.ChainLength())
}

func TestInPlaceOverwriteUnderEpoch(t *testing.T) {
	h := newEpochHarness(t)

	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("k"), []byte("aaa")))
	require.NoError(t, t1.Commit())

	t2 := h.begin(0)
	require.NoError(t, t2.Write([]byte("k"), []byte("bbb")))
	require.NoError(t, t2.Commit())

	vr, ok := h.idx.Find([]byte("k"))
	require.True(t, ok)
	// The initial tombstone is at the reserved MIN_TID, always a different
	// epoch from the first real commit, so the first write still spills;
	// T2's commit lands in the same epoch as T1's and coalesces in place,
	// so the chain does not grow again.
	chainAfterFirstWrite := 2
	require.Equal(t, chainAfterFirstWrite, vr.ChainLength())

	t3 := h.begin(0)
	v, err := t3.Read([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("bbb"), v)
}

func TestReadOnlyViolation(t *testing.T) {
	h := newGlobalHarness(t)
	t1 := h.begin(ReadOnly)
	err := t1.Write([]byte("a"), []byte("1"))
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestReadOnlyCommitFastPathSkipsLocking(t *testing.T) {
	h := newGlobalHarness(t)
	t1 := h.begin(ReadOnly)
	_, err := t1.Read([]byte("a"))
	require.NoError(t, err)
	require.NoError(t, t1.Commit())
	require.Equal(t, StateCommitted, t1.State())
}

func TestCommitIsIdempotent(t *testing.T) {
	h := newGlobalHarness(t)
	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("a"), []byte("1")))
	require.NoError(t, t1.Commit())
	require.NoError(t, t1.Commit())
}

func TestAbortIsIdempotent(t *testing.T) {
	h := newGlobalHarness(t)
	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("a"), []byte("1")))
	t1.Abort()
	t1.Abort()
	require.Equal(t, StateAborted, t1.State())
}

func TestResolvedTransactionIsUnusable(t *testing.T) {
	h := newGlobalHarness(t)
	t1 := h.begin(0)
	require.NoError(t, t1.Commit())
	_, err := t1.Read([]byte("a"))
	require.ErrorIs(t, err, ErrUnusable)
}

func TestDeleteThenReadIsAbsent(t *testing.T) {
	h := newGlobalHarness(t)

	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("k"), []byte("v")))
	require.NoError(t, t1.Commit())

	t2 := h.begin(0)
	require.NoError(t, t2.Write([]byte("k"), nil))
	require.NoError(t, t2.Commit())

	t3 := h.begin(0)
	v, err := t3.Read([]byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestReadNodeInterferenceAbortsOnConcurrentCommit(t *testing.T) {
	h := newGlobalHarness(t)

	t1 := h.begin(0)
	require.NoError(t, t1.Write([]byte("k"), []byte("v1")))
	require.NoError(t, t1.Commit())

	reader := h.begin(0)
	_, err := reader.Read([]byte("k"))
	require.NoError(t, err)

	writer := h.begin(0)
	require.NoError(t, writer.Write([]byte("k"), []byte("v2")))
	require.NoError(t, writer.Commit())

	require.NoError(t, reader.Write([]byte("other"), []byte("x")))
	err = reader.Commit()
	require.Error(t, err)
	require.Equal(t, AbortReadNodeInterference, err.(*AbortError).Reason())
}
