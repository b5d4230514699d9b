package record

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocFirstIsTombstoneLatest(t *testing.T) {
	vr := AllocFirst()
	require.Equal(t, MinTID, vr.Version())
	require.Equal(t, 0, vr.Size())
	require.True(t, IsLatest(vr.Hdr()))
	require.Nil(t, vr.Next())
}

func TestLockUnlockIncrementsCounter(t *testing.T) {
	vr := AllocFirst()
	before := Counter(vr.Hdr())
	vr.Lock()
	require.True(t, IsLocked(vr.Hdr()))
	vr.Unlock()
	require.False(t, IsLocked(vr.Hdr()))
	require.Equal(t, before+1, Counter(vr.Hdr()))
}

func TestLockUnlockMonotonicUnderContention(t *testing.T) {
	vr := AllocFirst()
	const goroutines = 16
	const iterations = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				vr.Lock()
				vr.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Equal(t, uint64(goroutines*iterations), Counter(vr.Hdr()))
}

func TestTryStableVersionFailsWhileLocked(t *testing.T) {
	vr := AllocFirst()
	vr.Lock()
	defer vr.Unlock()

	_, ok := vr.TryStableVersion(4)
	require.False(t, ok)
}

func TestStableReadOfTombstoneIsEmptyNotRetry(t *testing.T) {
	vr := AllocFirst()
	value, atTID, status := vr.StableRead(100)
	require.Equal(t, ReadFound, status)
	require.Equal(t, MinTID, atTID)
	require.Empty(t, value)
}

func TestWriteRecordAtOverwriteInPlace(t *testing.T) {
	vr := AllocFirst()
	vr.Lock()
	grew, repl := vr.WriteRecordAt(10, []byte("v1"), true)
	vr.Unlock()
	require.False(t, grew)
	require.Nil(t, repl)
	require.Equal(t, uint64(10), vr.Version())

	value, atTID, status := vr.StableRead(100)
	require.Equal(t, ReadFound, status)
	require.Equal(t, uint64(10), atTID)
	require.Equal(t, "v1", string(value))
	require.Equal(t, 1, vr.ChainLength())
}

func TestWriteRecordAtSpillsPreviousValue(t *testing.T) {
	vr := AllocFirst()
	vr.Lock()
	_, _ = vr.WriteRecordAt(10, []byte("v1"), true)
	vr.Unlock()

	vr.Lock()
	grew, repl := vr.WriteRecordAt(20, []byte("v2"), false)
	vr.Unlock()
	require.True(t, grew)
	require.Nil(t, repl)
	require.Equal(t, 2, vr.ChainLength())

	newer, atTID, status := vr.StableRead(25)
	require.Equal(t, ReadFound, status)
	require.Equal(t, uint64(20), atTID)
	require.Equal(t, "v2", string(newer))

	older, atTID, status := vr.StableRead(15)
	require.Equal(t, ReadFound, status)
	require.Equal(t, uint64(10), atTID)
	require.Equal(t, "v1", string(older))
}

func TestWriteRecordAtGrowsBeyondCapacityAllocatesReplacement(t *testing.T) {
	vr := AllocFirst()
	big := make([]byte, 1<<20)
	vr.Lock()
	grew, repl := vr.WriteRecordAt(10, big, true)
	vr.Unlock()

	require.False(t, grew)
	require.NotNil(t, repl)
	require.False(t, IsLatest(vr.Hdr()))
	require.True(t, IsLatest(repl.Hdr()))
	require.Nil(t, repl.Next())
}

func TestWriteRecordAtSpillGrowsBeyondCapacityKeepsOldHeadInChain(t *testing.T) {
	vr := AllocFirst()
	big := make([]byte, 1<<20)
	vr.Lock()
	grew, repl := vr.WriteRecordAt(10, big, false)
	vr.Unlock()

	require.True(t, grew)
	require.NotNil(t, repl)
	require.False(t, IsLatest(vr.Hdr()))
	require.True(t, IsLatest(repl.Hdr()))
	require.Equal(t, vr, repl.Next())
}

func TestChainOrderStrictlyDecreasing(t *testing.T) {
	vr := AllocFirst()
	for tid := uint64(10); tid <= 50; tid += 10 {
		vr.Lock()
		_, _ = vr.WriteRecordAt(tid, []byte("x"), false)
		vr.Unlock()
	}

	prev := uint64(1 << 62)
	for cur := vr; cur != nil; cur = cur.Next() {
		require.Less(t, cur.Version(), prev)
		prev = cur.Version()
	}
}
