package reclaim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTriggerSweepRunsDeferredWhenQuiescent(t *testing.T) {
	r := New(time.Hour)
	ran := false
	r.Defer(func() { ran = true })

	n := r.TriggerSweep()
	require.Equal(t, 1, n)
	require.True(t, ran)
	require.Equal(t, 0, r.Pending())
}

func TestTriggerSweepSkipsWhileRegionOpen(t *testing.T) {
	r := New(time.Hour)
	region := r.EnterRegion()

	ran := false
	r.Defer(func() { ran = true })

	n := r.TriggerSweep()
	require.Equal(t, 0, n)
	require.False(t, ran)
	require.Equal(t, 1, r.Pending())

	region.Exit()
	n = r.TriggerSweep()
	require.Equal(t, 1, n)
	require.True(t, ran)
}

func TestStartStopRunsBackgroundSweep(t *testing.T) {
	r := New(5 * time.Millisecond)
	r.Start()
	defer r.Stop()

	done := make(chan struct{})
	r.Defer(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("background sweep did not run deferred deleter")
	}
}
