package reclaim

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Region marks a span during which the caller may be holding stale
// pointers read from VRs or the index (an in-flight stable read or scan).
// The reclaimer will not run a deleter deferred before a region closes
// until that region closes.
type Region struct {
	r *Reclaimer
}

// Exit closes the region. Callers must call Exit exactly once.
func (rg Region) Exit() {
	rg.r.active.Dec()
}

// Reclaimer is the grace-period reclamation substrate: defer_free queues a
// deleter that runs only after every Region open at the time it was
// deferred has exited.
type Reclaimer struct {
	active  atomic.Int64
	mu      sync.Mutex
	pending []func()

	sweepInterval time.Duration
	stopCh        chan struct{}
	doneCh        chan struct{}
}

// New builds a reclaimer that sweeps at the given interval. A zero interval
// defaults to 5ms, tight enough for tests that call TriggerSweep
// explicitly not to depend on timing, but still useful for a long-running
// process that never calls TriggerSweep itself.
func New(sweepInterval time.Duration) *Reclaimer {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Millisecond
	}
	return &Reclaimer{sweepInterval: sweepInterval}
}

// Start launches the background sweeper.
func (r *Reclaimer) Start() {
	if r.stopCh != nil {
		return
	}
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(r.stopCh, r.doneCh)
}

// Stop halts the background sweeper and waits for it to exit.
func (r *Reclaimer) Stop() {
	if r.stopCh == nil {
		return
	}
	close(r.stopCh)
	<-r.doneCh
	r.stopCh, r.doneCh = nil, nil
}

func (r *Reclaimer) loop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			r.TriggerSweep()
		}
	}
}

// EnterRegion opens a read region. The returned Region must be closed with
// Exit.
func (r *Reclaimer) EnterRegion() Region {
	r.active.Inc()
	return Region{r: r}
}

// Defer schedules deleter to run once no Region open right now is still
// open.
func (r *Reclaimer) Defer(deleter func()) {
	r.mu.Lock()
	r.pending = append(r.pending, deleter)
	r.mu.Unlock()
}

// TriggerSweep runs every deleter deferred before this call if no region is
// currently open. It is safe to call concurrently with EnterRegion/Defer
// and is what the background loop calls on each tick; tests call it
// directly to force deterministic reclamation without waiting on a timer.
func (r *Reclaimer) TriggerSweep() int {
	if r.active.Load() != 0 {
		return 0
	}

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, fn := range batch {
		fn()
	}
	return len(batch)
}

// Pending returns the number of deleters currently awaiting a sweep.
func (r *Reclaimer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
