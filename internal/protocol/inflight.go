package protocol

import "sync"

// inflightSet tracks the active snapshot TIDs so Protocol P1's GC policy can
// compute a conservative "oldest visible" boundary before truncating a
// chain. It is an in-memory adaptation of the teacher's
// mvcc.SnapshotManager (internal/storage/mvcc/snapshot.go): that type maps
// each snapshot's unique logical timestamp to a *Snapshot and answers
// GetOldestActiveSnapshot() by scanning the map for the smallest
// non-released key, exactly the question OnLogicalNodeSpill needs answered
// here. The map is stripped down to what that question requires (no
// tx.Transaction/TxManager plumbing, no per-snapshot ActiveTxIDs, since
// Protocol doesn't track a transaction manager of its own) and widened from
// a 1:1 timestamp->snapshot map to a TID->refcount multiset, because unlike
// the teacher's SnapshotManager (which mints a fresh, unique timestamp per
// CreateSnapshot call), Global's lastConsistent TID can be shared by several
// snapshots taken back-to-back with no commit in between.
type inflightSet struct {
	mu    sync.Mutex
	count map[uint64]int
}

func newInflightSet() *inflightSet {
	return &inflightSet{count: make(map[uint64]int)}
}

// add registers a new reference to tid, mirroring SnapshotManager.CreateSnapshot
// registering a freshly minted snapshot into its snapshots map.
func (s *inflightSet) add(tid uint64) {
	s.mu.Lock()
	s.count[tid]++
	s.mu.Unlock()
}

// remove releases one reference to tid, mirroring
// SnapshotManager.ReleaseSnapshot's refcount-to-zero delete-from-map
// behavior (Snapshot.Release + the delete(sm.snapshots, ...) that follows
// it), collapsed into a single map-of-counts instead of a map-of-*Snapshot
// plus a separate atomic refcount per entry.
func (s *inflightSet) remove(tid uint64) {
	s.mu.Lock()
	if n := s.count[tid]; n <= 1 {
		delete(s.count, tid)
	} else {
		s.count[tid] = n - 1
	}
	s.mu.Unlock()
}

// oldest returns the smallest currently active snapshot TID, and whether
// any transaction is active at all. Adapted from
// SnapshotManager.GetOldestActiveSnapshot's linear scan for the smallest
// key in the snapshots map, substituting "ok bool" for the teacher's
// sentinel-return-0 convention since 0 is itself a meaningful TID here.
func (s *inflightSet) oldest() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	first := true
	var min uint64
	for tid := range s.count {
		if first || tid < min {
			min = tid
			first = false
		}
	}
	return min, !first
}

// activeCount returns the number of distinct TIDs with at least one active
// reference, mirroring SnapshotManager.ActiveSnapshotCount.
func (s *inflightSet) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.count)
}
