package txn

import (
	"sort"

	"github.com/oba-ldap/corekv/internal/corelog"
	"github.com/oba-ldap/corekv/internal/index"
	"github.com/oba-ldap/corekv/internal/metrics"
	"github.com/oba-ldap/corekv/internal/protocol"
	"github.com/oba-ldap/corekv/internal/rangeset"
	"github.com/oba-ldap/corekv/internal/reclaim"
	"github.com/oba-ldap/corekv/internal/record"
	"github.com/oba-ldap/corekv/internal/txctx"
)

// Flags select optional per-transaction behavior, per spec.md §6.
type Flags uint8

const (
	// LowLevelScan makes scans record per-leaf version stamps instead of
	// absent-range intervals, and commit validates those stamps instead of
	// re-scanning for phantoms.
	LowLevelScan Flags = 1 << 0
	// ReadOnly rejects Write and takes the fast commit path that skips
	// lock acquisition and commit-TID generation entirely.
	ReadOnly Flags = 1 << 1
)

// State is a transaction's position in the Embryo→Active→{Committed,Aborted}
// state machine. The enum-plus-String() shape is adapted directly from the
// teacher's tx.TxState (internal/storage/tx/transaction.go): that type is a
// plain three-value Active/Committed/Aborted int enum with an identical
// switch-based String(); this engine adds the Embryo state spec.md §5
// requires (a transaction that exists but has not yet read or written
// anything) ahead of TxActive's position in the sequence.
type State int

const (
	StateEmbryo State = iota
	StateActive
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateEmbryo:
		return "Embryo"
	case StateActive:
		return "Active"
	case StateCommitted:
		return "Committed"
	case StateAborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// Txn is one transaction. A Txn must be driven by exactly one goroutine
// from Begin to resolution; concurrent use of the same Txn is undefined,
// matching spec.md §5's single-owner scheduling model.
type Txn struct {
	idx       *index.Index
	proto     protocol.Protocol
	reclaimer *reclaim.Reclaimer
	metrics   *metrics.Metrics
	logger    corelog.Logger

	flags     Flags
	spinLimit int

	state       State
	abortReason AbortReason

	ctx  *txctx.Context
	snap protocol.Snapshot

	snapTaken  bool
	regionOpen bool
	region     reclaim.Region
}

// Begin constructs a transaction in the Embryo state. It does not capture
// a snapshot or enter a reclamation region until the first operation,
// matching spec.md §4.2's Embryo→Active transition.
func Begin(p protocol.Protocol, idx *index.Index, r *reclaim.Reclaimer, m *metrics.Metrics, lg corelog.Logger, flags Flags, spinLimit int) *Txn {
	if spinLimit <= 0 {
		spinLimit = 16
	}
	return &Txn{
		idx:       idx,
		proto:     p,
		reclaimer: r,
		metrics:   m,
		logger:    lg,
		flags:     flags,
		spinLimit: spinLimit,
		state:     StateEmbryo,
	}
}

// State returns the transaction's current state.
func (t *Txn) State() State { return t.state }

// AbortReason returns why the transaction aborted, or AbortNone.
func (t *Txn) AbortReason() AbortReason { return t.abortReason }

func (t *Txn) ensureActive() error {
	switch t.state {
	case StateActive:
		return nil
	case StateEmbryo:
		t.ctx = txctx.New(t.flags&LowLevelScan != 0)
		t.snap = t.proto.NewSnapshot(t.flags&ReadOnly != 0)
		t.snapTaken = true
		t.region = t.reclaimer.EnterRegion()
		t.regionOpen = true
		t.state = StateActive
		return nil
	default:
		return ErrUnusable
	}
}

func (t *Txn) teardown() {
	if t.regionOpen {
		t.region.Exit()
		t.regionOpen = false
	}
	if t.snapTaken {
		t.proto.EndSnapshot(t.snap)
		t.snapTaken = false
	}
}

func (t *Txn) abortWith(reason AbortReason) *AbortError {
	t.state = StateAborted
	t.abortReason = reason
	if t.metrics != nil {
		t.metrics.Aborts.WithLabelValues(reason.String()).Inc()
	}
	if t.logger != nil {
		t.logger.Debugw("transaction aborted", "reason", reason.String())
	}
	t.teardown()
	return newAbortError(reason)
}

// immediateSuccessor is the lexicographically smallest byte string strictly
// greater than key, used to turn a single missing key into a half-open
// absent range [key, key+0x00).
func immediateSuccessor(key []byte) []byte {
	succ := make([]byte, len(key)+1)
	copy(succ, key)
	return succ
}

// Read implements spec.md §4.2's read(k): buffered writes and cached reads
// short-circuit; otherwise it locates the VR via the index, takes a stable
// read at the transaction's snapshot, and records the observation into the
// read set. A nil, nil result means the key is logically absent (tombstone
// or never written).
func (t *Txn) Read(key []byte) ([]byte, error) {
	if err := t.ensureActive(); err != nil {
		return nil, err
	}

	if v, ok := t.ctx.BufferedWrite(key); ok {
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	}
	if e, ok := t.ctx.CachedRead(key); ok {
		if len(e.Value) == 0 {
			return nil, nil
		}
		return e.Value, nil
	}

	vr, ok := t.idx.Find(key)
	if !ok {
		if !t.ctx.LowLevelScan() {
			t.ctx.RecordAbsentRange(rangeset.New(key, immediateSuccessor(key)))
		}
		return nil, nil
	}

	value, atTID, status := vr.StableRead(t.snap.TID)
	if status == record.ReadRetry {
		vr, ok = t.idx.Find(key)
		if !ok {
			if !t.ctx.LowLevelScan() {
				t.ctx.RecordAbsentRange(rangeset.New(key, immediateSuccessor(key)))
			}
			return nil, nil
		}
		value, atTID, status = vr.StableRead(t.snap.TID)
		if status == record.ReadRetry {
			return nil, t.abortWith(AbortUnstableRead)
		}
	}

	t.ctx.RecordRead(key, txctx.ReadEntry{VR: vr, ObservedTID: atTID, Value: value})
	if len(value) == 0 {
		if t.metrics != nil {
			t.metrics.ReadLogicalDelete.WithLabelValues("search").Inc()
		}
		return nil, nil
	}
	return value, nil
}

// Write buffers value for key in the write set; it performs no VR mutation.
// Empty bytes mark a delete (tombstone on commit).
func (t *Txn) Write(key, value []byte) error {
	if err := t.ensureActive(); err != nil {
		return err
	}
	if t.flags&ReadOnly != 0 {
		return ErrReadOnly
	}
	t.ctx.RecordWrite(key, value)
	return nil
}

// Visitor is invoked for each key visible to the transaction's snapshot in
// [lo, hi), in order; returning false stops the scan early.
type Visitor func(key, value []byte) bool

// Scan implements spec.md §4.6: it walks the index over [lo, hi), performs
// a normal read for each present live key, and records either absent-range
// gaps (default) or per-leaf version stamps (LowLevelScan) so commit can
// detect phantoms inserted into the scanned region afterward.
func (t *Txn) Scan(lo, hi []byte, visitor Visitor) error {
	if err := t.ensureActive(); err != nil {
		return err
	}

	gapStart := lo
	lowLevel := t.ctx.LowLevelScan()
	stopped := false

	stamps := t.idx.Scan(lo, hi, func(key []byte, vr *record.VR) bool {
		value, atTID, status := vr.StableRead(t.snap.TID)
		if status == record.ReadRetry {
			var ok bool
			vr, ok = t.idx.Find(key)
			if !ok {
				return true
			}
			value, atTID, status = vr.StableRead(t.snap.TID)
			if status == record.ReadRetry {
				t.abortWith(AbortUnstableRead)
				stopped = true
				return false
			}
		}

		t.ctx.RecordRead(key, txctx.ReadEntry{VR: vr, ObservedTID: atTID, Value: value})

		if len(value) == 0 {
			if t.metrics != nil {
				t.metrics.ReadLogicalDelete.WithLabelValues("scan").Inc()
			}
			return true
		}

		if !lowLevel && gapStart != nil && compareKeys(gapStart, key) < 0 {
			t.ctx.RecordAbsentRange(rangeset.New(gapStart, key))
		}
		if !lowLevel {
			gapStart = immediateSuccessor(key)
		}

		if !visitor(key, value) {
			stopped = true
			return false
		}
		return true
	})

	if lowLevel {
		for _, s := range stamps {
			t.ctx.RecordNodeScan(s)
		}
	} else if !stopped && gapStart != nil {
		if hi == nil {
			t.ctx.RecordAbsentRange(rangeset.NewUnbounded(gapStart))
		} else if compareKeys(gapStart, hi) < 0 {
			t.ctx.RecordAbsentRange(rangeset.New(gapStart, hi))
		}
	}

	if status := t.state; status == StateAborted {
		return newAbortError(t.abortReason)
	}
	return nil
}

func compareKeys(a, b []byte) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Abort forces the transaction to Aborted with reason USER. It is a no-op
// if the transaction has already resolved.
func (t *Txn) Abort() {
	if t.state == StateCommitted || t.state == StateAborted {
		return
	}
	t.abortWith(AbortUser)
}

// lockedWrite pairs a canonical write-set key with the VR whose head lock
// this transaction is holding for it during commit.
type lockedWrite struct {
	key string
	vr  *record.VR
}

// Commit runs the seven-step protocol of spec.md §4.3 and returns nil on
// success or an *AbortError identifying why validation failed. Committing
// an already-committed transaction is a no-op; a transaction that never
// performed an operation is activated and committed with an empty write
// set.
func (t *Txn) Commit() error {
	switch t.state {
	case StateCommitted:
		return nil
	case StateAborted:
		return newAbortError(t.abortReason)
	case StateEmbryo:
		if err := t.ensureActive(); err != nil {
			return err
		}
	}

	if t.flags&ReadOnly != 0 {
		return t.commitReadOnly()
	}
	return t.commitReadWrite()
}

func (t *Txn) commitReadOnly() error {
	if err := t.validatePhantoms(); err != nil {
		return err
	}
	t.state = StateCommitted
	if t.metrics != nil {
		t.metrics.Commits.Inc()
	}
	t.teardown()
	return nil
}

func (t *Txn) commitReadWrite() error {
	keys := t.ctx.WriteKeysSorted()

	// Step 1: acquire write-set locks in canonical key order.
	locked := make([]lockedWrite, 0, len(keys))
	for _, k := range keys {
		vr, ok := t.idx.Find([]byte(k))
		if !ok {
			head := record.AllocFirst()
			vr, _ = t.idx.InsertIfAbsent([]byte(k), head)
		}
		vr.Lock()
		locked = append(locked, lockedWrite{key: k, vr: vr})
	}
	releaseAll := func() {
		for i := len(locked) - 1; i >= 0; i-- {
			locked[i].vr.Unlock()
		}
	}

	// A concurrent commit may have swapped the index entry for one of our
	// keys to a replacement head between our Find and our Lock succeeding;
	// we would then be holding the lock on a VR the index no longer points
	// to. Re-verify identity now that every lock is held.
	for _, lw := range locked {
		cur, ok := t.idx.Find([]byte(lw.key))
		if !ok || cur != lw.vr {
			releaseAll()
			return t.abortWith(AbortWriteNodeInterference)
		}
	}

	// Step 2: choose the commit TID.
	writeNodes := make([]*record.VR, len(locked))
	for i, lw := range locked {
		writeNodes[i] = lw.vr
	}
	ticket, core := t.proto.BeginCommit(t.snap)
	commitTID := t.proto.GenCommitTID(ticket, core, writeNodes)

	// Step 3: validate the read set.
	if err := t.validateReadSet(); err != nil {
		releaseAll()
		ticket.Release()
		return err
	}

	// Step 4: validate absent ranges / node scans.
	if err := t.validatePhantoms(); err != nil {
		releaseAll()
		ticket.Release()
		return err
	}

	// Step 5: install writes.
	type installed struct {
		key       string
		head      *record.VR
		grew      bool
		tombstone bool
	}
	results := make([]installed, 0, len(locked))
	for _, lw := range locked {
		value := t.ctx.Write(lw.key)
		canOverwrite := t.proto.CanOverwriteRecordTID(lw.vr.Version(), commitTID)
		grew, repl := lw.vr.WriteRecordAt(commitTID, value, canOverwrite)
		head := lw.vr
		if repl != nil {
			head = repl
			t.idx.Swap([]byte(lw.key), repl)
		}
		results = append(results, installed{key: lw.key, head: head, grew: grew, tombstone: len(value) == 0})
	}

	// Step 6: post-install hooks, still holding each head's lock.
	for _, r := range results {
		if r.grew {
			t.proto.OnLogicalNodeSpill(protocol.SpillContext{VR: r.head})
			if t.metrics != nil {
				t.metrics.NodeSpills.Inc()
			}
		}
		if r.tombstone {
			key := []byte(r.key)
			t.proto.OnLogicalDelete(protocol.DeleteContext{Remove: func() { t.idx.Remove(key) }})
			if t.metrics != nil {
				t.metrics.LogicalDeletes.Inc()
			}
		}
	}

	// Step 7: release locks in reverse order, finish the protocol, resolve.
	releaseAll()
	t.proto.EndCommit(ticket, commitTID)
	t.state = StateCommitted
	if t.metrics != nil {
		t.metrics.Commits.Inc()
	}
	t.teardown()
	return nil
}

func (t *Txn) validateReadSet() error {
	for _, e := range t.ctx.ReadEntries() {
		if e.ObservedTID > t.snap.TID {
			return t.abortWith(AbortFutureTIDRead)
		}
		hdr, ok := e.VR.TryStableVersion(t.spinLimit)
		if !ok {
			return t.abortWith(AbortUnstableRead)
		}
		if !record.IsLatest(hdr) {
			return t.abortWith(AbortReadNodeInterference)
		}
		if e.VR.Version() != e.ObservedTID {
			return t.abortWith(AbortReadNodeInterference)
		}
	}
	return nil
}

func (t *Txn) validatePhantoms() error {
	if t.ctx.LowLevelScan() {
		stamps := t.ctx.NodeScans()
		leafIDs := make([]uint64, 0, len(stamps))
		for id := range stamps {
			leafIDs = append(leafIDs, id)
		}
		sort.Slice(leafIDs, func(i, j int) bool { return leafIDs[i] < leafIDs[j] })
		for _, id := range leafIDs {
			want := stamps[id]
			got, ok := t.idx.LeafVersion(id)
			if !ok {
				// Our index never merges or destroys leaves, so a stamped
				// leaf disappearing is the one case we attribute to
				// structural reorganization rather than a concurrent
				// write.
				return t.abortWith(AbortNodeScanReadVersionChanged)
			}
			if got != want {
				return t.abortWith(AbortNodeScanWriteVersionChanged)
			}
		}
		return nil
	}

	for _, r := range t.ctx.AbsentRanges() {
		hit := false
		unstable := false
		t.idx.Scan(r.A, rangeHi(r), func(key []byte, vr *record.VR) bool {
			// A phantom is any key now live in the index within a range
			// this transaction recorded as absent — regardless of
			// whether that liveness is visible at our stale snapshot.
			// Reading at record.MaxTID walks to the chain head, i.e.
			// the record's current state, not its state as of
			// t.snap.TID (StableRead(t.snap.TID) would walk straight
			// past any version committed after our snapshot and land
			// on the pre-existing tombstone, making this check
			// unreachable for the exact race it exists to catch).
			value, _, status := vr.StableRead(record.MaxTID)
			if status == record.ReadRetry {
				value, _, status = vr.StableRead(record.MaxTID)
				if status == record.ReadRetry {
					unstable = true
					return false
				}
			}
			if status == record.ReadFound && len(value) > 0 {
				hit = true
				return false
			}
			return true
		})
		if unstable {
			return t.abortWith(AbortUnstableRead)
		}
		if hit {
			return t.abortWith(AbortReadAbsenceInterference)
		}
	}
	return nil
}

func rangeHi(r rangeset.Range) []byte {
	if !r.HasB {
		return nil
	}
	return r.B
}
