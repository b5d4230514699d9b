package protocol

import (
	"github.com/oba-ldap/corekv/internal/record"
)

// Snapshot is the state a transaction captures at Begin: the TID its reads
// are taken against, plus whatever protocol-private handle Commit needs
// later (the core a P2 transaction landed on).
type Snapshot struct {
	TID  uint64
	Core int // -1 when the protocol has no notion of cores (Global).
}

// CommitTicket is returned by BeginCommit and passed back to GenCommitTID
// and EndCommit. Global's ticket is a no-op; Epoch's holds the per-core
// spinlock the transaction must release after install.
type CommitTicket interface {
	Release()
}

type noopTicket struct{}

func (noopTicket) Release() {}

// SpillContext describes a VR whose chain just grew a link during commit
// install, the head still locked by the caller.
type SpillContext struct {
	VR *record.VR
}

// DeleteContext describes a commit that installed a tombstone, so the
// protocol can schedule removal of the index entry once it is safe.
type DeleteContext struct {
	Remove func() // removes the index entry and lets the VR chain be collected
}

// Protocol is the capability set spec.md §9 factors the two concurrency
// control schemes into.
type Protocol interface {
	Name() string

	// NewSnapshot captures the TID a transaction's reads are taken
	// against, and any protocol-private scheduling state.
	NewSnapshot(readOnly bool) Snapshot
	// EndSnapshot releases bookkeeping registered by NewSnapshot (e.g. the
	// in-flight snapshot registry Global's GC policy consults).
	EndSnapshot(snap Snapshot)

	// CanReadTID reports whether a version stamped t is visible to a
	// transaction holding snap.
	CanReadTID(t uint64, snap Snapshot) bool
	// CanOverwriteRecordTID reports whether a write at cur may overwrite a
	// VR whose current version is prev, in place.
	CanOverwriteRecordTID(prev, cur uint64) bool

	// BeginCommit acquires whatever serialization the protocol needs
	// before locks are taken (a no-op for Global; the per-core spinlock
	// for Epoch) and returns the core a commit TID will be minted on.
	BeginCommit(snap Snapshot) (CommitTicket, int)
	// GenCommitTID mints a commit TID. Global's TIDs are strictly greater
	// than every TID it minted or handed out to a snapshot before. Epoch's
	// TIDs are greater than every TID of an earlier epoch and every TID
	// minted earlier on the same core; within one epoch, a TID minted on a
	// lower core can be smaller than versions in writeNodes and than that
	// epoch's snapshot TIDs.
	GenCommitTID(ticket CommitTicket, core int, writeNodes []*record.VR) uint64
	// OnLogicalNodeSpill runs while the grown VR's head lock is still
	// held, so the protocol can schedule chain truncation.
	OnLogicalNodeSpill(ctx SpillContext)
	// OnLogicalDelete runs while the tombstoning VR's head lock is still
	// held, so the protocol can schedule index-entry removal.
	OnLogicalDelete(ctx DeleteContext)
	// EndCommit releases the ticket from BeginCommit and performs any
	// protocol bookkeeping keyed on the finished commit TID.
	EndCommit(ticket CommitTicket, commitTID uint64)

	// ConsistentSnapshotTID returns the TID floor of everything guaranteed
	// stable right now, used by callers that want a snapshot without
	// constructing a full transaction.
	ConsistentSnapshotTID() (ok bool, tid uint64)

	// Close releases background resources (the epoch advancer goroutine).
	Close()
}
