package txn

import "github.com/pkg/errors"

// AbortReason classifies why a transaction could not be committed, per
// spec.md §7. Every value is a transaction-level outcome, never a process
// fault.
type AbortReason int

const (
	// AbortNone means the transaction has not aborted.
	AbortNone AbortReason = iota
	// AbortUser means the caller invoked Abort directly.
	AbortUser
	// AbortUnstableRead means a read could not obtain a stable version:
	// the head VR was demoted again on retry, or the lock stayed held past
	// the spin budget during commit-time revalidation.
	AbortUnstableRead
	// AbortFutureTIDRead means a read observed a version TID greater than
	// the transaction's snapshot TID.
	AbortFutureTIDRead
	// AbortNodeScanWriteVersionChanged means a scanned leaf's version
	// changed (a key was inserted into or removed from it) before this
	// transaction committed.
	AbortNodeScanWriteVersionChanged
	// AbortNodeScanReadVersionChanged means a leaf stamped during a
	// low-level scan could no longer be found in the index at commit.
	AbortNodeScanReadVersionChanged
	// AbortWriteNodeInterference means lock acquisition during commit found
	// the index no longer points at the locked head VR (a concurrent commit
	// swapped in a replacement head, or the entry was removed).
	AbortWriteNodeInterference
	// AbortReadNodeInterference means revalidation of a read_set entry
	// found the value or version had moved.
	AbortReadNodeInterference
	// AbortReadAbsenceInterference means a range recorded as absent now
	// contains a key.
	AbortReadAbsenceInterference
)

// String mirrors the original implementation's AbortReasonStr table, used
// in log lines and the corebench summary report.
func (r AbortReason) String() string {
	switch r {
	case AbortNone:
		return "NONE"
	case AbortUser:
		return "USER"
	case AbortUnstableRead:
		return "UNSTABLE_READ"
	case AbortFutureTIDRead:
		return "FUTURE_TID_READ"
	case AbortNodeScanWriteVersionChanged:
		return "NODE_SCAN_WRITE_VERSION_CHANGED"
	case AbortNodeScanReadVersionChanged:
		return "NODE_SCAN_READ_VERSION_CHANGED"
	case AbortWriteNodeInterference:
		return "WRITE_NODE_INTERFERENCE"
	case AbortReadNodeInterference:
		return "READ_NODE_INTERFERENCE"
	case AbortReadAbsenceInterference:
		return "READ_ABSENCE_INTERFERENCE"
	default:
		return "UNKNOWN"
	}
}

// AbortError is returned by Commit and carries the classified reason. It
// captures a stack trace at the point of failure via errors.WithStack so
// callers debugging a production abort can see where validation failed.
type AbortError struct {
	reason AbortReason
	cause  error
}

func newAbortError(reason AbortReason) *AbortError {
	return &AbortError{reason: reason, cause: errors.WithStack(errors.New(reason.String()))}
}

func (e *AbortError) Error() string {
	return "transaction aborted: " + e.reason.String()
}

func (e *AbortError) Unwrap() error { return e.cause }

// Reason returns the classified abort reason.
func (e *AbortError) Reason() AbortReason { return e.reason }

// ErrReadOnly is returned by Write on a transaction begun with ReadOnly.
var ErrReadOnly = errors.New("txn: write attempted on a read-only transaction")

// ErrUnusable is returned by any operation attempted after the transaction
// has resolved (Committed or Aborted).
var ErrUnusable = errors.New("txn: operation attempted on a resolved transaction")
