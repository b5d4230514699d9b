// Package protocol implements the two pluggable timestamp protocols:
// Global (a monotone process-wide counter) and Epoch (a composite
// core/serial/epoch TID with a dedicated epoch advancer). Both implement
// the same Protocol capability set so the transaction core never
// dispatches on protocol identity; it only calls the four hooks
// (GenCommitTID, OnLogicalNodeSpill, OnLogicalDelete, EndCommit) and two
// predicates (CanReadTID, CanOverwriteRecordTID) spec.md §9 names.
//
// A runtime holds exactly one Protocol instance, constructed explicitly
// (never a package-level global), so tests can run several isolated
// runtimes concurrently.
package protocol
