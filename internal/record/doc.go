// Package record implements the version record (VR): the heap-allocated
// cell that carries one tuple value plus a packed atomic header, linked
// into a per-key version chain ordered newest-first.
//
// # Overview
//
// Each key in the index owns a chain of VRs. The head VR carries the
// LATEST flag; older VRs are reached by following Next. A VR's header is
// a single atomic word so that locking, tombstone/enqueued marking, and
// the LATEST bit can all be updated with one compare-and-swap:
//
//	vr := record.AllocFirst()       // empty tombstone head at MIN_TID
//	vr.Lock()
//	grew, repl := vr.WriteRecordAt(tid, []byte("value"), canOverwrite)
//	vr.Unlock()
//
// # Stable reads
//
// Readers never take the lock. They sandwich a read of the non-atomic
// fields (Next, Version, payload) between two loads of the header and
// retry if the header changed in between:
//
//	value, atTID, status := vr.StableRead(snapshotTID)
//
// # Change counter
//
// Bits 4..63 of the header are a counter incremented on every unlock.
// Combined with the stable-version sandwich this gives the reader a cheap
// torn-read detector without ever blocking a writer.
package record
