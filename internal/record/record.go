package record

import (
	"runtime"

	"go.uber.org/atomic"
)

// Header bit layout, preserved exactly from the design: bit 0 LOCKED, bit 1
// DELETING, bit 2 ENQUEUED, bit 3 LATEST, bits 4..63 a change counter
// incremented on every unlock.
const (
	lockedBit   uint64 = 1 << 0
	deletingBit uint64 = 1 << 1
	enqueuedBit uint64 = 1 << 2
	latestBit   uint64 = 1 << 3

	counterShift = 4
	counterOne   = uint64(1) << counterShift
)

// MinTID and MaxTID are the two reserved timestamp values.
const (
	MinTID uint64 = 0
	MaxTID uint64 = 1<<64 - 1
)

// spinLimit bounds the busy-wait portion of Lock/StableVersion before the
// goroutine yields the processor; this is a scheduling nicety, not a
// correctness requirement, since Go goroutines are not pinned to hardware
// threads the way the original's spin-then-pause loop assumed.
const spinLimit = 64

func spinWait(iter int) {
	if iter < spinLimit {
		return
	}
	runtime.Gosched()
}

// body is the set of fields that change together on every write: the
// version this value was written at, and the payload bytes. Bundling them
// behind a single atomic pointer gives readers a torn-read-free snapshot
// without requiring the VR lock.
type body struct {
	version uint64
	payload []byte
}

// VR is one cell of a per-key version chain. The header is the sole
// synchronization word; next, version, and payload are published through
// it via the stable-version sandwich (see StableRead).
type VR struct {
	hdr  atomic.Uint64
	next atomic.Pointer[VR]
	b    atomic.Pointer[body]

	// allocSize is fixed at allocation: the payload capacity below which a
	// write may overwrite in place rather than spilling to a new VR.
	allocSize uint32
}

// allocCapacityFor returns a capacity for a payload of length n, growing
// geometrically so that a write of slightly increasing size can reuse the
// same VR rather than spilling on every commit.
func allocCapacityFor(n int) uint32 {
	cap := uint32(32)
	for cap < uint32(n) {
		cap *= 2
	}
	return cap
}

func newVR(version uint64, value []byte, latest bool) *VR {
	vr := &VR{allocSize: allocCapacityFor(len(value))}
	payload := append([]byte(nil), value...)
	vr.b.Store(&body{version: version, payload: payload})
	if latest {
		vr.hdr.Store(latestBit)
	}
	return vr
}

// AllocFirst allocates an empty chain head: a tombstone at MinTID with
// LATEST set, per the invariant that every chain head initially contains a
// single tombstone at MIN_TID.
func AllocFirst() *VR {
	return newVR(MinTID, nil, true)
}

// Alloc allocates a new, unlinked VR carrying value at version. The caller
// links it into a chain (setting Next and, if it becomes the head, LATEST)
// before publishing it to the index.
func Alloc(version uint64, value []byte) *VR {
	return newVR(version, value, false)
}

// Version returns the TID this VR's current value was written at.
func (vr *VR) Version() uint64 {
	return vr.b.Load().version
}

// Size returns the length of the current payload. A size of zero marks a
// tombstone.
func (vr *VR) Size() int {
	return len(vr.b.Load().payload)
}

// Next returns the next-older VR in the chain, or nil.
func (vr *VR) Next() *VR {
	return vr.next.Load()
}

// SetNext links the next-older VR. Callers hold the lock (or are still
// building an unpublished chain) when calling this.
func (vr *VR) SetNext(next *VR) {
	vr.next.Store(next)
}

// Header bit accessors over a snapshot value returned by StableVersion /
// TryStableVersion.

func IsLocked(hdr uint64) bool   { return hdr&lockedBit != 0 }
func IsDeleting(hdr uint64) bool { return hdr&deletingBit != 0 }
func IsEnqueued(hdr uint64) bool { return hdr&enqueuedBit != 0 }
func IsLatest(hdr uint64) bool   { return hdr&latestBit != 0 }
func Counter(hdr uint64) uint64  { return hdr >> counterShift }

// Lock spins until it acquires the VR's lock bit. Not re-entrant.
func (vr *VR) Lock() {
	for i := 0; ; i++ {
		v := vr.hdr.Load()
		if !IsLocked(v) && vr.hdr.CompareAndSwap(v, v|lockedBit) {
			return
		}
		spinWait(i)
	}
}

// Unlock increments the change counter and clears the lock bit. The caller
// must hold the lock; no concurrent writer can be racing this store.
func (vr *VR) Unlock() {
	v := vr.hdr.Load()
	vr.hdr.Store((v &^ lockedBit) + counterOne)
}

// StableVersion blocks until the lock bit is observed clear and returns
// that header snapshot.
func (vr *VR) StableVersion() uint64 {
	for i := 0; ; i++ {
		v := vr.hdr.Load()
		if !IsLocked(v) {
			return v
		}
		spinWait(i)
	}
}

// TryStableVersion is the bounded variant: it gives up after spins attempts
// rather than blocking indefinitely.
func (vr *VR) TryStableVersion(spins int) (hdr uint64, ok bool) {
	for i := 0; i < spins; i++ {
		v := vr.hdr.Load()
		if !IsLocked(v) {
			return v, true
		}
		spinWait(i)
	}
	return 0, false
}

// setBit and clearBit mutate header flag bits. The caller must hold the
// lock: these are plain read-modify-write, safe only because no concurrent
// writer can be touching hdr while the lock bit is set.
func (vr *VR) setBit(bit uint64)   { vr.hdr.Store(vr.hdr.Load() | bit) }
func (vr *VR) clearBit(bit uint64) { vr.hdr.Store(vr.hdr.Load() &^ bit) }

func (vr *VR) SetLatest()     { vr.setBit(latestBit) }
func (vr *VR) ClearLatest()   { vr.clearBit(latestBit) }
func (vr *VR) SetDeleting()   { vr.setBit(deletingBit) }
func (vr *VR) ClearDeleting() { vr.clearBit(deletingBit) }
func (vr *VR) SetEnqueued()   { vr.setBit(enqueuedBit) }
func (vr *VR) ClearEnqueued() { vr.clearBit(enqueuedBit) }

// Hdr returns the raw header word (for tests and diagnostics only).
func (vr *VR) Hdr() uint64 { return vr.hdr.Load() }

// ChainLength walks Next and counts the VRs from vr to the end of the
// chain, inclusive.
func (vr *VR) ChainLength() int {
	n := 0
	for cur := vr; cur != nil; cur = cur.Next() {
		n++
	}
	return n
}

// ReadStatus reports the outcome of StableRead.
type ReadStatus int

const (
	// ReadFound means Value/TID hold the visible version; an empty Value
	// is a tombstone (logical absence), not a failure.
	ReadFound ReadStatus = iota
	// ReadRetry means the head VR was demoted out from under the read;
	// the caller must re-locate the VR for the key (via the index) and
	// retry, or treat this as a higher-level abort.
	ReadRetry
)

// StableRead finds and copies the value visible at snapshot t. The caller
// must not be holding this VR's lock.
func (vr *VR) StableRead(t uint64) (value []byte, atTID uint64, status ReadStatus) {
	return vr.stableRead(t, true)
}

func (vr *VR) stableRead(t uint64, isHead bool) (value []byte, atTID uint64, status ReadStatus) {
	for {
		v := vr.StableVersion()
		next := vr.next.Load()
		b := vr.b.Load()

		hit := b.version <= t
		if hit && isHead && !IsLatest(v) {
			if vr.hdr.Load() == v {
				return nil, 0, ReadRetry
			}
			continue
		}

		if hit {
			if vr.hdr.Load() != v {
				continue
			}
			out := append([]byte(nil), b.payload...)
			return out, b.version, ReadFound
		}

		if vr.hdr.Load() != v {
			continue
		}
		if next == nil {
			return nil, 0, ReadFound
		}
		return next.stableRead(t, false)
	}
}

// WriteRecordAt installs value at version t into this VR, which must be the
// chain head and must be locked by the caller. canOverwrite reports whether
// the active protocol permits overwriting this VR's current version in
// place (Protocol.CanOverwriteRecordTID); when false the previous value is
// preserved in a spilled VR.
//
// grew reports whether the chain gained a link (spill path). replacement,
// when non-nil, is a new head the caller must publish into the index in
// this VR's place; this VR's LATEST bit has already been cleared.
func (vr *VR) WriteRecordAt(t uint64, value []byte, canOverwrite bool) (grew bool, replacement *VR) {
	cur := vr.b.Load()
	fits := uint32(len(value)) <= vr.allocSize

	if canOverwrite {
		if fits {
			vr.b.Store(&body{version: t, payload: append([]byte(nil), value...)})
			return false, nil
		}
		vr.ClearLatest()
		nv := newVR(t, value, true)
		nv.SetNext(vr.next.Load())
		return false, nv
	}

	if fits {
		spill := newVR(cur.version, cur.payload, false)
		spill.SetNext(vr.next.Load())
		vr.next.Store(spill)
		vr.b.Store(&body{version: t, payload: append([]byte(nil), value...)})
		return true, nil
	}

	vr.ClearLatest()
	nv := newVR(t, value, true)
	nv.SetNext(vr)
	return true, nv
}
