package index

import (
	"bytes"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/oba-ldap/corekv/internal/record"
)

// leafCapacity bounds the number of entries per leaf before it splits.
// Kept small relative to a real on-disk B+ tree so tests exercise splits
// and multi-leaf scans without large fixtures.
const leafCapacity = 16

type entry struct {
	key []byte
	vr  atomic.Pointer[record.VR]
}

// leaf is one node of the ordered leaf chain. version is bumped whenever a
// key is inserted into or removed from this leaf; it is the "per-leaf
// version stamp" the low-level scan protocol (spec.md §4.3(4)) revalidates
// at commit.
type leaf struct {
	mu      sync.Mutex
	id      uint64
	version atomic.Uint64
	entries []*entry
	next    *leaf
}

func (l *leaf) find(key []byte) (int, bool) {
	i := sort.Search(len(l.entries), func(i int) bool {
		return bytes.Compare(l.entries[i].key, key) >= 0
	})
	if i < len(l.entries) && bytes.Equal(l.entries[i].key, key) {
		return i, true
	}
	return i, false
}

// Stamp is an observed (leaf identity, leaf version) pair recorded during a
// scan under the low-level scan protocol.
type Stamp struct {
	LeafID  uint64
	Version uint64
}

// Index is an ordered, in-memory key index over *record.VR pointers.
type Index struct {
	mu         sync.RWMutex
	head       *leaf
	nextLeafID atomic.Uint64
}

// New builds an empty index with a single, empty leaf.
func New() *Index {
	idx := &Index{}
	idx.head = idx.newLeaf()
	return idx
}

func (idx *Index) newLeaf() *leaf {
	return &leaf{id: idx.nextLeafID.Add(1)}
}

// leafFor returns the leaf whose key range covers key: the last leaf whose
// first entry is <= key, or the head leaf if key precedes everything.
// Callers must hold idx.mu for reading.
func (idx *Index) leafFor(key []byte) *leaf {
	cur := idx.head
	for n := cur.next; n != nil; n = n.next {
		if len(n.entries) == 0 {
			continue
		}
		if bytes.Compare(n.entries[0].key, key) > 0 {
			break
		}
		cur = n
	}
	return cur
}

// Find performs a point lookup, returning the VR for key, if present.
func (idx *Index) Find(key []byte) (*record.VR, bool) {
	idx.mu.RLock()
	l := idx.leafFor(key)
	idx.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.find(key)
	if !ok {
		return nil, false
	}
	return l.entries[i].vr.Load(), true
}

// InsertIfAbsent inserts vr under key if no entry exists yet, returning the
// final VR in the index for key (vr itself if this call won, the existing
// one otherwise) and whether this call performed the insertion.
func (idx *Index) InsertIfAbsent(key []byte, vr *record.VR) (final *record.VR, inserted bool) {
	idx.mu.RLock()
	l := idx.leafFor(key)
	idx.mu.RUnlock()

	l.mu.Lock()
	i, ok := l.find(key)
	if ok {
		existing := l.entries[i].vr.Load()
		l.mu.Unlock()
		return existing, false
	}

	e := &entry{key: append([]byte(nil), key...)}
	e.vr.Store(vr)
	l.entries = append(l.entries, nil)
	copy(l.entries[i+1:], l.entries[i:])
	l.entries[i] = e
	l.version.Inc()
	needsSplit := len(l.entries) > leafCapacity
	l.mu.Unlock()

	if needsSplit {
		idx.split(l)
	}
	return vr, true
}

// split divides an over-full leaf into two, linking the new leaf after it
// in the scan chain. The original leaf's version is already bumped by the
// insert that triggered the split.
func (idx *Index) split(l *leaf) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) <= leafCapacity {
		return
	}

	mid := len(l.entries) / 2
	right := idx.newLeaf()
	right.entries = append([]*entry(nil), l.entries[mid:]...)
	right.next = l.next
	l.entries = l.entries[:mid:mid]
	l.next = right
}

// Swap atomically replaces the VR stored for an existing key (used when
// write_record_at returns a replacement head). It does not change which
// keys are present, so it does not bump the leaf's structural version.
func (idx *Index) Swap(key []byte, newVR *record.VR) bool {
	idx.mu.RLock()
	l := idx.leafFor(key)
	idx.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.find(key)
	if !ok {
		return false
	}
	l.entries[i].vr.Store(newVR)
	return true
}

// Remove deletes the entry for key, if present, bumping the owning leaf's
// structural version.
func (idx *Index) Remove(key []byte) bool {
	idx.mu.RLock()
	l := idx.leafFor(key)
	idx.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.find(key)
	if !ok {
		return false
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	l.version.Inc()
	return true
}

// Visitor is called for each present key in a scan's range, in key order.
type Visitor func(key []byte, vr *record.VR) bool

// Scan walks keys in [lo, hi) in order, invoking visitor for each present
// entry, and returns the (leaf id, version) stamps of every leaf the scan
// touched, including leaves contributing only a gap (no entries in range).
// hi == nil means no upper bound.
func (idx *Index) Scan(lo, hi []byte, visitor Visitor) []Stamp {
	idx.mu.RLock()
	l := idx.leafFor(lo)
	idx.mu.RUnlock()

	var stamps []Stamp
	for l != nil {
		l.mu.Lock()
		stamps = append(stamps, Stamp{LeafID: l.id, Version: l.version.Load()})
		entries := append([]*entry(nil), l.entries...)
		next := l.next
		l.mu.Unlock()

		for _, e := range entries {
			if bytes.Compare(e.key, lo) < 0 {
				continue
			}
			if hi != nil && bytes.Compare(e.key, hi) >= 0 {
				return stamps
			}
			if !visitor(e.key, e.vr.Load()) {
				return stamps
			}
		}
		l = next
	}
	return stamps
}

// LeafVersion returns the current version of the leaf identified by id, for
// commit-time revalidation of a recorded Stamp.
func (idx *Index) LeafVersion(id uint64) (uint64, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for l := idx.head; l != nil; l = l.next {
		if l.id == id {
			return l.version.Load(), true
		}
	}
	return 0, false
}
