package txctx

import (
	"sort"

	"github.com/oba-ldap/corekv/internal/index"
	"github.com/oba-ldap/corekv/internal/rangeset"
	"github.com/oba-ldap/corekv/internal/record"
)

// ReadEntry is one read_set member: the value and version a transaction
// observed for a key, and the VR it was read from, so commit can
// revalidate both the version and the VR's identity.
type ReadEntry struct {
	VR          *record.VR
	ObservedTID uint64
	Value       []byte
}

// Context is one transaction's bookkeeping against a single index: the
// read set, write set, absent-range set, and (when low-level scan is
// enabled) the node-scan set spec.md §3.3 names.
type Context struct {
	readSet map[string]ReadEntry
	// writeSet preserves insertion order separately from the map so commit
	// can still iterate keys in canonical sorted order without resorting
	// to map iteration, which Go deliberately randomizes.
	writeSet  map[string][]byte
	writeKeys []string
	absent    *rangeset.Set
	nodeScan  map[uint64]uint64
	lowLevel  bool
}

// New builds an empty Context. lowLevelScan selects whether scans populate
// the node-scan set (leaf version stamps) instead of the absent-range set.
func New(lowLevelScan bool) *Context {
	return &Context{
		readSet:  make(map[string]ReadEntry),
		writeSet: make(map[string][]byte),
		absent:   rangeset.NewSet(),
		nodeScan: make(map[uint64]uint64),
		lowLevel: lowLevelScan,
	}
}

// LowLevelScan reports whether this context records node-scan stamps
// instead of absent ranges.
func (c *Context) LowLevelScan() bool { return c.lowLevel }

// BufferedWrite returns the value buffered for key and whether one exists.
func (c *Context) BufferedWrite(key []byte) ([]byte, bool) {
	v, ok := c.writeSet[string(key)]
	return v, ok
}

// RecordWrite buffers value for key, empty meaning a tombstone. Overwrites
// any previously buffered value for the same key without duplicating its
// position in commit-order iteration.
func (c *Context) RecordWrite(key, value []byte) {
	k := string(key)
	if _, existed := c.writeSet[k]; !existed {
		c.writeKeys = append(c.writeKeys, k)
	}
	c.writeSet[k] = append([]byte(nil), value...)
}

// WriteKeysSorted returns every buffered write's key in canonical
// (lexicographic) order, the order commit.md §4.3(1) requires locks be
// acquired in.
func (c *Context) WriteKeysSorted() []string {
	keys := append([]string(nil), c.writeKeys...)
	sort.Strings(keys)
	return keys
}

// Write returns the buffered bytes for a sorted write key produced by
// WriteKeysSorted.
func (c *Context) Write(key string) []byte {
	return c.writeSet[key]
}

// CachedRead returns a previously recorded read_set entry for key.
func (c *Context) CachedRead(key []byte) (ReadEntry, bool) {
	e, ok := c.readSet[string(key)]
	return e, ok
}

// RecordRead records a read_set entry for key. At most one entry per key is
// kept, matching spec.md §3.3.
func (c *Context) RecordRead(key []byte, entry ReadEntry) {
	k := string(key)
	if _, ok := c.readSet[k]; ok {
		return
	}
	c.readSet[k] = entry
}

// ReadEntries returns every recorded read_set member keyed by its original
// key bytes, for commit-time revalidation.
func (c *Context) ReadEntries() map[string]ReadEntry {
	return c.readSet
}

// RecordAbsentRange records a gap observed during a scan into the
// absent-range set, coalescing with adjacent/overlapping entries.
func (c *Context) RecordAbsentRange(r rangeset.Range) {
	c.absent.Insert(r)
}

// AbsentRanges returns the current sorted, disjoint absent ranges.
func (c *Context) AbsentRanges() []rangeset.Range {
	return c.absent.Ranges()
}

// RecordNodeScan records the (leaf id, observed version) stamp from a scan
// performed under the low-level scan protocol.
func (c *Context) RecordNodeScan(stamp index.Stamp) {
	if v, ok := c.nodeScan[stamp.LeafID]; ok && v != stamp.Version {
		// A leaf revisited with a different version within the same scan
		// already proves instability; keep the first-observed version so
		// commit-time revalidation against the index's current version
		// still reports the interference.
		return
	}
	c.nodeScan[stamp.LeafID] = stamp.Version
}

// NodeScans returns every recorded (leaf id, observed version) stamp.
func (c *Context) NodeScans() map[uint64]uint64 {
	return c.nodeScan
}
