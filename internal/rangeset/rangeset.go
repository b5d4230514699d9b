package rangeset

import (
	"bytes"
	"sort"
)

// Range is a half-open key interval [A, B). HasB is false when there is no
// upper bound (B is +infinity).
type Range struct {
	A    []byte
	B    []byte
	HasB bool
}

// New builds a bounded range [a, b).
func New(a, b []byte) Range {
	return Range{A: a, B: b, HasB: true}
}

// NewUnbounded builds an unbounded range [a, +inf).
func NewUnbounded(a []byte) Range {
	return Range{A: a, HasB: false}
}

// Empty reports whether the range contains no keys: HasB && A >= B.
func (r Range) Empty() bool {
	return r.HasB && bytes.Compare(r.A, r.B) >= 0
}

// Contains reports whether r fully contains other: r.A <= other.A and
// (r has no upper bound, or other has an upper bound <= r's).
func (r Range) Contains(other Range) bool {
	if bytes.Compare(r.A, other.A) > 0 {
		return false
	}
	if !r.HasB {
		return true
	}
	if !other.HasB {
		return false
	}
	return bytes.Compare(other.B, r.B) <= 0
}

// ContainsKey reports whether k falls within [A, B).
func (r Range) ContainsKey(k []byte) bool {
	if bytes.Compare(r.A, k) > 0 {
		return false
	}
	if !r.HasB {
		return true
	}
	return bytes.Compare(k, r.B) < 0
}

// overlapsOrAdjacent reports whether r and other should be coalesced: they
// overlap or touch end-to-end.
func overlapsOrAdjacent(r, other Range) bool {
	// r starts at or before other's end (or other is unbounded)...
	if r.HasB && other.HasB {
		return bytes.Compare(r.A, other.B) <= 0 && bytes.Compare(other.A, r.B) <= 0
	}
	if !r.HasB && !other.HasB {
		return true
	}
	if !r.HasB {
		// r is [r.A, +inf); overlaps other unless other ends strictly before r.A.
		return bytes.Compare(other.B, r.A) >= 0
	}
	return bytes.Compare(r.B, other.A) >= 0
}

func merge(r, other Range) Range {
	out := Range{}
	if bytes.Compare(r.A, other.A) <= 0 {
		out.A = r.A
	} else {
		out.A = other.A
	}
	if !r.HasB || !other.HasB {
		out.HasB = false
		return out
	}
	if bytes.Compare(r.B, other.B) >= 0 {
		out.B = r.B
	} else {
		out.B = other.B
	}
	out.HasB = true
	return out
}

// Set is a sorted, non-overlapping collection of absent-key ranges.
type Set struct {
	ranges []Range
}

// NewSet builds an empty range set.
func NewSet() *Set {
	return &Set{}
}

// Len returns the number of disjoint ranges currently recorded.
func (s *Set) Len() int {
	return len(s.ranges)
}

// Ranges returns a copy of the current sorted, disjoint ranges. The key
// bytes inside each Range are shared with the set and must not be mutated.
func (s *Set) Ranges() []Range {
	out := make([]Range, len(s.ranges))
	copy(out, s.ranges)
	return out
}

// searchLessThan returns the index of the first range that compares
// greater than or equal to k: a range compares greater than k when it has
// no upper bound, or k < B. This mirrors key_range_search_less_cmp.
func (s *Set) searchLessThan(k []byte) int {
	return sort.Search(len(s.ranges), func(i int) bool {
		r := s.ranges[i]
		return !r.HasB || bytes.Compare(k, r.B) < 0
	})
}

// Insert adds r to the set, coalescing with any overlapping or adjacent
// existing ranges.
func (s *Set) Insert(r Range) {
	if r.Empty() {
		return
	}

	idx := s.searchLessThan(r.A)
	// Walk left from idx while the predecessor still overlaps/touches r,
	// since searchLessThan only guarantees idx's upper bound relationship
	// to r.A, not that idx-1 doesn't also merge.
	for idx > 0 && overlapsOrAdjacent(s.ranges[idx-1], r) {
		idx--
	}

	merged := r
	end := idx
	for end < len(s.ranges) && overlapsOrAdjacent(s.ranges[end], merged) {
		merged = merge(merged, s.ranges[end])
		end++
	}

	next := make([]Range, 0, len(s.ranges)-(end-idx)+1)
	next = append(next, s.ranges[:idx]...)
	next = append(next, merged)
	next = append(next, s.ranges[end:]...)
	s.ranges = next
}

// ContainsKey reports whether k falls in any recorded absent range.
func (s *Set) ContainsKey(k []byte) bool {
	for _, r := range s.ranges {
		if r.ContainsKey(k) {
			return true
		}
	}
	return false
}
