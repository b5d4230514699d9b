// Package rangeset implements the half-open key-interval algebra used to
// record absent ranges observed during a scan, so that a later phantom
// insertion into a recorded gap can be detected at commit time.
//
// A Range is [A, B) with B optionally absent (meaning +infinity). The Set
// keeps ranges sorted by A and coalesces overlapping or adjacent ranges on
// insertion, the way the design's key_range_search_less_cmp does.
package rangeset
