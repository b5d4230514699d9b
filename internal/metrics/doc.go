// Package metrics exposes Prometheus counters for transaction outcomes,
// mirroring the per-abort-reason event_counter fields of the original
// design (one counter per spec.md §7 AbortReason, plus the two logical-
// deleted-node-read counters restored in SPEC_FULL.md §3) as a single
// CounterVec rather than one global per reason.
package metrics
