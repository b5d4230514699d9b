// Package reclaim implements the grace-period memory reclamation substrate
// spec.md §6 treats as an external collaborator ("defer_free(ptr, deleter)
// that invokes deleter after a grace period"). It is a simple counting
// scheme: readers bracket their work in a read region (EnterRegion /
// Region.Exit), the reclaimer counts the regions currently open, and a
// sweep runs every pending deleter only when no region is open at all.
//
// This is deliberately lighter than a production SMR library (no
// hazard-pointer-style per-object tracking): it is adequate for the
// engine's needs, which only ever defer whole VRs and index entries, and
// it is adapted from the teacher's GarbageCollector ticker/stop/done
// lifecycle shape.
package reclaim
