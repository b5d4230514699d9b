// Package index implements the ordered key index the transactional engine
// is layered on top of. spec.md treats this index as an external
// collaborator ("assumed to provide point lookup, insertion, and range
// scan with per-leaf version stamps"); this module has no other supplier
// for it, so it is implemented here, adapted from the teacher's
// storage/btree package: an ordered chain of leaves linked for range scans,
// each leaf carrying a version counter bumped on structural change (a key
// inserted or removed) so a scanning transaction can detect phantoms.
//
// Unlike the teacher's B+ tree, entries are in-memory pointers to
// record.VR rather than on-disk page/slot references, and there is no
// separate internal-node level: leaves are found by walking the ordered
// leaf chain, which is adequate for the engine's in-memory, single-process
// scope.
package index
