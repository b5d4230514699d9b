// Package txctx holds the per-transaction bookkeeping a commit validates
// against: the read set, the write set, the absent-range set, and the
// node-scan set. None of it is safe for concurrent use; each belongs to
// exactly one in-flight transaction.
package txctx
