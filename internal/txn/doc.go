// Package txn implements the transaction state machine: begin, read,
// write, scan, commit, and abort, plus the seven-step commit protocol
// spec.md §4.3 describes. It is the only package that dispatches between
// the two pluggable timestamp protocols, via the protocol.Protocol
// capability set constructed once per runtime.
package txn
