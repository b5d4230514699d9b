// Package runtime wires a Protocol, an Index, a Reclaimer, Metrics, and a
// Logger together into a single handle transactions are built against.
// spec.md §9 calls for representing process-wide protocol state as an
// explicitly constructed runtime handle rather than package-level globals,
// so tests can run several isolated runtimes in one process.
package runtime
