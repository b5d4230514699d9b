// Package corelog wraps go.uber.org/zap the way the teacher's
// internal/logging package wraps the standard logger: a small interface
// plus constructors, so every component takes a logger at construction
// instead of reaching for a package-global.
package corelog
