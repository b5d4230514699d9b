package runtime

import "time"

// ProtocolKind selects which of the two timestamp protocols a Runtime uses.
type ProtocolKind string

const (
	ProtocolGlobal ProtocolKind = "global"
	ProtocolEpoch  ProtocolKind = "epoch"
)

// Config carries every tuning constant spec.md §6 names, analogous to the
// teacher's storage.Options.
type Config struct {
	Protocol ProtocolKind

	// NMaxChainLength bounds Protocol P1's spill chain before truncation.
	NMaxChainLength int
	// StableReadSpinBudget bounds TryStableVersion's busy-wait attempts
	// during commit-time read-set revalidation.
	StableReadSpinBudget int

	// NMaxCores and CoreBits size Protocol P2's composite TID.
	NMaxCores int
	CoreBits  uint
	// EpochPeriod is how often Protocol P2's advancer goroutine ticks.
	EpochPeriod time.Duration

	// ReclaimSweepInterval is how often the background reclaimer sweeps
	// deferred deleters when no caller is forcing a sweep explicitly.
	ReclaimSweepInterval time.Duration

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string
	// LogLevel is passed to corelog.New ("debug", "info", "warn", "error").
	LogLevel string
}

// DefaultConfig returns spec.md §6's documented defaults: Protocol P1,
// NMaxChainLength ≈ 10, stable-read spin budget ≈ 16.
func DefaultConfig() Config {
	return Config{
		Protocol:             ProtocolGlobal,
		NMaxChainLength:      10,
		StableReadSpinBudget: 16,
		NMaxCores:            8,
		CoreBits:             8,
		EpochPeriod:          10 * time.Millisecond,
		ReclaimSweepInterval: 5 * time.Millisecond,
		MetricsNamespace:     "corekv",
		LogLevel:             "info",
	}
}
