package main

import (
	"errors"

	"github.com/spf13/pflag"

	"github.com/oba-ldap/corekv/internal/runtime"
)

var errHelpRequested = errors.New("help requested")

// benchConfig is the CLI's own flag surface layered over runtime.Config:
// the workload shape (workers, ops, key space, read/write mix) plus the
// engine tuning constants forwarded into runtime.Config.
type benchConfig struct {
	runtime runtime.Config

	workers    int
	opsPerWork int
	keySpace   int
	writeRatio float64
	scanRatio  float64
	lowLevel   bool
}

func parseFlags(args []string) (benchConfig, error) {
	fs := pflag.NewFlagSet("corebench", pflag.ContinueOnError)

	protocol := fs.String("protocol", string(runtime.ProtocolGlobal), "timestamp protocol: global|epoch")
	workers := fs.Int("workers", 8, "number of concurrent workers")
	opsPerWork := fs.Int("ops", 10000, "operations per worker")
	keySpace := fs.Int("keys", 1000, "number of distinct keys workers draw from")
	writeRatio := fs.Float64("write-ratio", 0.2, "fraction of operations that are writes")
	scanRatio := fs.Float64("scan-ratio", 0.05, "fraction of operations that are range scans")
	lowLevel := fs.Bool("low-level-scan", false, "use the low-level node-scan phantom protocol instead of absent-range tracking")
	maxChain := fs.Int("max-chain-length", runtime.DefaultConfig().NMaxChainLength, "Protocol P1 chain-length GC threshold")
	spinBudget := fs.Int("spin-budget", runtime.DefaultConfig().StableReadSpinBudget, "stable-read spin budget")
	nMaxCores := fs.Int("cores", runtime.DefaultConfig().NMaxCores, "Protocol P2 core count")
	coreBits := fs.Uint("core-bits", runtime.DefaultConfig().CoreBits, "Protocol P2 core field width in bits")
	epochPeriod := fs.Duration("epoch-period", runtime.DefaultConfig().EpochPeriod, "Protocol P2 epoch advancer period")
	logLevel := fs.String("log-level", runtime.DefaultConfig().LogLevel, "log level: debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return benchConfig{}, errHelpRequested
		}
		return benchConfig{}, err
	}

	rc := runtime.DefaultConfig()
	rc.Protocol = runtime.ProtocolKind(*protocol)
	rc.NMaxChainLength = *maxChain
	rc.StableReadSpinBudget = *spinBudget
	rc.NMaxCores = *nMaxCores
	rc.CoreBits = *coreBits
	rc.EpochPeriod = *epochPeriod
	rc.LogLevel = *logLevel

	bc := benchConfig{
		runtime:    rc,
		workers:    *workers,
		opsPerWork: *opsPerWork,
		keySpace:   *keySpace,
		writeRatio: *writeRatio,
		scanRatio:  *scanRatio,
		lowLevel:   *lowLevel,
	}
	return bc, nil
}
