package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/corekv/internal/runtime"
)

func TestParseFlagsDefaults(t *testing.T) {
	cfg, err := parseFlags(nil)
	require.NoError(t, err)
	require.Equal(t, runtime.ProtocolGlobal, cfg.runtime.Protocol)
	require.Equal(t, 8, cfg.workers)
}

func TestParseFlagsOverrides(t *testing.T) {
	cfg, err := parseFlags([]string{"--protocol=epoch", "--workers=2", "--ops=10", "--keys=50"})
	require.NoError(t, err)
	require.Equal(t, runtime.ProtocolEpoch, cfg.runtime.Protocol)
	require.Equal(t, 2, cfg.workers)
	require.Equal(t, 10, cfg.opsPerWork)
	require.Equal(t, 50, cfg.keySpace)
}

func TestParseFlagsHelp(t *testing.T) {
	_, err := parseFlags([]string{"--help"})
	require.Equal(t, errHelpRequested, err)
}

func TestRunBenchmarkSmoke(t *testing.T) {
	cfg, err := parseFlags([]string{"--workers=4", "--ops=200", "--keys=50"})
	require.NoError(t, err)

	rep, err := runBenchmark(cfg)
	require.NoError(t, err)
	require.Greater(t, rep.commits, int64(0))

	var buf bytes.Buffer
	rep.WriteTo(&buf)
	require.Contains(t, buf.String(), "corekv transaction benchmark")
}

func TestRunBenchmarkSmokeEpochLowLevel(t *testing.T) {
	cfg, err := parseFlags([]string{"--protocol=epoch", "--workers=4", "--ops=200", "--keys=50", "--low-level-scan", "--epoch-period=1ms"})
	require.NoError(t, err)

	rep, err := runBenchmark(cfg)
	require.NoError(t, err)
	require.Greater(t, rep.commits, int64(0))
}

func TestRunExitCodes(t *testing.T) {
	require.Equal(t, 0, run([]string{"--help"}))
	require.Equal(t, 0, run([]string{"--workers=1", "--ops=5", "--keys=5"}))
	require.Equal(t, 1, run([]string{"--unknown-flag"}))
}
