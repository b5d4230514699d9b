package runtime

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/oba-ldap/corekv/internal/txn"
)

func TestNewDefaultConfigUsesGlobalProtocol(t *testing.T) {
	rt, err := New(DefaultConfig(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close()

	t1 := rt.Begin(0)
	require.NoError(t, t1.Write([]byte("a"), []byte("1")))
	require.NoError(t, t1.Commit())

	t2 := rt.Begin(0)
	v, err := t2.Read([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), v)
}

func TestNewEpochProtocol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Protocol = ProtocolEpoch
	rt, err := New(cfg, prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt.Close()

	t1 := rt.Begin(txn.ReadOnly)
	_, err = t1.Read([]byte("missing"))
	require.NoError(t, err)
	require.NoError(t, t1.Commit())
}

func TestNewRejectsUnknownProtocol(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Protocol = "bogus"
	_, err := New(cfg, prometheus.NewRegistry())
	require.Error(t, err)
}

func TestTwoRuntimesHaveDistinctIDs(t *testing.T) {
	rt1, err := New(DefaultConfig(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt1.Close()
	rt2, err := New(DefaultConfig(), prometheus.NewRegistry())
	require.NoError(t, err)
	defer rt2.Close()

	require.NotEqual(t, rt1.ID, rt2.ID)
}
