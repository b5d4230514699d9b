package runtime

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/oba-ldap/corekv/internal/corelog"
	"github.com/oba-ldap/corekv/internal/index"
	"github.com/oba-ldap/corekv/internal/metrics"
	"github.com/oba-ldap/corekv/internal/protocol"
	"github.com/oba-ldap/corekv/internal/reclaim"
	"github.com/oba-ldap/corekv/internal/txn"
)

// Runtime is the process-wide (or test-isolated) handle a set of
// transactions share: one Protocol instance, one Index, one Reclaimer.
// ID is a unique identifier so multiple Runtimes in a single test binary
// are distinguishable; it is not attached to log lines or metric labels.
type Runtime struct {
	ID uuid.UUID

	cfg       Config
	idx       *index.Index
	proto     protocol.Protocol
	reclaimer *reclaim.Reclaimer
	metrics   *metrics.Metrics
	logger    corelog.Logger
}

// New builds a Runtime from cfg, registering its metrics with reg (pass
// prometheus.NewRegistry() for an isolated test runtime, or
// prometheus.DefaultRegisterer for the process-wide /metrics endpoint).
func New(cfg Config, reg prometheus.Registerer) (*Runtime, error) {
	logger, err := corelog.New(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "runtime: building logger")
	}

	m := metrics.New(reg, cfg.MetricsNamespace)
	r := reclaim.New(cfg.ReclaimSweepInterval)
	r.Start()

	var p protocol.Protocol
	switch cfg.Protocol {
	case ProtocolEpoch:
		p = protocol.NewEpoch(protocol.EpochConfig{
			NMaxCores:   cfg.NMaxCores,
			CoreBits:    cfg.CoreBits,
			EpochPeriod: cfg.EpochPeriod,
		}, r, m, logger)
	case ProtocolGlobal, "":
		p = protocol.NewGlobal(protocol.GlobalConfig{
			MaxChainLength: cfg.NMaxChainLength,
		}, r, m, logger)
	default:
		return nil, errors.Errorf("runtime: unknown protocol %q", cfg.Protocol)
	}

	return &Runtime{
		ID:        uuid.New(),
		cfg:       cfg,
		idx:       index.New(),
		proto:     p,
		reclaimer: r,
		metrics:   m,
		logger:    logger,
	}, nil
}

// Begin constructs a new transaction against this runtime's index and
// protocol, in the Embryo state.
func (rt *Runtime) Begin(flags txn.Flags) *txn.Txn {
	return txn.Begin(rt.proto, rt.idx, rt.reclaimer, rt.metrics, rt.logger, flags, rt.cfg.StableReadSpinBudget)
}

// Metrics returns the runtime's Prometheus counters, for callers that want
// to expose them on an HTTP endpoint.
func (rt *Runtime) Metrics() *metrics.Metrics { return rt.metrics }

// Close stops the background reclaimer sweeper and (for Protocol P2) the
// epoch advancer goroutine, and flushes the logger.
func (rt *Runtime) Close() error {
	rt.reclaimer.Stop()
	rt.proto.Close()
	return rt.logger.Sync()
}
