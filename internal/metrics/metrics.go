package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter the engine emits. A Runtime builds one
// Metrics and passes it to every component so tests can register isolated
// registries instead of fighting over prometheus.DefaultRegisterer.
type Metrics struct {
	Aborts            *prometheus.CounterVec
	Commits           prometheus.Counter
	NodeSpills        prometheus.Counter
	LogicalDeletes    prometheus.Counter
	ReadLogicalDelete *prometheus.CounterVec
	GCReclaimed       prometheus.Counter
	EpochAdvances     prometheus.Counter
}

// New builds Metrics and registers them with reg. Passing
// prometheus.NewRegistry() gives a fresh, isolated registry per Runtime;
// passing prometheus.DefaultRegisterer wires into the process-wide
// /metrics endpoint.
func New(reg prometheus.Registerer, namespace string) *Metrics {
	m := &Metrics{
		Aborts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "txn_aborts_total",
			Help:      "Transaction aborts, labeled by reason.",
		}, []string{"reason"}),
		Commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "txn_commits_total",
			Help:      "Transactions successfully committed.",
		}),
		NodeSpills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_spills_total",
			Help:      "Version chain spills (a write that could not overwrite in place).",
		}),
		LogicalDeletes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_logical_deletes_total",
			Help:      "Commits that installed a tombstone.",
		}),
		ReadLogicalDelete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_logical_deleted_total",
			Help:      "Reads that landed on a tombstone, labeled by path.",
		}, []string{"path"}),
		GCReclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_reclaimed_total",
			Help:      "Version records and index entries freed by garbage collection.",
		}),
		EpochAdvances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "epoch_advances_total",
			Help:      "Protocol P2 epoch advancer ticks.",
		}),
	}

	reg.MustRegister(m.Aborts, m.Commits, m.NodeSpills, m.LogicalDeletes, m.ReadLogicalDelete, m.GCReclaimed, m.EpochAdvances)
	return m
}
