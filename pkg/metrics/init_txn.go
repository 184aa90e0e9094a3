package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTxMetrics() {
	r.TxBegunTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "framegraph_tx_begun_total",
			Help: "Total number of transactions started",
		},
	)

	r.TxFinishedTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_tx_finished_total",
			Help: "Transactions by outcome (committed, rolled_back, failed)",
		},
		[]string{"outcome"},
	)

	r.TxImplicitRollbacksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "framegraph_tx_implicit_rollbacks_total",
			Help: "Transactions closed without an explicit commit or rollback",
		},
	)

	r.TxConflictsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_tx_conflicts_total",
			Help: "Commits refused at validation, by reason",
		},
		[]string{"reason"},
	)

	r.TxCommitDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framegraph_tx_commit_duration_seconds",
			Help:    "Time spent inside the commit critical section",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		},
	)

	r.TxActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "framegraph_tx_active",
			Help: "Transactions currently open",
		},
	)
}
