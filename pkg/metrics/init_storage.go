package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStorageMetrics() {
	r.StorageVerticesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "framegraph_storage_vertices_total",
			Help: "Vertices in the latest committed version",
		},
	)

	r.StorageEdgesTotal = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "framegraph_storage_edges_total",
			Help: "Edges in the latest committed version",
		},
	)

	r.StorageCommitSeq = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "framegraph_storage_commit_seq",
			Help: "Sequence number of the latest committed version",
		},
	)

	r.IndexLookupsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_index_lookups_total",
			Help: "Index lookups by index and status",
		},
		[]string{"index", "status"},
	)

	r.IndexLookupDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framegraph_index_lookup_duration_seconds",
			Help:    "Index lookup duration in seconds",
			Buckets: []float64{0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
		[]string{"kind"},
	)

	r.IndexEntries = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framegraph_index_entries",
			Help: "Entries per index in the latest committed version",
		},
		[]string{"index"},
	)
}
