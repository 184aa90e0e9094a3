package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the engine
type Registry struct {
	// Transaction Metrics
	TxBegunTotal             prometheus.Counter
	TxFinishedTotal          *prometheus.CounterVec
	TxImplicitRollbacksTotal prometheus.Counter
	TxConflictsTotal         *prometheus.CounterVec
	TxCommitDuration         prometheus.Histogram
	TxActive                 prometheus.Gauge

	// Storage Metrics
	StorageVerticesTotal prometheus.Gauge
	StorageEdgesTotal    prometheus.Gauge
	StorageCommitSeq     prometheus.Gauge

	// Index Metrics
	IndexLookupsTotal   *prometheus.CounterVec
	IndexLookupDuration *prometheus.HistogramVec
	IndexEntries        *prometheus.GaugeVec

	// Journal Metrics
	JournalAppendsTotal     *prometheus.CounterVec
	JournalAppendDuration   prometheus.Histogram
	JournalReplayedTotal    prometheus.Counter
	JournalCheckpointsTotal *prometheus.CounterVec
	BackupUploadsTotal      *prometheus.CounterVec
	BackupUploadBytes       prometheus.Counter

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initTxMetrics()
	r.initStorageMetrics()
	r.initJournalMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
