package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initJournalMetrics() {
	r.JournalAppendsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_journal_appends_total",
			Help: "Journal appends by operation and status",
		},
		[]string{"op", "status"},
	)

	r.JournalAppendDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "framegraph_journal_append_duration_seconds",
			Help:    "Journal append duration including sync",
			Buckets: prometheus.ExponentialBuckets(0.00005, 4, 8),
		},
	)

	r.JournalReplayedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "framegraph_journal_replayed_entries_total",
			Help: "Journal entries applied during recovery",
		},
	)

	r.JournalCheckpointsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_journal_checkpoints_total",
			Help: "Checkpoints by status",
		},
		[]string{"status"},
	)

	r.BackupUploadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "framegraph_backup_uploads_total",
			Help: "Checkpoint uploads by status",
		},
		[]string{"status"},
	)

	r.BackupUploadBytes = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "framegraph_backup_upload_bytes_total",
			Help: "Bytes of checkpoint data uploaded",
		},
	)
}
