package metrics

import (
	"runtime"
	"time"
)

// Transaction outcomes
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeFailed     = "failed"
)

// RecordBegin counts a new transaction
func (r *Registry) RecordBegin() {
	r.TxBegunTotal.Inc()
	r.TxActive.Inc()
}

// RecordFinish records the terminal state of a transaction. Commit duration
// is only observed for commits that reached the critical section.
func (r *Registry) RecordFinish(outcome string, commitDuration time.Duration) {
	r.TxActive.Dec()
	r.TxFinishedTotal.WithLabelValues(outcome).Inc()
	if commitDuration > 0 {
		r.TxCommitDuration.Observe(commitDuration.Seconds())
	}
}

// RecordImplicitRollback counts a transaction closed without commit or rollback
func (r *Registry) RecordImplicitRollback() {
	r.TxImplicitRollbacksTotal.Inc()
}

// RecordConflict counts a commit refused at validation
func (r *Registry) RecordConflict(reason string) {
	r.TxConflictsTotal.WithLabelValues(reason).Inc()
}

// RecordLookup records an index lookup
func (r *Registry) RecordLookup(index, kind string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.IndexLookupsTotal.WithLabelValues(index, status).Inc()
	r.IndexLookupDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpdateGraphMetrics publishes the size of the latest committed version
func (r *Registry) UpdateGraphMetrics(vertices, edges int, seq uint64, indexEntries map[string]int) {
	r.StorageVerticesTotal.Set(float64(vertices))
	r.StorageEdgesTotal.Set(float64(edges))
	r.StorageCommitSeq.Set(float64(seq))
	r.IndexEntries.Reset()
	for name, n := range indexEntries {
		r.IndexEntries.WithLabelValues(name).Set(float64(n))
	}
}

// RecordJournalAppend records one journal append
func (r *Registry) RecordJournalAppend(op string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	r.JournalAppendsTotal.WithLabelValues(op, status).Inc()
	r.JournalAppendDuration.Observe(duration.Seconds())
}

// RecordReplay counts entries applied during recovery
func (r *Registry) RecordReplay(entries int) {
	r.JournalReplayedTotal.Add(float64(entries))
}

// RecordCheckpoint records a checkpoint attempt
func (r *Registry) RecordCheckpoint(err error) {
	if err != nil {
		r.JournalCheckpointsTotal.WithLabelValues("error").Inc()
		return
	}
	r.JournalCheckpointsTotal.WithLabelValues("success").Inc()
}

// RecordBackup records a checkpoint upload
func (r *Registry) RecordBackup(err error, bytes int64) {
	if err != nil {
		r.BackupUploadsTotal.WithLabelValues("error").Inc()
		return
	}
	r.BackupUploadsTotal.WithLabelValues("success").Inc()
	r.BackupUploadBytes.Add(float64(bytes))
}

// UpdateSystemMetrics samples runtime statistics
func (r *Registry) UpdateSystemMetrics(startTime time.Time) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	r.UptimeSeconds.Set(time.Since(startTime).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
	r.MemoryAllocBytes.Set(float64(m.Alloc))
}
