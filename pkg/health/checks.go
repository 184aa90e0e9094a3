package health

import (
	"context"
	"errors"
	"time"

	"github.com/dd0wney/cluso-framegraph/pkg/backup"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
)

// StoreCheck reports the counts of the latest committed version
func StoreCheck(m *txn.Manager) CheckFunc {
	return func(context.Context) Check {
		stats := m.Stats()
		return Check{
			Status:  StatusHealthy,
			Message: "Serving",
			Details: map[string]any{
				"seq":         stats.Seq,
				"vertices":    stats.Graph.VertexCount,
				"edges":       stats.Graph.EdgeCount,
				"indexes":     len(stats.Indexes),
				"journal_lsn": stats.JournalLSN,
			},
		}
	}
}

// CheckpointCheck is degraded when commits have waited for a checkpoint
// longer than two intervals. last returns the seq and time of the most
// recent checkpoint, zero if none was taken.
func CheckpointCheck(m *txn.Manager, interval time.Duration, last func() (uint64, time.Time)) CheckFunc {
	return func(context.Context) Check {
		seq, at := last()
		check := Check{
			Status: StatusHealthy,
			Details: map[string]any{
				"checkpoint_seq": seq,
				"pending":        m.Seq() - seq,
			},
		}
		if !at.IsZero() {
			check.Details["age_seconds"] = int64(time.Since(at).Seconds())
		}
		switch {
		case interval <= 0:
			check.Message = "Scheduled checkpoints disabled"
		case m.Seq() > seq && !at.IsZero() && time.Since(at) > 2*interval:
			check.Status = StatusDegraded
			check.Message = "Checkpoint overdue"
		default:
			check.Message = "Up to date"
		}
		return check
	}
}

// BackupCheck confirms that a checkpoint has been uploaded and is readable
func BackupCheck(u *backup.Uploader) CheckFunc {
	return func(ctx context.Context) Check {
		key, err := u.Latest(ctx)
		switch {
		case errors.Is(err, backup.ErrNotFound):
			return Check{Status: StatusDegraded, Message: "No checkpoint uploaded"}
		case err != nil:
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy, Message: "Latest checkpoint available", Details: map[string]any{"key": key}}
	}
}
