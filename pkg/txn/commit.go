package txn

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/metrics"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

// Commit validates the transaction's mutations against the latest committed
// version and publishes the result atomically. On failure nothing is
// applied and the transaction is rolled back.
func (t *Tx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive("commit"); err != nil {
		return err
	}
	if len(t.log) == 0 {
		t.finish(Committed, metrics.OutcomeCommitted, 0)
		return nil
	}

	start := time.Now()
	seq, err := t.mgr.commit(t)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.Info("commit refused", logging.Error(err), logging.Count(len(t.log)))
		t.finish(RolledBack, metrics.OutcomeFailed, elapsed)
		return err
	}

	t.logger.Debug("transaction committed",
		logging.Seq(seq),
		logging.Count(len(t.log)),
		logging.Latency(elapsed))
	t.finish(Committed, metrics.OutcomeCommitted, elapsed)
	return nil
}

// Rollback discards the transaction's mutations. Rolling back a rolled-back
// transaction is a no-op; rolling back a committed one is an error.
func (t *Tx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rollback()
}

func (t *Tx) rollback() error {
	switch t.state {
	case RolledBack:
		return nil
	case Committed:
		return t.checkActive("rollback")
	}
	t.finish(RolledBack, metrics.OutcomeRolledBack, 0)
	return nil
}

// Success marks the transaction to be committed by Close
func (t *Tx) Success() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.success = true
}

// Close ends the transaction's scope. A transaction marked with Success is
// committed; one that is still active otherwise is rolled back with a
// warning. Close never commits on its own. Closing a finished transaction
// does nothing.
func (t *Tx) Close() error {
	t.mu.Lock()
	if t.state != Active {
		t.mu.Unlock()
		return nil
	}
	if t.success {
		t.mu.Unlock()
		return t.Commit()
	}
	defer t.mu.Unlock()

	t.logger.Warn("transaction closed without commit or rollback; rolling back",
		logging.Count(len(t.log)),
		logging.Duration("open_for", time.Since(t.start)))
	t.mgr.metrics.RecordImplicitRollback()
	return t.rollback()
}

// StopTransaction ends the transaction with the given conclusion
func (t *Tx) StopTransaction(c Conclusion) error {
	if c == Success {
		return t.Commit()
	}
	return t.Rollback()
}

// commit replays t's mutation log onto a copy of the latest version with
// strict validation, journals it and publishes the result.
func (m *Manager) commit(t *Tx) (uint64, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	latest := m.load()
	if m.conflicts && latest.seq != t.base.seq {
		if err := m.checkConflicts(t, latest); err != nil {
			m.metrics.RecordConflict("write_conflict")
			return 0, err
		}
	}

	g := latest.graph.Copy()
	cat := latest.catalog.Copy()
	stamp := storage.Stamp{Seq: latest.seq + 1, At: m.clock().Unix()}

	for _, mut := range t.log {
		if err := apply(g, cat, mut, stamp, true); err != nil {
			m.metrics.RecordConflict(conflictReason(err))
			return 0, commitError(t.id, mut, err)
		}
	}

	if err := m.appendJournal(wal.OpCommit, CommitRecord{
		TxID:      t.id,
		Seq:       stamp.Seq,
		At:        stamp.At,
		Mutations: t.log,
	}); err != nil {
		return 0, err
	}

	m.publish(&version{graph: g, catalog: cat, seq: stamp.Seq})
	return stamp.Seq, nil
}

// checkConflicts implements first-committer-wins: an element this
// transaction updated or deleted, but did not create, must not have been
// written by a commit published after the transaction began. That covers
// edges removed by a cascading vertex delete, including edges attached to
// the vertex after the snapshot.
func (m *Manager) checkConflicts(t *Tx, latest *version) error {
	it := t.touched.Iterator()
	for it.HasNext() {
		id := it.Next()
		ver, ok := latest.graph.VersionOf(id)
		if !ok {
			return storage.NewError("commit").Element(id).Context("deleted by a concurrent commit").Cause(storage.ErrWriteConflict).Err()
		}
		if ver > t.base.seq {
			return storage.NewError("commit").Element(id).Context(fmt.Sprintf("written at seq %d after snapshot %d", ver, t.base.seq)).Cause(storage.ErrWriteConflict).Err()
		}
	}

	vertices := t.deleted.Iterator()
	for vertices.HasNext() {
		vertexID := vertices.Next()
		for _, edgeID := range latest.graph.IncidentEdgeIDs(vertexID) {
			if ver, _ := latest.graph.VersionOf(edgeID); ver > t.base.seq {
				return storage.NewError("commit").Vertex(vertexID).
					Context(fmt.Sprintf("edge %d written at seq %d after snapshot %d", edgeID, ver, t.base.seq)).
					Cause(storage.ErrWriteConflict).Err()
			}
		}
	}
	return nil
}

// commitError maps a replay failure onto the error taxonomy. Anything that
// was valid in the draft but not against the latest version is a broken
// referential invariant.
func commitError(txID string, mut Mutation, err error) error {
	if errors.Is(err, storage.ErrConstraintViolation) || errors.Is(err, storage.ErrTypeMismatch) {
		return err
	}
	return storage.NewError("commit").Tx(txID).
		Cause(fmt.Errorf("%w: %s %d: %v", storage.ErrConstraintViolation, mut.Op, mut.ID, err)).Err()
}

func conflictReason(err error) string {
	var unique *index.ConstraintViolationError
	switch {
	case errors.As(err, &unique):
		return "unique"
	case errors.Is(err, storage.ErrTypeMismatch):
		return "schema"
	default:
		return "referential"
	}
}

// appendJournal writes one record. Caller holds commitMu.
func (m *Manager) appendJournal(op wal.OpType, record any) error {
	if m.journal == nil {
		return nil
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s record: %w", op, err)
	}

	start := time.Now()
	_, err = m.journal.Append(op, data)
	m.metrics.RecordJournalAppend(op.String(), err, time.Since(start))
	if err != nil {
		m.logger.Error("journal append failed", logging.Operation(op.String()), logging.Error(err))
		return fmt.Errorf("failed to journal %s: %w", op, err)
	}
	return nil
}
