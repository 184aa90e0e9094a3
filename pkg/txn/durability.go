package txn

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

// snapshot is the checkpoint file format
type snapshot struct {
	Seq      uint64                 `json:"seq"`
	NextID   uint64                 `json:"next_id"`
	Schema   []storage.PropertyDecl `json:"schema"`
	Indexes  []index.Definition     `json:"indexes"`
	Vertices []*storage.Vertex      `json:"vertices"`
	Edges    []*storage.Edge        `json:"edges"`
}

// RecoveryStats reports what Recover loaded
type RecoveryStats struct {
	SnapshotSeq    uint64
	Replayed       int
	Skipped        int
	Seq            uint64
	Duration       time.Duration
	SnapshotLoaded bool
}

// Recover rebuilds committed state from the last checkpoint and the
// journal. It must run before the first transaction.
func (m *Manager) Recover() (RecoveryStats, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	start := time.Now()
	var stats RecoveryStats

	g := storage.NewGraph()
	cat := index.NewCatalog()
	var seq uint64

	if m.snapshotPath != "" {
		snap, err := readSnapshot(m.snapshotPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return stats, err
		default:
			if g, cat, err = restore(snap); err != nil {
				return stats, fmt.Errorf("failed to restore snapshot %s: %w", m.snapshotPath, err)
			}
			seq = snap.Seq
			m.observeID(snap.NextID)
			stats.SnapshotLoaded = true
			stats.SnapshotSeq = snap.Seq
		}
	}

	if m.journal != nil {
		err := m.journal.Replay(func(entry *wal.Entry) error {
			entrySeq, err := replayEntry(g, cat, entry, seq, m.observeID)
			if err != nil {
				return err
			}
			if entrySeq <= seq {
				stats.Skipped++
				return nil
			}
			seq = entrySeq
			stats.Replayed++
			return nil
		})
		if err != nil {
			return stats, fmt.Errorf("journal replay failed: %w", err)
		}
	}

	m.publish(&version{graph: g, catalog: cat, seq: seq})
	m.metrics.RecordReplay(stats.Replayed)

	stats.Seq = seq
	stats.Duration = time.Since(start)
	vertices, edges := g.Counts()
	m.logger.Info("recovery complete",
		logging.Seq(seq),
		logging.Int("replayed", stats.Replayed),
		logging.Int("skipped", stats.Skipped),
		logging.Int("vertices", vertices),
		logging.Int("edges", edges),
		logging.Latency(stats.Duration))
	return stats, nil
}

// replayEntry applies one journal entry unless its sequence number is
// already covered by the snapshot. It returns the entry's sequence number.
func replayEntry(g *storage.Graph, cat *index.Catalog, entry *wal.Entry, after uint64, observe func(uint64)) (uint64, error) {
	if entry.OpType == wal.OpCommit {
		var rec CommitRecord
		if err := json.Unmarshal(entry.Data, &rec); err != nil {
			return 0, fmt.Errorf("corrupt commit record: %w", err)
		}
		for _, mut := range rec.Mutations {
			observe(mut.maxID())
		}
		if rec.Seq <= after {
			return rec.Seq, nil
		}
		stamp := storage.Stamp{Seq: rec.Seq, At: rec.At}
		for _, mut := range rec.Mutations {
			if err := apply(g, cat, mut, stamp, true); err != nil {
				return 0, fmt.Errorf("tx %s: %w", rec.TxID, err)
			}
		}
		return rec.Seq, nil
	}

	var rec DDLRecord
	if err := json.Unmarshal(entry.Data, &rec); err != nil {
		return 0, fmt.Errorf("corrupt %s record: %w", entry.OpType, err)
	}
	if rec.Seq <= after {
		return rec.Seq, nil
	}

	switch entry.OpType {
	case wal.OpCreateIndex:
		if rec.Index == nil {
			return 0, errors.New("create_index record without a definition")
		}
		if _, err := cat.CreateIndex(*rec.Index, g); err != nil {
			return 0, err
		}
	case wal.OpDropIndex:
		if err := cat.DropIndex(rec.Name); err != nil {
			return 0, err
		}
	case wal.OpDeclareProperty:
		if rec.Decl == nil {
			return 0, errors.New("declare_property record without a declaration")
		}
		if err := g.DeclareProperty(rec.Decl.Label, rec.Decl.Property, rec.Decl.Type); err != nil {
			return 0, err
		}
	default:
		return 0, fmt.Errorf("unknown journal operation %s", entry.OpType)
	}
	return rec.Seq, nil
}

func restore(snap *snapshot) (*storage.Graph, *index.Catalog, error) {
	g := storage.NewGraph()
	for _, d := range snap.Schema {
		if err := g.DeclareProperty(d.Label, d.Property, d.Type); err != nil {
			return nil, nil, err
		}
	}
	for _, v := range snap.Vertices {
		if err := g.RestoreVertex(v); err != nil {
			return nil, nil, err
		}
	}
	for _, e := range snap.Edges {
		if err := g.RestoreEdge(e); err != nil {
			return nil, nil, err
		}
	}

	cat := index.NewCatalog()
	for _, def := range snap.Indexes {
		if _, err := cat.CreateIndex(def, g); err != nil {
			return nil, nil, err
		}
	}
	return g, cat, nil
}

func readSnapshot(path string) (*snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var snap snapshot
	if err := json.NewDecoder(bufio.NewReader(f)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// CheckpointInfo describes a written checkpoint
type CheckpointInfo struct {
	Path  string
	Seq   uint64
	Bytes int64
}

// Checkpoint writes the latest committed version to the snapshot path and
// truncates the journal. Commits wait while the snapshot is written.
func (m *Manager) Checkpoint() (info CheckpointInfo, err error) {
	defer func() { m.metrics.RecordCheckpoint(err) }()

	if m.snapshotPath == "" {
		return info, errors.New("checkpoint: no snapshot path configured")
	}

	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	v := m.load()
	snap := &snapshot{
		Seq:     v.seq,
		NextID:  m.nextID.Load(),
		Schema:  v.graph.Schema().Declarations(),
		Indexes: v.catalog.Definitions(),
	}
	v.graph.ScanVertices(func(vx *storage.Vertex) bool {
		snap.Vertices = append(snap.Vertices, vx)
		return true
	})
	v.graph.ScanEdges(func(e *storage.Edge) bool {
		snap.Edges = append(snap.Edges, e)
		return true
	})

	size, err := writeFileAtomic(m.snapshotPath, snap)
	if err != nil {
		return info, err
	}
	if m.journal != nil {
		if err := m.journal.Truncate(); err != nil {
			return info, fmt.Errorf("snapshot written but journal truncate failed: %w", err)
		}
	}

	info = CheckpointInfo{Path: m.snapshotPath, Seq: v.seq, Bytes: size}
	m.logger.Info("checkpoint written",
		logging.Path(info.Path),
		logging.Seq(info.Seq),
		logging.Int64("bytes", info.Bytes))
	return info, nil
}

// writeFileAtomic encodes v as JSON into a temporary file, syncs it and
// renames it over path.
func writeFileAtomic(path string, v any) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, err
	}
	info, err := tmp.Stat()
	if err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, fmt.Errorf("failed to install snapshot: %w", err)
	}
	return info.Size(), nil
}
