package txn

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/kvlog"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

// journals opens the same journal kind again on every call, so a test can
// simulate a restart.
var journals = map[string]func(t *testing.T, dir string) wal.WriteAheadLog{
	"file": func(t *testing.T, dir string) wal.WriteAheadLog {
		l, err := wal.Open(dir, wal.Options{NoSync: true})
		require.NoError(t, err)
		return l
	},
	"snappy": func(t *testing.T, dir string) wal.WriteAheadLog {
		l, err := wal.Open(dir, wal.Options{NoSync: true, Compress: true})
		require.NoError(t, err)
		return l
	},
	"badger": func(t *testing.T, dir string) wal.WriteAheadLog {
		l, err := kvlog.Open(kvlog.Options{Dir: dir})
		require.NoError(t, err)
		return l
	},
}

// populate commits a small social graph plus schema and index changes
func populate(t *testing.T, m *Manager) (alice, bob uint64) {
	t.Helper()
	require.NoError(t, m.DeclareProperty("Person", "age", storage.TypeInt))
	uniqueNameIndex(t, m)

	err := m.Update(context.Background(), func(_ context.Context, tx *Tx) error {
		var err error
		if alice, err = tx.CreateVertex("Person", props("name", "Alice", "age", 30)); err != nil {
			return err
		}
		if bob, err = tx.CreateVertex("Person", props("name", "Bob", "age", 25)); err != nil {
			return err
		}
		_, err = tx.CreateEdge("KNOWS", alice, bob, props("since", 2020))
		return err
	})
	require.NoError(t, err)

	err = m.Update(context.Background(), func(_ context.Context, tx *Tx) error {
		return tx.SetProperty(bob, "age", storage.IntValue(26))
	})
	require.NoError(t, err)
	return alice, bob
}

func assertPopulated(t *testing.T, m *Manager, alice, bob uint64) {
	t.Helper()
	err := m.View(context.Background(), func(_ context.Context, tx *Tx) error {
		ids, err := tx.Lookup("Person.name", storage.StringValue("Bob"))
		require.NoError(t, err)
		assert.Equal(t, []uint64{bob}, ids)

		v, err := tx.GetVertex(bob)
		require.NoError(t, err)
		age, err := v.Properties["age"].AsInt()
		require.NoError(t, err)
		assert.Equal(t, int64(26), age)

		out, err := tx.OutEdges(alice, "KNOWS")
		require.NoError(t, err)
		require.Len(t, out, 1)
		assert.Equal(t, bob, out[0].ToID)

		want, ok := tx.Schema().Lookup("Person", "age")
		assert.True(t, ok)
		assert.Equal(t, storage.TypeInt, want)
		return nil
	})
	require.NoError(t, err)
}

func TestRecover_ReplaysJournal(t *testing.T) {
	for name, open := range journals {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()

			m := NewManager(Options{Journal: open(t, dir)})
			alice, bob := populate(t, m)
			seq := m.Seq()
			require.NoError(t, m.Close())

			restarted := newTestManager(t, Options{Journal: open(t, dir)})
			stats, err := restarted.Recover()
			require.NoError(t, err)
			assert.False(t, stats.SnapshotLoaded)
			assert.Equal(t, 4, stats.Replayed)
			assert.Equal(t, seq, restarted.Seq())
			assertPopulated(t, restarted, alice, bob)

			// The allocator continues past recovered IDs
			carol := createPerson(t, restarted, "Carol")
			assert.Greater(t, carol, bob)
		})
	}
}

func TestRecover_FailedCommitIsNotJournaled(t *testing.T) {
	dir := t.TempDir()
	open := journals["file"]

	m := NewManager(Options{Journal: open(t, dir)})
	uniqueNameIndex(t, m)
	createPerson(t, m, "Alice")
	err := m.Update(context.Background(), func(_ context.Context, tx *Tx) error {
		_, err := tx.CreateVertex("Person", props("name", "Alice"))
		return err
	})
	require.True(t, storage.IsConstraintViolation(err))
	require.NoError(t, m.Close())

	restarted := newTestManager(t, Options{Journal: open(t, dir)})
	_, err = restarted.Recover()
	require.NoError(t, err)
	assert.Equal(t, 1, restarted.Stats().Graph.VertexCount)
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	for name, open := range journals {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			snapshotPath := filepath.Join(dir, "snapshot", "graph.json")

			m := NewManager(Options{Journal: open(t, filepath.Join(dir, "journal")), SnapshotPath: snapshotPath})
			alice, bob := populate(t, m)

			info, err := m.Checkpoint()
			require.NoError(t, err)
			assert.Equal(t, snapshotPath, info.Path)
			assert.Equal(t, m.Seq(), info.Seq)
			assert.Positive(t, info.Bytes)
			assert.Equal(t, 1.0, counterValue(t, m.Metrics().JournalCheckpointsTotal.WithLabelValues("success")))

			// One more commit after the checkpoint lands in the journal only
			dana := createPerson(t, m, "Dana")
			seq := m.Seq()
			require.NoError(t, m.Close())

			restarted := newTestManager(t, Options{Journal: open(t, filepath.Join(dir, "journal")), SnapshotPath: snapshotPath})
			stats, err := restarted.Recover()
			require.NoError(t, err)
			assert.True(t, stats.SnapshotLoaded)
			assert.Equal(t, info.Seq, stats.SnapshotSeq)
			assert.Equal(t, 1, stats.Replayed)
			assert.Equal(t, seq, restarted.Seq())
			assertPopulated(t, restarted, alice, bob)

			err = restarted.View(context.Background(), func(_ context.Context, tx *Tx) error {
				_, err := tx.GetVertex(dana)
				return err
			})
			require.NoError(t, err)

			// Element stamps survive the snapshot
			err = restarted.View(context.Background(), func(_ context.Context, tx *Tx) error {
				v, err := tx.GetVertex(bob)
				require.NoError(t, err)
				assert.Equal(t, info.Seq, v.Version)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestCheckpoint_RequiresSnapshotPath(t *testing.T) {
	m := newTestManager(t, Options{})
	_, err := m.Checkpoint()
	assert.Error(t, err)
	assert.Equal(t, 1.0, counterValue(t, m.Metrics().JournalCheckpointsTotal.WithLabelValues("error")))
}

func TestRecover_EmptyStart(t *testing.T) {
	m := newTestManager(t, Options{SnapshotPath: filepath.Join(t.TempDir(), "missing.json")})
	stats, err := m.Recover()
	require.NoError(t, err)
	assert.False(t, stats.SnapshotLoaded)
	assert.Zero(t, stats.Seq)
}

func TestRecover_CorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	m := newTestManager(t, Options{SnapshotPath: path})
	_, err := m.Recover()
	assert.Error(t, err)
}

func TestRecover_DroppedIndexStaysDropped(t *testing.T) {
	dir := t.TempDir()
	open := journals["file"]

	m := NewManager(Options{Journal: open(t, dir)})
	_, err := m.CreateIndex(index.Definition{Label: "Person", Properties: []string{"name"}})
	require.NoError(t, err)
	createPerson(t, m, "Alice")
	require.NoError(t, m.DropIndex("Person.name"))
	require.NoError(t, m.Close())

	restarted := newTestManager(t, Options{Journal: open(t, dir)})
	_, err = restarted.Recover()
	require.NoError(t, err)
	assert.Empty(t, restarted.Indexes())
	assert.Equal(t, 1, restarted.Stats().Graph.VertexCount)
}
