// Package txn is the transaction manager. Committed state is a chain of
// immutable versions (graph store + index catalog); readers load the current
// version through an atomic pointer and never block, while commits and DDL
// serialize on one mutex that covers validation, journaling and publishing.
package txn

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/metrics"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/wal"
)

// version is one published, immutable state of the database
type version struct {
	graph   *storage.Graph
	catalog *index.Catalog
	seq     uint64
}

// Options configure a Manager
type Options struct {
	// Journal receives every commit and DDL change. Nil keeps the database in memory.
	Journal wal.WriteAheadLog
	// SnapshotPath is where Checkpoint writes and Recover reads
	SnapshotPath string
	Logger       logging.Logger
	Metrics      *metrics.Registry
	// DisableConflictDetection turns off first-committer-wins checks, so the
	// last commit to update an element wins.
	DisableConflictDetection bool
	// Clock stamps commits. Defaults to time.Now.
	Clock func() time.Time
}

// Manager owns the committed state and hands out transactions
type Manager struct {
	current  atomic.Pointer[version]
	commitMu sync.Mutex
	nextID   atomic.Uint64

	journal      wal.WriteAheadLog
	snapshotPath string
	logger       logging.Logger
	metrics      *metrics.Registry
	conflicts    bool
	clock        func() time.Time
}

// NewManager creates a manager over an empty graph. Call Recover before
// the first transaction when a journal or snapshot may hold data.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	reg := opts.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	m := &Manager{
		journal:      opts.Journal,
		snapshotPath: opts.SnapshotPath,
		logger:       logger.With(logging.Component("txn")),
		metrics:      reg,
		conflicts:    !opts.DisableConflictDetection,
		clock:        clock,
	}
	m.current.Store(&version{graph: storage.NewGraph(), catalog: index.NewCatalog()})
	return m
}

func (m *Manager) load() *version {
	return m.current.Load()
}

// publish makes v visible to new transactions. Caller holds commitMu.
func (m *Manager) publish(v *version) {
	m.current.Store(v)

	vertices, edges := v.graph.Counts()
	entries := make(map[string]int)
	for _, s := range v.catalog.Stats() {
		entries[s.Name] = s.Entries
	}
	m.metrics.UpdateGraphMetrics(vertices, edges, v.seq, entries)
}

// allocateID hands out the next element ID. IDs are never reused, even if
// the allocating transaction rolls back.
func (m *Manager) allocateID() uint64 {
	return m.nextID.Add(1)
}

// observeID moves the allocator past id (recovery)
func (m *Manager) observeID(id uint64) {
	for {
		cur := m.nextID.Load()
		if id <= cur || m.nextID.CompareAndSwap(cur, id) {
			return
		}
	}
}

// Seq returns the sequence number of the latest committed version
func (m *Manager) Seq() uint64 {
	return m.load().seq
}

// Stats describes the latest committed version
type Stats struct {
	Seq        uint64
	Graph      storage.Statistics
	Indexes    []index.Stat
	Schema     []storage.PropertyDecl
	JournalLSN uint64
}

// Stats returns counts for the latest committed version
func (m *Manager) Stats() Stats {
	v := m.load()
	s := Stats{
		Seq:     v.seq,
		Graph:   v.graph.Stats(),
		Indexes: v.catalog.Stats(),
		Schema:  v.graph.Schema().Declarations(),
	}
	if m.journal != nil {
		s.JournalLSN = m.journal.GetCurrentLSN()
	}
	return s
}

// Indexes lists the index definitions of the latest committed version
func (m *Manager) Indexes() []index.Definition {
	return m.load().catalog.Definitions()
}

// Metrics returns the registry the manager records into
func (m *Manager) Metrics() *metrics.Registry {
	return m.metrics
}

// Update runs fn in a new transaction and commits it if fn returns nil. On
// error or panic the transaction is rolled back; panics are re-raised.
func (m *Manager) Update(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	ctx, tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// View runs fn in a transaction that is always rolled back
func (m *Manager) View(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	ctx, tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	return fn(ctx, tx)
}

// Close closes the journal
func (m *Manager) Close() error {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()
	if m.journal == nil {
		return nil
	}
	return m.journal.Close()
}
