package txn

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/logging"
	"github.com/dd0wney/cluso-framegraph/pkg/metrics"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

// State is the lifecycle state of a transaction
type State uint8

const (
	Active State = iota
	Committed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	default:
		return "rolled-back"
	}
}

// Conclusion is the outcome requested through StopTransaction
type Conclusion uint8

const (
	Success Conclusion = iota
	Failure
)

type ctxKey struct{}

// FromContext returns the transaction bound to ctx, if any
func FromContext(ctx context.Context) (*Tx, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*Tx)
	return tx, ok
}

// Tx is a unit of work over a snapshot of committed state. Writes go to a
// private draft so the transaction reads its own writes; other transactions
// see them only after Commit publishes a new version.
type Tx struct {
	id    string
	mgr   *Manager
	base  *version
	start time.Time

	// draft is created on the first write
	draft        *storage.Graph
	draftCatalog *index.Catalog

	log     []Mutation
	created *roaring64.Bitmap
	touched *roaring64.Bitmap
	// deleted holds pre-existing vertices this transaction deleted
	deleted *roaring64.Bitmap

	state   State
	success bool
	logger  logging.Logger
	mu      sync.Mutex
}

// Begin starts a transaction bound to the returned context. Transactions
// do not nest: ctx must not already carry an active transaction.
func (m *Manager) Begin(ctx context.Context) (context.Context, *Tx, error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, err
	}
	if outer, ok := FromContext(ctx); ok && outer.State() == Active {
		return ctx, nil, storage.NewError("begin").Tx(outer.id).
			Cause(fmt.Errorf("%w: nested transactions are not supported", storage.ErrTransactionState)).Err()
	}

	id := uuid.NewString()
	tx := &Tx{
		id:      id,
		mgr:     m,
		base:    m.load(),
		start:   time.Now(),
		created: roaring64.New(),
		touched: roaring64.New(),
		deleted: roaring64.New(),
		logger:  m.logger.With(logging.TxID(id)),
	}
	m.metrics.RecordBegin()
	return context.WithValue(ctx, ctxKey{}, tx), tx, nil
}

// ID is the transaction's trace identifier, also written to the journal
func (t *Tx) ID() string { return t.id }

// Seq is the sequence number of the snapshot the transaction reads
func (t *Tx) Seq() uint64 { return t.base.seq }

// State returns the current lifecycle state
func (t *Tx) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tx) reader() *storage.Graph {
	if t.draft != nil {
		return t.draft
	}
	return t.base.graph
}

func (t *Tx) catalog() *index.Catalog {
	if t.draftCatalog != nil {
		return t.draftCatalog
	}
	return t.base.catalog
}

func (t *Tx) checkActive(op string) error {
	if t.state != Active {
		return storage.NewError(op).Tx(t.id).
			Cause(fmt.Errorf("%w: transaction is %s", storage.ErrTransactionState, t.state)).Err()
	}
	return nil
}

// write applies m to the draft. Any failure aborts the transaction.
func (t *Tx) write(m Mutation) error {
	if err := t.checkActive(string(m.Op)); err != nil {
		return err
	}
	if t.draft == nil {
		t.draft = t.base.graph.Copy()
		t.draftCatalog = t.base.catalog.Copy()
	}

	var cascade []uint64
	if m.Op == OpDeleteVertex {
		cascade = t.draft.IncidentEdgeIDs(m.ID)
	}

	stamp := storage.Stamp{Seq: t.base.seq + 1, At: t.mgr.clock().Unix()}
	if err := apply(t.draft, t.draftCatalog, m, stamp, false); err != nil {
		t.abort(err)
		return err
	}

	switch m.Op {
	case OpCreateVertex, OpCreateEdge:
		t.created.Add(m.ID)
	default:
		if !t.created.Contains(m.ID) {
			t.touched.Add(m.ID)
			if m.Op == OpDeleteVertex {
				t.deleted.Add(m.ID)
			}
		}
	}
	// Edges removed by a cascade count as deleted by this transaction
	for _, id := range cascade {
		if !t.created.Contains(id) {
			t.touched.Add(id)
		}
	}
	t.log = append(t.log, m)
	return nil
}

// abort moves the transaction to rolled-back after a failed mutation
func (t *Tx) abort(cause error) {
	t.logger.Debug("transaction aborted", logging.Error(cause))
	t.finish(RolledBack, metrics.OutcomeFailed, 0)
}

// finish records the terminal state and drops the draft. Caller holds t.mu.
func (t *Tx) finish(state State, outcome string, commitDuration time.Duration) {
	t.state = state
	t.draft = nil
	t.draftCatalog = nil
	t.log = nil
	t.mgr.metrics.RecordFinish(outcome, commitDuration)
}

// CreateVertex adds a vertex and returns its ID
func (t *Tx) CreateVertex(label string, props map[string]storage.Value) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive(string(OpCreateVertex)); err != nil {
		return 0, err
	}
	id := t.mgr.allocateID()
	if err := t.write(Mutation{Op: OpCreateVertex, ID: id, Label: label, Properties: copyProps(props)}); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateEdge adds an edge from -> to and returns its ID. Both endpoints must
// exist in the transaction's view.
func (t *Tx) CreateEdge(label string, from, to uint64, props map[string]storage.Value) (uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkActive(string(OpCreateEdge)); err != nil {
		return 0, err
	}
	id := t.mgr.allocateID()
	if err := t.write(Mutation{Op: OpCreateEdge, ID: id, Label: label, From: from, To: to, Properties: copyProps(props)}); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteVertex removes a vertex and every incident edge
func (t *Tx) DeleteVertex(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(Mutation{Op: OpDeleteVertex, ID: id})
}

// DeleteEdge removes an edge
func (t *Tx) DeleteEdge(id uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(Mutation{Op: OpDeleteEdge, ID: id})
}

// SetProperty sets a property on a vertex or an edge
func (t *Tx) SetProperty(id uint64, key string, value storage.Value) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	value = value.Clone()
	return t.write(Mutation{Op: OpSetProperty, ID: id, Key: key, Value: &value})
}

// RemoveProperty deletes a property from a vertex or an edge
func (t *Tx) RemoveProperty(id uint64, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(Mutation{Op: OpRemoveProperty, ID: id, Key: key})
}

// Reads. A failed read does not abort the transaction.

func (t *Tx) read(op string, fn func(g *storage.Graph) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive(op); err != nil {
		return err
	}
	return fn(t.reader())
}

// GetVertex returns a copy of a vertex as seen by this transaction
func (t *Tx) GetVertex(id uint64) (v *storage.Vertex, err error) {
	err = t.read("get_vertex", func(g *storage.Graph) error {
		v, err = g.GetVertex(id)
		return err
	})
	return v, err
}

// GetEdge returns a copy of an edge as seen by this transaction
func (t *Tx) GetEdge(id uint64) (e *storage.Edge, err error) {
	err = t.read("get_edge", func(g *storage.Graph) error {
		e, err = g.GetEdge(id)
		return err
	})
	return e, err
}

// GetElement returns a vertex or an edge
func (t *Tx) GetElement(id uint64) (elem storage.Element, err error) {
	err = t.read("get_element", func(g *storage.Graph) error {
		elem, err = g.GetElement(id)
		return err
	})
	return elem, err
}

// OutEdges returns the edges leaving a vertex, optionally filtered by label
func (t *Tx) OutEdges(id uint64, labels ...string) (edges []*storage.Edge, err error) {
	err = t.read("out_edges", func(g *storage.Graph) error {
		edges, err = g.OutEdges(id, labels...)
		return err
	})
	return edges, err
}

// InEdges returns the edges arriving at a vertex, optionally filtered by label
func (t *Tx) InEdges(id uint64, labels ...string) (edges []*storage.Edge, err error) {
	err = t.read("in_edges", func(g *storage.Graph) error {
		edges, err = g.InEdges(id, labels...)
		return err
	})
	return edges, err
}

// VerticesByLabel returns every vertex with label
func (t *Tx) VerticesByLabel(label string) (vertices []*storage.Vertex, err error) {
	err = t.read("vertices_by_label", func(g *storage.Graph) error {
		vertices = g.VerticesByLabel(label)
		return nil
	})
	return vertices, err
}

// EdgesByLabel returns every edge with label
func (t *Tx) EdgesByLabel(label string) (edges []*storage.Edge, err error) {
	err = t.read("edges_by_label", func(g *storage.Graph) error {
		edges = g.EdgesByLabel(label)
		return nil
	})
	return edges, err
}

// Schema returns the property types visible to this transaction
func (t *Tx) Schema() *storage.Schema {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reader().Schema()
}

// Lookup returns the IDs whose key in the named index equals values,
// including this transaction's own uncommitted writes.
func (t *Tx) Lookup(name string, values ...storage.Value) ([]uint64, error) {
	return t.lookup("exact", name, values, func(cat *index.Catalog) ([]uint64, error) {
		return cat.Lookup(name, values...)
	})
}

// PrefixLookup matches a leading subset of a composite index key
func (t *Tx) PrefixLookup(name string, values ...storage.Value) ([]uint64, error) {
	return t.lookup("prefix", name, values, func(cat *index.Catalog) ([]uint64, error) {
		return cat.PrefixLookup(name, values...)
	})
}

// LookupBy finds the index declared over (kind, label, props) and looks up values
func (t *Tx) LookupBy(kind storage.ElementKind, label string, props []string, values []storage.Value) ([]uint64, error) {
	t.mu.Lock()
	def, ok := t.catalog().Find(kind, label, props)
	t.mu.Unlock()
	if !ok {
		return nil, storage.NewError("lookup").Index(label + "." + strings.Join(props, ".")).Cause(storage.ErrNotFound).Err()
	}
	return t.Lookup(def.Name, values...)
}

// Index returns the definition of a named index visible to this transaction
func (t *Tx) Index(name string) (index.Definition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.catalog().Get(name)
}

func (t *Tx) lookup(kind, name string, values []storage.Value, fn func(cat *index.Catalog) ([]uint64, error)) (ids []uint64, err error) {
	start := time.Now()
	defer func() {
		t.mgr.metrics.RecordLookup(name, kind, err, time.Since(start))
	}()

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkActive("lookup"); err != nil {
		return nil, err
	}

	cat := t.catalog()
	if def, ok := cat.Get(name); ok {
		if err := index.CheckValues(def, t.reader().Schema(), values); err != nil {
			return nil, err
		}
	}
	return fn(cat)
}

func copyProps(props map[string]storage.Value) map[string]storage.Value {
	out := make(map[string]storage.Value, len(props))
	for k, v := range props {
		out[k] = v.Clone()
	}
	return out
}
