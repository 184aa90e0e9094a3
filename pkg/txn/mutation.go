package txn

import (
	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

// OpKind names one buffered mutation
type OpKind string

const (
	OpCreateVertex   OpKind = "create_vertex"
	OpCreateEdge     OpKind = "create_edge"
	OpDeleteVertex   OpKind = "delete_vertex"
	OpDeleteEdge     OpKind = "delete_edge"
	OpSetProperty    OpKind = "set_property"
	OpRemoveProperty OpKind = "remove_property"
)

// Mutation is one entry of a transaction's mutation log. The same records
// are replayed at commit and written to the journal.
type Mutation struct {
	Op         OpKind                   `json:"op"`
	ID         uint64                   `json:"id"`
	Label      string                   `json:"label,omitempty"`
	From       uint64                   `json:"from,omitempty"`
	To         uint64                   `json:"to,omitempty"`
	Key        string                   `json:"key,omitempty"`
	Value      *storage.Value           `json:"value,omitempty"`
	Properties map[string]storage.Value `json:"props,omitempty"`
}

// CommitRecord is the journal payload of one committed transaction
type CommitRecord struct {
	TxID      string     `json:"tx"`
	Seq       uint64     `json:"seq"`
	At        int64      `json:"at"`
	Mutations []Mutation `json:"mutations"`
}

// DDLRecord is the journal payload of a schema or index change
type DDLRecord struct {
	Seq   uint64                `json:"seq"`
	Index *index.Definition     `json:"index,omitempty"`
	Name  string                `json:"name,omitempty"`
	Decl  *storage.PropertyDecl `json:"decl,omitempty"`
}

// apply executes m against g and keeps cat in step. strict selects unique
// enforcement: drafts tolerate duplicates, commit and recovery do not.
func apply(g *storage.Graph, cat *index.Catalog, m Mutation, stamp storage.Stamp, strict bool) error {
	switch m.Op {
	case OpCreateVertex:
		v := &storage.Vertex{ID: m.ID, Label: m.Label, Properties: m.Properties}
		if err := g.InsertVertex(v, stamp); err != nil {
			return err
		}
		return cat.Update(nil, v, strict)

	case OpCreateEdge:
		e := &storage.Edge{ID: m.ID, Label: m.Label, FromID: m.From, ToID: m.To, Properties: m.Properties}
		if err := g.InsertEdge(e, stamp); err != nil {
			return err
		}
		return cat.Update(nil, e, strict)

	case OpDeleteVertex:
		v, edges, err := g.RemoveVertex(m.ID)
		if err != nil {
			return err
		}
		for _, e := range edges {
			if err := cat.Update(e, nil, strict); err != nil {
				return err
			}
		}
		return cat.Update(v, nil, strict)

	case OpDeleteEdge:
		e, err := g.RemoveEdge(m.ID)
		if err != nil {
			return err
		}
		return cat.Update(e, nil, strict)

	case OpSetProperty:
		if m.Value == nil {
			return storage.NewError(string(m.Op)).Element(m.ID).Field(m.Key).Cause(storage.ErrTypeMismatch).Err()
		}
		before, after, err := g.SetProperty(m.ID, m.Key, *m.Value, stamp)
		if err != nil {
			return err
		}
		return cat.Update(before, after, strict)

	case OpRemoveProperty:
		before, after, err := g.RemoveProperty(m.ID, m.Key, stamp)
		if err != nil {
			return err
		}
		return cat.Update(before, after, strict)
	}
	return storage.NewError(string(m.Op)).Element(m.ID).Context("unknown mutation").Cause(storage.ErrTransactionState).Err()
}

// maxID is the largest element ID a mutation introduces
func (m Mutation) maxID() uint64 {
	if m.Op == OpCreateVertex || m.Op == OpCreateEdge {
		return m.ID
	}
	return 0
}
