package frame

import (
	"fmt"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
)

// AddVertex creates a vertex of a vertex type from named field values
func (r *Registry) AddVertex(tx *txn.Tx, typeName string, fields map[string]any) (Frame, error) {
	info, err := r.lookupKind("add_vertex", typeName, storage.KindVertex)
	if err != nil {
		return Frame{}, err
	}
	props, err := info.properties("add_vertex", fields)
	if err != nil {
		return Frame{}, err
	}
	id, err := tx.CreateVertex(info.spec.Label, props)
	if err != nil {
		return Frame{}, err
	}
	return Frame{id: id, typ: info, tx: tx}, nil
}

// AddEdge creates an edge of an edge type between two framed vertices
func (r *Registry) AddEdge(tx *txn.Tx, typeName string, from, to Frame, fields map[string]any) (Frame, error) {
	info, err := r.lookupKind("add_edge", typeName, storage.KindEdge)
	if err != nil {
		return Frame{}, err
	}
	props, err := info.properties("add_edge", fields)
	if err != nil {
		return Frame{}, err
	}
	id, err := tx.CreateEdge(info.spec.Label, from.id, to.id, props)
	if err != nil {
		return Frame{}, err
	}
	return Frame{id: id, typ: info, tx: tx}, nil
}

func (r *Registry) lookupKind(op, typeName string, kind storage.ElementKind) (*typeInfo, error) {
	info, err := r.lookup(op, typeName)
	if err != nil {
		return nil, err
	}
	if info.spec.Kind != kind {
		return nil, storage.NewError(op).Schema(typeName).
			Cause(fmt.Errorf("%w: %s is a %s type", storage.ErrSchemaMismatch, typeName, info.spec.Kind)).Err()
	}
	return info, nil
}

// All frames every element of a type visible to tx
func (r *Registry) All(tx *txn.Tx, typeName string) ([]Frame, error) {
	info, err := r.lookup("scan", typeName)
	if err != nil {
		return nil, err
	}
	var ids []uint64
	if info.spec.Kind == storage.KindEdge {
		edges, err := tx.EdgesByLabel(info.spec.Label)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			ids = append(ids, e.ID)
		}
	} else {
		vertices, err := tx.VerticesByLabel(info.spec.Label)
		if err != nil {
			return nil, err
		}
		for _, v := range vertices {
			ids = append(ids, v.ID)
		}
	}
	frames := make([]Frame, len(ids))
	for i, id := range ids {
		frames[i] = Frame{id: id, typ: info, tx: tx}
	}
	return frames, nil
}

// VerticesExplicit looks values up in a named index and frames the hits as
// typeName. The index must cover the type's kind and label.
func (r *Registry) VerticesExplicit(tx *txn.Tx, indexName, typeName string, values ...any) ([]Frame, error) {
	info, err := r.lookup("lookup", typeName)
	if err != nil {
		return nil, err
	}
	def, ok := tx.Index(indexName)
	if !ok {
		return nil, storage.NewError("lookup").Index(indexName).Cause(storage.ErrNotFound).Err()
	}
	if def.Kind != info.spec.Kind || def.Label != info.spec.Label {
		return nil, storage.NewError("lookup").Index(indexName).
			Cause(fmt.Errorf("%w: index covers %s %q, type %s frames %s %q", storage.ErrSchemaMismatch,
				def.Kind, def.Label, typeName, info.spec.Kind, info.spec.Label)).Err()
	}

	keys := make([]storage.Value, len(values))
	for i, v := range values {
		if keys[i], err = storage.ValueOf(v); err != nil {
			return nil, storage.NewError("lookup").Index(indexName).Cause(err).Err()
		}
	}
	ids, err := tx.Lookup(indexName, keys...)
	if err != nil {
		return nil, err
	}
	frames := make([]Frame, len(ids))
	for i, id := range ids {
		frames[i] = Frame{id: id, typ: info, tx: tx}
	}
	return frames, nil
}

// Out follows edges of edgeType leaving f and frames the vertices they
// reach as targetType. Neighbours with another label are skipped.
func (r *Registry) Out(f Frame, edgeType, targetType string) ([]Frame, error) {
	return r.adjacent(f, edgeType, targetType, true)
}

// In follows edges of edgeType arriving at f
func (r *Registry) In(f Frame, edgeType, targetType string) ([]Frame, error) {
	return r.adjacent(f, edgeType, targetType, false)
}

func (r *Registry) adjacent(f Frame, edgeType, targetType string, out bool) ([]Frame, error) {
	edges, err := r.incident(f, edgeType, out)
	if err != nil {
		return nil, err
	}
	target, err := r.lookupKind("traverse", targetType, storage.KindVertex)
	if err != nil {
		return nil, err
	}

	frames := make([]Frame, 0, len(edges))
	for _, e := range edges {
		id := e.FromID
		if out {
			id = e.ToID
		}
		v, err := f.tx.GetVertex(id)
		if err != nil {
			return nil, err
		}
		if v.Label != target.spec.Label {
			continue
		}
		frames = append(frames, Frame{id: id, typ: target, tx: f.tx})
	}
	return frames, nil
}

// OutE frames the edges of edgeType leaving f
func (r *Registry) OutE(f Frame, edgeType string) ([]Frame, error) {
	return r.edgeFrames(f, edgeType, true)
}

// InE frames the edges of edgeType arriving at f
func (r *Registry) InE(f Frame, edgeType string) ([]Frame, error) {
	return r.edgeFrames(f, edgeType, false)
}

func (r *Registry) edgeFrames(f Frame, edgeType string, out bool) ([]Frame, error) {
	edges, err := r.incident(f, edgeType, out)
	if err != nil {
		return nil, err
	}
	info := r.types[edgeType]
	frames := make([]Frame, len(edges))
	for i, e := range edges {
		frames[i] = Frame{id: e.ID, typ: info, tx: f.tx}
	}
	return frames, nil
}

func (r *Registry) incident(f Frame, edgeType string, out bool) ([]*storage.Edge, error) {
	if f.kind() != storage.KindVertex {
		return nil, storage.NewError("traverse").Edge(f.id).
			Cause(fmt.Errorf("%w: only vertices have incident edges", storage.ErrSchemaMismatch)).Err()
	}
	info, err := r.lookupKind("traverse", edgeType, storage.KindEdge)
	if err != nil {
		return nil, err
	}
	if out {
		return f.tx.OutEdges(f.id, info.spec.Label)
	}
	return f.tx.InEdges(f.id, info.spec.Label)
}

// Endpoints frames the two vertices of an edge frame
func (r *Registry) Endpoints(f Frame, fromType, toType string) (from, to Frame, err error) {
	if f.kind() != storage.KindEdge {
		return from, to, storage.NewError("endpoints").Vertex(f.id).
			Cause(fmt.Errorf("%w: not an edge", storage.ErrSchemaMismatch)).Err()
	}
	e, err := f.tx.GetEdge(f.id)
	if err != nil {
		return from, to, err
	}
	if from, err = r.WrapID(f.tx, e.FromID, fromType); err != nil {
		return from, to, err
	}
	to, err = r.WrapID(f.tx, e.ToID, toType)
	return from, to, err
}
