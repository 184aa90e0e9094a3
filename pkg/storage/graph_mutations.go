package storage

import "fmt"

// Mutations write into the receiver. The transaction manager only calls them
// on a private Copy that has not been published yet.

// InsertVertex adds a vertex with a pre-allocated ID
func (g *Graph) InsertVertex(v *Vertex, stamp Stamp) error {
	stored := v.Clone()
	stored.Version = stamp.Seq
	stored.CreatedAt = stamp.At
	stored.UpdatedAt = stamp.At
	return g.insertVertex(stored)
}

// RestoreVertex adds a vertex loaded from a checkpoint, keeping its stamps
func (g *Graph) RestoreVertex(v *Vertex) error {
	return g.insertVertex(v.Clone())
}

func (g *Graph) insertVertex(v *Vertex) error {
	if v.ID == 0 {
		return NewError("create_vertex").Vertex(0).Cause(fmt.Errorf("%w: zero id", ErrConstraintViolation)).Err()
	}
	if g.HasVertex(v.ID) || g.HasEdge(v.ID) {
		return NewError("create_vertex").Vertex(v.ID).Cause(fmt.Errorf("%w: id already in use", ErrConstraintViolation)).Err()
	}
	if err := checkReserved("create_vertex", v.Properties); err != nil {
		return err
	}
	if err := g.schema.CheckAll("create_vertex", v.Label, v.Properties); err != nil {
		return err
	}

	g.vertices.Set(v)
	g.vertexLabels.Set(labelEntry{label: v.Label, id: v.ID})
	return nil
}

// InsertEdge adds an edge with a pre-allocated ID. Both endpoints must exist.
func (g *Graph) InsertEdge(e *Edge, stamp Stamp) error {
	stored := e.Clone()
	stored.Version = stamp.Seq
	stored.CreatedAt = stamp.At
	stored.UpdatedAt = stamp.At
	return g.insertEdge(stored)
}

// RestoreEdge adds an edge loaded from a checkpoint, keeping its stamps
func (g *Graph) RestoreEdge(e *Edge) error {
	return g.insertEdge(e.Clone())
}

func (g *Graph) insertEdge(e *Edge) error {
	if e.ID == 0 {
		return NewError("create_edge").Edge(0).Cause(fmt.Errorf("%w: zero id", ErrConstraintViolation)).Err()
	}
	if g.HasVertex(e.ID) || g.HasEdge(e.ID) {
		return NewError("create_edge").Edge(e.ID).Cause(fmt.Errorf("%w: id already in use", ErrConstraintViolation)).Err()
	}
	if !g.HasVertex(e.FromID) {
		return NewError("create_edge").Vertex(e.FromID).Context("source").Cause(ErrNotFound).Err()
	}
	if !g.HasVertex(e.ToID) {
		return NewError("create_edge").Vertex(e.ToID).Context("target").Cause(ErrNotFound).Err()
	}
	if err := checkReserved("create_edge", e.Properties); err != nil {
		return err
	}
	if err := g.schema.CheckAll("create_edge", e.Label, e.Properties); err != nil {
		return err
	}

	g.edges.Set(e)
	g.edgeLabels.Set(labelEntry{label: e.Label, id: e.ID})
	g.outgoing.Set(adjEntry{vertex: e.FromID, label: e.Label, edge: e.ID})
	g.incoming.Set(adjEntry{vertex: e.ToID, label: e.Label, edge: e.ID})
	return nil
}

// SetProperty sets one property on a vertex or an edge and returns the element
// before and after the change.
func (g *Graph) SetProperty(id uint64, key string, value Value, stamp Stamp) (before, after Element, err error) {
	if IsReservedProperty(key) {
		return nil, nil, reservedError("set_property", id, key)
	}
	return g.replaceProperties(id, "set_property", stamp, func(label string, props map[string]Value) error {
		if err := g.schema.Check("set_property", label, key, value); err != nil {
			return err
		}
		props[key] = value
		return nil
	})
}

// RemoveProperty deletes one property. Removing an absent property is a no-op.
func (g *Graph) RemoveProperty(id uint64, key string, stamp Stamp) (before, after Element, err error) {
	if IsReservedProperty(key) {
		return nil, nil, reservedError("remove_property", id, key)
	}
	return g.replaceProperties(id, "remove_property", stamp, func(_ string, props map[string]Value) error {
		delete(props, key)
		return nil
	})
}

func (g *Graph) replaceProperties(id uint64, op string, stamp Stamp, mutate func(label string, props map[string]Value) error) (Element, Element, error) {
	if v, ok := g.vertex(id); ok {
		next := v.Clone()
		if err := mutate(next.Label, next.Properties); err != nil {
			return nil, nil, err
		}
		next.Version = stamp.Seq
		next.UpdatedAt = stamp.At
		g.vertices.Set(next)
		return v, next, nil
	}
	if e, ok := g.edge(id); ok {
		next := e.Clone()
		if err := mutate(next.Label, next.Properties); err != nil {
			return nil, nil, err
		}
		next.Version = stamp.Seq
		next.UpdatedAt = stamp.At
		g.edges.Set(next)
		return e, next, nil
	}
	return nil, nil, ElementNotFoundError(op, id)
}

// RemoveEdge deletes an edge and its adjacency entries
func (g *Graph) RemoveEdge(id uint64) (*Edge, error) {
	e, ok := g.edges.Delete(&Edge{ID: id})
	if !ok {
		return nil, EdgeNotFoundError("delete_edge", id)
	}
	g.edgeLabels.Delete(labelEntry{label: e.Label, id: e.ID})
	g.outgoing.Delete(adjEntry{vertex: e.FromID, label: e.Label, edge: e.ID})
	g.incoming.Delete(adjEntry{vertex: e.ToID, label: e.Label, edge: e.ID})
	return e, nil
}

// RemoveVertex deletes a vertex and cascades to every incident edge. The
// removed edges are returned so indexes can be maintained.
func (g *Graph) RemoveVertex(id uint64) (*Vertex, []*Edge, error) {
	v, ok := g.vertex(id)
	if !ok {
		return nil, nil, VertexNotFoundError("delete_vertex", id)
	}

	// A self-loop shows up in both adjacency trees; it is removed once.
	incident := g.IncidentEdgeIDs(id)
	removed := make([]*Edge, 0, len(incident))
	for _, edgeID := range incident {
		e, err := g.RemoveEdge(edgeID)
		if err != nil {
			return nil, nil, err
		}
		removed = append(removed, e)
	}

	g.vertices.Delete(v)
	g.vertexLabels.Delete(labelEntry{label: v.Label, id: v.ID})
	return v, removed, nil
}

// DeclareProperty records the value type of label.property. Existing
// elements with that label must already conform.
func (g *Graph) DeclareProperty(label, property string, t ValueType) error {
	if IsReservedProperty(property) {
		return reservedError("declare_property", 0, property)
	}
	if existing, ok := g.schema.Lookup(label, property); ok {
		if existing == t {
			return nil
		}
		return TypeMismatchError("declare_property", label, property, existing, t)
	}

	var conflict error
	check := func(elem Element) bool {
		if val, ok := elem.Property(property); ok && val.Type != t {
			conflict = NewError("declare_property").Schema(label).Field(property).
				Cause(fmt.Errorf("%w: element %d holds %s, declared %s", ErrTypeMismatch, elem.ElementID(), val.Type, t)).Err()
			return false
		}
		return true
	}
	g.vertexLabels.Ascend(labelEntry{label: label}, func(item labelEntry) bool {
		if item.label != label {
			return false
		}
		v, _ := g.vertex(item.id)
		return v == nil || check(v)
	})
	if conflict != nil {
		return conflict
	}
	g.edgeLabels.Ascend(labelEntry{label: label}, func(item labelEntry) bool {
		if item.label != label {
			return false
		}
		e, _ := g.edge(item.id)
		return e == nil || check(e)
	})
	if conflict != nil {
		return conflict
	}

	g.schema = g.schema.With(label, property, t)
	return nil
}

func checkReserved(op string, props map[string]Value) error {
	for k := range props {
		if IsReservedProperty(k) {
			return reservedError(op, 0, k)
		}
	}
	return nil
}

func reservedError(op string, id uint64, key string) error {
	return NewError(op).Element(id).Field(key).
		Cause(fmt.Errorf("%w: property names starting with @ are reserved", ErrSchemaMismatch)).Err()
}
