package storage

import (
	"testing"
)

var testStamp = Stamp{Seq: 1, At: 1700000000}

// testGraph creates an empty graph for a test
func testGraph(t *testing.T) *Graph {
	t.Helper()
	return NewGraph()
}

// testVertex inserts a vertex with the given ID, label and properties
func testVertex(t *testing.T, g *Graph, id uint64, label string, properties map[string]Value) *Vertex {
	t.Helper()

	v := &Vertex{ID: id, Label: label, Properties: properties}
	if v.Properties == nil {
		v.Properties = map[string]Value{}
	}
	if err := g.InsertVertex(v, testStamp); err != nil {
		t.Fatalf("Failed to insert test vertex %d: %v", id, err)
	}
	return v
}

// testEdge inserts an edge between two existing vertices
func testEdge(t *testing.T, g *Graph, id, fromID, toID uint64, label string) *Edge {
	t.Helper()

	e := &Edge{ID: id, Label: label, FromID: fromID, ToID: toID, Properties: map[string]Value{}}
	if err := g.InsertEdge(e, testStamp); err != nil {
		t.Fatalf("Failed to insert test edge %d: %v", id, err)
	}
	return e
}
