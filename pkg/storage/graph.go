package storage

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/tidwall/btree"
)

// Reader is the read capability set of a graph store. The transaction
// manager and the framing layer only depend on this interface.
type Reader interface {
	GetVertex(id uint64) (*Vertex, error)
	GetEdge(id uint64) (*Edge, error)
	GetElement(id uint64) (Element, error)
	// OutEdges returns edges leaving vertexID, restricted to labels if any are given
	OutEdges(vertexID uint64, labels ...string) ([]*Edge, error)
	// InEdges returns edges arriving at vertexID, restricted to labels if any are given
	InEdges(vertexID uint64, labels ...string) ([]*Edge, error)
	VerticesByLabel(label string) []*Vertex
	EdgesByLabel(label string) []*Edge
	ScanVertices(fn func(v *Vertex) bool)
	ScanEdges(fn func(e *Edge) bool)
	Schema() *Schema
	Stats() Statistics
}

// Statistics summarises one graph version
type Statistics struct {
	VertexCount  int
	EdgeCount    int
	VertexLabels int
	EdgeLabels   int
}

// Stamp is applied to every element a mutation writes
type Stamp struct {
	Seq uint64 // commit sequence number
	At  int64  // unix seconds
}

type labelEntry struct {
	label string
	id    uint64
}

func labelLess(a, b labelEntry) bool {
	if a.label != b.label {
		return a.label < b.label
	}
	return a.id < b.id
}

// adjEntry orders adjacency by (vertex, edge label, edge id) so that
// per-label neighbourhoods are contiguous ranges.
type adjEntry struct {
	vertex uint64
	label  string
	edge   uint64
}

func adjLess(a, b adjEntry) bool {
	if a.vertex != b.vertex {
		return a.vertex < b.vertex
	}
	if a.label != b.label {
		return a.label < b.label
	}
	return a.edge < b.edge
}

// Graph is the copy-on-write graph store. Copy is O(1) and shares structure
// with the original; a Graph that has been published to readers must not be
// mutated again.
type Graph struct {
	vertices     *btree.BTreeG[*Vertex]
	edges        *btree.BTreeG[*Edge]
	vertexLabels *btree.BTreeG[labelEntry]
	edgeLabels   *btree.BTreeG[labelEntry]
	outgoing     *btree.BTreeG[adjEntry]
	incoming     *btree.BTreeG[adjEntry]
	schema       *Schema
}

var _ Reader = (*Graph)(nil)

// NewGraph creates an empty graph store
func NewGraph() *Graph {
	return &Graph{
		vertices:     btree.NewBTreeG(func(a, b *Vertex) bool { return a.ID < b.ID }),
		edges:        btree.NewBTreeG(func(a, b *Edge) bool { return a.ID < b.ID }),
		vertexLabels: btree.NewBTreeG(labelLess),
		edgeLabels:   btree.NewBTreeG(labelLess),
		outgoing:     btree.NewBTreeG(adjLess),
		incoming:     btree.NewBTreeG(adjLess),
		schema:       NewSchema(),
	}
}

// Copy returns a mutable copy that shares unchanged structure with g
func (g *Graph) Copy() *Graph {
	return &Graph{
		vertices:     g.vertices.Copy(),
		edges:        g.edges.Copy(),
		vertexLabels: g.vertexLabels.Copy(),
		edgeLabels:   g.edgeLabels.Copy(),
		outgoing:     g.outgoing.Copy(),
		incoming:     g.incoming.Copy(),
		schema:       g.schema,
	}
}

func (g *Graph) vertex(id uint64) (*Vertex, bool) {
	return g.vertices.Get(&Vertex{ID: id})
}

func (g *Graph) edge(id uint64) (*Edge, bool) {
	return g.edges.Get(&Edge{ID: id})
}

// HasVertex reports whether id names a vertex
func (g *Graph) HasVertex(id uint64) bool {
	_, ok := g.vertex(id)
	return ok
}

// HasEdge reports whether id names an edge
func (g *Graph) HasEdge(id uint64) bool {
	_, ok := g.edge(id)
	return ok
}

// GetVertex retrieves a copy of a vertex by ID
func (g *Graph) GetVertex(id uint64) (*Vertex, error) {
	v, ok := g.vertex(id)
	if !ok {
		return nil, VertexNotFoundError("get", id)
	}
	return v.Clone(), nil
}

// GetEdge retrieves a copy of an edge by ID
func (g *Graph) GetEdge(id uint64) (*Edge, error) {
	e, ok := g.edge(id)
	if !ok {
		return nil, EdgeNotFoundError("get", id)
	}
	return e.Clone(), nil
}

// GetElement retrieves a vertex or an edge. IDs are shared between the two kinds.
func (g *Graph) GetElement(id uint64) (Element, error) {
	if v, ok := g.vertex(id); ok {
		return v.Clone(), nil
	}
	if e, ok := g.edge(id); ok {
		return e.Clone(), nil
	}
	return nil, ElementNotFoundError("get", id)
}

// OutEdges gets the outgoing edges of a vertex
func (g *Graph) OutEdges(vertexID uint64, labels ...string) ([]*Edge, error) {
	if !g.HasVertex(vertexID) {
		return nil, VertexNotFoundError("out_edges", vertexID)
	}
	return g.adjacent(g.outgoing, vertexID, labels), nil
}

// InEdges gets the incoming edges of a vertex
func (g *Graph) InEdges(vertexID uint64, labels ...string) ([]*Edge, error) {
	if !g.HasVertex(vertexID) {
		return nil, VertexNotFoundError("in_edges", vertexID)
	}
	return g.adjacent(g.incoming, vertexID, labels), nil
}

func (g *Graph) adjacent(tree *btree.BTreeG[adjEntry], vertexID uint64, labels []string) []*Edge {
	edges := make([]*Edge, 0)
	collect := func(label string, matchLabel bool) {
		tree.Ascend(adjEntry{vertex: vertexID, label: label}, func(item adjEntry) bool {
			if item.vertex != vertexID || (matchLabel && item.label != label) {
				return false
			}
			if e, ok := g.edge(item.edge); ok {
				edges = append(edges, e.Clone())
			}
			return true
		})
	}

	if len(labels) == 0 {
		collect("", false)
		return edges
	}
	for _, label := range labels {
		collect(label, true)
	}
	return edges
}

// adjacentIDs returns edge IDs only, without cloning
func (g *Graph) adjacentIDs(tree *btree.BTreeG[adjEntry], vertexID uint64, fn func(edgeID uint64)) {
	tree.Ascend(adjEntry{vertex: vertexID}, func(item adjEntry) bool {
		if item.vertex != vertexID {
			return false
		}
		fn(item.edge)
		return true
	})
}

// IncidentEdgeIDs returns the IDs of every edge leaving or entering a
// vertex, each once, in ascending order
func (g *Graph) IncidentEdgeIDs(vertexID uint64) []uint64 {
	ids := roaring64.New()
	g.adjacentIDs(g.outgoing, vertexID, ids.Add)
	g.adjacentIDs(g.incoming, vertexID, ids.Add)
	return ids.ToArray()
}

// VerticesByLabel finds all vertices with a specific label
func (g *Graph) VerticesByLabel(label string) []*Vertex {
	vertices := make([]*Vertex, 0)
	g.vertexLabels.Ascend(labelEntry{label: label}, func(item labelEntry) bool {
		if item.label != label {
			return false
		}
		if v, ok := g.vertex(item.id); ok {
			vertices = append(vertices, v.Clone())
		}
		return true
	})
	return vertices
}

// EdgesByLabel finds all edges with a specific label
func (g *Graph) EdgesByLabel(label string) []*Edge {
	edges := make([]*Edge, 0)
	g.edgeLabels.Ascend(labelEntry{label: label}, func(item labelEntry) bool {
		if item.label != label {
			return false
		}
		if e, ok := g.edge(item.id); ok {
			edges = append(edges, e.Clone())
		}
		return true
	})
	return edges
}

// ScanVertices visits vertices in ID order. The callback must not modify them.
func (g *Graph) ScanVertices(fn func(v *Vertex) bool) {
	g.vertices.Scan(fn)
}

// ScanEdges visits edges in ID order. The callback must not modify them.
func (g *Graph) ScanEdges(fn func(e *Edge) bool) {
	g.edges.Scan(fn)
}

// Schema returns the declared property types
func (g *Graph) Schema() *Schema {
	return g.schema
}

// VersionOf returns the commit sequence number that last wrote id
func (g *Graph) VersionOf(id uint64) (uint64, bool) {
	if v, ok := g.vertex(id); ok {
		return v.Version, true
	}
	if e, ok := g.edge(id); ok {
		return e.Version, true
	}
	return 0, false
}

// Counts returns the number of vertices and edges without scanning
func (g *Graph) Counts() (vertices, edges int) {
	return g.vertices.Len(), g.edges.Len()
}

// Stats returns element and label counts for this version. Label counts
// walk the label trees.
func (g *Graph) Stats() Statistics {
	return Statistics{
		VertexCount:  g.vertices.Len(),
		EdgeCount:    g.edges.Len(),
		VertexLabels: countDistinct(g.vertexLabels),
		EdgeLabels:   countDistinct(g.edgeLabels),
	}
}

func countDistinct(tree *btree.BTreeG[labelEntry]) int {
	n := 0
	last := ""
	tree.Scan(func(item labelEntry) bool {
		if n == 0 || item.label != last {
			n++
			last = item.label
		}
		return true
	})
	return n
}
