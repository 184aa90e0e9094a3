package storage

import (
	"errors"
	"testing"
	"time"
)

func TestGraph_InsertAndGetVertex(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "Person", map[string]Value{"name": StringValue("Alice")})

	v, err := g.GetVertex(1)
	if err != nil {
		t.Fatalf("GetVertex() error = %v", err)
	}
	if v.Label != "Person" {
		t.Errorf("Label = %q, want Person", v.Label)
	}
	if v.Version != testStamp.Seq || v.CreatedAt != testStamp.At {
		t.Errorf("stamp not applied: version=%d created=%d", v.Version, v.CreatedAt)
	}

	// Returned vertices are copies
	v.Properties["name"] = StringValue("Mallory")
	again, _ := g.GetVertex(1)
	if name, _ := again.Properties["name"].AsString(); name != "Alice" {
		t.Errorf("stored vertex was modified through a returned copy: %q", name)
	}

	if _, err := g.GetVertex(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVertex(99) error = %v, want ErrNotFound", err)
	}
}

func TestGraph_IDsAreShared(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "A", nil)
	testVertex(t, g, 2, "A", nil)
	testEdge(t, g, 3, 1, 2, "LINKS")

	err := g.InsertVertex(&Vertex{ID: 3, Label: "A"}, testStamp)
	if !errors.Is(err, ErrConstraintViolation) {
		t.Errorf("InsertVertex with an edge's ID error = %v, want ErrConstraintViolation", err)
	}

	elem, err := g.GetElement(3)
	if err != nil {
		t.Fatalf("GetElement() error = %v", err)
	}
	if elem.ElementKind() != KindEdge {
		t.Errorf("ElementKind() = %v, want edge", elem.ElementKind())
	}
}

func TestGraph_InsertEdgeRequiresEndpoints(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "A", nil)

	err := g.InsertEdge(&Edge{ID: 2, Label: "LINKS", FromID: 1, ToID: 42}, testStamp)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("InsertEdge() error = %v, want ErrNotFound", err)
	}
	if g.Stats().EdgeCount != 0 {
		t.Error("failed insert left an edge behind")
	}
}

func TestGraph_Adjacency(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "Group", nil)
	testVertex(t, g, 2, "Person", nil)
	testVertex(t, g, 3, "Person", nil)
	testEdge(t, g, 10, 1, 2, "HAS_MEMBER")
	testEdge(t, g, 11, 1, 3, "HAS_MEMBER")
	testEdge(t, g, 12, 1, 3, "OWNS")
	testEdge(t, g, 13, 2, 1, "LIKES")

	tests := []struct {
		name   string
		fn     func() ([]*Edge, error)
		expect int
	}{
		{"all out", func() ([]*Edge, error) { return g.OutEdges(1) }, 3},
		{"out by label", func() ([]*Edge, error) { return g.OutEdges(1, "HAS_MEMBER") }, 2},
		{"out two labels", func() ([]*Edge, error) { return g.OutEdges(1, "HAS_MEMBER", "OWNS") }, 3},
		{"out unknown label", func() ([]*Edge, error) { return g.OutEdges(1, "NOPE") }, 0},
		{"in", func() ([]*Edge, error) { return g.InEdges(3) }, 2},
		{"in by label", func() ([]*Edge, error) { return g.InEdges(1, "LIKES") }, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edges, err := tt.fn()
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if len(edges) != tt.expect {
				t.Errorf("got %d edges, want %d", len(edges), tt.expect)
			}
		})
	}

	if _, err := g.OutEdges(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("OutEdges(999) error = %v, want ErrNotFound", err)
	}
}

func TestGraph_RemoveVertexCascades(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "Hub", nil)
	testVertex(t, g, 2, "Leaf", nil)
	testVertex(t, g, 3, "Leaf", nil)
	testEdge(t, g, 10, 1, 2, "E")
	testEdge(t, g, 11, 3, 1, "E")
	testEdge(t, g, 12, 1, 1, "SELF")
	testEdge(t, g, 13, 2, 3, "E") // not incident to 1

	_, removed, err := g.RemoveVertex(1)
	if err != nil {
		t.Fatalf("RemoveVertex() error = %v", err)
	}
	if len(removed) != 3 {
		t.Errorf("removed %d edges, want 3", len(removed))
	}
	if !g.HasEdge(13) {
		t.Error("edge not incident to the vertex was removed")
	}
	if g.Stats().EdgeCount != 1 {
		t.Errorf("EdgeCount = %d, want 1", g.Stats().EdgeCount)
	}
	if out, _ := g.OutEdges(3); len(out) != 1 {
		t.Errorf("vertex 3 has %d out edges, want 1", len(out))
	}
	if len(g.VerticesByLabel("Hub")) != 0 {
		t.Error("label membership survived vertex removal")
	}
}

func TestGraph_CopyIsolation(t *testing.T) {
	base := testGraph(t)
	testVertex(t, base, 1, "Person", map[string]Value{"name": StringValue("A")})

	draft := base.Copy()
	testVertex(t, draft, 2, "Person", nil)
	if _, _, err := draft.SetProperty(1, "name", StringValue("B"), Stamp{Seq: 2}); err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}
	if _, _, err := draft.RemoveVertex(1); err != nil {
		t.Fatalf("RemoveVertex() error = %v", err)
	}

	if base.Stats().VertexCount != 1 {
		t.Errorf("base VertexCount = %d, want 1", base.Stats().VertexCount)
	}
	v, err := base.GetVertex(1)
	if err != nil {
		t.Fatalf("base lost vertex 1: %v", err)
	}
	if name, _ := v.Properties["name"].AsString(); name != "A" {
		t.Errorf("base name = %q, want A", name)
	}
	if len(base.VerticesByLabel("Person")) != 1 {
		t.Error("base label index changed through the copy")
	}
}

func TestGraph_SetProperty(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "Person", nil)
	testVertex(t, g, 2, "Person", nil)
	testEdge(t, g, 3, 1, 2, "KNOWS")

	before, after, err := g.SetProperty(3, "since", IntValue(2020), Stamp{Seq: 5, At: 10})
	if err != nil {
		t.Fatalf("SetProperty() error = %v", err)
	}
	if _, ok := before.Property("since"); ok {
		t.Error("before snapshot already carries the new property")
	}
	if got, _ := after.Property("since"); !got.Equal(IntValue(2020)) {
		t.Errorf("after since = %v", got)
	}
	e, _ := g.GetEdge(3)
	if e.Version != 5 || e.UpdatedAt != 10 {
		t.Errorf("edge stamp = (%d, %d), want (5, 10)", e.Version, e.UpdatedAt)
	}

	if _, _, err := g.SetProperty(3, EdgeOutKey, IntValue(1), testStamp); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("SetProperty(@out) error = %v, want ErrSchemaMismatch", err)
	}
	if _, _, err := g.SetProperty(77, "x", IntValue(1), testStamp); !errors.Is(err, ErrNotFound) {
		t.Errorf("SetProperty(77) error = %v, want ErrNotFound", err)
	}

	if _, _, err := g.RemoveProperty(3, "since", testStamp); err != nil {
		t.Fatalf("RemoveProperty() error = %v", err)
	}
	if e, _ := g.GetEdge(3); len(e.Properties) != 0 {
		t.Errorf("properties after remove = %v", e.Properties)
	}
}

func TestGraph_DeclareProperty(t *testing.T) {
	g := testGraph(t)
	testVertex(t, g, 1, "Person", map[string]Value{"age": IntValue(30)})

	if err := g.DeclareProperty("Person", "age", TypeString); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("DeclareProperty over conflicting data error = %v, want ErrTypeMismatch", err)
	}
	if err := g.DeclareProperty("Person", "age", TypeInt); err != nil {
		t.Fatalf("DeclareProperty() error = %v", err)
	}
	if err := g.DeclareProperty("Person", "age", TypeInt); err != nil {
		t.Errorf("re-declaring the same type error = %v", err)
	}

	if _, _, err := g.SetProperty(1, "age", StringValue("old"), testStamp); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("SetProperty with wrong type error = %v, want ErrTypeMismatch", err)
	}
	err := g.InsertVertex(&Vertex{ID: 2, Label: "Person", Properties: map[string]Value{"age": FloatValue(1.5)}}, testStamp)
	if !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("InsertVertex with wrong type error = %v, want ErrTypeMismatch", err)
	}
	// Other labels are unconstrained
	testVertex(t, g, 3, "Robot", map[string]Value{"age": StringValue("v2")})

	decls := g.Schema().Declarations()
	if len(decls) != 1 || decls[0].Label != "Person" || decls[0].Type != TypeInt {
		t.Errorf("Declarations() = %+v", decls)
	}
}

func TestValue_RoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 123)

	tests := []struct {
		name  string
		input any
		check func(Value) bool
	}{
		{"string", "x", func(v Value) bool { s, _ := v.AsString(); return s == "x" }},
		{"int", 42, func(v Value) bool { i, _ := v.AsInt(); return i == 42 }},
		{"negative int64", int64(-7), func(v Value) bool { i, _ := v.AsInt(); return i == -7 }},
		{"float", 2.5, func(v Value) bool { f, _ := v.AsFloat(); return f == 2.5 }},
		{"bool", true, func(v Value) bool { b, _ := v.AsBool(); return b }},
		{"bytes", []byte{1, 2}, func(v Value) bool { b, _ := v.AsBytes(); return len(b) == 2 }},
		{"timestamp", now, func(v Value) bool { ts, _ := v.AsTimestamp(); return ts.Equal(now) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.input)
			if err != nil {
				t.Fatalf("ValueOf() error = %v", err)
			}
			if !tt.check(v) {
				t.Errorf("round trip failed for %v (%s)", tt.input, v)
			}
		})
	}

	if _, err := ValueOf(struct{}{}); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("ValueOf(struct) error = %v, want ErrTypeMismatch", err)
	}
	if _, err := StringValue("x").AsInt(); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("AsInt on a string error = %v, want ErrTypeMismatch", err)
	}
}

func TestEdge_PseudoProperties(t *testing.T) {
	e := &Edge{ID: 5, FromID: 1, ToID: 2, Properties: map[string]Value{}}

	out, ok := e.Property(EdgeOutKey)
	if !ok || !out.Equal(IDValue(1)) {
		t.Errorf("Property(@out) = %v, %v", out, ok)
	}
	in, ok := e.Property(EdgeInKey)
	if !ok || !in.Equal(IDValue(2)) {
		t.Errorf("Property(@in) = %v, %v", in, ok)
	}
	if e.Other(1) != 2 || e.Other(2) != 1 {
		t.Error("Other() returned the wrong endpoint")
	}
}

func TestGraph_RestoreKeepsStamps(t *testing.T) {
	g := testGraph(t)
	v := &Vertex{ID: 7, Label: "Person", Version: 42, CreatedAt: 100, UpdatedAt: 200}
	if err := g.RestoreVertex(v); err != nil {
		t.Fatalf("RestoreVertex() error = %v", err)
	}
	if err := g.RestoreEdge(&Edge{ID: 8, Label: "SELF", FromID: 7, ToID: 7, Version: 43}); err != nil {
		t.Fatalf("RestoreEdge() error = %v", err)
	}

	got, _ := g.GetVertex(7)
	if got.Version != 42 || got.CreatedAt != 100 || got.UpdatedAt != 200 {
		t.Errorf("restored vertex stamps = %d/%d/%d", got.Version, got.CreatedAt, got.UpdatedAt)
	}
	if ver, ok := g.VersionOf(8); !ok || ver != 43 {
		t.Errorf("VersionOf(8) = %d, %v", ver, ok)
	}
	if _, ok := g.VersionOf(9); ok {
		t.Error("VersionOf reported a missing element")
	}
	if nv, ne := g.Counts(); nv != 1 || ne != 1 {
		t.Errorf("Counts() = %d, %d", nv, ne)
	}
}

func TestValueType_Text(t *testing.T) {
	for _, vt := range []ValueType{TypeString, TypeInt, TypeFloat, TypeBool, TypeBytes, TypeTimestamp} {
		text, _ := vt.MarshalText()
		var back ValueType
		if err := back.UnmarshalText(text); err != nil || back != vt {
			t.Errorf("%s did not survive a text round trip: %v", vt, err)
		}
	}
	var vt ValueType
	if err := vt.UnmarshalText([]byte("decimal")); err == nil {
		t.Error("unknown type name accepted")
	}

	var k ElementKind
	if err := k.UnmarshalText([]byte("edge")); err != nil || k != KindEdge {
		t.Errorf("UnmarshalText(edge) = %v, %v", k, err)
	}
	if err := k.UnmarshalText([]byte("node")); err == nil {
		t.Error("unknown kind accepted")
	}
}
