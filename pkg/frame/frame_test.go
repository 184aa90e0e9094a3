package frame

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-framegraph/pkg/index"
	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
)

var testTypes = []TypeSpec{
	{Name: "Person", Label: "Person", Fields: []FieldSpec{
		{Name: "name", Type: storage.TypeString},
		{Name: "age", Type: storage.TypeInt},
		{Name: "score", Property: "rating", Type: storage.TypeFloat},
		{Name: "active", Type: storage.TypeBool},
	}},
	{Name: "Group", Label: "Group", Fields: []FieldSpec{
		{Name: "name", Type: storage.TypeString},
	}},
	{Name: "HasMember", Label: "HAS_MEMBER", Kind: storage.KindEdge, Fields: []FieldSpec{
		{Name: "role", Type: storage.TypeString},
	}},
}

func setup(t *testing.T) (*Registry, *txn.Manager) {
	t.Helper()
	r, err := NewRegistry(testTypes...)
	require.NoError(t, err)
	m := txn.NewManager(txn.Options{})
	t.Cleanup(func() { m.Close() })
	require.NoError(t, r.Declare(m))
	return r, m
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name string
		spec TypeSpec
	}{
		{"missing label", TypeSpec{Name: "X"}},
		{"bad label", TypeSpec{Name: "X", Label: "1abc"}},
		{"bad property", TypeSpec{Name: "X", Label: "X", Fields: []FieldSpec{{Name: "a", Property: "has space"}}}},
		{"bad implicit property", TypeSpec{Name: "X", Label: "X", Fields: []FieldSpec{{Name: "a-b"}}}},
		{"unknown type", TypeSpec{Name: "X", Label: "X", Fields: []FieldSpec{{Name: "a", Type: storage.ValueType(42)}}}},
		{"duplicate field", TypeSpec{Name: "X", Label: "X", Fields: []FieldSpec{{Name: "a"}, {Name: "a"}}}},
		{"shared property", TypeSpec{Name: "X", Label: "X", Fields: []FieldSpec{{Name: "a"}, {Name: "b", Property: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.spec)
			assert.Error(t, err)
		})
	}

	_, err := NewRegistry(TypeSpec{Name: "X", Label: "X"}, TypeSpec{Name: "X", Label: "Y"})
	assert.Error(t, err, "duplicate type name")

	assert.Panics(t, func() { MustRegistry(TypeSpec{Name: "X"}) })
}

func TestRegistry_Declare(t *testing.T) {
	r, m := setup(t)
	assert.Equal(t, []string{"Group", "HasMember", "Person"}, r.Types())

	decls := m.Stats().Schema
	assert.Contains(t, decls, storage.PropertyDecl{Label: "Person", Property: "rating", Type: storage.TypeFloat})
	assert.Contains(t, decls, storage.PropertyDecl{Label: "HAS_MEMBER", Property: "role", Type: storage.TypeString})

	// Writes that bypass the frame are checked against the declared types
	err := m.Update(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		_, err := tx.CreateVertex("Person", map[string]storage.Value{"age": storage.StringValue("old")})
		return err
	})
	assert.ErrorIs(t, err, storage.ErrTypeMismatch)
}

func TestFrame_AccessorsAndWrites(t *testing.T) {
	r, m := setup(t)

	var id uint64
	err := m.Update(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.AddVertex(tx, "Person", map[string]any{"name": "Alice", "age": 30, "score": 4.5})
		require.NoError(t, err)
		id = Unwrap(p)

		name, err := p.String("name")
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)
		score, err := p.Float("score")
		require.NoError(t, err)
		assert.Equal(t, 4.5, score)

		has, err := p.Has("active")
		require.NoError(t, err)
		assert.False(t, has)
		_, err = p.Bool("active")
		assert.True(t, storage.IsNotFound(err))

		require.NoError(t, p.Set("active", true))
		return p.Set("age", 31)
	})
	require.NoError(t, err)

	err = m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.WrapID(tx, id, "Person")
		require.NoError(t, err)
		age, err := p.Int("age")
		require.NoError(t, err)
		assert.Equal(t, int64(31), age)
		active, err := p.Bool("active")
		require.NoError(t, err)
		assert.True(t, active)

		// Field names map onto property names
		v, err := tx.GetVertex(id)
		require.NoError(t, err)
		_, ok := v.Properties["rating"]
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
}

func TestFrame_SetDoesNotCommit(t *testing.T) {
	r, m := setup(t)

	var id uint64
	err := m.Update(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.AddVertex(tx, "Person", map[string]any{"name": "Alice"})
		id = p.ID()
		return err
	})
	require.NoError(t, err)
	seq := m.Seq()

	_, tx, err := m.Begin(context.Background())
	require.NoError(t, err)
	p, err := r.WrapID(tx, id, "Person")
	require.NoError(t, err)
	require.NoError(t, p.Set("name", "Alicia"))
	require.NoError(t, tx.Rollback())

	assert.Equal(t, seq, m.Seq())
	err = m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.WrapID(tx, id, "Person")
		require.NoError(t, err)
		name, err := p.String("name")
		require.NoError(t, err)
		assert.Equal(t, "Alice", name)
		return nil
	})
	require.NoError(t, err)
}

func TestFrame_TypeErrors(t *testing.T) {
	r, m := setup(t)

	err := m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.AddVertex(tx, "Person", map[string]any{"name": "Alice"})
		require.NoError(t, err)

		assert.ErrorIs(t, p.Set("age", "thirty"), storage.ErrTypeMismatch)
		return nil
	})
	require.NoError(t, err)

	err = m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.AddVertex(tx, "Person", map[string]any{"name": "Alice"})
		require.NoError(t, err)

		assert.ErrorIs(t, p.Set("nickname", "Al"), storage.ErrSchemaMismatch)
		_, err = p.Get("nickname")
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
		_, err = p.Int("name")
		assert.ErrorIs(t, err, storage.ErrTypeMismatch)

		_, err = r.AddVertex(tx, "Person", map[string]any{"age": 1.5})
		assert.ErrorIs(t, err, storage.ErrTypeMismatch)
		_, err = r.AddVertex(tx, "HasMember", nil)
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
		_, err = r.AddVertex(tx, "Robot", nil)
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
		return nil
	})
	require.NoError(t, err)
}

func TestWrap_LabelMismatch(t *testing.T) {
	r, m := setup(t)

	err := m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		g, err := r.AddVertex(tx, "Group", map[string]any{"name": "admins"})
		require.NoError(t, err)

		_, err = r.WrapID(tx, g.ID(), "Person")
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
		_, err = r.WrapID(tx, g.ID(), "HasMember")
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
		_, err = r.WrapID(tx, 9999, "Person")
		assert.True(t, storage.IsNotFound(err))
		return nil
	})
	require.NoError(t, err)
}

func TestWrap_NilElement(t *testing.T) {
	r, m := setup(t)

	err := m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		var vertex *storage.Vertex
		var edge *storage.Edge
		for name, elem := range map[string]storage.Element{"nil": nil, "vertex": vertex, "edge": edge} {
			f, err := r.Wrap(tx, elem, "Person")
			assert.True(t, storage.IsNotFound(err), name)
			assert.True(t, f.IsZero(), name)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestWrap_RoundTripAndEquality(t *testing.T) {
	r, m := setup(t)

	err := m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		p, err := r.AddVertex(tx, "Person", map[string]any{"name": "Alice"})
		require.NoError(t, err)

		again, err := r.WrapID(tx, Unwrap(p), "Person")
		require.NoError(t, err)
		assert.True(t, p == again)

		elem, err := p.Element()
		require.NoError(t, err)
		viaElem, err := r.Wrap(tx, elem, "Person")
		require.NoError(t, err)
		assert.True(t, p == viaElem)

		other, err := r.AddVertex(tx, "Person", map[string]any{"name": "Bob"})
		require.NoError(t, err)
		assert.False(t, p == other)
		assert.Equal(t, "Person", p.Type())
		assert.Same(t, tx, p.Tx())
		assert.True(t, Frame{}.IsZero())
		return nil
	})
	require.NoError(t, err)
}

func TestFrame_Traversal(t *testing.T) {
	r, m := setup(t)

	err := m.Update(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		group, err := r.AddVertex(tx, "Group", map[string]any{"name": "admins"})
		require.NoError(t, err)
		alice, err := r.AddVertex(tx, "Person", map[string]any{"name": "Alice"})
		require.NoError(t, err)
		bob, err := r.AddVertex(tx, "Person", map[string]any{"name": "Bob"})
		require.NoError(t, err)
		sub, err := r.AddVertex(tx, "Group", map[string]any{"name": "ops"})
		require.NoError(t, err)

		for _, member := range []Frame{alice, bob, sub} {
			_, err := r.AddEdge(tx, "HasMember", group, member, map[string]any{"role": "member"})
			require.NoError(t, err)
		}

		people, err := r.Out(group, "HasMember", "Person")
		require.NoError(t, err)
		assert.ElementsMatch(t, []Frame{alice, bob}, people)

		groups, err := r.In(alice, "HasMember", "Group")
		require.NoError(t, err)
		assert.Equal(t, []Frame{group}, groups)

		edges, err := r.OutE(group, "HasMember")
		require.NoError(t, err)
		require.Len(t, edges, 3)
		role, err := edges[0].String("role")
		require.NoError(t, err)
		assert.Equal(t, "member", role)

		from, to, err := r.Endpoints(edges[0], "Group", "Person")
		require.NoError(t, err)
		assert.Equal(t, group, from)
		assert.Equal(t, alice, to)

		_, err = r.Out(edges[0], "HasMember", "Person")
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)

		// Removing a member cascades to its membership edge
		require.NoError(t, bob.Remove())
		edges, err = r.InE(alice, "HasMember")
		require.NoError(t, err)
		assert.Len(t, edges, 1)
		all, err := r.All(tx, "HasMember")
		require.NoError(t, err)
		assert.Len(t, all, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestVerticesExplicit(t *testing.T) {
	r, m := setup(t)
	_, err := m.CreateIndex(index.Definition{Name: "person_name", Label: "Person", Properties: []string{"name"}, Unique: true})
	require.NoError(t, err)
	_, err = m.CreateIndex(index.Definition{Name: "group_name", Label: "Group", Properties: []string{"name"}})
	require.NoError(t, err)

	var alice Frame
	err = m.Update(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		alice, err = r.AddVertex(tx, "Person", map[string]any{"name": "Alice"})
		return err
	})
	require.NoError(t, err)

	err = m.View(context.Background(), func(_ context.Context, tx *txn.Tx) error {
		found, err := r.VerticesExplicit(tx, "person_name", "Person", "Alice")
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, alice.ID(), found[0].ID())

		none, err := r.VerticesExplicit(tx, "person_name", "Person", "Nobody")
		require.NoError(t, err)
		assert.Empty(t, none)

		// The index must belong to the requested type
		_, err = r.VerticesExplicit(tx, "group_name", "Person", "Alice")
		assert.ErrorIs(t, err, storage.ErrSchemaMismatch)
		_, err = r.VerticesExplicit(tx, "missing", "Person", "Alice")
		assert.True(t, storage.IsNotFound(err))
		_, err = r.VerticesExplicit(tx, "person_name", "Person", 42)
		assert.ErrorIs(t, err, storage.ErrTypeMismatch)
		return nil
	})
	require.NoError(t, err)
}
