package index

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/tidwall/btree"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

type entry struct {
	key string
	id  uint64
}

func entryLess(a, b entry) bool {
	if a.key != b.key {
		return a.key < b.key
	}
	return a.id < b.id
}

type secondary struct {
	def     Definition
	entries *btree.BTreeG[entry]
}

// scan visits entries whose key starts with prefix, in key then ID order
func (s *secondary) scan(prefix string, fn func(e entry) bool) {
	s.entries.Ascend(entry{key: prefix}, func(e entry) bool {
		if !strings.HasPrefix(e.key, prefix) {
			return false
		}
		return fn(e)
	})
}

// owner returns an element other than id that holds key
func (s *secondary) owner(key string, id uint64) (uint64, bool) {
	var found uint64
	s.entries.Ascend(entry{key: key}, func(e entry) bool {
		if e.key != key {
			return false
		}
		if e.id != id {
			found = e.id
			return false
		}
		return true
	})
	return found, found != 0
}

// Catalog holds every secondary index of one graph version. Like the graph
// store it is copy-on-write: Copy is cheap and a published catalog is never
// mutated.
type Catalog struct {
	byName map[string]*secondary
	order  []*secondary // sorted by name
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{byName: make(map[string]*secondary)}
}

// Copy returns a mutable copy sharing structure with c
func (c *Catalog) Copy() *Catalog {
	next := &Catalog{
		byName: make(map[string]*secondary, len(c.byName)),
		order:  make([]*secondary, len(c.order)),
	}
	for i, s := range c.order {
		cp := &secondary{def: s.def, entries: s.entries.Copy()}
		next.order[i] = cp
		next.byName[cp.def.Name] = cp
	}
	return next
}

// CreateIndex registers def and populates it from g. A unique index over
// data that already holds duplicate keys is rejected.
func (c *Catalog) CreateIndex(def Definition, g storage.Reader) (Definition, error) {
	def, err := def.normalize()
	if err != nil {
		return def, storage.NewError("create_index").Index(def.Name).Cause(fmt.Errorf("%w: %v", storage.ErrConstraintViolation, err)).Err()
	}
	if _, exists := c.byName[def.Name]; exists {
		return def, storage.NewError("create_index").Index(def.Name).
			Cause(fmt.Errorf("%w: index already exists", storage.ErrConstraintViolation)).Err()
	}
	if other, ok := c.Find(def.Kind, def.Label, def.Properties); ok {
		return def, storage.NewError("create_index").Index(def.Name).
			Cause(fmt.Errorf("%w: same properties already indexed by %s", storage.ErrConstraintViolation, other.Name)).Err()
	}

	s := &secondary{def: def, entries: btree.NewBTreeG(entryLess)}
	add := func(elem storage.Element) error {
		values, ok := valuesOf(def, elem)
		if !ok {
			return nil
		}
		key := encodeKey(values)
		if def.Unique {
			if existing, taken := s.owner(key, elem.ElementID()); taken {
				return &ConstraintViolationError{Index: def.Name, Key: describe(values), ExistingID: existing, ID: elem.ElementID()}
			}
		}
		s.entries.Set(entry{key: key, id: elem.ElementID()})
		return nil
	}

	if def.Kind == storage.KindEdge {
		for _, e := range g.EdgesByLabel(def.Label) {
			if err := add(e); err != nil {
				return def, err
			}
		}
	} else {
		for _, v := range g.VerticesByLabel(def.Label) {
			if err := add(v); err != nil {
				return def, err
			}
		}
	}

	c.byName[def.Name] = s
	c.order = append(c.order, s)
	sort.Slice(c.order, func(i, j int) bool { return c.order[i].def.Name < c.order[j].def.Name })
	return def, nil
}

// DropIndex removes an index
func (c *Catalog) DropIndex(name string) error {
	if _, ok := c.byName[name]; !ok {
		return indexNotFound("drop_index", name)
	}
	delete(c.byName, name)
	kept := c.order[:0:0]
	for _, s := range c.order {
		if s.def.Name != name {
			kept = append(kept, s)
		}
	}
	c.order = kept
	return nil
}

// Get returns the definition of a named index
func (c *Catalog) Get(name string) (Definition, bool) {
	s, ok := c.byName[name]
	if !ok {
		return Definition{}, false
	}
	return s.def, true
}

// Find returns the index declared over exactly (kind, label, props)
func (c *Catalog) Find(kind storage.ElementKind, label string, props []string) (Definition, bool) {
	for _, s := range c.order {
		if s.def.sameShape(kind, label, props) {
			return s.def, true
		}
	}
	return Definition{}, false
}

// Definitions lists every index, sorted by name
func (c *Catalog) Definitions() []Definition {
	defs := make([]Definition, len(c.order))
	for i, s := range c.order {
		defs[i] = s.def
	}
	return defs
}

// Stats returns entry counts per index
func (c *Catalog) Stats() []Stat {
	stats := make([]Stat, len(c.order))
	for i, s := range c.order {
		stats[i] = Stat{Name: s.def.Name, Entries: s.entries.Len(), Unique: s.def.Unique}
	}
	return stats
}

// Update moves an element between buckets of every index covering its
// label. old is nil for a create and next is nil for a delete. In strict
// mode a unique index refuses a key owned by another element and nothing
// is changed; otherwise duplicates are tolerated (private transaction drafts).
func (c *Catalog) Update(old, next storage.Element, strict bool) error {
	ref := next
	if ref == nil {
		ref = old
	}
	if ref == nil {
		return nil
	}
	id, kind, label := ref.ElementID(), ref.ElementKind(), ref.ElementLabel()

	type change struct {
		s              *secondary
		oldKey, newKey string
		hadOld, hasNew bool
	}
	var changes []change

	for _, s := range c.order {
		if !s.def.covers(kind, label) {
			continue
		}
		oldKey, hadOld := keyOf(s.def, old)
		newValues, hasNew := valuesOf(s.def, next)
		var newKey string
		if hasNew {
			newKey = encodeKey(newValues)
		}
		if hadOld && hasNew && oldKey == newKey {
			continue
		}
		if hasNew && s.def.Unique && strict {
			if existing, taken := s.owner(newKey, id); taken {
				return &ConstraintViolationError{Index: s.def.Name, Key: describe(newValues), ExistingID: existing, ID: id}
			}
		}
		changes = append(changes, change{s: s, oldKey: oldKey, newKey: newKey, hadOld: hadOld, hasNew: hasNew})
	}

	for _, ch := range changes {
		if ch.hadOld {
			ch.s.entries.Delete(entry{key: ch.oldKey, id: id})
		}
		if ch.hasNew {
			ch.s.entries.Set(entry{key: ch.newKey, id: id})
		}
	}
	return nil
}

// Lookup returns the IDs whose key equals values, in ascending ID order
func (c *Catalog) Lookup(name string, values ...storage.Value) ([]uint64, error) {
	s, ok := c.byName[name]
	if !ok {
		return nil, indexNotFound("lookup", name)
	}
	if len(values) != len(s.def.Properties) {
		return nil, arityError("lookup", s.def, len(values))
	}
	key := encodeKey(values)
	ids := make([]uint64, 0, 1)
	s.scan(key, func(e entry) bool {
		if e.key != key {
			return false
		}
		ids = append(ids, e.id)
		return true
	})
	return ids, nil
}

// LookupBy resolves the index by shape instead of by name
func (c *Catalog) LookupBy(kind storage.ElementKind, label string, props []string, values []storage.Value) ([]uint64, error) {
	def, ok := c.Find(kind, label, props)
	if !ok {
		return nil, indexNotFound("lookup", label+"."+strings.Join(props, "."))
	}
	return c.Lookup(def.Name, values...)
}

// PrefixLookup matches a leading subset of a composite key. The result is
// ordered by key.
func (c *Catalog) PrefixLookup(name string, values ...storage.Value) ([]uint64, error) {
	s, ok := c.byName[name]
	if !ok {
		return nil, indexNotFound("prefix_lookup", name)
	}
	if len(values) == 0 || len(values) > len(s.def.Properties) {
		return nil, arityError("prefix_lookup", s.def, len(values))
	}
	var ids []uint64
	s.scan(encodeKey(values), func(e entry) bool {
		ids = append(ids, e.id)
		return true
	})
	return ids, nil
}

// CheckValues verifies lookup values against the declared property types
func CheckValues(def Definition, schema *storage.Schema, values []storage.Value) error {
	for i, v := range values {
		if i >= len(def.Properties) {
			return arityError("lookup", def, len(values))
		}
		prop := def.Properties[i]
		if prop == storage.EdgeOutKey || prop == storage.EdgeInKey {
			if v.Type != storage.TypeInt {
				return storage.TypeMismatchError("lookup", def.Label, prop, storage.TypeInt, v.Type)
			}
			continue
		}
		if err := schema.Check("lookup", def.Label, prop, v); err != nil {
			return err
		}
	}
	return nil
}

// Intersect returns the IDs present in every set, ascending
func Intersect(sets ...[]uint64) []uint64 {
	if len(sets) == 0 {
		return nil
	}
	acc := roaring64.BitmapOf(sets[0]...)
	for _, set := range sets[1:] {
		acc.And(roaring64.BitmapOf(set...))
	}
	return acc.ToArray()
}

func arityError(op string, def Definition, got int) error {
	return storage.NewError(op).Index(def.Name).
		Cause(fmt.Errorf("%w: index covers %d properties, got %d values", storage.ErrTypeMismatch, len(def.Properties), got)).Err()
}
