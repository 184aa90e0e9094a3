package storage

import (
	"sort"
	"strings"
)

// PropertyDecl declares the value type of one property of a label
type PropertyDecl struct {
	Label    string    `json:"label" yaml:"label"`
	Property string    `json:"property" yaml:"property"`
	Type     ValueType `json:"type" yaml:"type"`
}

// Schema maps (label, property) to a declared value type. A Schema is
// immutable; With returns a modified copy so published graph versions can
// share it.
type Schema struct {
	props map[string]map[string]ValueType
}

// NewSchema returns an empty schema. Undeclared properties accept any type.
func NewSchema() *Schema {
	return &Schema{props: make(map[string]map[string]ValueType)}
}

// Lookup returns the declared type of label.property, if any
func (s *Schema) Lookup(label, property string) (ValueType, bool) {
	t, ok := s.props[label][property]
	return t, ok
}

// With returns a copy of the schema with label.property declared as t
func (s *Schema) With(label, property string, t ValueType) *Schema {
	next := &Schema{props: make(map[string]map[string]ValueType, len(s.props)+1)}
	for l, m := range s.props {
		next.props[l] = m
	}
	inner := make(map[string]ValueType, len(s.props[label])+1)
	for p, vt := range s.props[label] {
		inner[p] = vt
	}
	inner[property] = t
	next.props[label] = inner
	return next
}

// Check validates a single property assignment against the schema
func (s *Schema) Check(op, label, property string, v Value) error {
	if want, ok := s.Lookup(label, property); ok && want != v.Type {
		return TypeMismatchError(op, label, property, want, v.Type)
	}
	return nil
}

// CheckAll validates every property in props
func (s *Schema) CheckAll(op, label string, props map[string]Value) error {
	if len(s.props[label]) == 0 {
		return nil
	}
	for k, v := range props {
		if err := s.Check(op, label, k, v); err != nil {
			return err
		}
	}
	return nil
}

// Declarations lists every declaration, sorted by label then property
func (s *Schema) Declarations() []PropertyDecl {
	var out []PropertyDecl
	for label, m := range s.props {
		for prop, t := range m {
			out = append(out, PropertyDecl{Label: label, Property: prop, Type: t})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label != out[j].Label {
			return out[i].Label < out[j].Label
		}
		return out[i].Property < out[j].Property
	})
	return out
}

// IsReservedProperty reports whether key belongs to the engine (edge endpoints)
func IsReservedProperty(key string) bool {
	return strings.HasPrefix(key, "@")
}
