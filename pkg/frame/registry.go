// Package frame maps domain types onto graph elements. A Registry built
// once at startup names, for every type, the label it frames and the
// properties its fields are stored in; frames are typed views over single
// elements inside one transaction.
package frame

import (
	"fmt"
	"sort"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
	"github.com/dd0wney/cluso-framegraph/pkg/validation"
)

// FieldSpec binds a field name to a property and its value type
type FieldSpec struct {
	Name string `json:"name" yaml:"name" toml:"name" validate:"required"`
	// Property defaults to Name
	Property string            `json:"property,omitempty" yaml:"property,omitempty" toml:"property,omitempty" validate:"omitempty,propkey"`
	Type     storage.ValueType `json:"type" yaml:"type" toml:"type"`
}

// TypeSpec describes one framed type
type TypeSpec struct {
	Name   string              `json:"name" yaml:"name" toml:"name" validate:"required"`
	Label  string              `json:"label" yaml:"label" toml:"label" validate:"required,graphlabel"`
	Kind   storage.ElementKind `json:"kind" yaml:"kind" toml:"kind"`
	Fields []FieldSpec         `json:"fields" yaml:"fields" toml:"fields" validate:"dive"`
}

// typeInfo is the resolved form of a TypeSpec. Frames point at it, so it
// must not be copied after the registry is built.
type typeInfo struct {
	spec   TypeSpec
	fields map[string]FieldSpec
}

// Registry is the immutable type table consulted on every field access
type Registry struct {
	types map[string]*typeInfo
}

// NewRegistry validates specs and builds the type table
func NewRegistry(specs ...TypeSpec) (*Registry, error) {
	r := &Registry{types: make(map[string]*typeInfo, len(specs))}
	for _, spec := range specs {
		if err := validation.Struct(spec); err != nil {
			return nil, fmt.Errorf("type %q: %w", spec.Name, err)
		}
		if _, dup := r.types[spec.Name]; dup {
			return nil, fmt.Errorf("type %q registered twice", spec.Name)
		}

		info := &typeInfo{fields: make(map[string]FieldSpec, len(spec.Fields))}
		properties := make(map[string]string, len(spec.Fields))
		for _, f := range spec.Fields {
			if f.Property == "" {
				f.Property = f.Name
				if err := validation.ValidatePropertyKey(f.Property); err != nil {
					return nil, fmt.Errorf("type %q field %q: %w", spec.Name, f.Name, err)
				}
			}
			if _, err := storage.ParseValueType(f.Type.String()); err != nil {
				return nil, fmt.Errorf("type %q field %q: %w", spec.Name, f.Name, err)
			}
			if _, dup := info.fields[f.Name]; dup {
				return nil, fmt.Errorf("type %q: field %q declared twice", spec.Name, f.Name)
			}
			if other, dup := properties[f.Property]; dup {
				return nil, fmt.Errorf("type %q: fields %q and %q share property %q", spec.Name, other, f.Name, f.Property)
			}
			properties[f.Property] = f.Name
			info.fields[f.Name] = f
		}
		spec.Fields = append([]FieldSpec(nil), spec.Fields...)
		for i := range spec.Fields {
			spec.Fields[i] = info.fields[spec.Fields[i].Name]
		}
		info.spec = spec
		r.types[spec.Name] = info
	}
	return r, nil
}

// MustRegistry is NewRegistry for static type tables
func MustRegistry(specs ...TypeSpec) *Registry {
	r, err := NewRegistry(specs...)
	if err != nil {
		panic(err)
	}
	return r
}

// Type returns the spec registered under name
func (r *Registry) Type(name string) (TypeSpec, bool) {
	info, ok := r.types[name]
	if !ok {
		return TypeSpec{}, false
	}
	return info.spec, true
}

// Types lists registered type names in order
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Declare pushes every field type into the store schema so writes outside
// the framing layer are checked too.
func (r *Registry) Declare(m *txn.Manager) error {
	for _, name := range r.Types() {
		info := r.types[name]
		for _, f := range info.spec.Fields {
			if err := m.DeclareProperty(info.spec.Label, f.Property, f.Type); err != nil {
				return fmt.Errorf("type %q field %q: %w", name, f.Name, err)
			}
		}
	}
	return nil
}

func (r *Registry) lookup(op, name string) (*typeInfo, error) {
	info, ok := r.types[name]
	if !ok {
		return nil, storage.NewError(op).Schema(name).
			Cause(fmt.Errorf("%w: unknown type", storage.ErrSchemaMismatch)).Err()
	}
	return info, nil
}

func (t *typeInfo) field(op, name string) (FieldSpec, error) {
	f, ok := t.fields[name]
	if !ok {
		return f, storage.NewError(op).Schema(t.spec.Name).Field(name).
			Cause(fmt.Errorf("%w: type has no such field", storage.ErrSchemaMismatch)).Err()
	}
	return f, nil
}

// value converts a Go value for field f, rejecting the wrong type
func (t *typeInfo) value(op string, f FieldSpec, v any) (storage.Value, error) {
	val, err := storage.ValueOf(v)
	if err != nil {
		return val, storage.NewError(op).Schema(t.spec.Label).Field(f.Property).Cause(err).Err()
	}
	if val.Type != f.Type {
		return val, storage.TypeMismatchError(op, t.spec.Label, f.Property, f.Type, val.Type)
	}
	return val, nil
}

// properties converts named field values into a property map
func (t *typeInfo) properties(op string, fields map[string]any) (map[string]storage.Value, error) {
	props := make(map[string]storage.Value, len(fields))
	for name, v := range fields {
		f, err := t.field(op, name)
		if err != nil {
			return nil, err
		}
		val, err := t.value(op, f, v)
		if err != nil {
			return nil, err
		}
		props[f.Property] = val
	}
	return props, nil
}
