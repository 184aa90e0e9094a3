package index

import (
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/validation"
)

// Definition describes a secondary index over one label of one element kind
type Definition struct {
	Name       string              `json:"name" yaml:"name"`
	Kind       storage.ElementKind `json:"kind" yaml:"kind"`
	Label      string              `json:"label" yaml:"label" validate:"required,graphlabel"`
	Properties []string            `json:"properties" yaml:"properties" validate:"required,min=1,max=8"`
	Unique     bool                `json:"unique" yaml:"unique"`
}

// DefaultName is Label.prop1.prop2
func (d Definition) DefaultName() string {
	return d.Label + "." + strings.Join(d.Properties, ".")
}

// normalize fills the default name and validates the definition
func (d Definition) normalize() (Definition, error) {
	if err := validation.Struct(d); err != nil {
		return d, fmt.Errorf("invalid index definition: %w", err)
	}
	seen := make(map[string]bool, len(d.Properties))
	for _, p := range d.Properties {
		if seen[p] {
			return d, fmt.Errorf("invalid index definition: property %q listed twice", p)
		}
		seen[p] = true
		if storage.IsReservedProperty(p) {
			if d.Kind != storage.KindEdge || (p != storage.EdgeOutKey && p != storage.EdgeInKey) {
				return d, fmt.Errorf("invalid index definition: %q is only indexable on edges", p)
			}
			continue
		}
		if err := validation.ValidatePropertyKey(p); err != nil {
			return d, fmt.Errorf("invalid index definition: %w", err)
		}
	}
	if d.Name == "" {
		d.Name = d.DefaultName()
	}
	d.Properties = append([]string(nil), d.Properties...)
	return d, nil
}

func (d Definition) covers(kind storage.ElementKind, label string) bool {
	return d.Kind == kind && d.Label == label
}

func (d Definition) sameShape(kind storage.ElementKind, label string, props []string) bool {
	if !d.covers(kind, label) || len(d.Properties) != len(props) {
		return false
	}
	for i := range props {
		if d.Properties[i] != props[i] {
			return false
		}
	}
	return true
}

// Stat describes the size of one index
type Stat struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
	Unique  bool   `json:"unique"`
}
