package frame

import (
	"fmt"
	"time"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
	"github.com/dd0wney/cluso-framegraph/pkg/txn"
)

// Frame is a typed view over one element within one transaction. It holds
// no copy of the element: every accessor reads through the transaction.
// Frames over the same element, type and transaction compare equal with ==.
type Frame struct {
	id  uint64
	typ *typeInfo
	tx  *txn.Tx
}

// Wrap frames elem as typeName. The element's kind and label must match the
// type. A nil element is ErrNotFound.
func (r *Registry) Wrap(tx *txn.Tx, elem storage.Element, typeName string) (Frame, error) {
	info, err := r.lookup("wrap", typeName)
	if err != nil {
		return Frame{}, err
	}
	if isNilElement(elem) {
		return Frame{}, storage.NewError("wrap").Schema(typeName).
			Context("nil element").Cause(storage.ErrNotFound).Err()
	}
	if elem.ElementKind() != info.spec.Kind || elem.ElementLabel() != info.spec.Label {
		return Frame{}, storage.NewError("wrap").Element(elem.ElementID()).
			Cause(fmt.Errorf("%w: %s labelled %q is not a %s (%s %q)", storage.ErrSchemaMismatch,
				elem.ElementKind(), elem.ElementLabel(), typeName, info.spec.Kind, info.spec.Label)).Err()
	}
	return Frame{id: elem.ElementID(), typ: info, tx: tx}, nil
}

func isNilElement(elem storage.Element) bool {
	switch e := elem.(type) {
	case nil:
		return true
	case *storage.Vertex:
		return e == nil
	case *storage.Edge:
		return e == nil
	}
	return false
}

// WrapID loads an element through tx and frames it
func (r *Registry) WrapID(tx *txn.Tx, id uint64, typeName string) (Frame, error) {
	elem, err := tx.GetElement(id)
	if err != nil {
		return Frame{}, err
	}
	return r.Wrap(tx, elem, typeName)
}

// Unwrap returns the framed element's ID
func Unwrap(f Frame) uint64 {
	return f.id
}

func (f Frame) ID() uint64   { return f.id }
func (f Frame) Type() string { return f.typ.spec.Name }
func (f Frame) Tx() *txn.Tx  { return f.tx }

// IsZero reports whether f is the zero Frame returned alongside errors
func (f Frame) IsZero() bool { return f.typ == nil }

func (f Frame) kind() storage.ElementKind { return f.typ.spec.Kind }

// Element returns a copy of the underlying element as the transaction sees it
func (f Frame) Element() (storage.Element, error) {
	return f.tx.GetElement(f.id)
}

// Get returns the raw value of a field. A field the element does not carry
// is ErrNotFound.
func (f Frame) Get(field string) (storage.Value, error) {
	spec, err := f.typ.field("get", field)
	if err != nil {
		return storage.Value{}, err
	}
	elem, err := f.tx.GetElement(f.id)
	if err != nil {
		return storage.Value{}, err
	}
	v, ok := elem.Property(spec.Property)
	if !ok {
		return storage.Value{}, storage.NewError("get").Element(f.id).Field(spec.Property).Cause(storage.ErrNotFound).Err()
	}
	return v, nil
}

// Has reports whether the element carries field
func (f Frame) Has(field string) (bool, error) {
	spec, err := f.typ.field("has", field)
	if err != nil {
		return false, err
	}
	elem, err := f.tx.GetElement(f.id)
	if err != nil {
		return false, err
	}
	_, ok := elem.Property(spec.Property)
	return ok, nil
}

func (f Frame) String(field string) (string, error) {
	v, err := f.Get(field)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (f Frame) Int(field string) (int64, error) {
	v, err := f.Get(field)
	if err != nil {
		return 0, err
	}
	return v.AsInt()
}

func (f Frame) Float(field string) (float64, error) {
	v, err := f.Get(field)
	if err != nil {
		return 0, err
	}
	return v.AsFloat()
}

func (f Frame) Bool(field string) (bool, error) {
	v, err := f.Get(field)
	if err != nil {
		return false, err
	}
	return v.AsBool()
}

func (f Frame) Bytes(field string) ([]byte, error) {
	v, err := f.Get(field)
	if err != nil {
		return nil, err
	}
	return v.AsBytes()
}

func (f Frame) Time(field string) (time.Time, error) {
	v, err := f.Get(field)
	if err != nil {
		return time.Time{}, err
	}
	return v.AsTimestamp()
}

// Set writes a field through the frame's transaction. Nothing is committed.
func (f Frame) Set(field string, value any) error {
	spec, err := f.typ.field("set", field)
	if err != nil {
		return err
	}
	v, err := f.typ.value("set", spec, value)
	if err != nil {
		return err
	}
	return f.tx.SetProperty(f.id, spec.Property, v)
}

// Clear removes a field from the element
func (f Frame) Clear(field string) error {
	spec, err := f.typ.field("clear", field)
	if err != nil {
		return err
	}
	return f.tx.RemoveProperty(f.id, spec.Property)
}

// Remove deletes the framed element. Removing a vertex removes its edges.
func (f Frame) Remove() error {
	if f.kind() == storage.KindEdge {
		return f.tx.DeleteEdge(f.id)
	}
	return f.tx.DeleteVertex(f.id)
}
