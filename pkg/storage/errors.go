package storage

import (
	"errors"
	"fmt"
)

// Error taxonomy. Every error returned by the engine matches exactly one of
// these through errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrTypeMismatch        = errors.New("type mismatch")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrTransactionState    = errors.New("invalid transaction state")
	ErrSchemaMismatch      = errors.New("schema mismatch")
)

// ErrWriteConflict reports that another transaction committed a change to the
// same element first. It is a constraint violation.
var ErrWriteConflict = fmt.Errorf("%w: write conflict", ErrConstraintViolation)

// StorageError provides structured error information for graph operations.
type StorageError struct {
	Op      string // Operation that failed (e.g., "create_edge", "set_property")
	Entity  string // Entity type ("vertex", "edge", "index", "schema", "tx")
	ID      uint64 // Entity ID, when there is one
	Field   string // Property name, when relevant
	Cause   error  // Underlying error, usually one of the taxonomy sentinels
	Context string // Additional context
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.ID != 0 {
		if e.Field != "" {
			return fmt.Sprintf("%s %s %d (field %s): %v", e.Op, e.Entity, e.ID, e.Field, e.Cause)
		}
		if e.Context != "" {
			return fmt.Sprintf("%s %s %d (%s): %v", e.Op, e.Entity, e.ID, e.Context, e.Cause)
		}
		return fmt.Sprintf("%s %s %d: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s (field %s): %v", e.Op, e.Entity, e.Field, e.Cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Entity, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// ErrorBuilder provides a fluent interface for building StorageErrors.
type ErrorBuilder struct {
	err StorageError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: StorageError{Op: op}}
}

// Vertex sets the entity to "vertex" with the given ID.
func (b *ErrorBuilder) Vertex(id uint64) *ErrorBuilder {
	b.err.Entity = "vertex"
	b.err.ID = id
	return b
}

// Edge sets the entity to "edge" with the given ID.
func (b *ErrorBuilder) Edge(id uint64) *ErrorBuilder {
	b.err.Entity = "edge"
	b.err.ID = id
	return b
}

// Element sets the entity to "element" for IDs whose kind is unknown.
func (b *ErrorBuilder) Element(id uint64) *ErrorBuilder {
	b.err.Entity = "element"
	b.err.ID = id
	return b
}

// Index sets the entity to "index" with the given index name.
func (b *ErrorBuilder) Index(name string) *ErrorBuilder {
	b.err.Entity = "index"
	b.err.Context = name
	return b
}

// Schema sets the entity to "schema" for a label.
func (b *ErrorBuilder) Schema(label string) *ErrorBuilder {
	b.err.Entity = "schema"
	b.err.Context = label
	return b
}

// Tx sets the entity to "tx".
func (b *ErrorBuilder) Tx(id string) *ErrorBuilder {
	b.err.Entity = "tx"
	b.err.Context = id
	return b
}

// Field sets the property name.
func (b *ErrorBuilder) Field(name string) *ErrorBuilder {
	b.err.Field = name
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed StorageError.
func (b *ErrorBuilder) Build() *StorageError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// Convenience constructors for the common shapes

// VertexNotFoundError creates a vertex not found error.
func VertexNotFoundError(op string, id uint64) error {
	return NewError(op).Vertex(id).Cause(ErrNotFound).Err()
}

// EdgeNotFoundError creates an edge not found error.
func EdgeNotFoundError(op string, id uint64) error {
	return NewError(op).Edge(id).Cause(ErrNotFound).Err()
}

// ElementNotFoundError is used when an ID names neither a vertex nor an edge.
func ElementNotFoundError(op string, id uint64) error {
	return NewError(op).Element(id).Cause(ErrNotFound).Err()
}

// TypeMismatchError reports a value whose type conflicts with the schema.
func TypeMismatchError(op, label, field string, want, got ValueType) error {
	return NewError(op).Schema(label).Field(field).
		Cause(fmt.Errorf("%w: declared %s, got %s", ErrTypeMismatch, want, got)).Err()
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConstraintViolation returns true for unique, referential and conflict failures.
func IsConstraintViolation(err error) bool {
	return errors.Is(err, ErrConstraintViolation)
}
