package storage

import (
	"errors"
	"fmt"
	"testing"
)

func TestStorageError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *StorageError
		expected string
	}{
		{
			name:     "with ID",
			err:      &StorageError{Op: "get", Entity: "vertex", ID: 12, Cause: ErrNotFound},
			expected: "get vertex 12: not found",
		},
		{
			name:     "with ID and field",
			err:      &StorageError{Op: "set_property", Entity: "vertex", ID: 4, Field: "name", Cause: ErrTypeMismatch},
			expected: "set_property vertex 4 (field name): type mismatch",
		},
		{
			name:     "with ID and context",
			err:      &StorageError{Op: "create_edge", Entity: "vertex", ID: 9, Context: "source", Cause: ErrNotFound},
			expected: "create_edge vertex 9 (source): not found",
		},
		{
			name:     "index context",
			err:      &StorageError{Op: "lookup", Entity: "index", Context: "Person.name", Cause: ErrNotFound},
			expected: "lookup index (Person.name): not found",
		},
		{
			name:     "minimal",
			err:      &StorageError{Op: "commit", Entity: "tx", Cause: fmt.Errorf("boom")},
			expected: "commit tx: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"vertex not found", VertexNotFoundError("get", 1), ErrNotFound},
		{"edge not found", EdgeNotFoundError("get", 1), ErrNotFound},
		{"element not found", ElementNotFoundError("set_property", 1), ErrNotFound},
		{"type mismatch", TypeMismatchError("set_property", "Person", "age", TypeInt, TypeString), ErrTypeMismatch},
		{"write conflict", ErrWriteConflict, ErrConstraintViolation},
		{"wrapped", fmt.Errorf("commit: %w", NewError("commit").Tx("t1").Cause(ErrWriteConflict).Err()), ErrConstraintViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.target) {
				t.Errorf("errors.Is(%v, %v) = false", tt.err, tt.target)
			}
		})
	}

	if !IsNotFound(VertexNotFoundError("get", 3)) {
		t.Error("IsNotFound() = false for a vertex not found error")
	}
	if IsConstraintViolation(VertexNotFoundError("get", 3)) {
		t.Error("IsConstraintViolation() = true for a not found error")
	}
}

func TestErrorBuilder(t *testing.T) {
	err := NewError("declare_property").Schema("Person").Field("age").Cause(ErrTypeMismatch).Build()

	if err.Entity != "schema" || err.Context != "Person" || err.Field != "age" {
		t.Errorf("Build() = %+v", err)
	}

	var se *StorageError
	if !errors.As(fmt.Errorf("wrap: %w", err), &se) {
		t.Fatal("errors.As() failed to find StorageError")
	}
	if se.Op != "declare_property" {
		t.Errorf("Op = %q", se.Op)
	}
}
