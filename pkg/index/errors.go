package index

import (
	"fmt"

	"github.com/dd0wney/cluso-framegraph/pkg/storage"
)

// ConstraintViolationError reports a unique index that would gain a
// duplicate key. It matches storage.ErrConstraintViolation.
type ConstraintViolationError struct {
	Index      string
	Key        string
	ExistingID uint64
	ID         uint64
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("unique index %s: key %s of element %d already owned by element %d",
		e.Index, e.Key, e.ID, e.ExistingID)
}

func (e *ConstraintViolationError) Unwrap() error {
	return storage.ErrConstraintViolation
}

func indexNotFound(op, name string) error {
	return storage.NewError(op).Index(name).Cause(storage.ErrNotFound).Err()
}
