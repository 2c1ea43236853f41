package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced document, product or warehouse is missing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition indicates a status change not present in the transition table.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrAlreadyPosted indicates a duplicate posting attempt; callers treat it as a no-op.
	ErrAlreadyPosted = errors.New("document already posted")
	// ErrNothingToCopy indicates the predecessor has no remaining quantity to copy.
	ErrNothingToCopy = errors.New("nothing to copy")
	// ErrDuplicateSuccessor indicates a successor uniqueness rule was violated.
	ErrDuplicateSuccessor = errors.New("successor document already exists")
	// ErrEmptyDocument indicates the document has no line items.
	ErrEmptyDocument = errors.New("document has no line items")
	// ErrDuplicate indicates a unique constraint violation on master data.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrOperationFailed wraps unexpected persistence failures after full rollback.
	ErrOperationFailed = errors.New("operation failed")
)

// OperationFailed attaches the underlying cause to ErrOperationFailed.
func OperationFailed(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrOperationFailed, err)
}
