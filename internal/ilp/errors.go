package ilp

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below.
var (
	// ErrValidation indicates the request was rejected before any store access.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a course or category the request depends on does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidAction indicates an action value outside ValidActions.
	ErrInvalidAction = errors.New("invalid action")

	// ErrPersistence indicates the store rejected a write.
	ErrPersistence = errors.New("persistence failure")

	// ErrReconcile indicates the metacourse reconciliation failed part way.
	ErrReconcile = errors.New("metacourse reconciliation failed")
)

// ValidationError describes a rejected request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// InvalidActionError reports an unrecognised request action.
type InvalidActionError struct {
	Action string
}

func (e *InvalidActionError) Error() string {
	return fmt.Sprintf("invalid action found: %s. Valid actions: %s", e.Action, validActionList())
}

func (e *InvalidActionError) Is(target error) bool {
	return target == ErrInvalidAction || target == ErrValidation
}

// NotFoundError reports a missing record.
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

// CategoryCreateError reports a failure to create a category during path
// resolution.
type CategoryCreateError struct {
	Name string
	Err  error
}

func (e *CategoryCreateError) Error() string {
	return fmt.Sprintf("could not create the new category: %s: %v", e.Name, e.Err)
}

func (e *CategoryCreateError) Unwrap() error { return e.Err }

func (e *CategoryCreateError) Is(target error) bool { return target == ErrPersistence }

// PersistenceError wraps a store failure with the operation and record it
// concerned.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s (%s): %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// ReconcileError wraps any failure inside metacourse reconciliation with the
// child list and parent it was processing. Link changes made before the
// failure remain in the store.
type ReconcileError struct {
	Children       string
	ParentIDNumber string
	Err            error
}

func (e *ReconcileError) Error() string {
	return fmt.Sprintf("error adding child courses %s to metacourse %s: %v", e.Children, e.ParentIDNumber, e.Err)
}

func (e *ReconcileError) Unwrap() error { return e.Err }

func (e *ReconcileError) Is(target error) bool { return target == ErrReconcile }
