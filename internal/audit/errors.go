package audit

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that no entry has the requested id.
	ErrNotFound = errors.New("audit: entry not found")
	// ErrInvalidInput is matched by every ValidationError.
	ErrInvalidInput = errors.New("audit: invalid input")
	// ErrStore is matched by every StoreError.
	ErrStore = errors.New("audit: store failure")
)

// ValidationError reports a rejected field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("audit: invalid %s: %s", e.Field, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidInput).
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// StoreError wraps a persistence failure with the operation that hit it.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("audit: store %s: %v", e.Op, e.Err)
}

// Is lets errors.Is match both ErrStore and the wrapped cause.
func (e *StoreError) Is(target error) bool {
	return target == ErrStore
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapStore turns err into a StoreError for op. Nil, not-found and
// validation errors pass through unchanged.
func WrapStore(op string, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidInput) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}
