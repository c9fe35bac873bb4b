package lifecycle

import (
	"errors"
	"fmt"

	"github.com/akmatori/article73/internal/deadline"
)

// Failure taxonomy of lifecycle operations. Every error returned by this
// package wraps exactly one of these; test with errors.Is.
var (
	// ErrValidation means malformed or missing input
	ErrValidation = errors.New("validation error")
	// ErrInvalidState means the operation is not legal in the incident's current state
	ErrInvalidState = errors.New("invalid state")
	// ErrNotFound means a referenced sub-entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrInvalidClassification means the incident type is unset or unknown
	ErrInvalidClassification = deadline.ErrInvalidClassification
)

func validationError(op, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", op, ErrValidation, fmt.Sprintf(format, args...))
}

func stateError(op, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", op, ErrInvalidState, fmt.Sprintf(format, args...))
}

func notFoundError(op, format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w: %s", op, ErrNotFound, fmt.Sprintf(format, args...))
}
