// Package errdefs defines the error taxonomy shared by all handlers and the
// mapping from error kind to HTTP status. Errors are classified with
// errors.Is against the sentinel kinds below; wrap with fmt.Errorf and %w.
package errdefs

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel error kinds.
var (
	// ErrValidation marks bad caller input (400).
	ErrValidation = errors.New("validation failed")
	// ErrForbidden marks a missing permission (403).
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a missing document, paragraph, queue item, or version (404).
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an illegal state transition, e.g. resolving an
	// already-resolved queue item (409).
	ErrConflict = errors.New("conflict")
	// ErrCorruptedVersion marks an archived payload that failed to decompress.
	// Non-fatal to a listing: the entry is logged and skipped.
	ErrCorruptedVersion = errors.New("corrupted version payload")
	// ErrDatabase marks a transaction or infrastructure failure (500); safe to retry.
	ErrDatabase = errors.New("database error")
)

// Validationf wraps a formatted message as a validation error.
func Validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// Forbiddenf wraps a formatted message as a forbidden error.
func Forbiddenf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrForbidden, args)...)
}

// NotFoundf wraps a formatted message as a not-found error.
func NotFoundf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

// Conflictf wraps a formatted message as a conflict error.
func Conflictf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, prepend(ErrConflict, args)...)
}

// Databasef wraps an underlying store error. The cause is kept in the
// message only; classification stays with ErrDatabase.
func Databasef(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrDatabase, op, err)
}

func prepend(err error, args []interface{}) []interface{} {
	return append([]interface{}{err}, args...)
}

// HTTPStatus maps an error to its HTTP status code. Unclassified errors map
// to 500.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
