// Package apperr defines the application error taxonomy shared by the
// storage layer, the importer, the sync engine and the HTTP handlers.
// Every error carries a machine-readable code and the HTTP status it maps to.
package apperr

import (
	"errors"
	"fmt"
)

// Error codes surfaced in the HTTP error envelope.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeConflict          = "conflict"
	CodeLockContention    = "lock_contention"
	CodeIOFailure         = "io_failure"
	CodeCorruptCollection = "corrupt_collection"
	CodeMigration         = "migration_error"
	CodeRemoteUnavailable = "remote_unavailable"
	CodeInternal          = "internal_error"
)

// Error is a structured application error.
type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// WithDetails attaches structured detail fields and returns the error.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithCause records the underlying error and returns the error.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Validation reports bad caller input. Never retried automatically.
func Validation(message string) *Error {
	return &Error{Code: CodeValidation, Message: message, Status: 400}
}

// NotFound reports a missing record.
func NotFound(message string) *Error {
	return &Error{Code: CodeNotFound, Message: message, Status: 404}
}

// Conflict reports a state conflict (e.g. duplicate id).
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message, Status: 409}
}

// LockContention reports that the single-writer lock could not be acquired
// within the bounded wait. Retryable by the caller after a delay.
func LockContention(message string) *Error {
	return &Error{Code: CodeLockContention, Message: message, Status: 503}
}

// IO reports an underlying filesystem failure. Fatal for the operation;
// the destination file is left byte-identical to before the attempt.
func IO(message string, cause error) *Error {
	return &Error{Code: CodeIOFailure, Message: message, Status: 500, cause: cause}
}

// CorruptCollection reports a collection row that cannot be parsed against
// the expected column set.
func CorruptCollection(message string) *Error {
	return &Error{Code: CodeCorruptCollection, Message: message, Status: 500}
}

// Migration reports a failed schema migration step. Fatal at startup.
func Migration(message string, cause error) *Error {
	return &Error{Code: CodeMigration, Message: message, Status: 500, cause: cause}
}

// RemoteUnavailable reports a transient remote API failure scoped to one
// file. It never aborts the enclosing sync batch.
func RemoteUnavailable(message string, cause error) *Error {
	return &Error{Code: CodeRemoteUnavailable, Message: message, Status: 502, cause: cause}
}

// From extracts an *Error from err, or wraps err as an internal error.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return &Error{Code: CodeInternal, Message: "Internal server error", Status: 500, cause: err}
}

// IsCode reports whether err carries the given application error code.
func IsCode(err error, code string) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Code == code
}
