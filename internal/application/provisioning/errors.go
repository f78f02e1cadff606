package provisioning

import (
	"encoding/json"
	"fmt"
)

// ValidationError reports caller misconfiguration detected before any
// network call. No registry write happens and no retry is implied.
type ValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a ValidationError,
// implementing the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError with the given field and message.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// Error is a terminal polling failure carrying the full structured
// envelope, so the workflow engine can branch on fields rather than
// parse a message string.
type Error struct {
	Envelope Envelope
	cause    error
}

// NewError wraps a failure envelope, optionally with its underlying cause.
func NewError(env Envelope, cause error) *Error {
	return &Error{Envelope: env, cause: cause}
}

// Error serializes the envelope so engines that only see a message still
// get the structured fields.
func (e *Error) Error() string {
	b, err := json.Marshal(e.Envelope)
	if err != nil {
		return fmt.Sprintf("provisioning failed: %s", e.Envelope.Result.Error)
	}
	return string(b)
}

// Unwrap exposes the underlying cause for errors.Is/As at the boundary.
func (e *Error) Unwrap() error { return e.cause }
