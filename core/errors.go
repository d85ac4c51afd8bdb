package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError is a shortcut for a ValidationError on a single field.
func NewFieldError(field string, err error) error {
	return &ValidationError{Err: err, Fields: []FieldError{{Field: field, Error: err.Error()}}}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError is returned by repositories when the requested object does not exist.
type NotFoundError struct {
	msg string
}

func NewNotFoundError(msg string) error { return &NotFoundError{msg: msg} }

func (e *NotFoundError) Error() string { return e.msg }

// ConflictError is returned when a write collides with existing state (duplicates, idempotency mismatches).
type ConflictError struct {
	msg string
}

func NewConflictError(msg string) error { return &ConflictError{msg: msg} }

func (e *ConflictError) Error() string { return e.msg }

// StateError is returned when an operation is not allowed in the current state of an object.
type StateError struct {
	msg string
}

func NewStateError(msg string) error { return &StateError{msg: msg} }

func (e *StateError) Error() string { return e.msg }

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsState(err error) bool {
	_, ok := errors.Cause(err).(*StateError)
	return ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
