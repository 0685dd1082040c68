package domain

import "fmt"

// Common domain errors
var (
	ErrNotFound     = NewError("not found", 404)
	ErrUnauthorized = NewError("unauthorized", 401)
	ErrInvalidInput = NewError("invalid input", 400)
	ErrInternal     = NewError("internal server error", 500)
)

// Error represents a domain error with an associated code.
type Error struct {
	Message string
	Code    int
}

// Error returns the error message.
func (e *Error) Error() string {
	return e.Message
}

// Is matches any domain error with the same code, so errors.Is(err,
// ErrNotFound) holds for every 404 domain error in err's chain.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new domain error with the given message and code.
func NewError(message string, code int) *Error {
	return &Error{
		Message: message,
		Code:    code,
	}
}

// ToolNotFoundError indicates that a requested tool was not found.
type ToolNotFoundError struct {
	Name string
	Err  *Error
}

// Error returns the error message.
func (e *ToolNotFoundError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying domain error.
func (e *ToolNotFoundError) Unwrap() error {
	return e.Err
}

// NewToolNotFoundError creates a new ToolNotFoundError.
func NewToolNotFoundError(name string) *ToolNotFoundError {
	return &ToolNotFoundError{
		Name: name,
		Err:  NewError(fmt.Sprintf("tool %s not found", name), 404),
	}
}

// SessionNotFoundError indicates that no open session is registered under
// the given ID. Sessions being torn down report it too.
type SessionNotFoundError struct {
	ID  string
	Err *Error
}

// Error returns the error message.
func (e *SessionNotFoundError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying domain error.
func (e *SessionNotFoundError) Unwrap() error {
	return e.Err
}

// NewSessionNotFoundError creates a new SessionNotFoundError.
func NewSessionNotFoundError(id string) *SessionNotFoundError {
	return &SessionNotFoundError{
		ID:  id,
		Err: NewError(fmt.Sprintf("session with ID %s not found", id), 404),
	}
}

// ValidationError indicates that tool input failed validation.
type ValidationError struct {
	Field   string
	Message string
	Err     *Error
}

// Error returns the error message.
func (e *ValidationError) Error() string {
	return e.Err.Error()
}

// Unwrap exposes the underlying domain error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError. An empty field means the
// input as a whole was rejected.
func NewValidationError(field, message string) *ValidationError {
	text := fmt.Sprintf("invalid input: %s", message)
	if field != "" {
		text = fmt.Sprintf("validation failed for field %s: %s", field, message)
	}
	return &ValidationError{
		Field:   field,
		Message: message,
		Err:     NewError(text, 400),
	}
}
