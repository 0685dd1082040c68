package server

import "errors"

// Common errors in the server package
var (
	// ErrResponseWriterNotFlusher is returned when the ResponseWriter doesn't support Flusher interface
	ErrResponseWriterNotFlusher = errors.New("response writer does not implement http.Flusher")

	// ErrSessionClosed is returned when writing to a session that has been closed
	ErrSessionClosed = errors.New("session is closed")

	// ErrSessionBusy is returned when a session's inbound queue is full
	ErrSessionBusy = errors.New("session message queue is full")

	// ErrSessionIDExhausted is returned when no unused session ID could be generated
	ErrSessionIDExhausted = errors.New("could not allocate a unique session ID")

	// ErrManagerClosed is returned when opening a session after CloseAll
	ErrManagerClosed = errors.New("session manager is closed")
)
