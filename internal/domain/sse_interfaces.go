package domain

import (
	"context"
	"net/http"
	"time"

	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

// MessageHandler processes one raw protocol message received for a session
// and returns the response to stream back, or nil when there is nothing to
// send (notifications).
type MessageHandler interface {
	HandleMessage(ctx context.Context, rawMessage json.RawMessage) interface{}
}

// MessageHandlerFunc adapts a function to MessageHandler.
type MessageHandlerFunc func(ctx context.Context, rawMessage json.RawMessage) interface{}

// HandleMessage calls f(ctx, rawMessage).
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, rawMessage json.RawMessage) interface{} {
	return f(ctx, rawMessage)
}

// Session represents one open SSE stream.
type Session interface {
	// ID returns the session identifier.
	ID() string

	// CreatedAt returns when the stream was opened.
	CreatedAt() time.Time

	// Context is cancelled when the session closes or the client goes away.
	Context() context.Context

	// Deliver queues an inbound message for the session's handler loop.
	Deliver(rawMessage json.RawMessage) error

	// Send writes an event onto the session's stream.
	Send(event interface{}) error

	// Serve announces the message endpoint and pumps events to the client
	// until the session closes. It blocks.
	Serve(endpoint string)

	// Close stops the session. It is safe to call more than once.
	Close()
}

// ConnectionManager owns the set of open sessions.
type ConnectionManager interface {
	// OpenSession registers a new session streaming to w.
	OpenSession(ctx context.Context, w http.ResponseWriter) (Session, error)

	// CloseSession removes and closes a session. Unknown IDs are ignored.
	CloseSession(sessionID string)

	// RouteMessage hands a message to the session's handler loop.
	RouteMessage(sessionID string, rawMessage json.RawMessage) error

	// GetSession retrieves a session by ID.
	GetSession(sessionID string) (Session, bool)

	// CloseAll closes every open session.
	CloseAll()

	// Count returns the number of open sessions.
	Count() int
}
