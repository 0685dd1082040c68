package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

const (
	defaultBufferSize = 100
	maxIDAttempts     = 8
)

// SessionManager implements domain.ConnectionManager for SSE sessions. It
// owns the registry of open sessions and routes follow-up messages to them.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	closed   bool

	handler    domain.MessageHandler
	bufferSize int
	keepAlive  time.Duration
	newID      func() string
	logger     *logging.Logger
}

var _ domain.ConnectionManager = (*SessionManager)(nil)

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithBufferSize sets the per-session inbound and outbound queue length.
func WithBufferSize(size int) ManagerOption {
	return func(m *SessionManager) {
		if size > 0 {
			m.bufferSize = size
		}
	}
}

// WithKeepAlive sets the interval between keep-alive comments. Zero disables them.
func WithKeepAlive(interval time.Duration) ManagerOption {
	return func(m *SessionManager) {
		m.keepAlive = interval
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) ManagerOption {
	return func(m *SessionManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithIDGenerator replaces the session ID generator.
func WithIDGenerator(fn func() string) ManagerOption {
	return func(m *SessionManager) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// NewSessionManager creates a manager whose sessions answer messages with handler.
func NewSessionManager(handler domain.MessageHandler, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:   make(map[string]domain.Session),
		handler:    handler,
		bufferSize: defaultBufferSize,
		newID:      func() string { return uuid.New().String() },
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.Named("sessions")
	return m
}

// OpenSession registers a new session that streams to w. The session lives
// until CloseSession is called or ctx is cancelled. It fails with
// ErrManagerClosed once CloseAll has run.
func (m *SessionManager) OpenSession(ctx context.Context, w http.ResponseWriter) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}

	id, err := m.allocateID()
	if err != nil {
		return nil, err
	}

	session, err := newSSESession(ctx, w, sessionConfig{
		id:         id,
		handler:    m.handler,
		bufferSize: m.bufferSize,
		keepAlive:  m.keepAlive,
		logger:     m.logger,
	})
	if err != nil {
		return nil, err
	}

	m.sessions[id] = session
	m.logger.Info("Session opened", logging.Fields{"session_id": id, "active": len(m.sessions)})
	return session, nil
}

// allocateID returns an ID not currently registered. Callers hold m.mu.
func (m *SessionManager) allocateID() (string, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := m.newID()
		if _, exists := m.sessions[id]; !exists && id != "" {
			return id, nil
		}
	}
	return "", ErrSessionIDExhausted
}

// CloseSession removes and closes a session. Unknown IDs are ignored.
func (m *SessionManager) CloseSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return
	}
	delete(m.sessions, sessionID)
	session.Close()
	m.logger.Info("Session closed", logging.Fields{
		"session_id": sessionID,
		"age":        time.Since(session.CreatedAt()).Round(time.Millisecond),
		"active":     len(m.sessions),
	})
}

// RouteMessage queues a message for the session's handler. The response is
// written to that session's stream, never returned here.
func (m *SessionManager) RouteMessage(sessionID string, rawMessage json.RawMessage) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return domain.NewSessionNotFoundError(sessionID)
	}
	return session.Deliver(rawMessage)
}

// GetSession retrieves a session by its ID.
func (m *SessionManager) GetSession(sessionID string) (domain.Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	session, ok := m.sessions[sessionID]
	return session, ok
}

// CloseAll closes all active sessions and refuses new ones.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true

	for _, session := range m.sessions {
		session.Close()
	}
	if len(m.sessions) > 0 {
		m.logger.Info("Closed all sessions", logging.Fields{"count": len(m.sessions)})
	}
	m.sessions = make(map[string]domain.Session)
}

// Count returns the number of active sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
