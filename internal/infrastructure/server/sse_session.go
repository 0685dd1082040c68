package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

// sseSession is one open event stream. Inbound messages are handled one at a
// time, in arrival order, by a dedicated goroutine; responses are queued and
// written by whichever goroutine runs Serve.
type sseSession struct {
	id        string
	createdAt time.Time
	writer    http.ResponseWriter
	flusher   http.Flusher
	handler   domain.MessageHandler
	keepAlive time.Duration
	logger    *logging.Logger

	inbound  chan json.RawMessage
	outbound chan string

	// mu serializes Deliver against Close so a message racing a teardown
	// is either queued before the close or rejected.
	mu        sync.Mutex
	closed    bool
	done      chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc
}

type sessionConfig struct {
	id         string
	handler    domain.MessageHandler
	bufferSize int
	keepAlive  time.Duration
	logger     *logging.Logger
}

func newSSESession(ctx context.Context, w http.ResponseWriter, cfg sessionConfig) (*sseSession, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrResponseWriterNotFlusher
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &sseSession{
		id:        cfg.id,
		createdAt: time.Now(),
		writer:    w,
		flusher:   flusher,
		handler:   cfg.handler,
		keepAlive: cfg.keepAlive,
		logger:    cfg.logger.With(logging.Fields{"session_id": cfg.id}),
		inbound:   make(chan json.RawMessage, cfg.bufferSize),
		outbound:  make(chan string, cfg.bufferSize),
		done:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	go s.handleMessages()
	return s, nil
}

// ID returns the session ID.
func (s *sseSession) ID() string {
	return s.id
}

// CreatedAt returns when the session was opened.
func (s *sseSession) CreatedAt() time.Time {
	return s.createdAt
}

// Context returns the session's context.
func (s *sseSession) Context() context.Context {
	return s.ctx
}

// Deliver queues a message for the handler loop.
func (s *sseSession) Deliver(rawMessage json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.NewSessionNotFoundError(s.id)
	}
	select {
	case s.inbound <- rawMessage:
		return nil
	default:
		return ErrSessionBusy
	}
}

// Send queues event as an SSE message frame. It blocks while the outbound
// queue is full and fails once the session is closed.
func (s *sseSession) Send(event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	frame := fmt.Sprintf("event: message\ndata: %s\n\n", data)

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	select {
	case s.outbound <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// Close closes the session.
func (s *sseSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()
		close(s.done)
		s.logger.Debug("Session closed", logging.Fields{"duration": time.Since(s.createdAt)})
	})
}

// Serve writes the stream headers and the endpoint event, then pumps queued
// frames to the client until the session closes or the client goes away.
func (s *sseSession) Serve(endpoint string) {
	h := s.writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	s.writer.WriteHeader(http.StatusOK)

	if err := s.write(fmt.Sprintf("event: endpoint\ndata: %s\n\n", endpoint)); err != nil {
		s.logger.Warn("Failed to write endpoint event", logging.Fields{"error": err})
		return
	}

	var tick <-chan time.Time
	if s.keepAlive > 0 {
		ticker := time.NewTicker(s.keepAlive)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			return
		case frame := <-s.outbound:
			if err := s.write(frame); err != nil {
				s.logger.Debug("Stream write failed", logging.Fields{"error": err})
				return
			}
		case <-tick:
			if err := s.write(": ping\n\n"); err != nil {
				s.logger.Debug("Keep-alive write failed", logging.Fields{"error": err})
				return
			}
		}
	}
}

func (s *sseSession) write(frame string) error {
	if _, err := io.WriteString(s.writer, frame); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// handleMessages runs inbound messages through the handler until the session
// closes. Handlers run on a context detached from the session so a call in
// flight completes even if the client disconnects; its response is dropped.
func (s *sseSession) handleMessages() {
	ctx := context.WithoutCancel(s.ctx)
	for {
		select {
		case <-s.done:
			return
		case raw := <-s.inbound:
			response := s.handler.HandleMessage(ctx, raw)
			if response == nil {
				continue
			}
			if err := s.Send(response); err != nil {
				s.logger.Debug("Dropped response", logging.Fields{"error": err})
			}
		}
	}
}
