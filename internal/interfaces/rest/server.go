// Package rest provides the HTTP interface for the MCP server.
package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/server"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases"
)

const (
	ssePath      = "/sse"
	messagesPath = "/messages"
	toolsPath    = "/tools"

	maxMessageBytes = 4 << 20
)

// Options configures an MCPServer.
type Options struct {
	Addr           string
	AllowedOrigins []string
	KeepAlive      time.Duration
	Logger         *logging.Logger
}

// ServerInfo is the static document served at the root path.
type ServerInfo struct {
	Name          string            `json:"name"`
	Version       string            `json:"version"`
	Description   string            `json:"description"`
	Endpoints     map[string]string `json:"endpoints"`
	Documentation map[string]string `json:"documentation"`
}

// MCPServer represents the HTTP server for the MCP protocol.
type MCPServer struct {
	service    *usecases.ServerService
	sessions   *server.SessionManager
	httpServer *http.Server
	logger     *logging.Logger
}

// NewMCPServer creates a new MCP server.
func NewMCPServer(service *usecases.ServerService, opts Options) *MCPServer {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Default()
	}

	s := &MCPServer{
		service: service,
		sessions: server.NewSessionManager(service,
			server.WithKeepAlive(opts.KeepAlive),
			server.WithLogger(logger),
		),
		logger: logger.Named("http"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleInfo)
	mux.HandleFunc(toolsPath, s.handleTools)
	mux.HandleFunc(ssePath, s.handleSSE)
	mux.HandleFunc(messagesPath, s.handleMessages)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	s.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           corsHandler.Handler(logging.Middleware(s.logger)(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer.RegisterOnShutdown(s.sessions.CloseAll)
	return s
}

// Handler returns the root HTTP handler.
func (s *MCPServer) Handler() http.Handler {
	return s.httpServer.Handler
}

// Sessions returns the session registry.
func (s *MCPServer) Sessions() *server.SessionManager {
	return s.sessions
}

// Start starts the MCP server.
func (s *MCPServer) Start() error {
	s.logger.Info("Starting MCP server", logging.Fields{
		"addr":      s.httpServer.Addr,
		"endpoints": []string{"/", toolsPath, ssePath, messagesPath},
	})
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down. Open streams are closed once the listener
// stops accepting connections, and no new session can be opened after that.
func (s *MCPServer) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.sessions.CloseAll()
	return err
}

func (s *MCPServer) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	_, version, _ := s.service.ServerInfo()
	writeJSON(w, http.StatusOK, ServerInfo{
		Name:        "PerfexCRM MCP Server",
		Version:     version,
		Description: "MCP Server for PerfexCRM API integration with N8N",
		Endpoints: map[string]string{
			"sse":      ssePath,
			"messages": messagesPath,
			"tools":    toolsPath,
		},
		Documentation: map[string]string{
			"sse":      "Endpoint for establishing SSE connection with N8N",
			"messages": "Endpoint for handling messages from N8N",
			"tools":    "Endpoint for listing available tools",
		},
	})
}

func (s *MCPServer) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.service.ListTools())
}

// handleSSE opens a session and streams to it until the client disconnects.
func (s *MCPServer) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := logging.GetLogger(r.Context())
	session, err := s.sessions.OpenSession(r.Context(), w)
	if errors.Is(err, server.ErrManagerClosed) {
		http.Error(w, "Server shutting down", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		logger.Error("Failed to open session", logging.Fields{"error": err})
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	defer s.sessions.CloseSession(session.ID())

	session.Serve(messagesPath + "?sessionId=" + session.ID())
}

// handleMessages hands a client message to its session. The response to the
// message travels over the session's stream; this request only gets an
// acknowledgement.
func (s *MCPServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	logger := logging.GetLogger(r.Context())
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "Missing sessionId parameter", http.StatusBadRequest)
		return
	}
	if _, ok := s.sessions.GetSession(sessionID); !ok {
		logger.Warn("Message for unknown session", logging.Fields{"session_id": sessionID})
		http.Error(w, "No transport found for sessionId", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageBytes))
	if err != nil || !json.Valid(body) {
		http.Error(w, "Invalid message", http.StatusBadRequest)
		return
	}

	err = s.sessions.RouteMessage(sessionID, json.RawMessage(body))
	switch {
	case err == nil:
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, "Accepted")
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "No transport found for sessionId", http.StatusBadRequest)
	case errors.Is(err, server.ErrSessionBusy):
		logger.Warn("Session busy", logging.Fields{"session_id": sessionID})
		http.Error(w, "Session busy", http.StatusServiceUnavailable)
	default:
		logger.Error("Failed to route message", logging.Fields{"session_id": sessionID, "error": err})
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
