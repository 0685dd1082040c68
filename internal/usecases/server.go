// Package usecases implements the application business logic for the MCP server.
package usecases

import (
	"context"
	"fmt"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/domain/shared"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/tools"
)

// ToolInvoker lists and runs registered tools.
type ToolInvoker interface {
	List() []*tools.Descriptor
	Invoke(ctx context.Context, name string, raw json.RawMessage) domain.ToolResult
}

// ServerService answers the MCP protocol messages a session receives.
type ServerService struct {
	name         string
	version      string
	instructions string
	tools        ToolInvoker
	logger       *logging.Logger
}

// ServerConfig contains configuration for the ServerService.
type ServerConfig struct {
	Name         string
	Version      string
	Instructions string
	Tools        ToolInvoker
	Logger       *logging.Logger
}

// NewServerService creates a new ServerService.
func NewServerService(config ServerConfig) *ServerService {
	logger := config.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &ServerService{
		name:         config.Name,
		version:      config.Version,
		instructions: config.Instructions,
		tools:        config.Tools,
		logger:       logger.Named("mcp"),
	}
}

// ServerInfo returns information about the server.
func (s *ServerService) ServerInfo() (string, string, string) {
	return s.name, s.version, s.instructions
}

// ListTools returns the tools in their protocol representation.
func (s *ServerService) ListTools() []shared.Tool {
	descriptors := s.tools.List()
	list := make([]shared.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		list = append(list, shared.Tool{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return list
}

// HandleMessage processes one JSON-RPC message and returns the response, or
// nil for notifications.
func (s *ServerService) HandleMessage(ctx context.Context, rawMessage json.RawMessage) interface{} {
	var request shared.JSONRPCRequest
	if err := json.Unmarshal(rawMessage, &request); err != nil {
		s.logger.Warn("Unparseable message", logging.Fields{"error": err})
		return shared.NewErrorResponse(nil, shared.ParseError, shared.ErrorMessage(shared.ParseError))
	}

	if request.JSONRPC != shared.JSONRPCVersion {
		return shared.NewErrorResponse(request.ID, shared.InvalidRequest, "Invalid JSON-RPC version")
	}

	if request.IsNotification() {
		s.processNotification(request)
		return nil
	}

	switch request.Method {
	case shared.MethodInitialize:
		return s.processInitialize(request)
	case shared.MethodPing:
		return shared.NewResponse(request.ID, struct{}{})
	case shared.MethodListTools:
		return shared.NewResponse(request.ID, shared.ListToolsResult{Tools: s.ListTools()})
	case shared.MethodCallTool:
		return s.processToolsCall(ctx, request)
	default:
		return shared.NewErrorResponse(request.ID, shared.MethodNotFound,
			fmt.Sprintf("Method '%s' not found", request.Method))
	}
}

// processNotification handles a message that expects no response.
func (s *ServerService) processNotification(request shared.JSONRPCRequest) {
	switch request.Method {
	case shared.MethodInitialized:
		s.logger.Info("Client ready")
	default:
		s.logger.Debug("Notification received", logging.Fields{"method": request.Method})
	}
}

func (s *ServerService) processInitialize(request shared.JSONRPCRequest) interface{} {
	var params shared.InitializeParams
	if len(request.Params) > 0 {
		if err := json.Unmarshal(request.Params, &params); err != nil {
			return shared.NewErrorResponse(request.ID, shared.InvalidParams, shared.ErrorMessage(shared.InvalidParams))
		}
	}

	version := params.ProtocolVersion
	if version == "" {
		version = shared.MCPProtocolVersion
	}

	s.logger.Info("Client initialized", logging.Fields{
		"client":           params.ClientInfo.Name,
		"client_version":   params.ClientInfo.Version,
		"protocol_version": version,
	})

	return shared.NewResponse(request.ID, shared.InitializeResult{
		ProtocolVersion: version,
		ServerInfo: shared.ServerInfo{
			Name:    s.name,
			Version: s.version,
		},
		Capabilities: shared.Capabilities{
			Tools: &shared.ToolsCapability{},
		},
		Instructions: s.instructions,
	})
}

func (s *ServerService) processToolsCall(ctx context.Context, request shared.JSONRPCRequest) interface{} {
	var params shared.CallToolParams
	if err := json.Unmarshal(request.Params, &params); err != nil {
		return shared.NewErrorResponse(request.ID, shared.InvalidParams, shared.ErrorMessage(shared.InvalidParams))
	}
	if params.Name == "" {
		return shared.NewErrorResponse(request.ID, shared.InvalidParams, "Missing or invalid 'name' parameter")
	}

	result := s.tools.Invoke(ctx, params.Name, params.Arguments)
	if result.IsError {
		s.logger.Info("Tool call failed", logging.Fields{"tool": params.Name, "result": result.Text()})
	}
	return shared.NewResponse(request.ID, result)
}
