// Package auth exposes API key validation as an MCP tool.
package auth

import (
	"context"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/tools"
)

// ValidateTool is the name of the validation tool.
const ValidateTool = "validate-perfex-auth"

// Result texts.
const (
	ValidText   = "API key is valid"
	InvalidText = "API key is invalid or there was an error validating it"
)

// Validator checks an API key. An empty key means the configured default.
type Validator interface {
	ValidateAPIKey(ctx context.Context, apiKey string) bool
}

// Register adds the validation tool to reg.
func Register(reg *tools.Registry, validator Validator, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.Named("auth")

	reg.Register(tools.NewTool(ValidateTool,
		func(ctx context.Context, args tools.Arguments) domain.ToolResult {
			if validator.ValidateAPIKey(ctx, args.String("apiKey")) {
				return domain.TextResult(ValidText)
			}
			logger.Debug("API key validation failed")
			return domain.TextResult(InvalidText)
		},
		tools.WithDescription("Validate PerfexCRM API key"),
		tools.WithInput(
			tools.WithString("apiKey", tools.Description("API key to validate; defaults to the configured key")),
		),
	))
}
