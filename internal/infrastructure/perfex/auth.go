package perfex

import (
	"context"
	"net/http"

	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
)

// AuthService checks API keys against the remote system.
type AuthService struct {
	client *Client
	logger *logging.Logger
}

// NewAuthService creates an AuthService that checks keys through client and falls
// back to the client's default key.
func NewAuthService(client *Client) *AuthService {
	return &AuthService{
		client: client,
		logger: client.logger,
	}
}

// ValidateAPIKey reports whether the remote system accepts apiKey, or the
// default key when apiKey is empty. Any failure counts as invalid.
func (a *AuthService) ValidateAPIKey(ctx context.Context, apiKey string) bool {
	key := apiKey
	if key == "" {
		key = a.client.APIKey()
	}
	if key == "" {
		a.logger.Warn("Failed to validate API key", logging.Fields{"error": "no API key provided"})
		return false
	}

	status, _, err := a.client.send(ctx, http.MethodGet, "/authentication", key, nil)
	if err != nil {
		a.logger.Error("Failed to validate API key", logging.Fields{"error": err})
		return false
	}
	if status != http.StatusOK {
		a.logger.Info("API key rejected", logging.Fields{"status": status})
		return false
	}
	return true
}
