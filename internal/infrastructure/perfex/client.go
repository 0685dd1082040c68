// Package perfex is a typed client for the PerfexCRM REST API.
package perfex

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

const (
	defaultTimeout = 30 * time.Second

	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// APIError is returned when the remote system answers with a non-2xx
// status. The body is kept verbatim.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("perfex: %s %s returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("perfex: %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Unwrap maps the status onto the matching domain error. Statuses without
// one unwrap to nil.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case e.StatusCode == http.StatusBadRequest, e.StatusCode == http.StatusUnprocessableEntity:
		return domain.ErrInvalidInput
	case e.StatusCode >= http.StatusInternalServerError:
		return domain.ErrInternal
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the remote system.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && errors.Is(apiErr, domain.ErrNotFound)
}

// Client talks to one Perfex installation with a default API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL, apiKey string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("perfex: base URL is required")
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("perfex")
	return c, nil
}

// APIKey returns the default key used for requests.
func (c *Client) APIKey() string {
	return c.apiKey
}

// ListCustomers returns the customer list exactly as Perfex sent it.
func (c *Client) ListCustomers(ctx context.Context) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, "/customers", nil)
	if err != nil {
		c.logger.Error("Failed to get customers", logging.Fields{"error": err})
		return nil, err
	}
	return data, nil
}

// GetCustomer returns a single customer record as sent by Perfex.
func (c *Client) GetCustomer(ctx context.Context, id int64) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodGet, customerPath(id), nil)
	if err != nil {
		c.logger.Error("Failed to get customer", logging.Fields{"customer_id": id, "error": err})
		return nil, err
	}
	return data, nil
}

// CreateCustomer creates a customer and returns the remote response body.
func (c *Client) CreateCustomer(ctx context.Context, customer domain.Customer) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodPost, "/customers", customer)
	if err != nil {
		c.logger.Error("Failed to create customer", logging.Fields{"error": err})
		return nil, err
	}
	return data, nil
}

// UpdateCustomer sends a partial update. Only the fields set on update are
// part of the request body.
func (c *Client) UpdateCustomer(ctx context.Context, id int64, update domain.CustomerUpdate) (json.RawMessage, error) {
	data, err := c.do(ctx, http.MethodPut, customerPath(id), update)
	if err != nil {
		c.logger.Error("Failed to update customer", logging.Fields{"customer_id": id, "error": err})
		return nil, err
	}
	return data, nil
}

// DeleteCustomer removes a customer.
func (c *Client) DeleteCustomer(ctx context.Context, id int64) error {
	if _, err := c.do(ctx, http.MethodDelete, customerPath(id), nil); err != nil {
		c.logger.Error("Failed to delete customer", logging.Fields{"customer_id": id, "error": err})
		return err
	}
	return nil
}

func customerPath(id int64) string {
	return fmt.Sprintf("/customers/%d", id)
}

// do performs an authenticated request with the default key. A 2xx body is
// returned untouched apart from surrounding whitespace.
func (c *Client) do(ctx context.Context, method, path string, body interface{}) (json.RawMessage, error) {
	status, data, err := c.send(ctx, method, path, c.apiKey, body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{
			Method:     method,
			Path:       path,
			StatusCode: status,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return json.RawMessage(bytes.TrimSpace(data)), nil
}

// send performs a request with the given key and returns the status and raw
// body. Only transport failures are errors.
func (c *Client) send(ctx context.Context, method, path, key string, body interface{}) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, pkgerrors.Wrapf(err, "perfex: encode %s %s request", method, path)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, pkgerrors.Wrapf(err, "perfex: build %s %s request", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, pkgerrors.Wrapf(err, "perfex: %s %s", method, path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, pkgerrors.Wrapf(err, "perfex: read %s %s response", method, path)
	}

	c.logger.Debug("Perfex request completed", logging.Fields{
		"method":   method,
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})
	return resp.StatusCode, data, nil
}
