package perfex

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/perfex-mcp-server/internal/domain"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL+"/api/", "default-key")
	require.NoError(t, err)
	return client
}

func strPtr(s string) *string { return &s }

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("  ", "key")
	assert.Error(t, err)
}

func TestClient_ListCustomers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/customers", r.URL.Path)
		assert.Equal(t, "Bearer default-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `[{"id":"1","company":"Acme","country":"12"},{"id":2,"company":"Globex"}]`)
	})

	customers, err := client.ListCustomers(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"1","company":"Acme","country":"12"},{"id":2,"company":"Globex"}]`, string(customers))
}

func TestClient_GetCustomer_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/customers/999", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"status":false,"message":"No data were found"}`+"\n")
	})

	customer, err := client.GetCustomer(context.Background(), 999)
	assert.Nil(t, customer)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.MethodGet, apiErr.Method)
	assert.Equal(t, "/customers/999", apiErr.Path)
	assert.Equal(t, `{"status":false,"message":"No data were found"}`, apiErr.Body)
	assert.Contains(t, apiErr.Error(), "404")
}

func TestClient_CreateCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Acme", body["company"])
		assert.EqualValues(t, 12, body["country"])
		assert.NotContains(t, body, "id")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"status":true,"message":"Client add successful."}`+"\n")
	})

	created, err := client.CreateCustomer(context.Background(), domain.Customer{Company: "Acme", Country: 12})
	require.NoError(t, err)
	assert.Equal(t, `{"status":true,"message":"Client add successful."}`, string(created))
}

func TestClient_UpdateCustomer_OmitsUnsetFields(t *testing.T) {
	var raw map[string]interface{}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/customers/5", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"id":5,"company":"X","city":"Berlin"}`)
	})

	updated, err := client.UpdateCustomer(context.Background(), 5, domain.CustomerUpdate{Company: strPtr("X")})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"company": "X"}, raw)
	assert.JSONEq(t, `{"id":5,"company":"X","city":"Berlin"}`, string(updated))
}

func TestClient_DeleteCustomer(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/customers/42", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.DeleteCustomer(context.Background(), 42))
}

func TestClient_DeleteCustomer_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := client.DeleteCustomer(context.Background(), 42)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "boom", apiErr.Body)
	assert.False(t, IsNotFound(err))
	assert.ErrorIs(t, err, domain.ErrInternal)
}

func TestAPIError_DomainErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusBadRequest, domain.ErrInvalidInput},
		{http.StatusUnprocessableEntity, domain.ErrInvalidInput},
		{http.StatusBadGateway, domain.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := pkgerrors.Wrap(&APIError{Method: http.MethodGet, Path: "/customers", StatusCode: tt.status}, "call")
			assert.ErrorIs(t, err, tt.want)
		})
	}

	var teapot error = &APIError{StatusCode: http.StatusTeapot}
	assert.False(t, errors.Is(teapot, domain.ErrNotFound))
	assert.False(t, errors.Is(teapot, domain.ErrInternal))
}

func TestClient_PassesBodiesThrough(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "  not json\n")
	})

	body, err := client.GetCustomer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "not json", string(body))
}

func TestClient_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := NewClient(srv.URL, "key", WithTimeout(time.Second))
	require.NoError(t, err)

	_, err = client.ListCustomers(context.Background())
	require.Error(t, err)
	var apiErr *APIError
	assert.False(t, errors.As(err, &apiErr))
}
