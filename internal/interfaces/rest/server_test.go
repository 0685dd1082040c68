package rest

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/logging"
	"github.com/FreePeak/perfex-mcp-server/internal/infrastructure/perfex"
	"github.com/FreePeak/perfex-mcp-server/internal/json"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/auth"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/customers"
	"github.com/FreePeak/perfex-mcp-server/internal/usecases/tools"
)

type event struct {
	name string
	data string
}

// fakePerfex answers the customer endpoints the tests touch.
func fakePerfex(t *testing.T) *perfex.Client {
	t.Helper()
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodDelete && r.URL.Path == "/customers/42":
			_, _ = io.WriteString(w, `{"status":true}`)
		case r.Method == http.MethodGet && r.URL.Path == "/authentication":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"status":false,"message":"No data were found"}`)
		}
	}))
	t.Cleanup(remote.Close)

	client, err := perfex.NewClient(remote.URL, "key", perfex.WithLogger(logging.NewNop()))
	require.NoError(t, err)
	return client
}

func newTestServer(t *testing.T) (*httptest.Server, *MCPServer, *tools.Registry) {
	t.Helper()
	client := fakePerfex(t)
	reg := tools.NewRegistry(logging.NewNop())
	auth.Register(reg, perfex.NewAuthService(client), logging.NewNop())
	customers.Register(reg, client, logging.NewNop())

	service := usecases.NewServerService(usecases.ServerConfig{
		Name:    "perfex-mcp-server",
		Version: "1.0.0",
		Tools:   reg,
		Logger:  logging.NewNop(),
	})
	mcp := NewMCPServer(service, Options{Logger: logging.NewNop()})

	srv := httptest.NewServer(mcp.Handler())
	t.Cleanup(srv.Close)
	t.Cleanup(mcp.Sessions().CloseAll)
	return srv, mcp, reg
}

// openStream connects to /sse and returns the session's message endpoint
// and a channel of the events that follow.
func openStream(t *testing.T, ctx context.Context, base string) (string, <-chan event) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+ssePath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		reader := bufio.NewReader(resp.Body)
		var current event
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				current.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				current.data = strings.TrimPrefix(line, "data: ")
			case line == "" && current.name != "":
				events <- current
				current = event{}
			}
		}
	}()

	first := nextEvent(t, events)
	require.Equal(t, "endpoint", first.name)
	require.True(t, strings.HasPrefix(first.data, messagesPath+"?sessionId="), first.data)
	return first.data, events
}

func nextEvent(t *testing.T, events <-chan event) event {
	t.Helper()
	select {
	case e, ok := <-events:
		require.True(t, ok, "stream closed")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return event{}
	}
}

func post(t *testing.T, url, body string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

func decodeResult(t *testing.T, e event) map[string]interface{} {
	t.Helper()
	require.Equal(t, "message", e.name)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(e.data), &msg))
	result, ok := msg["result"].(map[string]interface{})
	require.True(t, ok, "no result in %s", e.data)
	return result
}

func TestMCPServer_SessionFlow(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint, events := openStream(t, ctx, srv.URL)

	status, body := post(t, srv.URL+endpoint,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"n8n","version":"1"}}}`)
	assert.Equal(t, http.StatusAccepted, status)
	assert.Equal(t, "Accepted", body)

	initialized := decodeResult(t, nextEvent(t, events))
	assert.Equal(t, "2024-11-05", initialized["protocolVersion"])
	assert.Equal(t, "perfex-mcp-server", initialized["serverInfo"].(map[string]interface{})["name"])

	status, _ = post(t, srv.URL+endpoint, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = post(t, srv.URL+endpoint,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"delete-customer","arguments":{"id":42}}}`)
	assert.Equal(t, http.StatusAccepted, status)

	deleted := decodeResult(t, nextEvent(t, events))
	assert.Equal(t, []interface{}{map[string]interface{}{"type": "text", "text": "Customer 42 deleted successfully"}}, deleted["content"])

	status, _ = post(t, srv.URL+endpoint,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"get-customer","arguments":{"id":999}}}`)
	assert.Equal(t, http.StatusAccepted, status)

	missing := decodeResult(t, nextEvent(t, events))
	assert.Equal(t, true, missing["isError"])
	text := missing["content"].([]interface{})[0].(map[string]interface{})["text"].(string)
	assert.Contains(t, text, "999")
}

func TestMCPServer_ResponsesStayOnTheirStream(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpointA, eventsA := openStream(t, ctx, srv.URL)
	endpointB, eventsB := openStream(t, ctx, srv.URL)
	require.NotEqual(t, endpointA, endpointB)

	status, _ := post(t, srv.URL+endpointB, `{"jsonrpc":"2.0","id":"b","method":"ping"}`)
	require.Equal(t, http.StatusAccepted, status)
	assert.Contains(t, nextEvent(t, eventsB).data, `"id":"b"`)

	select {
	case e := <-eventsA:
		t.Fatalf("session A received %v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMCPServer_DisconnectClosesSession(t *testing.T) {
	srv, mcp, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())

	endpoint, _ := openStream(t, ctx, srv.URL)
	assert.Equal(t, 1, mcp.Sessions().Count())

	cancel()
	assert.Eventually(t, func() bool {
		return mcp.Sessions().Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	status, body := post(t, srv.URL+endpoint, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "No transport found for sessionId")
}

func TestMCPServer_MessageErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	endpoint, _ := openStream(t, ctx, srv.URL)

	tests := []struct {
		name   string
		url    string
		body   string
		status int
		text   string
	}{
		{name: "unknown session", url: messagesPath + "?sessionId=nope", body: `{}`, status: http.StatusBadRequest, text: "No transport found for sessionId"},
		{name: "missing session", url: messagesPath, body: `{}`, status: http.StatusBadRequest, text: "Missing sessionId"},
		{name: "malformed body", url: endpoint, body: `{"jsonrpc":`, status: http.StatusBadRequest, text: "Invalid message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := post(t, srv.URL+tt.url, tt.body)
			assert.Equal(t, tt.status, status)
			assert.Contains(t, body, tt.text)
		})
	}
}

func TestMCPServer_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, messagesPath},
		{http.MethodPut, ssePath},
		{http.MethodPost, toolsPath},
		{http.MethodDelete, "/"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		})
	}
}

func TestMCPServer_Info(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var info ServerInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "PerfexCRM MCP Server", info.Name)
	assert.Equal(t, "1.0.0", info.Version)
	assert.Equal(t, map[string]string{"sse": "/sse", "messages": "/messages", "tools": "/tools"}, info.Endpoints)

	notFound, err := http.Get(srv.URL + "/unknown")
	require.NoError(t, err)
	notFound.Body.Close()
	assert.Equal(t, http.StatusNotFound, notFound.StatusCode)
}

func TestMCPServer_ToolCatalogMatchesRegistry(t *testing.T) {
	srv, _, reg := newTestServer(t)

	resp, err := http.Get(srv.URL + toolsPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var catalog []struct {
		Name        string                 `json:"name"`
		Description string                 `json:"description"`
		InputSchema map[string]interface{} `json:"inputSchema"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&catalog))

	registered := reg.List()
	require.Len(t, catalog, len(registered))
	for i, d := range registered {
		assert.Equal(t, d.Name, catalog[i].Name)
		assert.Equal(t, d.Description, catalog[i].Description)
		assert.Equal(t, "object", catalog[i].InputSchema["type"])
	}
	assert.Len(t, catalog, 6)
}

func TestMCPServer_CORS(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+toolsPath, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://n8n.local")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMCPServer_StopClosesStreams(t *testing.T) {
	srv, mcp, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, events := openStream(t, ctx, srv.URL)
	require.Equal(t, 1, mcp.Sessions().Count())

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	require.NoError(t, mcp.Stop(stopCtx))
	assert.Equal(t, 0, mcp.Sessions().Count())

	select {
	case e, ok := <-events:
		assert.False(t, ok, "unexpected event %v", e)
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after Stop")
	}

	resp, err := http.Get(srv.URL + ssePath)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, 0, mcp.Sessions().Count())
}
