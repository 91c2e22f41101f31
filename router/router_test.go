package router

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolrouter/discovery"
	"github.com/jonwraymond/toolrouter/dispatch"
	"github.com/jonwraymond/toolrouter/embedding"
	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/search"
	"github.com/jonwraymond/toolrouter/transport"
	"github.com/jonwraymond/toolrouter/vectorstore"
)

type fixture struct {
	router   *Router
	registry *registry.Registry
	backend  *httptest.Server
	metrics  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transport.Request
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]any{"called": req.Params.Name, "args": req.Params.Arguments},
		})
	}))
	t.Cleanup(backend.Close)

	ops, err := search.NewOperationIndex(search.OperationIndexConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ops.Close() })

	reg, err := registry.New(registry.Options{
		Embedder: embedding.NewHash(64),
		Store:    vectorstore.NewMemory(),
		Indexer:  ops,
	})
	require.NoError(t, err)

	ranker, err := discovery.New(discovery.Options{Operations: ops, Services: reg})
	require.NoError(t, err)

	metrics := prometheus.NewRegistry()
	d, err := dispatch.New(dispatch.Options{
		Resolver:        reg,
		RequestResponse: transport.NewHTTP(transport.HTTPOptions{}),
		Metrics:         dispatch.NewMetrics(metrics),
	})
	require.NoError(t, err)

	r, err := New(Options{
		Services:   reg,
		Dispatcher: d,
		Operations: ranker,
		Gatherer:   metrics,
	})
	require.NoError(t, err)
	return &fixture{router: r, registry: reg, backend: backend, metrics: metrics}
}

func connect(t *testing.T, r *Router) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := r.Server().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

// callJSON calls a tool and decodes its single text content into out.
func callJSON(t *testing.T, s *mcp.ClientSession, tool string, args map[string]any, out any) {
	t.Helper()
	res, err := s.CallTool(context.Background(), &mcp.CallToolParams{Name: tool, Arguments: args})
	require.NoError(t, err)
	require.False(t, res.IsError, "tool %s returned a tool error", tool)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	require.NoError(t, json.Unmarshal([]byte(text.Text), out), text.Text)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestListTools(t *testing.T) {
	f := newFixture(t)
	s := connect(t, f.router)

	res, err := s.ListTools(context.Background(), nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolSearchServers, ToolAddServer, ToolExec, ToolSearchTools}, names)
}

func TestAddSearchAndExec(t *testing.T) {
	f := newFixture(t)
	s := connect(t, f.router)

	var added map[string]string
	callJSON(t, s, ToolAddServer, map[string]any{
		"server_name":        "weather",
		"server_description": "weather forecast lookup by city",
		"server_endpoint":    f.backend.URL + "/mcp",
		"tools": []any{
			map[string]any{"name": "getWeather", "description": "current weather for a city"},
		},
	}, &added)
	assert.Equal(t, map[string]string{
		"status":  "success",
		"message": "Server 'weather' registered.",
	}, added)

	callJSON(t, s, ToolAddServer, map[string]any{
		"server_name":        "calendar",
		"server_description": "calendar events and scheduling",
		"server_endpoint":    "http://calendar.invalid/mcp",
	}, &added)

	var found []map[string]any
	callJSON(t, s, ToolSearchServers, map[string]any{"query": "weather forecast", "top_k": 1}, &found)
	require.Len(t, found, 1)
	assert.Equal(t, "weather", found[0]["server_name"])
	assert.Equal(t, f.backend.URL+"/mcp", found[0]["server_endpoint"])
	tools, ok := found[0]["tools"].([]any)
	require.True(t, ok, "tools should be structured JSON")
	assert.Len(t, tools, 1)
	assert.Contains(t, found[0], "score")

	callJSON(t, s, ToolSearchServers, map[string]any{"query": "weather"}, &found)
	assert.Len(t, found, 2)

	var hits discovery.Hits
	callJSON(t, s, ToolSearchTools, map[string]any{"query": "weather"}, &hits)
	require.NotEmpty(t, hits)
	assert.Equal(t, "weather", hits[0].Service)
	assert.Equal(t, "getWeather", hits[0].Name)
	assert.Equal(t, discovery.ScoreHybrid, hits[0].ScoreType)

	var out map[string]any
	callJSON(t, s, ToolExec, map[string]any{
		"target_server_name": "weather",
		"target_tool_name":   "getWeather",
		"parameters":         map[string]any{"city": "Paris"},
	}, &out)
	result := out["result"].(map[string]any)
	assert.Equal(t, "getWeather", result["called"])
	assert.Equal(t, map[string]any{"city": "Paris"}, result["args"])
}

func TestToolFailuresAreData(t *testing.T) {
	f := newFixture(t)
	s := connect(t, f.router)

	var out map[string]any
	callJSON(t, s, ToolExec, map[string]any{
		"target_server_name": "ghost",
		"target_tool_name":   "op",
	}, &out)
	assert.Contains(t, out["error"], "not found")

	out = nil
	callJSON(t, s, ToolSearchServers, map[string]any{"query": "x", "top_k": 0}, &out)
	assert.NotEmpty(t, out["error"])

	out = nil
	callJSON(t, s, ToolAddServer, map[string]any{
		"server_name":        "",
		"server_description": "nameless",
		"server_endpoint":    "http://x/mcp",
	}, &out)
	assert.NotEmpty(t, out["error"])

	out = nil
	callJSON(t, s, ToolSearchTools, map[string]any{"query": "x", "limit": -1}, &out)
	assert.NotEmpty(t, out["error"])
}

func TestSearchToolsDisabledWithoutIndex(t *testing.T) {
	f := newFixture(t)
	r, err := New(Options{Services: f.registry, Dispatcher: f.router.dispatcher})
	require.NoError(t, err)
	s := connect(t, r)

	res, err := s.ListTools(context.Background(), nil)
	require.NoError(t, err)
	for _, tool := range res.Tools {
		assert.NotEqual(t, ToolSearchTools, tool.Name)
	}
}

func TestHandlerHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router.Handler())
	defer srv.Close()

	s := connect(t, f.router)
	var out map[string]any
	callJSON(t, s, ToolExec, map[string]any{"target_server_name": "ghost", "target_tool_name": "op"}, &out)

	resp, err := http.Get(srv.URL + PathHealth)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Get(srv.URL + PathMetrics)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "toolrouter_dispatch_total")
}

func TestHandlerServesSSE(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "sse-client"}, nil)
	s, err := client.Connect(ctx, &mcp.SSEClientTransport{Endpoint: srv.URL + PathSSE}, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var added map[string]string
	callJSON(t, s, ToolAddServer, map[string]any{
		"server_name":        "svc",
		"server_description": "anything",
		"server_endpoint":    "http://svc/mcp",
	}, &added)
	assert.Equal(t, "success", added["status"])
}

func TestHandlerServesStreamableHTTP(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.router.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "http-client"}, nil)
	s, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: srv.URL + PathStreamable}, nil)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	res, err := s.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tools)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.router.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + PathHealth
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServeBadAddr(t *testing.T) {
	f := newFixture(t)
	err := f.router.ListenAndServe(context.Background(), "not an address")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listen"))
}
