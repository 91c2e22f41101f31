package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/toolrouter/embedding"
	"github.com/jonwraymond/toolrouter/registry"
	"github.com/jonwraymond/toolrouter/transport"
	"github.com/jonwraymond/toolrouter/vectorstore"
)

type staticResolver map[string]string

func (s staticResolver) ResolveEndpoint(_ context.Context, identity string) (string, error) {
	if ep, ok := s[identity]; ok {
		return ep, nil
	}
	return "", registry.ErrNotFound
}

// fakeTransport records calls and replays a canned outcome.
type fakeTransport struct {
	value any
	err   error
	panic any

	mu    sync.Mutex
	calls []string
}

func (f *fakeTransport) Execute(_ context.Context, endpoint, operation string, _ map[string]any) (any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, endpoint+"#"+operation)
	f.mu.Unlock()
	if f.panic != nil {
		panic(f.panic)
	}
	return f.value, f.err
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type downEmbedder struct{}

func (downEmbedder) Dimension() int { return 8 }
func (downEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("provider unreachable")
}

func newDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	d, err := New(opts)
	require.NoError(t, err)
	return d
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Options{RequestResponse: &fakeTransport{}})
	assert.Error(t, err)
	_, err = New(Options{Resolver: staticResolver{}})
	assert.Error(t, err)
}

func TestInvokeRequestResponseScenario(t *testing.T) {
	var calls int
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req transport.Request
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &req)
		gotName = req.Params.Name
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"jsonrpc":"2.0","id":1,"result":{"temp":21}}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	reg, err := registry.New(registry.Options{
		Embedder: embedding.NewHash(64),
		Store:    vectorstore.NewMemory(),
	})
	require.NoError(t, err)
	require.NoError(t, reg.Register(ctx, registry.Descriptor{
		Identity:    "svc-a",
		Description: "weather lookup",
		Endpoint:    srv.URL + "/mcp",
	}))

	results, err := reg.SearchBySimilarity(ctx, "weather", 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "svc-a", results[0].Identity)

	d := newDispatcher(t, Options{
		Resolver:        reg,
		RequestResponse: transport.NewHTTP(transport.HTTPOptions{}),
	})
	res := d.Invoke(ctx, "svc-a", "getWeather", map[string]any{"city": "Paris"})
	require.NoError(t, res.Err)
	assert.True(t, res.OK())
	assert.Equal(t, transport.KindRequestResponse, res.Transport)
	assert.Equal(t, srv.URL+"/mcp", res.Endpoint)
	assert.Equal(t, 1, calls)
	assert.Equal(t, "getWeather", gotName)
	assert.Equal(t, map[string]any{"temp": 21.0}, res.Value.(map[string]any)["result"])
}

func TestInvokeSelectsTransport(t *testing.T) {
	reqResp := &fakeTransport{value: "rr"}
	streaming := &fakeTransport{value: "stream"}
	d := newDispatcher(t, Options{
		Resolver: staticResolver{
			"plain":  "http://plain/mcp",
			"stream": "http://stream/sse",
		},
		RequestResponse: reqResp,
		Streaming:       streaming,
	})

	res := d.Invoke(context.Background(), "stream", "op", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, transport.KindStreaming, res.Transport)
	assert.Equal(t, "stream", res.Value)

	res = d.Invoke(context.Background(), "plain", "op", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, transport.KindRequestResponse, res.Transport)
	assert.Equal(t, "rr", res.Value)

	assert.Equal(t, 1, reqResp.count())
	assert.Equal(t, 1, streaming.count())
}

func TestInvokeFallsBackWithoutStreamingTransport(t *testing.T) {
	reqResp := &fakeTransport{value: "rr"}
	d := newDispatcher(t, Options{
		Resolver:        staticResolver{"stream": "http://stream/sse"},
		RequestResponse: reqResp,
	})
	assert.False(t, d.StreamingAvailable())

	res := d.Invoke(context.Background(), "stream", "op", nil)
	require.NoError(t, res.Err)
	assert.Equal(t, transport.KindRequestResponse, res.Transport)
	assert.Equal(t, 1, reqResp.count())
}

func TestInvokeCustomMarkers(t *testing.T) {
	d := newDispatcher(t, Options{
		Resolver:        staticResolver{},
		RequestResponse: &fakeTransport{},
		Streaming:       &fakeTransport{},
		StreamMarkers:   []string{"events"},
	})
	assert.Equal(t, transport.KindStreaming, d.Select("http://host/events"))
	assert.Equal(t, transport.KindRequestResponse, d.Select("http://host/sse"))
}

func TestInvokeNeverFails(t *testing.T) {
	ctx := context.Background()

	embeddingDown, err := registry.New(registry.Options{Embedder: downEmbedder{}, Store: vectorstore.NewMemory()})
	require.NoError(t, err)

	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "not json")
	}))
	defer malformed.Close()

	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachableURL := unreachable.URL
	unreachable.Close()

	tests := []struct {
		name    string
		opts    Options
		target  string
		wantErr error
	}{
		{
			name:    "unknown target",
			opts:    Options{Resolver: staticResolver{}, RequestResponse: &fakeTransport{}},
			target:  "ghost",
			wantErr: registry.ErrNotFound,
		},
		{
			name:    "embedding down",
			opts:    Options{Resolver: embeddingDown, RequestResponse: &fakeTransport{}},
			target:  "svc",
			wantErr: registry.ErrNotFound,
		},
		{
			name:    "remote unreachable",
			opts:    Options{Resolver: staticResolver{"svc": unreachableURL}, RequestResponse: transport.NewHTTP(transport.HTTPOptions{})},
			target:  "svc",
			wantErr: transport.ErrTransport,
		},
		{
			name:    "malformed response",
			opts:    Options{Resolver: staticResolver{"svc": malformed.URL}, RequestResponse: transport.NewHTTP(transport.HTTPOptions{})},
			target:  "svc",
			wantErr: transport.ErrTransport,
		},
		{
			name:    "streaming protocol failure",
			opts:    Options{Resolver: staticResolver{"svc": "http://svc/sse"}, RequestResponse: &fakeTransport{}, Streaming: &fakeTransport{err: transport.ErrProtocol}},
			target:  "svc",
			wantErr: transport.ErrProtocol,
		},
		{
			name:   "transport panics",
			opts:   Options{Resolver: staticResolver{"svc": "http://svc/mcp"}, RequestResponse: &fakeTransport{panic: "boom"}},
			target: "svc",
		},
		{
			name:    "empty target",
			opts:    Options{Resolver: staticResolver{}, RequestResponse: &fakeTransport{}},
			target:  "",
			wantErr: ErrInvalidTarget,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher(t, tt.opts)
			var res Result
			require.NotPanics(t, func() {
				res = d.Invoke(ctx, tt.target, "op", map[string]any{"x": 1})
			})
			require.Error(t, res.Err)
			assert.False(t, res.OK())
			if tt.wantErr != nil {
				assert.ErrorIs(t, res.Err, tt.wantErr)
			}

			raw, err := json.Marshal(res)
			require.NoError(t, err)
			var payload map[string]any
			require.NoError(t, json.Unmarshal(raw, &payload))
			assert.Len(t, payload, 1)
			assert.NotEmpty(t, payload["error"])
		})
	}
}

func TestInvokeCallTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	d := newDispatcher(t, Options{
		Resolver:        staticResolver{"svc": slow.URL},
		RequestResponse: transport.NewHTTP(transport.HTTPOptions{}),
		CallTimeout:     50 * time.Millisecond,
	})
	res := d.Invoke(context.Background(), "svc", "op", nil)
	assert.ErrorIs(t, res.Err, transport.ErrTransport)
	assert.Less(t, res.Duration, 2*time.Second)
}

func TestInvokeMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	d := newDispatcher(t, Options{
		Resolver:        staticResolver{"svc": "http://svc/mcp"},
		RequestResponse: &fakeTransport{value: map[string]any{}},
		Metrics:         metrics,
	})

	d.Invoke(context.Background(), "svc", "op", nil)
	d.Invoke(context.Background(), "svc", "op", nil)
	d.Invoke(context.Background(), "ghost", "op", nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Calls.WithLabelValues(string(transport.KindRequestResponse), OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Calls.WithLabelValues(transportNone, OutcomeError)))
	assert.Equal(t, 2, testutil.CollectAndCount(metrics.Duration))
}

func TestResultPayload(t *testing.T) {
	ok := Result{Value: map[string]any{"a": 1}}
	raw, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))

	failed := Result{Err: errors.New("boom")}
	raw, err = json.Marshal(failed)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, string(raw))
}
