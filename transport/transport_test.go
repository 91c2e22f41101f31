package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		markers  []string
		want     Kind
	}{
		{"sse path", "http://host:8080/sse", nil, KindStreaming},
		{"sse scheme", "sse://host/events", nil, KindStreaming},
		{"uppercase", "http://host/SSE", nil, KindStreaming},
		{"plain http", "http://host:8080/mcp", nil, KindRequestResponse},
		{"custom marker", "http://host/stream", []string{"stream"}, KindStreaming},
		{"custom markers exclude default", "http://host/sse", []string{"stream"}, KindRequestResponse},
		{"empty marker ignored", "http://host/mcp", []string{""}, KindRequestResponse},
		{"empty markers", "http://host/sse", []string{}, KindRequestResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.endpoint, tt.markers))
		})
	}
}

func TestNewCallRequest(t *testing.T) {
	req := NewCallRequest(7, "add", nil)
	assert.Equal(t, "2.0", req.JSONRPC)
	assert.Equal(t, MethodToolsCall, req.Method)
	assert.Equal(t, "add", req.Params.Name)
	assert.NotNil(t, req.Params.Arguments)
	assert.Empty(t, req.Params.Arguments)
	assert.Equal(t, 7, req.ID)
}

func TestDecodeResponse(t *testing.T) {
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      float64(1),
		"error":   map[string]any{"code": float64(ErrCodeMethodNotFound), "message": "no such tool"},
	}
	resp, err := DecodeResponse(body)
	assert.NoError(t, err)
	if assert.NotNil(t, resp.Error) {
		assert.Equal(t, ErrCodeMethodNotFound, resp.Error.Code)
		assert.Contains(t, resp.Error.Error(), "no such tool")
	}
	assert.Empty(t, resp.Result)
}

func TestRemoteError(t *testing.T) {
	failed := map[string]any{
		"jsonrpc": "2.0",
		"id":      float64(7),
		"error":   map[string]any{"code": float64(ErrCodeToolExecFailed), "message": "backend exploded"},
	}
	rpcErr := RemoteError(failed)
	if assert.NotNil(t, rpcErr) {
		assert.Equal(t, ErrCodeToolExecFailed, rpcErr.Code)
		assert.Equal(t, "jsonrpc error -32002 (tool execution failed): backend exploded", rpcErr.Error())
	}

	assert.Nil(t, RemoteError(map[string]any{"jsonrpc": "2.0", "id": float64(1), "result": map[string]any{}}))
	assert.Nil(t, RemoteError("plain text"))
	assert.Nil(t, RemoteError(map[string]any{"error": "not an object"}))

	unknown := &Error{Code: 42, Message: "odd"}
	assert.Equal(t, "jsonrpc error 42: odd", unknown.Error())
	assert.Empty(t, CodeText(42))
	assert.Equal(t, "method not found", CodeText(ErrCodeMethodNotFound))
}
