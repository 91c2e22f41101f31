package transport

import (
	"encoding/json"
	"fmt"
)

// MethodToolsCall is the JSON-RPC method used for every remote call.
const MethodToolsCall = "tools/call"

// Request is a JSON-RPC request envelope.
type Request struct {
	JSONRPC string     `json:"jsonrpc"`
	Method  string     `json:"method"`
	Params  CallParams `json:"params"`
	ID      any        `json:"id"`
}

// CallParams are the params of a tools/call request.
type CallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// NewCallRequest builds a tools/call envelope. Nil arguments are sent as an
// empty object.
func NewCallRequest(id any, operation string, args map[string]any) Request {
	if args == nil {
		args = map[string]any{}
	}
	return Request{
		JSONRPC: "2.0",
		Method:  MethodToolsCall,
		Params:  CallParams{Name: operation, Arguments: args},
		ID:      id,
	}
}

// Response is a JSON-RPC response envelope. The HTTP transport returns
// bodies undecoded; callers that need to inspect them use DecodeResponse or
// RemoteError.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if text := CodeText(e.Code); text != "" {
		return fmt.Sprintf("jsonrpc error %d (%s): %s", e.Code, text, e.Message)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// DecodeResponse converts a decoded body back into a Response.
func DecodeResponse(body any) (Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Response{}, err
	}
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// RemoteError returns the error object of a decoded JSON-RPC body, or nil
// when body is not an error response.
func RemoteError(body any) *Error {
	m, ok := body.(map[string]any)
	if !ok || m["error"] == nil {
		return nil
	}
	resp, err := DecodeResponse(m)
	if err != nil {
		return nil
	}
	return resp.Error
}
