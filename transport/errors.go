package transport

import "errors"

// Sentinel errors for consistent error handling.
var (
	// ErrTransport covers network failures and undecodable responses.
	ErrTransport = errors.New("transport failure")
	// ErrProtocol covers session handshake and call failures.
	ErrProtocol = errors.New("protocol failure")
	// ErrUnsupportedResult is returned by Normalize for unknown shapes.
	ErrUnsupportedResult = errors.New("unsupported result shape")
)

// JSON-RPC 2.0 and MCP error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternal       = -32603
	ErrCodeToolNotFound   = -32001
	ErrCodeToolExecFailed = -32002
)

// CodeText returns a short name for a known error code, or "" otherwise.
func CodeText(code int) string {
	switch code {
	case ErrCodeParseError:
		return "parse error"
	case ErrCodeInvalidRequest:
		return "invalid request"
	case ErrCodeMethodNotFound:
		return "method not found"
	case ErrCodeInvalidParams:
		return "invalid params"
	case ErrCodeInternal:
		return "internal error"
	case ErrCodeToolNotFound:
		return "tool not found"
	case ErrCodeToolExecFailed:
		return "tool execution failed"
	}
	return ""
}
