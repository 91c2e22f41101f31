package transport

import (
	"context"
	"strings"
)

// Transport executes one operation against an endpoint.
type Transport interface {
	Execute(ctx context.Context, endpoint, operation string, args map[string]any) (any, error)
}

// Kind names a transport strategy.
type Kind string

const (
	KindRequestResponse Kind = "request_response"
	KindStreaming       Kind = "streaming"
)

// DefaultStreamMarkers are the endpoint substrings that select the
// streaming strategy.
var DefaultStreamMarkers = []string{"sse"}

// Classify returns KindStreaming when endpoint contains any marker,
// ignoring case, and KindRequestResponse otherwise. A nil markers slice
// uses DefaultStreamMarkers.
func Classify(endpoint string, markers []string) Kind {
	if markers == nil {
		markers = DefaultStreamMarkers
	}
	lower := strings.ToLower(endpoint)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return KindStreaming
		}
	}
	return KindRequestResponse
}
