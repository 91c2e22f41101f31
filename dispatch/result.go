package dispatch

import (
	"encoding/json"
	"time"

	"github.com/jonwraymond/toolrouter/transport"
)

// Result is the outcome of one Invoke.
type Result struct {
	Target    string
	Operation string
	// Endpoint is empty when resolution failed.
	Endpoint string
	// Transport is empty when no transport was selected.
	Transport transport.Kind
	Value     any
	Err       error
	Duration  time.Duration
}

// OK reports whether the invocation succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// Payload returns the caller-facing value: the remote result on success,
// {"error": message} on failure.
func (r Result) Payload() any {
	if r.Err != nil {
		return map[string]any{"error": r.Err.Error()}
	}
	return r.Value
}

// MarshalJSON encodes Payload.
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}
