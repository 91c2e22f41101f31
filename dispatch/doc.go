// Package dispatch resolves a target service to its endpoint and invokes
// an operation on it through the transport its endpoint calls for.
//
// The Dispatcher is the boundary between callers and everything that can
// fail downstream. Invoke always returns a Result; resolution failures,
// transport failures, malformed remote responses and panics all surface
// as Result.Err and serialize to {"error": "..."}.
//
// Transport selection is an endpoint-shape convention: an endpoint that
// contains one of the stream markers (default "sse") goes through the
// streaming-session transport when one is configured. Every other
// endpoint, and every endpoint when no streaming transport is available,
// goes through the request/response transport.
package dispatch
