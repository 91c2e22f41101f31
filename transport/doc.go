// Package transport executes a named operation against a remote service
// endpoint.
//
// Two strategies implement [Transport]:
//
//   - [HTTP] sends one JSON-RPC "tools/call" envelope per call and returns
//     the decoded response body untouched. It keeps no state between calls.
//   - [Session] opens an MCP stream, performs the initialize handshake,
//     calls the tool, and tears everything down again. Resources are held
//     in a [Scope] and released in reverse order on every exit path,
//     including failure and cancellation.
//
// [Classify] picks a strategy from the endpoint text. Endpoints containing
// a streaming marker (default "sse", case-insensitive) use the session
// strategy. Registered endpoints must follow this convention.
//
// Results from the session strategy pass through [Normalize], which turns
// tool results into plain maps and rejects shapes it does not know.
package transport
