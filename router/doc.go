// Package router hosts the registry and the dispatcher as an MCP server.
//
// It exposes four tools to MCP clients:
//
//   - search_mcp_server: similarity search over registered services
//   - add_mcp_server: register or replace a service descriptor
//   - exec_mcp_tool: invoke an operation on a registered service
//   - search_mcp_tools: keyword search over the operations of all services
//
// Every tool answers with a single text content holding a JSON document.
// Failures are answered the same way, as {"error": "..."}, so clients always
// receive a parseable payload.
//
// The server runs over stdio (ServeStdio) or over HTTP (Handler and
// ListenAndServe), where it serves the SSE transport at /sse, the
// streamable HTTP transport at /mcp, Prometheus metrics at /metrics and a
// liveness probe at /healthz.
package router
