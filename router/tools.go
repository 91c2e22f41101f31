package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolrouter/discovery"
	"github.com/jonwraymond/toolrouter/registry"
)

// Tool names.
const (
	ToolSearchServers = "search_mcp_server"
	ToolAddServer     = "add_mcp_server"
	ToolExec          = "exec_mcp_tool"
	ToolSearchTools   = "search_mcp_tools"
)

// Default result sizes.
const (
	DefaultTopK  = 3
	DefaultLimit = 5
)

// SearchServersArgs are the arguments of search_mcp_server.
type SearchServersArgs struct {
	Query string `json:"query" jsonschema:"natural language description of the capability you need"`
	TopK  *int   `json:"top_k,omitempty" jsonschema:"maximum number of services to return (default 3)"`
}

// AddServerArgs are the arguments of add_mcp_server.
type AddServerArgs struct {
	ServerName        string           `json:"server_name" jsonschema:"unique service name"`
	ServerDescription string           `json:"server_description" jsonschema:"what the service does"`
	ServerEndpoint    string           `json:"server_endpoint" jsonschema:"service URL; URLs containing sse use the streaming transport"`
	Tools             []map[string]any `json:"tools,omitempty" jsonschema:"operations the service exposes"`
}

// ExecArgs are the arguments of exec_mcp_tool.
type ExecArgs struct {
	TargetServerName string         `json:"target_server_name" jsonschema:"name of a registered service"`
	TargetToolName   string         `json:"target_tool_name" jsonschema:"operation to invoke on the service"`
	Parameters       map[string]any `json:"parameters,omitempty" jsonschema:"arguments of the operation"`
}

// SearchToolsArgs are the arguments of search_mcp_tools.
type SearchToolsArgs struct {
	Query string `json:"query" jsonschema:"keywords to match against operation names and descriptions"`
	Limit *int   `json:"limit,omitempty" jsonschema:"maximum number of operations to return (default 5)"`
}

func (r *Router) registerTools() {
	mcp.AddTool(r.server, &mcp.Tool{
		Name: ToolSearchServers,
		Description: "Find registered MCP servers whose description matches a query. " +
			"Returns server_name, server_description, server_endpoint, tools and score for each match.",
	}, r.searchServers)

	mcp.AddTool(r.server, &mcp.Tool{
		Name:        ToolAddServer,
		Description: "Register an MCP server, or replace the registration with the same server_name.",
	}, r.addServer)

	mcp.AddTool(r.server, &mcp.Tool{
		Name:        ToolExec,
		Description: "Invoke a tool on a registered MCP server and return its result.",
	}, r.exec)

	if r.operations != nil {
		mcp.AddTool(r.server, &mcp.Tool{
			Name:        ToolSearchTools,
			Description: "Find individual tools across all registered servers by keyword.",
		}, r.searchTools)
	}
}

func (r *Router) searchServers(ctx context.Context, _ *mcp.CallToolRequest, args SearchServersArgs) (*mcp.CallToolResult, any, error) {
	topK := DefaultTopK
	if args.TopK != nil {
		topK = *args.TopK
	}
	results, err := r.services.SearchBySimilarity(ctx, args.Query, topK)
	if err != nil {
		return r.failure(ToolSearchServers, err), nil, nil
	}
	if results == nil {
		results = registry.Results{}
	}
	return r.success(results), nil, nil
}

func (r *Router) addServer(ctx context.Context, _ *mcp.CallToolRequest, args AddServerArgs) (*mcp.CallToolResult, any, error) {
	tools := args.Tools
	if tools == nil {
		tools = []map[string]any{}
	}
	ops, err := json.Marshal(tools)
	if err != nil {
		return r.failure(ToolAddServer, err), nil, nil
	}
	err = r.services.Register(ctx, registry.Descriptor{
		Identity:    args.ServerName,
		Description: args.ServerDescription,
		Endpoint:    args.ServerEndpoint,
		Operations:  ops,
	})
	if err != nil {
		return r.failure(ToolAddServer, err), nil, nil
	}
	return r.success(map[string]string{
		"status":  "success",
		"message": fmt.Sprintf("Server '%s' registered.", args.ServerName),
	}), nil, nil
}

func (r *Router) exec(ctx context.Context, _ *mcp.CallToolRequest, args ExecArgs) (*mcp.CallToolResult, any, error) {
	res := r.dispatcher.Invoke(ctx, args.TargetServerName, args.TargetToolName, args.Parameters)
	return r.success(res.Payload()), nil, nil
}

func (r *Router) searchTools(ctx context.Context, _ *mcp.CallToolRequest, args SearchToolsArgs) (*mcp.CallToolResult, any, error) {
	limit := DefaultLimit
	if args.Limit != nil {
		limit = *args.Limit
	}
	hits, err := r.operations.Search(ctx, args.Query, limit)
	if err != nil {
		return r.failure(ToolSearchTools, err), nil, nil
	}
	if hits == nil {
		hits = discovery.Hits{}
	}
	return r.success(hits), nil, nil
}

// success encodes v as the single text content of a tool result.
func (r *Router) success(v any) *mcp.CallToolResult {
	raw, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("encode tool result", "error", err)
		raw, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(raw)}},
	}
}

func (r *Router) failure(tool string, err error) *mcp.CallToolResult {
	r.logger.Warn("tool failed", "tool", tool, "error", err)
	return r.success(map[string]string{"error": err.Error()})
}
