package router

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonwraymond/toolrouter/discovery"
	"github.com/jonwraymond/toolrouter/dispatch"
	"github.com/jonwraymond/toolrouter/registry"
)

// Default server identity.
const (
	DefaultName    = "mcp-router"
	DefaultVersion = "v1.0.0"
)

// Services is the registry surface the router needs.
type Services interface {
	Register(ctx context.Context, d registry.Descriptor) error
	SearchBySimilarity(ctx context.Context, query string, topK int) (registry.Results, error)
}

// Invoker is the dispatcher surface the router needs.
type Invoker interface {
	Invoke(ctx context.Context, target, operation string, args map[string]any) dispatch.Result
}

// Operations ranks the operations of registered services.
type Operations interface {
	Search(ctx context.Context, query string, limit int) (discovery.Hits, error)
}

// Options configures a Router.
type Options struct {
	Name    string
	Version string

	Services   Services
	Dispatcher Invoker
	// Operations enables search_mcp_tools. Optional.
	Operations Operations

	// Gatherer backs /metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer
	// ShutdownTimeout bounds graceful HTTP shutdown (default: 10s).
	ShutdownTimeout time.Duration
	Logger          *slog.Logger
}

// Router is an MCP server exposing service discovery and dispatch tools.
type Router struct {
	server     *mcp.Server
	services   Services
	dispatcher Invoker
	operations Operations

	gatherer        prometheus.Gatherer
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New creates a Router and registers its tools.
func New(opts Options) (*Router, error) {
	if opts.Services == nil {
		return nil, errors.New("router: services are required")
	}
	if opts.Dispatcher == nil {
		return nil, errors.New("router: dispatcher is required")
	}
	name := opts.Name
	if name == "" {
		name = DefaultName
	}
	version := opts.Version
	if version == "" {
		version = DefaultVersion
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	r := &Router{
		server:          mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil),
		services:        opts.Services,
		dispatcher:      opts.Dispatcher,
		operations:      opts.Operations,
		gatherer:        gatherer,
		shutdownTimeout: timeout,
		logger:          logger,
	}
	r.registerTools()
	return r, nil
}

// Server returns the underlying MCP server.
func (r *Router) Server() *mcp.Server {
	return r.server
}

// ServeStdio runs the router over stdin/stdout until the client
// disconnects or ctx is cancelled.
func (r *Router) ServeStdio(ctx context.Context) error {
	r.logger.Info("serving MCP over stdio")
	return r.server.Run(ctx, &mcp.StdioTransport{})
}
