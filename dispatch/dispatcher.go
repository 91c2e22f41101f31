package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/jonwraymond/toolrouter/transport"
)

// ErrInvalidTarget is returned for an empty target or operation name.
var ErrInvalidTarget = errors.New("invalid dispatch target")

// ErrNoTransport is returned when no transport can serve an endpoint.
var ErrNoTransport = errors.New("no transport available")

// Resolver maps a service identity to its endpoint.
type Resolver interface {
	ResolveEndpoint(ctx context.Context, identity string) (string, error)
}

// Options configures a Dispatcher.
type Options struct {
	Resolver Resolver
	// RequestResponse serves every endpoint that is not streaming.
	RequestResponse transport.Transport
	// Streaming serves endpoints that carry a stream marker. Nil means the
	// streaming transport is unavailable in this process.
	Streaming transport.Transport
	// StreamMarkers override transport.DefaultStreamMarkers.
	StreamMarkers []string
	// CallTimeout bounds each Invoke, resolution included. Zero means no
	// bound beyond the caller's context.
	CallTimeout time.Duration
	Metrics     *Metrics
	Logger      *slog.Logger
}

// Dispatcher resolves targets and executes operations against them.
// It is safe for concurrent use.
type Dispatcher struct {
	resolver    Resolver
	reqResp     transport.Transport
	streaming   transport.Transport
	markers     []string
	callTimeout time.Duration
	metrics     *Metrics
	logger      *slog.Logger
}

// New creates a Dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Resolver == nil {
		return nil, errors.New("dispatch: resolver is required")
	}
	if opts.RequestResponse == nil {
		return nil, errors.New("dispatch: request/response transport is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		resolver:    opts.Resolver,
		reqResp:     opts.RequestResponse,
		streaming:   opts.Streaming,
		markers:     opts.StreamMarkers,
		callTimeout: opts.CallTimeout,
		metrics:     opts.Metrics,
		logger:      logger,
	}, nil
}

// StreamingAvailable reports whether a streaming transport is configured.
func (d *Dispatcher) StreamingAvailable() bool {
	return d.streaming != nil
}

// Select returns the transport kind used for endpoint.
func (d *Dispatcher) Select(endpoint string) transport.Kind {
	if d.streaming != nil && transport.Classify(endpoint, d.markers) == transport.KindStreaming {
		return transport.KindStreaming
	}
	return transport.KindRequestResponse
}

// Invoke resolves target, executes operation with args on it, and returns
// the outcome. It never returns an error or panics; failures are carried
// in Result.Err.
func (d *Dispatcher) Invoke(ctx context.Context, target, operation string, args map[string]any) (res Result) {
	start := time.Now()
	res = Result{Target: target, Operation: operation}
	logger := d.logger.With("target", target, "operation", operation)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("dispatch panicked", "panic", p, "stack", string(debug.Stack()))
			res.Value = nil
			res.Err = fmt.Errorf("dispatch %s/%s panicked: %v", target, operation, p)
		}
		res.Duration = time.Since(start)
		d.metrics.observe(res.Transport, res.Err, res.Duration)
		if res.Err != nil {
			logger.Warn("dispatch failed", "endpoint", res.Endpoint, "transport", string(res.Transport), "error", res.Err, "duration", res.Duration)
			return
		}
		logger.Info("dispatch succeeded", "endpoint", res.Endpoint, "transport", string(res.Transport), "duration", res.Duration)
	}()

	if strings.TrimSpace(target) == "" || strings.TrimSpace(operation) == "" {
		res.Err = fmt.Errorf("%w: target and operation are required", ErrInvalidTarget)
		return res
	}

	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	endpoint, err := d.resolver.ResolveEndpoint(ctx, target)
	if err != nil {
		res.Err = err
		return res
	}
	res.Endpoint = endpoint

	res.Transport = d.Select(endpoint)
	t := d.reqResp
	if res.Transport == transport.KindStreaming {
		t = d.streaming
	}
	if t == nil {
		res.Err = fmt.Errorf("%w: %s", ErrNoTransport, res.Transport)
		return res
	}

	res.Value, res.Err = t.Execute(ctx, endpoint, operation, args)
	return res
}
