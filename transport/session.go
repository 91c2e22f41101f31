package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/jonwraymond/toolrouter/retry"
)

// State is a step of the session lifecycle.
type State int

const (
	StateIdle State = iota
	StateStreamOpened
	StateSessionInitialized
	StateOperationInvoked
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreamOpened:
		return "stream_opened"
	case StateSessionInitialized:
		return "session_initialized"
	case StateOperationInvoked:
		return "operation_invoked"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Dialer maps an endpoint to an unopened MCP transport.
type Dialer func(endpoint string) (mcp.Transport, error)

// SessionOptions configures the streaming-session transport.
type SessionOptions struct {
	// Dial overrides how endpoints become MCP transports (default: SSE).
	Dial Dialer
	// HTTPClient is used by the default dialer.
	HTTPClient *http.Client
	// Headers are added to every request made by the default dialer.
	Headers map[string]string
	// ClientName and ClientVersion identify this client during initialize.
	ClientName    string
	ClientVersion string
	// Retry applies to opening and initializing the session. The tool call
	// itself is never retried.
	Retry retry.Policy
	// OnState, when set, observes every lifecycle transition.
	OnState func(State)
	Logger  *slog.Logger
}

// Session is the streaming-session transport. Every Execute runs a full
// open, initialize, call, close cycle; nothing is shared between calls
// except the MCP client identity.
type Session struct {
	dial    Dialer
	client  *mcp.Client
	retry   retry.Policy
	onState func(State)
	logger  *slog.Logger
}

// NewSession creates a streaming-session transport.
func NewSession(opts SessionOptions) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dial := opts.Dial
	if dial == nil {
		dial = DialSSE(clientWithHeaders(opts.HTTPClient, opts.Headers))
	}
	name := opts.ClientName
	if name == "" {
		name = "toolrouter"
	}
	version := opts.ClientVersion
	if version == "" {
		version = "v1.0.0"
	}
	policy := opts.Retry
	if policy.Enabled() && policy.Notify == nil {
		policy = policy.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying session setup", "error", err, "backoff", next)
		})
	}
	return &Session{
		dial:    dial,
		client:  mcp.NewClient(&mcp.Implementation{Name: name, Version: version}, nil),
		retry:   policy,
		onState: opts.OnState,
		logger:  logger,
	}
}

// DialSSE returns a Dialer for the MCP SSE transport. The sse and sses
// schemes are rewritten to http and https.
func DialSSE(client *http.Client) Dialer {
	return func(endpoint string) (mcp.Transport, error) {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
		}
		switch strings.ToLower(parsed.Scheme) {
		case "http", "https":
		case "sse":
			parsed.Scheme = "http"
		case "sses":
			parsed.Scheme = "https"
		default:
			return nil, fmt.Errorf("unsupported endpoint scheme %q", parsed.Scheme)
		}
		return &mcp.SSEClientTransport{Endpoint: parsed.String(), HTTPClient: client}, nil
	}
}

// openedStream hands an already-open connection to mcp.Client.Connect so
// that opening the stream and initializing the session stay separate steps.
type openedStream struct {
	conn mcp.Connection
}

func (o openedStream) Connect(context.Context) (mcp.Connection, error) {
	return o.conn, nil
}

type lifecycle struct {
	state   State
	onState func(State)
	logger  *slog.Logger
}

func (l *lifecycle) to(s State) {
	l.logger.Debug("session state", "from", l.state.String(), "to", s.String())
	l.state = s
	if l.onState != nil {
		l.onState(s)
	}
}

// Execute calls operation on the MCP server at endpoint over a fresh
// session and returns the normalized result.
func (s *Session) Execute(ctx context.Context, endpoint, operation string, args map[string]any) (any, error) {
	lc := &lifecycle{
		onState: s.onState,
		logger:  s.logger.With("endpoint", endpoint, "operation", operation),
	}

	var (
		sc      *Scope
		session *mcp.ClientSession
	)
	err := s.retry.Do(ctx, func(ctx context.Context) error {
		attempt := NewScope(ctx, lc.logger)
		cs, err := s.connect(ctx, attempt, endpoint, lc)
		if err != nil {
			_ = attempt.Close()
			lc.to(StateClosed)
			return err
		}
		sc, session = attempt, cs
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = sc.Close()
		lc.to(StateClosed)
	}()

	if args == nil {
		args = map[string]any{}
	}
	result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: operation, Arguments: args})
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", ErrProtocol, operation, err)
	}
	lc.to(StateOperationInvoked)

	value, err := Normalize(result)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return value, nil
}

// connect opens the stream and initializes the session, registering each
// resource with sc as soon as it is acquired.
func (s *Session) connect(ctx context.Context, sc *Scope, endpoint string, lc *lifecycle) (*mcp.ClientSession, error) {
	lc.state = StateIdle

	t, err := s.dial(endpoint)
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrTransport, err))
	}
	conn, err := t.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: open stream to %s: %v", ErrTransport, endpoint, err)
	}
	sc.Push("stream", conn.Close)
	lc.to(StateStreamOpened)

	session, err := s.client.Connect(ctx, openedStream{conn: conn}, nil)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, retry.Permanent(fmt.Errorf("%w: initialize session: %v", ErrProtocol, err))
		}
		return nil, fmt.Errorf("%w: initialize session: %v", ErrProtocol, err)
	}
	sc.Push("session", session.Close)
	lc.to(StateSessionInitialized)
	return session, nil
}
