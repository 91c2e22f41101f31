package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/toolrouter/retry"
)

// Limits and defaults for the HTTP transport.
const (
	DefaultHTTPTimeout  = 30 * time.Second
	maxResponseBodySize = 10 << 20
)

// HTTPOptions configures the request/response transport.
type HTTPOptions struct {
	// Client overrides the HTTP client. Its own timeout bounds each call.
	Client *http.Client
	// Timeout is used when Client is nil (default: 30s).
	Timeout time.Duration
	// Headers are added to every request.
	Headers map[string]string
	// Retry applies to failures where the request never left the client:
	// dial and DNS errors. Once the request may have reached the remote it
	// is never sent again, whatever happens afterwards.
	Retry  retry.Policy
	Logger *slog.Logger
}

// HTTP is the stateless request/response transport.
type HTTP struct {
	client *http.Client
	retry  retry.Policy
	logger *slog.Logger
	nextID atomic.Int64
}

// NewHTTP creates a request/response transport.
func NewHTTP(opts HTTPOptions) *HTTP {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultHTTPTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy := opts.Retry
	if policy.Enabled() && policy.Notify == nil {
		policy = policy.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying remote call", "error", err, "backoff", next)
		})
	}
	return &HTTP{
		client: clientWithHeaders(client, opts.Headers),
		retry:  policy,
		logger: logger,
	}
}

// Execute posts a tools/call envelope to endpoint and returns the decoded
// response body. JSON-RPC errors inside the body are returned as data.
func (t *HTTP) Execute(ctx context.Context, endpoint, operation string, args map[string]any) (any, error) {
	id := t.nextID.Add(1)
	body, err := json.Marshal(NewCallRequest(id, operation, args))
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	resp, err := retry.DoValue(ctx, t.retry, func(ctx context.Context) (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json, text/event-stream")
		resp, err := t.client.Do(req)
		if err != nil && !undelivered(err) {
			return nil, retry.Permanent(err)
		}
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: POST %s: %v", ErrTransport, endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	t.logger.Debug("remote call answered", "endpoint", endpoint, "operation", operation, "status", resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read response from %s: %v", ErrTransport, endpoint, err)
	}
	if len(raw) > maxResponseBodySize {
		return nil, fmt.Errorf("%w: response from %s exceeds %d bytes", ErrTransport, endpoint, maxResponseBodySize)
	}

	if isEventStream(resp.Header.Get("Content-Type")) {
		raw, err = firstEventData(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed event stream from %s (status %d): %v", ErrTransport, endpoint, resp.StatusCode, err)
		}
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: malformed response from %s (status %d): %v", ErrTransport, endpoint, resp.StatusCode, err)
	}
	return decoded, nil
}

// undelivered reports whether err proves the request never reached the
// remote, so sending it again cannot run the operation twice.
func undelivered(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

func isEventStream(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "text/event-stream"
}

// firstEventData returns the data payload of the first event carrying one.
// Multiple data lines of an event are joined with newlines.
func firstEventData(raw []byte) ([]byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseBodySize)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if len(data) > 0 {
				break
			}
			continue
		}
		if v, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(v, " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("no data event")
	}
	return []byte(strings.Join(data, "\n")), nil
}
