package embedding

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonwraymond/toolrouter/retry"
)

type retrying struct {
	next   Provider
	policy retry.Policy
}

// WithRetry wraps p so transient failures are retried under policy.
// Empty input, dimension mismatches and 4xx responses other than 429 are
// returned immediately.
func WithRetry(p Provider, policy retry.Policy, logger *slog.Logger) Provider {
	if !policy.Enabled() {
		return p
	}
	if logger == nil {
		logger = slog.Default()
	}
	if policy.Notify == nil {
		policy = policy.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying embedding request", "error", err, "backoff", next)
		})
	}
	return &retrying{next: p, policy: policy}
}

func (r *retrying) Dimension() int { return r.next.Dimension() }

func (r *retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	return retry.DoValue(ctx, r.policy, func(ctx context.Context) ([]float32, error) {
		vec, err := r.next.Embed(ctx, text)
		if err != nil && !retryable(err) {
			return nil, retry.Permanent(err)
		}
		return vec, err
	})
}

func retryable(err error) bool {
	if errors.Is(err, ErrEmptyInput) || errors.Is(err, ErrDimensionMismatch) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	return true
}
