package vectorstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonwraymond/toolrouter/retry"
)

// WithRetry wraps s so that collection reads and writes are retried under
// policy. EnsureCollection is passed through untouched: a collection that
// cannot be created is a startup failure, not a transient one. The optional
// Getter and Sampler capabilities of the wrapped collections are preserved.
func WithRetry(s Store, policy retry.Policy, logger *slog.Logger) Store {
	if !policy.Enabled() {
		return s
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryingStore{next: s, policy: policy, logger: logger}
}

type retryingStore struct {
	next   Store
	policy retry.Policy
	logger *slog.Logger
}

func (s *retryingStore) EnsureCollection(ctx context.Context, name string, dimension int) (Collection, error) {
	c, err := s.next.EnsureCollection(ctx, name, dimension)
	if err != nil {
		return nil, err
	}
	policy := s.policy
	if policy.Notify == nil {
		logger := s.logger.With("collection", name)
		policy = policy.WithNotify(func(err error, next time.Duration) {
			logger.Warn("retrying vector store call", "error", err, "backoff", next)
		})
	}
	base := &retryingCollection{next: c, policy: policy}

	getter, canGet := c.(Getter)
	sampler, canSample := c.(Sampler)
	switch {
	case canGet && canSample:
		return &struct {
			*retryingCollection
			retryingGetter
			retryingSampler
		}{base, retryingGetter{getter, policy}, retryingSampler{sampler, policy}}, nil
	case canGet:
		return &struct {
			*retryingCollection
			retryingGetter
		}{base, retryingGetter{getter, policy}}, nil
	case canSample:
		return &struct {
			*retryingCollection
			retryingSampler
		}{base, retryingSampler{sampler, policy}}, nil
	default:
		return base, nil
	}
}

func (s *retryingStore) Close() error { return s.next.Close() }

// permanent reports errors that another attempt cannot fix.
func permanent(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func classify(err error) error {
	if err != nil && permanent(err) {
		return retry.Permanent(err)
	}
	return err
}

type retryingCollection struct {
	next   Collection
	policy retry.Policy
}

func (c *retryingCollection) Name() string   { return c.next.Name() }
func (c *retryingCollection) Dimension() int { return c.next.Dimension() }

func (c *retryingCollection) Upsert(ctx context.Context, id string, vector []float32, fields map[string]string) error {
	return c.policy.Do(ctx, func(ctx context.Context) error {
		return classify(c.next.Upsert(ctx, id, vector, fields))
	})
}

func (c *retryingCollection) Query(ctx context.Context, vector []float32, topK int, fields []string) ([]Match, error) {
	return retry.DoValue(ctx, c.policy, func(ctx context.Context) ([]Match, error) {
		m, err := c.next.Query(ctx, vector, topK, fields)
		return m, classify(err)
	})
}

type retryingGetter struct {
	next   Getter
	policy retry.Policy
}

type getResult struct {
	match Match
	found bool
}

func (g retryingGetter) Get(ctx context.Context, id string, fields []string) (Match, bool, error) {
	res, err := retry.DoValue(ctx, g.policy, func(ctx context.Context) (getResult, error) {
		m, found, err := g.next.Get(ctx, id, fields)
		return getResult{m, found}, classify(err)
	})
	return res.match, res.found, err
}

type retryingSampler struct {
	next   Sampler
	policy retry.Policy
}

func (s retryingSampler) Sample(ctx context.Context, limit int, fields []string) ([]Match, error) {
	return retry.DoValue(ctx, s.policy, func(ctx context.Context) ([]Match, error) {
		m, err := s.next.Sample(ctx, limit, fields)
		return m, classify(err)
	})
}
