package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default values applied by DefaultPolicy.
const (
	DefaultMaxAttempts     = 3
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
)

// Policy configures bounded exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values <= 1 disable retries.
	MaxAttempts int `yaml:"max_attempts"`
	// InitialInterval is the delay before the second attempt.
	InitialInterval time.Duration `yaml:"initial_interval"`
	// MaxInterval caps the delay between attempts.
	MaxInterval time.Duration `yaml:"max_interval"`
	// Notify, when set, is called before each retry with the failed
	// attempt's error and the upcoming delay.
	Notify func(err error, next time.Duration) `yaml:"-"`
}

// DefaultPolicy returns the deployment default: three attempts starting at
// 200ms and capped at 2s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:     DefaultMaxAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Enabled reports whether the policy performs more than one attempt.
func (p Policy) Enabled() bool {
	return p.MaxAttempts > 1
}

// WithNotify returns a copy of p that reports retries to fn.
func (p Policy) WithNotify(fn func(err error, next time.Duration)) Policy {
	p.Notify = fn
	return p
}

// Do runs op until it succeeds, returns a permanent error, the attempts are
// exhausted, or ctx is done.
func (p Policy) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, p Policy, op func(context.Context) (T, error)) (T, error) {
	if !p.Enabled() {
		v, err := op(ctx)
		return v, unwrapPermanent(err)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(p.MaxAttempts-1)), ctx)
	var notify backoff.Notify
	if p.Notify != nil {
		notify = p.Notify
	}
	return backoff.RetryNotifyWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b, notify)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	initial := p.InitialInterval
	if initial <= 0 {
		initial = DefaultInitialInterval
	}
	maxInterval := p.MaxInterval
	if maxInterval <= 0 {
		maxInterval = DefaultMaxInterval
	}
	if maxInterval < initial {
		maxInterval = initial
	}
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

func unwrapPermanent(err error) error {
	var perr *backoff.PermanentError
	if errors.As(err, &perr) {
		return perr.Err
	}
	return err
}
