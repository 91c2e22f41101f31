package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Scope collects release functions and runs them in reverse order of
// acquisition. Close runs each release exactly once, even when the
// acquiring context has been cancelled.
type Scope struct {
	ctx    context.Context
	logger *slog.Logger

	mu       sync.Mutex
	releases []release
	closed   bool
}

type release struct {
	name string
	fn   func(context.Context) error
}

// NewScope returns an empty scope. The context passed to release functions
// keeps ctx's values but is never cancelled.
func NewScope(ctx context.Context, logger *slog.Logger) *Scope {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scope{ctx: context.WithoutCancel(ctx), logger: logger}
}

// Push registers fn to run on Close. Pushing onto a closed scope runs fn
// immediately.
func (s *Scope) Push(name string, fn func() error) {
	s.PushContext(name, func(context.Context) error { return fn() })
}

// PushContext is Push for release functions that take a context.
func (s *Scope) PushContext(name string, fn func(context.Context) error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.run(release{name, fn})
		return
	}
	s.releases = append(s.releases, release{name, fn})
	s.mu.Unlock()
}

// Close releases everything in LIFO order and returns the joined errors.
// Subsequent calls do nothing.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := s.run(releases[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Scope) run(r release) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("release %s panicked: %v", r.name, p)
		}
		if err != nil {
			s.logger.Warn("release failed", "resource", r.name, "error", err)
		}
	}()
	if err := r.fn(s.ctx); err != nil {
		return fmt.Errorf("release %s: %w", r.name, err)
	}
	return nil
}
