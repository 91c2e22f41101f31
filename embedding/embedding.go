package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when asked to embed blank text.
	ErrEmptyInput = errors.New("embedding input is empty")
	// ErrProvider is returned when the provider is unreachable or answers
	// with a non-success response.
	ErrProvider = errors.New("embedding provider failed")
	// ErrDimensionMismatch is returned when a provider produces a vector
	// whose length differs from its configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider maps text to a vector of length Dimension().
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// StatusError carries the HTTP status of a failed provider call.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", ErrProvider, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrProvider, e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error { return ErrProvider }

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

func checkDimension(vec []float32, want int) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), want)
	}
	return nil
}
