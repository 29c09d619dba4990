// Package backoff provides a retry decorator with exponential backoff and
// jitter, applied uniformly to all outbound collaborator calls. A server
// supplied retry delay (e.g. from a 429 response) overrides the computed
// backoff for that attempt.
package backoff

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// Policy parameterizes the retry decorator.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy is a sane policy for collaborator HTTP calls.
var DefaultPolicy = Policy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
}

// RetryAfter is implemented by errors that carry a server-provided
// retry delay.
type RetryAfter interface {
	RetryAfter() time.Duration
}

// TransientError marks an error as retryable and optionally carries a
// server-provided delay.
type TransientError struct {
	Err   error
	After time.Duration
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// RetryAfter returns the server-provided delay, 0 when none was given.
func (e *TransientError) RetryAfter() time.Duration { return e.After }

// IsTransient reports whether err is marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Do runs op, retrying up to p.MaxRetries times when retryable(err) is true.
// Delay grows exponentially from p.BaseDelay with up to 50% jitter, capped at
// p.MaxDelay; an error implementing RetryAfter overrides the computed delay.
// The last error is returned once retries are exhausted.
func Do(ctx context.Context, p Policy, retryable func(error) bool, op func() error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if attempt >= p.MaxRetries || !retryable(lastErr) {
			return lastErr
		}

		delay := p.BaseDelay << uint(attempt)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
		// Jitter spreads retries from concurrent callers.
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))

		var ra RetryAfter
		if errors.As(lastErr, &ra) && ra.RetryAfter() > 0 {
			delay = ra.RetryAfter()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
