// Package retry provides the bounded attempt counters used for whole-session
// and per-document retries.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExhausted is returned once a Budget has no attempts left.
var ErrExhausted = errors.New("retry budget exhausted")

// Budget counts attempts against a fixed maximum with a fixed delay between
// attempts. There is no reset: once exhausted it stays exhausted.
type Budget struct {
	max   int
	delay time.Duration
	used  int
}

// NewBudget builds a Budget. A non-positive max allows a single attempt.
func NewBudget(maxAttempts int, delay time.Duration) *Budget {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	if delay < 0 {
		delay = 0
	}
	return &Budget{max: maxAttempts, delay: delay}
}

// Take consumes one attempt and reports whether it was available.
func (b *Budget) Take() bool {
	if b.used >= b.max {
		return false
	}
	b.used++
	return true
}

// Used returns how many attempts have been consumed.
func (b *Budget) Used() int { return b.used }

// Max returns the configured attempt ceiling.
func (b *Budget) Max() int { return b.max }

// Exhausted reports whether every attempt has been consumed.
func (b *Budget) Exhausted() bool { return b.used >= b.max }

// Wait sleeps for the inter-attempt delay or until ctx ends.
func (b *Budget) Wait(ctx context.Context) error {
	if b.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(b.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying; Do returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, ctx ends, or the
// budget runs out. On exhaustion the returned error wraps both ErrExhausted
// and the last attempt's error.
func Do(ctx context.Context, b *Budget, fn func(ctx context.Context, attempt int) error) error {
	var last error
	for b.Take() {
		err := fn(ctx, b.Used())
		if err == nil {
			return nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		last = err
		if ctx.Err() != nil {
			return fmt.Errorf("attempt %d: %w", b.Used(), ctx.Err())
		}
		if b.Exhausted() {
			break
		}
		if err := b.Wait(ctx); err != nil {
			return err
		}
	}
	if last == nil {
		return ErrExhausted
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, b.Used(), last)
}
