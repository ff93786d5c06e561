// Package retry is a small explicit retry helper, applied at call sites
// rather than via decorators (spec.md §9 "tenacity retry decorators").
// No third-party backoff library appears anywhere in the example pack
// for this concern; this is the stdlib-only exception documented in
// DESIGN.md.
package retry

import (
	"context"
	"time"
)

// Options configures a retry loop.
type Options struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry decides whether a given error warrants another attempt.
	// Nil means "retry everything".
	ShouldRetry func(error) bool
}

// DefaultOptions matches spec.md §5's LLM-call retry schedule: 3
// attempts, exponential backoff between 2s and 30s.
func DefaultOptions() Options {
	return Options{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Do runs fn, retrying per opts on failure. It returns the last error if
// every attempt fails, or nil as soon as fn succeeds. The delay doubles
// each attempt, capped at opts.MaxDelay.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	delay := opts.InitialDelay
	if delay <= 0 {
		delay = time.Second
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt == opts.MaxAttempts {
			break
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if opts.MaxDelay > 0 && delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return lastErr
}
