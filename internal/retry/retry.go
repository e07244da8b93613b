// Package retry runs idempotent operations with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"
)

// Func is an operation that can be retried
type Func func(ctx context.Context) error

// Classifier reports whether an error is worth another attempt
type Classifier func(error) bool

// Options configures Do
type Options struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	Classifier      Classifier
}

// DefaultOptions returns options suited to interactive requests
func DefaultOptions() Options {
	return Options{
		MaxAttempts:     3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
	}
}

// Do calls fn until it succeeds, the classifier rejects its error, the
// attempts run out or ctx is done. The last error is returned.
func Do(ctx context.Context, fn Func, opts Options) error {
	attempts := opts.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if opts.Classifier != nil && !opts.Classifier(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(Backoff(attempt, opts))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return lastErr
}

// Backoff returns the wait after the given attempt number
func Backoff(attempt int, opts Options) time.Duration {
	if attempt <= 1 {
		return min(opts.InitialInterval, opts.MaxInterval)
	}

	interval := float64(opts.InitialInterval) * math.Pow(opts.Multiplier, float64(attempt-1))
	if interval > float64(opts.MaxInterval) {
		return opts.MaxInterval
	}
	return time.Duration(interval)
}
