// Package retry provides the bounded retry-with-backoff policy shared by
// the remote store clients and the engine's find-or-create folder logic.
package retry

import (
	"context"
	"time"
)

// Policy holds the attempt count and backoff curve for one retry loop.
type Policy struct {
	Attempts int           // total attempts, including the first
	Delay    time.Duration // wait before the second attempt
	Factor   float64       // multiplier applied to the delay after each attempt
}

// Default is the policy used throughout the engine: three attempts with a
// short doubling backoff.
var Default = Policy{Attempts: 3, Delay: 500 * time.Millisecond, Factor: 2}

// Do runs fn until it succeeds or the policy's attempts are exhausted,
// sleeping between attempts. The last error is returned. Sleeps abort early
// when ctx is canceled.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := p.Delay

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if p.Factor > 0 {
			delay = time.Duration(float64(delay) * p.Factor)
		}
	}
	return err
}

// Do runs fn under the default policy.
func Do(ctx context.Context, fn func() error) error {
	return Default.Do(ctx, fn)
}
