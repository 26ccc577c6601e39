// Package retry runs an operation up to a fixed number of attempts, sleeping
// a uniformly random interval between attempts.
package retry

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. Attempts counts the first call.
type Policy struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

// DefaultPolicy is five attempts with 1–8s between them.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 5,
		MinWait:  1 * time.Second,
		MaxWait:  8 * time.Second,
	}
}

// WithAttempts returns a copy of p with a different ceiling.
func (p Policy) WithAttempts(n int) Policy {
	p.Attempts = n
	return p
}

// JitterBackOff waits a uniform random duration in [Min, Max] every time.
// It does not grow.
type JitterBackOff struct {
	Min time.Duration
	Max time.Duration
}

var _ backoff.BackOff = (*JitterBackOff)(nil)

func (b *JitterBackOff) NextBackOff() time.Duration {
	if b.Max <= b.Min {
		return b.Min
	}
	return b.Min + time.Duration(rand.Int64N(int64(b.Max-b.Min)+1))
}

func (b *JitterBackOff) Reset() {}

// Notify is called after a failed attempt that will be retried.
type Notify func(attempt int, err error, wait time.Duration)

// Value calls op until it succeeds, the policy runs out of attempts or ctx is
// done. op receives the 1-based attempt number. The last error is returned
// when attempts run out. Context errors are never retried.
func Value[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), notify Notify) (T, error) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx, attempt)
		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) && ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(&JitterBackOff{Min: p.MinWait, Max: p.MaxWait}),
		backoff.WithMaxTries(uint(attempts)),
		backoff.WithMaxElapsedTime(0),
	}
	if notify != nil {
		opts = append(opts, backoff.WithNotify(func(err error, wait time.Duration) {
			notify(attempt, err, wait)
		}))
	}
	return backoff.Retry(ctx, operation, opts...)
}

// Do is Value for operations without a result.
func Do(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error, notify Notify) error {
	_, err := Value(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	}, notify)
	return err
}
