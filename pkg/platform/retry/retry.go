// Package retry re-runs idempotent reads that failed with a transient error.
//
// Only storage and content I/O failures are retried (see
// domainerrors.IsTransient). Writes must not go through this package: a
// failed write may have partially committed, so the caller re-checks state
// instead.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	dErrors "docket/pkg/domain-errors"
)

// Policy bounds the retry loop.
type Policy struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy retries a read twice more with short waits.
var DefaultPolicy = Policy{
	Attempts:        3,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     200 * time.Millisecond,
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as final even when its code is transient, for
// failures such as a missing file that another attempt cannot fix. Do
// returns the unmarked err.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func unmark(err error) error {
	var perm *permanentError
	if errors.As(err, &perm) {
		return perm.err
	}
	return err
}

// Do runs fn until it succeeds, returns a non-transient error, the attempts
// are exhausted, or ctx is done.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	if policy.Attempts <= 1 {
		value, err := fn(ctx)
		return value, unmark(err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = policy.InitialInterval
	exp.MaxInterval = policy.MaxInterval
	exp.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(policy.Attempts-1)), ctx)
	err := backoff.Retry(func() error {
		value, err := fn(ctx)
		if err != nil {
			var perm *permanentError
			if errors.As(err, &perm) {
				return backoff.Permanent(perm.err)
			}
			if dErrors.IsTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = value
		return nil
	}, b)
	return result, err
}
