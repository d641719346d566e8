package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var transientMarkers = []string{"rate limit", "timeout", "server", "5xx", "connection"}

// RemoteError is a failed remote call tagged once, where it happened, as
// worth retrying or not.
type RemoteError struct {
	Err       error
	Transient bool
}

func (e *RemoteError) Error() string {
	if e.Transient {
		return "temporary API failure: " + e.Err.Error()
	}
	return e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// Classify wraps err in a RemoteError. Errors whose message mentions a rate
// limit, timeout, server fault or connection problem are transient.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return &RemoteError{Err: err, Transient: true}
		}
	}
	return &RemoteError{Err: err}
}

func IsTransient(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Transient
}

type RetryPolicy struct {
	MaxAttempts int
	// Unit scales the backoff; production uses one second.
	Unit time.Duration
	// Min and Max bound the backoff, in units.
	Min int
	Max int
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		Unit:        time.Second,
		Min:         2,
		Max:         30,
	}
}

// Delay is the wait before the given attempt (1-based): 2^(attempt-2) units
// clamped to [Min, Max]. The first attempt does not wait.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 2 {
		return 0
	}

	units := p.Max
	if exp := attempt - 2; exp < 31 {
		units = min(p.Max, 1<<exp)
	}
	units = max(p.Min, units)
	return time.Duration(units) * p.Unit
}

// Retry calls fn until it succeeds, fails permanently, the context ends or
// the attempts run out. Only errors tagged transient by Classify are retried.
// The last error is returned as is.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(ctx context.Context) (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
	)
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return zero, fmt.Errorf("waiting to retry: %w (last error: %w)", err, lastErr)
			}
		}

		res, err := fn(ctx)
		if err == nil {
			return res, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, fmt.Errorf("giving up: %w (last error: %w)", ctx.Err(), err)
		}
		if !IsTransient(err) {
			return zero, err
		}
	}

	return zero, lastErr
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
