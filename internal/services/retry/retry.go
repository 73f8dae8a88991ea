// Package retry runs an operation on a fixed delay schedule with a timeout
// per attempt.
//
// Go Pattern: The wait between attempts is a select on ctx.Done() and
// time.After, so a cancelled caller stops retrying immediately instead of
// sleeping through the schedule.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Policy describes when to retry. Delays[0] is waited before the first
// attempt (normally 0), so len(Delays) is the number of attempts.
type Policy struct {
	Name           string
	Delays         []time.Duration
	AttemptTimeout time.Duration // 0 means no per-attempt timeout
}

// permanentError marks an error that must not be retried.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so Do returns it without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Do calls op until it succeeds, returns a permanent error, the schedule is
// exhausted, or ctx is done. The last error is returned.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	delays := p.Delays
	if len(delays) == 0 {
		delays = []time.Duration{0}
	}

	var lastErr error
	for attempt, delay := range delays {
		if delay > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(delay):
			}
		}
		if err := ctx.Err(); err != nil {
			return errors.Join(err, lastErr)
		}

		lastErr = runAttempt(ctx, p.AttemptTimeout, op)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}
		if attempt < len(delays)-1 {
			log.Printf("⚠️  %s attempt %d/%d failed: %v", name(p), attempt+1, len(delays), lastErr)
		}
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name(p), len(delays), lastErr)
}

func runAttempt(ctx context.Context, timeout time.Duration, op func(ctx context.Context) error) error {
	if timeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return op(attemptCtx)
}

func name(p Policy) string {
	if p.Name == "" {
		return "operation"
	}
	return p.Name
}
