// Package retry wraps a fallible fetch-and-extract unit of work with
// bounded exponential backoff and block-triggered session rotation.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/user/listing-harvester/internal/fetch"
)

// ErrExhausted marks a unit of work that failed on every allowed attempt.
// Terminal for that unit only, never fatal for the whole target.
var ErrExhausted = errors.New("retries exhausted")

// ExhaustedError carries the last attempt's error once retries run out.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// Policy holds the retry schedule: attempt n sleeps 2^n seconds plus a
// bounded uniform jitter before the next try.
type Policy struct {
	MaxAttempts int
	JitterMin   time.Duration
	JitterMax   time.Duration

	// sleep is injectable for tests; nil means a context-aware sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns the default policy: 1-3s jitter on top of the 2^n base.
func New(maxAttempts int) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		JitterMin:   1 * time.Second,
		JitterMax:   3 * time.Second,
	}
}

// Do runs op up to MaxAttempts times. Between attempts it backs off, and if
// the failure was a block response it rotates the session (when one is
// given) before retrying. Cancellation is honored between attempts; a
// running attempt is never interrupted mid-flight.
func (p Policy) Do(ctx context.Context, op func(context.Context) error, session fetch.Session) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var last error
	for n := 0; n < attempts; n++ {
		if err := ctx.Err(); err != nil {
			if last == nil {
				return err
			}
			break
		}

		last = op(ctx)
		if last == nil {
			return nil
		}
		if n == attempts-1 {
			break
		}

		if err := p.doSleep(ctx, p.backoff(n)); err != nil {
			break
		}
		if errors.Is(last, fetch.ErrBlocked) && session != nil {
			if rerr := session.Rotate(ctx); rerr != nil {
				last = fmt.Errorf("rotating session after block: %w", rerr)
				break
			}
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}

// backoff computes the delay after attempt n (0-based): 2^n seconds plus
// jitter drawn uniformly from [JitterMin, JitterMax].
func (p Policy) backoff(n int) time.Duration {
	base := time.Duration(1<<uint(n)) * time.Second
	if p.JitterMax <= p.JitterMin {
		return base + p.JitterMin
	}
	jitter := p.JitterMin + time.Duration(rand.Int63n(int64(p.JitterMax-p.JitterMin)))
	return base + jitter
}

func (p Policy) doSleep(ctx context.Context, d time.Duration) error {
	if p.sleep != nil {
		return p.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
