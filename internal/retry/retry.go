package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Delayer is implemented by errors that know how long the caller should wait,
// such as a rate limit response carrying retry_after.
type Delayer interface {
	RetryDelay() time.Duration
}

// Do calls fn until it succeeds, returns a Permanent error, or runs out of
// attempts. A Delayer error is waited out exactly unless its delay exceeds
// MaxDelay, in which case Do gives up at once.
func Do(ctx context.Context, config Config, fn func() error) error {
	attempts := config.Attempts
	if attempts <= 0 {
		attempts = 1
	}
	baseDelay := config.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	maxDelay := config.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 2 * time.Second
	}
	jitter := config.Jitter
	if jitter <= 0 {
		jitter = 100 * time.Millisecond
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var permanent *permanentError
		if errors.As(err, &permanent) {
			return permanent.err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		sleep := delay + time.Duration(rand.Int63n(int64(jitter)))
		if sleep > maxDelay {
			sleep = maxDelay
		}
		var delayer Delayer
		if errors.As(err, &delayer) && delayer.RetryDelay() > 0 {
			// A shorter wait would be rejected again by the server.
			if delayer.RetryDelay() > maxDelay {
				return fmt.Errorf("retry aborted after %d attempts, server asked to wait %s: %w", attempt+1, delayer.RetryDelay(), err)
			}
			sleep = delayer.RetryDelay()
		}
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
	return fmt.Errorf("retry failed after %d attempts: %w", attempts, lastErr)
}
