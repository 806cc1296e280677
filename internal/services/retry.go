package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

// MaxBackoff caps the delay between attempts.
const MaxBackoff = time.Minute

// ComputeBackoff returns base * 2^attempt, capped at [MaxBackoff].
func ComputeBackoff(attempt int, base time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if base <= 0 {
		return 0
	}
	if attempt >= 30 {
		return MaxBackoff
	}

	d := base << attempt
	if d <= 0 || d > MaxBackoff {
		return MaxBackoff
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// RetryPolicy bounds the retries of a single remote call.
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	Sleep      SleepFunc // defaults to a context-aware timer
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Base: time.Second}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// Retry invokes op until it succeeds, fails with a non-retryable error, or the policy's
// retry budget is spent. The delay is the larger of the backoff and the server's Retry-After.
func Retry(ctx context.Context, policy RetryPolicy, logger *log.Logger, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}
		if attempt >= policy.MaxRetries {
			if policy.MaxRetries == 0 {
				return err
			}
			return fmt.Errorf("giving up after %d retries: %w", policy.MaxRetries, err)
		}

		delay := ComputeBackoff(attempt, policy.Base)
		var re *RemoteError
		if errors.As(err, &re) && re.RetryAfter > delay {
			delay = re.RetryAfter
		}

		logger.Warn("retrying remote call", "attempt", attempt+1, "max_retries", policy.MaxRetries, "delay", delay, "err", err)
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// NewLimiter returns a limiter allowing rps calls per second. Non-positive rps disables pacing.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// Caller paces and retries remote calls for a single client.
type Caller struct {
	limiter *rate.Limiter
	policy  RetryPolicy
	logger  *log.Logger
}

// NewCaller builds a [Caller]. A nil limiter disables pacing and a nil logger discards output.
func NewCaller(limiter *rate.Limiter, policy RetryPolicy, logger *log.Logger) *Caller {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Caller{limiter: limiter, policy: policy, logger: logger}
}

// Do runs op under the limiter and retry policy. Errors from op are classified before the
// retry decision.
func (c *Caller) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	return Retry(ctx, c.policy, c.logger.With("call", name), func(ctx context.Context) error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		return classifyError(op(ctx))
	})
}
