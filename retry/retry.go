// Package retry runs an operation under a bounded, fixed-delay retry policy.
package retry

import (
	"context"
	"time"

	"github.com/juju/clock"
	jujuretry "github.com/juju/retry"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxRetries is the number of extra attempts after the first one.
	MaxRetries int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// ShouldRetry decides whether err is transient. A nil ShouldRetry retries every error.
	ShouldRetry func(err error) bool

	// Notify is called before each wait with the failed attempt number (1-based).
	Notify func(err error, attempt int)
}

// MaxAttempts returns the total number of calls the policy allows.
func (p Policy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Do calls op until it succeeds, returns a non-retryable error, the policy is
// exhausted or ctx is done. The returned error is always op's last error, or
// ctx.Err() when cancelled while waiting.
func Do(ctx context.Context, clk clock.Clock, p Policy, op func(ctx context.Context) error) error {
	if clk == nil {
		clk = clock.WallClock
	}
	delay := p.Delay
	if delay <= 0 {
		delay = time.Millisecond
	}

	attempts := p.MaxAttempts()
	var last error
	err := jujuretry.Call(jujuretry.CallArgs{
		Func: func() error {
			last = op(ctx)
			return last
		},
		IsFatalError: func(err error) bool {
			if ctx.Err() != nil {
				return true
			}
			return p.ShouldRetry != nil && !p.ShouldRetry(err)
		},
		NotifyFunc: func(err error, attempt int) {
			if p.Notify != nil && attempt < attempts {
				p.Notify(err, attempt)
			}
		},
		Attempts: attempts,
		Delay:    delay,
		Clock:    clk,
		Stop:     ctx.Done(),
	})
	if err == nil {
		return nil
	}
	if jujuretry.IsRetryStopped(err) {
		return ctx.Err()
	}
	return last
}
