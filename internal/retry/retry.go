// Package retry runs a single network operation with bounded, classification-aware backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/and161185/deferlink/internal/errs"
)

// Retry contract defaults: 3 attempts, 10s each, 2s then 4s between them.
const (
	DefaultMaxAttempts    = 3
	DefaultTimeout        = 10 * time.Second
	DefaultInitialBackoff = 2 * time.Second
)

// Operation performs one attempt. ctx carries the per-attempt deadline.
type Operation func(ctx context.Context) ([]byte, error)

// Controller retries retryable failures (5xx, timeouts, transport errors)
// and returns terminal ones (4xx) at once. It holds configuration only.
type Controller struct {
	maxAttempts int
	timeout     time.Duration
	initial     time.Duration
	jitter      float64
	newTimer    func() backoff.Timer
	log         *zap.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithMaxAttempts lowers the total number of attempts. Values outside
// [1, DefaultMaxAttempts] are ignored.
func WithMaxAttempts(n int) Option {
	return func(c *Controller) {
		if n > 0 && n <= DefaultMaxAttempts {
			c.maxAttempts = n
		}
	}
}

// WithTimeout overrides the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInitialBackoff overrides the wait before the second attempt; later waits double.
func WithInitialBackoff(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.initial = d
		}
	}
}

// WithJitter randomizes each wait by ±factor (0 disables, max 1).
func WithJitter(factor float64) Option {
	return func(c *Controller) {
		if factor >= 0 && factor <= 1 {
			c.jitter = factor
		}
	}
}

// WithTimer injects the timer used between attempts (tests use a fake).
func WithTimer(newTimer func() backoff.Timer) Option {
	return func(c *Controller) { c.newTimer = newTimer }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// New constructs a Controller with the documented defaults.
func New(opts ...Option) *Controller {
	c := &Controller{
		maxAttempts: DefaultMaxAttempts,
		timeout:     DefaultTimeout,
		initial:     DefaultInitialBackoff,
		log:         zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Do runs op until it succeeds, fails terminally, or attempts run out.
//
// Errors:
//   - terminal *errs.StatusError (4xx) after a single attempt;
//   - errs.ErrExhausted wrapping the last retryable cause;
//   - ctx.Err() when the caller's context ends, with no further attempts.
func (c *Controller) Do(ctx context.Context, op Operation) ([]byte, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initial
	exp.Multiplier = 2
	exp.RandomizationFactor = c.jitter
	exp.MaxInterval = lastWait(c.initial, c.maxAttempts)
	exp.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(c.maxAttempts-1)), ctx)

	var (
		out      []byte
		attempts int
	)
	operation := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		attempts++
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		body, err := op(actx)
		if err == nil {
			out = body
			return nil
		}
		if cerr := ctx.Err(); cerr != nil {
			return backoff.Permanent(cerr)
		}
		if errs.IsTerminal(err) {
			c.log.Debug("terminal failure", zap.Int("attempt", attempts), zap.Error(err))
			return backoff.Permanent(err)
		}
		if errors.Is(err, context.DeadlineExceeded) || actx.Err() != nil {
			err = fmt.Errorf("%w: %w", errs.ErrTimeout, err)
		}
		c.log.Debug("retryable failure", zap.Int("attempt", attempts), zap.Error(err))
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.log.Debug("backing off", zap.Int("next_attempt", attempts+1), zap.Duration("wait", wait))
	}

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}
	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	switch {
	case err == nil:
		return out, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errs.IsTerminal(err):
		return nil, err
	default:
		c.log.Warn("attempts exhausted", zap.Int("attempts", attempts), zap.Error(err))
		return nil, fmt.Errorf("%w after %d attempts: %w", errs.ErrExhausted, attempts, err)
	}
}

// lastWait is the wait before the final attempt: initial doubled once per
// intermediate retry.
func lastWait(initial time.Duration, attempts int) time.Duration {
	d := initial
	for i := 2; i < attempts; i++ {
		d *= 2
	}
	return d
}
