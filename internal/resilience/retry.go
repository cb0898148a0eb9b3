package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/shahryar908/agenticrag/internal/metrics"
)

// Policy bounds how an external call is retried.
type Policy struct {
	Attempts       uint          `mapstructure:"attempts"`
	BaseDelay      time.Duration `mapstructure:"base_delay"`
	MaxDelay       time.Duration `mapstructure:"max_delay"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
}

// DefaultPolicy returns 3 attempts with exponential backoff from 500ms capped at 5s,
// each attempt bounded by 30s.
func DefaultPolicy() Policy {
	return Policy{
		Attempts:       3,
		BaseDelay:      500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Attempts == 0 {
		p.Attempts = d.Attempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = d.AttemptTimeout
	}
	return p
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
	logger *zap.Logger
}

// NewRetrier creates a Retrier. Zero fields in policy take DefaultPolicy values.
func NewRetrier(policy Policy, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: policy.normalized(), logger: logger}
}

// Policy returns the effective policy.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs fn until it succeeds, fails with a non-retryable error, or attempts run out.
// Every attempt gets its own deadline. Exhausted retryable failures and breaker
// rejections come back as *UnavailableError.
func (r *Retrier) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	attempts := 0
	err := retry.Do(
		func() error {
			attempts++
			actx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
			defer cancel()
			err := fn(actx)
			if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return MarkRetryable(fmt.Errorf("%s: attempt timed out after %s: %w", op, r.policy.AttemptTimeout, err))
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(r.policy.Attempts),
		retry.Delay(r.policy.BaseDelay),
		retry.MaxDelay(r.policy.MaxDelay),
		retry.MaxJitter(r.policy.BaseDelay/2),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.LastErrorOnly(true),
		retry.RetryIf(IsRetryable),
		retry.OnRetry(func(n uint, err error) {
			metrics.RetryAttempts.WithLabelValues(op).Inc()
			r.logger.Warn("Retrying external call",
				zap.String("operation", op),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	if IsRetryable(err) || isBreakerRejection(err) {
		metrics.RetryExhausted.WithLabelValues(op).Inc()
		return &UnavailableError{Op: op, Attempts: attempts, Err: err}
	}
	return err
}

// Call is Do for operations that produce a value.
func Call[T any](ctx context.Context, r *Retrier, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}
