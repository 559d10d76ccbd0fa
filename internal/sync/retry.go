package sync

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy defines how a failed transfer is retried inside one pass.
// Only errors ClassifyError reports as retryable are retried when
// OnlyRetryableErrors is set; 4xx responses and validation errors fail at once.
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter removes up to this fraction of each delay (0.0 to 1.0)
	Jitter float64

	OnlyRetryableErrors bool

	Logger *zap.Logger
}

// DefaultRetryPolicy returns the policy used for transfers
func DefaultRetryPolicy(logger *zap.Logger) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:          3,
		InitialDelay:        1 * time.Second,
		MaxDelay:            30 * time.Second,
		Multiplier:          2.0,
		Jitter:              0.3,
		OnlyRetryableErrors: true,
		Logger:              logger,
	}
}

// NoRetryPolicy returns a policy that never retries
func NoRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		Multiplier:          1.0,
		OnlyRetryableErrors: true,
		Logger:              zap.NewNop(),
	}
}

// WithMaxRetries returns a copy of p with a different retry count
func (p *RetryPolicy) WithMaxRetries(n int) *RetryPolicy {
	c := *p
	if n < 0 {
		n = 0
	}
	c.MaxRetries = n
	return &c
}

// Do runs fn until it succeeds, the retries are exhausted or ctx is done
func (p *RetryPolicy) Do(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retries",
					zap.String("operation", operation),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}

		if !p.shouldRetry(attempt, err) {
			if attempt == 1 {
				return err
			}
			logger.Error("operation failed after retries",
				zap.String("operation", operation),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return fmt.Errorf("operation failed after %d attempts: %w", attempt, err)
		}

		delay := p.delay(attempt)
		logger.Warn("operation failed, retrying",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", p.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-timer.C:
		}
	}
}

func (p *RetryPolicy) shouldRetry(attempt int, err error) bool {
	if attempt > p.MaxRetries {
		return false
	}
	if p.OnlyRetryableErrors {
		_, retryable := ClassifyError(err)
		return retryable
	}
	return true
}

// delay = InitialDelay * Multiplier^(attempt-1), capped at MaxDelay, minus jitter
func (p *RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		d -= rand.Float64() * d * p.Jitter
	}
	return time.Duration(d)
}
