package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryConfig holds retry-specific configuration
type retryConfig struct {
	maxRetries int
	baseDelay  time.Duration
}

// newExponentialBackOff builds a cenkalti/backoff/v4 ExponentialBackOff tuned
// to the same curve the daemon client has always used: baseDelay, 2*baseDelay,
// 4*baseDelay, ..., each wait capped at the library's default MaxInterval.
// MaxElapsedTime is disabled (the retry count is enforced separately via
// backoff.WithMaxRetries).
func newExponentialBackOff(baseDelay time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0 // bounded by MaxRetries instead of wall-clock
	return b
}

// retryWithBackoff executes a function with exponential backoff retry logic.
// It retries up to maxRetries times for transient and rate-limit errors.
// Permanent errors fail immediately without retry.
func retryWithBackoff(
	ctx context.Context,
	cfg *retryConfig,
	operation func() error,
	logger *slog.Logger,
	operationName string,
) error {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExponentialBackOff(cfg.baseDelay), uint64(cfg.maxRetries)),
		ctx,
	)

	attempt := 0
	var permanentErr error

	op := func() error {
		err := operation()
		if err == nil {
			if attempt > 0 {
				logger.Info("operation succeeded after retry",
					"operation", operationName,
					"attempt", attempt+1,
					"total_attempts", attempt+1,
				)
			}
			return nil
		}

		errorType := classifyError(err)

		logger.Warn("operation failed",
			"operation", operationName,
			"attempt", attempt+1,
			"error_type", errorType.String(),
			"error", err.Error(),
		)

		if errorType == ErrPermanent || errorType == ErrShapeMismatch {
			logger.Error("permanent error detected, not retrying",
				"operation", operationName,
				"error", err.Error(),
			)
			permanentErr = NewRPCError("permanent error, not retrying", err)
			return backoff.Permanent(permanentErr)
		}

		attempt++
		return err
	}

	notify := func(err error, wait time.Duration) {
		logger.Info("retrying after backoff",
			"operation", operationName,
			"attempt", attempt,
			"backoff_duration", wait.String(),
			"error", err.Error(),
		)
	}

	err := backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return nil
	}

	if permanentErr != nil {
		return permanentErr
	}

	if ctx.Err() != nil {
		logger.Info("retry cancelled by context",
			"operation", operationName,
			"attempt", attempt+1,
		)
		return ctx.Err()
	}

	logger.Error("max retries exceeded",
		"operation", operationName,
		"max_retries", cfg.maxRetries,
		"error", err.Error(),
	)
	return NewRPCError("max retries exceeded", err)
}
