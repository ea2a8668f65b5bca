package database

import (
	"context"
	"strings"
	"time"

	coreport "github.com/amirali-farhadi/tenant-provisioner/internal/domain/port/core"
)

// RetryConfig holds configuration for connection retry behavior. Retries are
// only applied while establishing the shared registry pool at startup;
// steady-state operations fail fast and leave retrying to callers.
type RetryConfig struct {
	MaxAttempts int
	Interval    time.Duration
	MaxInterval time.Duration
}

// RetryOnTransientError retries an operation when a transient connectivity
// error occurs, with exponential backoff capped at MaxInterval.
func RetryOnTransientError(
	ctx context.Context,
	config RetryConfig,
	operation func() error,
	logger coreport.Logger,
) error {
	var err error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		err = operation()
		if err == nil {
			return nil
		}

		if !isTransientError(err) {
			return err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		backoff := config.Interval * (1 << uint(attempt))
		if config.MaxInterval > 0 && backoff > config.MaxInterval {
			backoff = config.MaxInterval
		}

		logger.Warn("Transient database error, retrying", map[string]any{
			"attempt":      attempt + 1,
			"max_attempts": config.MaxAttempts,
			"error":        err.Error(),
			"retry_after":  backoff.String(),
		})

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	logger.Error("All connection attempts failed", map[string]any{
		"attempts": config.MaxAttempts,
		"error":    err.Error(),
	})
	return err
}

// isTransientError checks if an error is transient and worth retrying
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "server closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "dial")
}
