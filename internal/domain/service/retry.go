package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxRetries and DefaultRetryBaseWait are the spec's retry policy:
// exponential backoff starting at 1s, doubled per attempt, up to 3
// retries. 401 is fatal immediately; 429/5xx retry; any other HTTP status
// does not retry. Errors without a status (network failures, timeouts)
// go through ClassifyError, which treats unrecognized ones as transient.
const (
	DefaultMaxRetries   = 3
	DefaultRetryBaseWait = time.Second
)

// CallWithRetry runs fn, retrying on transient LLMError classifications
// with exponential backoff. provider/model are only used for error
// classification and logging. onRetry, if non-nil, is invoked before each
// wait so the caller can surface a status update. Concrete provider
// packages call this from their CreateMessage implementation; StreamMessage
// must never use it.
func CallWithRetry(ctx context.Context, maxRetries int, baseWait time.Duration, logger *zap.Logger, provider, model string, onRetry func(attempt int, wait time.Duration, err error), fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseWait <= 0 {
		baseWait = DefaultRetryBaseWait
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := baseWait * time.Duration(1<<(attempt-1))
			if onRetry != nil {
				onRetry(attempt, wait, lastErr)
			}
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn()
		if err == nil {
			return nil
		}

		classified := ClassifyError(err, provider, model)
		lastErr = classified
		logger.Warn("LLM call failed",
			zap.Int("attempt", attempt),
			zap.String("kind", classified.Kind.String()),
			zap.Error(classified),
		)

		if !classified.IsRetryable() {
			return classified
		}
	}

	return fmt.Errorf("LLM call failed after %d retries: %w", maxRetries, lastErr)
}
