// SPDX-License-Identifier: MPL-2.0

package layer

import (
	"context"
	"fmt"
	"time"
)

// retryWithBackoff retries op up to maxAttempts times with exponential backoff.
// op returns (retry, err); a nil err or retry=false ends the loop immediately.
// onRetry, when set, is called before each wait with the failed attempt number
// (1-based) and its error. On exhaustion the last error is returned.
func retryWithBackoff(
	ctx context.Context,
	maxAttempts int,
	baseBackoff time.Duration,
	onRetry func(attempt int, err error),
	op func(attempt int) (retry bool, err error),
) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := range maxAttempts {
		if attempt > 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("retry aborted: %w", err)
			}
			if onRetry != nil {
				onRetry(attempt, lastErr)
			}
			timer := time.NewTimer(baseBackoff * time.Duration(1<<(attempt-1)))
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("retry aborted: %w", ctx.Err())
			case <-timer.C:
			}
		}

		retry, err := op(attempt)
		if err == nil {
			return nil
		}
		if !retry {
			return err
		}
		lastErr = err
	}
	return lastErr
}
