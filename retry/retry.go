// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Always retries every error.
func Always(error) bool { return true }

// WithBackoff retries an operation on any error with exponential backoff.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
func WithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	return If(ctx, operation, Always, maxAttempts, baseDelay)
}

// If retries an operation with exponential backoff while shouldRetry reports
// the error as retryable. A non-retryable error is returned unwrapped on the
// attempt that produced it.
func If(ctx context.Context, operation func() error, shouldRetry func(error) bool, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	return run(ctx, operation, shouldRetry, maxAttempts, func(attempt int) time.Duration {
		// baseDelay * 2^(attempt-1)
		delay := baseDelay
		for i := 1; i < attempt; i++ {
			delay *= 2
		}
		return delay
	})
}

// WithDelays retries an operation while shouldRetry reports the error as
// retryable, sleeping delays[i] before attempt i+2. The operation runs at
// most len(delays)+1 times.
func WithDelays(ctx context.Context, operation func() error, shouldRetry func(error) bool, delays []time.Duration) error {
	return run(ctx, operation, shouldRetry, len(delays)+1, func(attempt int) time.Duration {
		return delays[attempt-1]
	})
}

func run(ctx context.Context, operation func() error, shouldRetry func(error) bool, maxAttempts int, delayFor func(attempt int) time.Duration) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}

		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "error", lastErr)

		// Don't sleep after the last attempt
		if attempt == maxAttempts {
			break
		}

		timer := time.NewTimer(delayFor(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrExhausted, maxAttempts, lastErr)
}
