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

package ingestion

import (
	"context"
	"log/slog"
	"time"
)

// retryWithBackoff runs operation up to attempts times, doubling the delay
// after each failure starting from baseDelay. It returns the last error, or
// the context's error once ctx is done.
func retryWithBackoff(ctx context.Context, logger *slog.Logger, attempts int, baseDelay time.Duration, operation func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				logger.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		// Don't sleep after the last attempt
		if attempt == attempts {
			break
		}
		logger.Debug("operation failed, will retry", "attempt", attempt, "attempts", attempts, "err", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}
