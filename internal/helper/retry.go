// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"time"

	"github.com/telekom/netops/internal/logger"
)

// maxShift caps the doubling of the retry delay.
const maxShift = 16

// RetryConfig configures how often and how fast a failed call is repeated.
type RetryConfig struct {
	// Count is the number of retries after the first attempt
	Count int `yaml:"count" mapstructure:"count"`
	// Delay is the wait before the first retry. It doubles with every further retry.
	Delay time.Duration `yaml:"delay" mapstructure:"delay"`
}

// Effector will be the function called by the Retry function
type Effector func(context.Context) error

// Retry returns a function that calls the effector until it succeeds or
// the retries are used up. The last error is returned.
func Retry(effector Effector, rc RetryConfig) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		log := logger.FromContext(ctx)
		for attempt := 1; ; attempt++ {
			err := effector(ctx)
			if err == nil || attempt > rc.Count {
				return err
			}

			delay := getExpBackoff(rc.Delay, attempt)
			log.WarnContext(ctx, "Effector call failed, retrying", "attempt", attempt, "delay", delay.String(), "error", err)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
}

// getExpBackoff returns the delay before the given retry. The first retry is 1.
func getExpBackoff(initialDelay time.Duration, retry int) time.Duration {
	if retry <= 1 {
		return initialDelay
	}
	return initialDelay << min(retry-1, maxShift)
}
