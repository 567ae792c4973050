// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package helper

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetry(t *testing.T) {
	errTransient := errors.New("transient")

	tests := []struct {
		name      string
		failures  int
		cfg       RetryConfig
		wantCalls int
		wantErr   bool
	}{
		{
			name:      "succeeds on first attempt",
			failures:  0,
			cfg:       RetryConfig{Count: 3, Delay: time.Millisecond},
			wantCalls: 1,
		},
		{
			name:      "succeeds after retries",
			failures:  2,
			cfg:       RetryConfig{Count: 3, Delay: time.Millisecond},
			wantCalls: 3,
		},
		{
			name:      "gives up after count is exceeded",
			failures:  5,
			cfg:       RetryConfig{Count: 2, Delay: time.Millisecond},
			wantCalls: 3,
			wantErr:   true,
		},
		{
			name:      "no retries configured",
			failures:  1,
			cfg:       RetryConfig{Count: 0},
			wantCalls: 1,
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			effector := func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return errTransient
				}
				return nil
			}

			err := Retry(effector, tt.cfg)(t.Context())
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr {
				assert.ErrorIs(t, err, errTransient)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := Retry(func(context.Context) error {
		return errors.New("always failing")
	}, RetryConfig{Count: 3, Delay: time.Hour})(ctx)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestGetExpBackoff(t *testing.T) {
	tests := []struct {
		iteration int
		want      time.Duration
	}{
		{iteration: 0, want: time.Second},
		{iteration: 1, want: time.Second},
		{iteration: 2, want: 2 * time.Second},
		{iteration: 3, want: 4 * time.Second},
		{iteration: 4, want: 8 * time.Second},
		{iteration: 40, want: 65536 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, getExpBackoff(time.Second, tt.iteration))
	}
}
