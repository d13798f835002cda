package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/subwatch/internal/service"
)

func fastRetryOptions() service.RetryOptions {
	return service.RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithRetry(t *testing.T) {
	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return nil
		}, fastRetryOptions())
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("retries transient failures", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			if calls < 3 {
				return &RetryableError{Err: fmt.Errorf("transient"), Retryable: true}
			}
			return nil
		}, fastRetryOptions())
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := WithRetry(context.Background(), func() error {
			calls++
			return &RetryableError{Err: fmt.Errorf("still broken"), Retryable: true}
		}, fastRetryOptions())
		assert.ErrorIs(t, err, ErrMaxRetries)
		assert.Equal(t, 3, calls)
	})

	t.Run("non-retryable error stops immediately", func(t *testing.T) {
		calls := 0
		cause := &RetryableError{Err: fmt.Errorf("bad credentials"), Retryable: false}
		err := WithRetry(context.Background(), func() error {
			calls++
			return cause
		}, fastRetryOptions())
		assert.Equal(t, 1, calls)
		var retryable *RetryableError
		assert.True(t, errors.As(err, &retryable))
	})

	t.Run("cancelled context stops between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := WithRetry(ctx, func() error {
			return &RetryableError{Err: fmt.Errorf("transient"), Retryable: true}
		}, fastRetryOptions())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryableErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &RetryableError{Err: fmt.Errorf("wrapped: %w", cause), Retryable: true}

	assert.ErrorIs(t, err, cause)
}

func TestUserMessage(t *testing.T) {
	cause := errors.New("sqlite disk io error")

	assert.Equal(t, "Something went wrong. Try again.",
		UserMessage(NewUserError("Something went wrong. Try again.", cause)))
	assert.Equal(t, "sqlite disk io error", UserMessage(cause))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrRateLimit))
	assert.True(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: true}))
	assert.False(t, IsRetryable(&RetryableError{Err: errors.New("x"), Retryable: false}))
	assert.False(t, IsRetryable(errors.New("plain")))
}
