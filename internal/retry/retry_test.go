package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDoSucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultOptions(), func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRetriesUpToMaxAttempts(t *testing.T) {
	calls := 0
	opts := Options{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	err := Do(context.Background(), opts, func(ctx context.Context) error {
		calls++
		return errors.New("boom")
	})
	require.Error(t, err)
	require.Equal(t, 3, calls)
}

func TestDoStopsEarlyWhenShouldRetryReturnsFalse(t *testing.T) {
	calls := 0
	opts := Options{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		ShouldRetry:  func(err error) bool { return false },
	}
	err := Do(context.Background(), opts, func(ctx context.Context) error {
		calls++
		return errors.New("fatal")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, DefaultOptions(), func(ctx context.Context) error {
		return errors.New("should not run")
	})
	require.ErrorIs(t, err, context.Canceled)
}
