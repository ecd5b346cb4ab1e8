package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunWithRetrySucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := runWithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRunWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := runWithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestRunWithRetryStopsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := runWithRetry(ctx, 5, time.Minute, func() error {
		calls++
		return errors.New("still failing")
	})
	require.Error(t, err)
	require.Equal(t, 1, calls)
}

func TestIntervalFallbacks(t *testing.T) {
	require.Equal(t, 15*time.Minute, minutes(0, 15))
	require.Equal(t, 5*time.Minute, minutes(5, 15))
	require.Equal(t, 24*time.Hour, hours(-1, 24))
	require.Equal(t, 30*24*time.Hour, days(0, 30))
}
