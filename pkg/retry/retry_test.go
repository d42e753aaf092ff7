package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultConfig(), IsBusy, func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesRetryable(t *testing.T) {
	busy := errors.New("database is locked")
	calls := 0
	err := Do(context.Background(), DefaultConfig(), IsBusy, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return busy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("syntax error")
	calls := 0
	err := Do(context.Background(), DefaultConfig(), IsBusy, func(ctx context.Context) error {
		calls++
		return fatal
	})
	assert.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	busy := errors.New("SQLITE_BUSY")
	cfg := DefaultConfig()
	cfg.MaxAttempts = 2
	cfg.InitialDelay = time.Millisecond
	cfg.Jitter = false

	var retried int
	cfg.OnRetry = func(attempt int, err error, next time.Duration) { retried++ }

	err := Do(context.Background(), cfg, IsBusy, func(ctx context.Context) error {
		return busy
	})

	var exceeded *RetriesExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 2, exceeded.Attempts)
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, 1, retried)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	busy := errors.New("database is locked")
	err := Do(ctx, DefaultConfig(), IsBusy, func(ctx context.Context) error {
		return busy
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsBusy(t *testing.T) {
	assert.True(t, IsBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, IsBusy(errors.New("database table is locked")))
	assert.False(t, IsBusy(errors.New("no such table: users")))
	assert.False(t, IsBusy(nil))
}
