package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chris40461/scam-or-safe/internal/retry"
)

var errBoom = errors.New("boom")

func recordingSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var waits []time.Duration
	p := retry.New("test", 3, 100*time.Millisecond, zap.NewNop()).WithSleep(recordingSleep(&waits))
	p.Jitter = 0

	calls := 0
	got, err := retry.Do(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errBoom
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, waits)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	var waits []time.Duration
	p := retry.New("test", 2, time.Millisecond, nil).WithSleep(recordingSleep(&waits))

	calls := 0
	_, err := retry.Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errBoom
	})

	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
	assert.Len(t, waits, 2)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	var waits []time.Duration
	p := retry.New("test", 5, time.Millisecond, nil).WithSleep(recordingSleep(&waits))

	calls := 0
	_, err := retry.Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, retry.Permanent(errBoom)
	})

	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, err, retry.ErrNonRetryable)
	assert.Equal(t, 1, calls)
	assert.Empty(t, waits)
}

func TestDo_RetryablePredicate(t *testing.T) {
	p := retry.New("test", 5, 0, nil)
	p.Retryable = func(err error) bool { return !errors.Is(err, errBoom) }

	calls := 0
	_, err := retry.Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, errBoom
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := retry.Do(ctx, retry.New("test", 3, 0, nil), func(context.Context, int) (int, error) {
		calls++
		return 0, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestDoWithFallback(t *testing.T) {
	p := retry.New("test", 1, 0, nil)

	got, usedFallback := retry.DoWithFallback(context.Background(), p,
		func(context.Context, int) (string, error) { return "", errBoom },
		func(err error) string { return "fallback: " + err.Error() },
	)
	assert.True(t, usedFallback)
	assert.Equal(t, "fallback: boom", got)
}

func TestBackoff_NeverBelowBaseAndCapped(t *testing.T) {
	p := retry.New("test", 10, time.Second, nil)
	p.MaxDelay = 3 * time.Second

	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Backoff(attempt)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}
