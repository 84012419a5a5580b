package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBudgetTakeStopsAtMax(t *testing.T) {
	t.Parallel()

	b := NewBudget(3, 0)
	require.True(t, b.Take())
	require.True(t, b.Take())
	require.True(t, b.Take())
	require.False(t, b.Take())
	require.True(t, b.Exhausted())
	require.Equal(t, 3, b.Used())
	require.False(t, b.Take(), "exhausted budget must stay exhausted")
}

func TestNewBudgetClampsNonPositive(t *testing.T) {
	t.Parallel()

	b := NewBudget(0, -time.Second)
	require.Equal(t, 1, b.Max())
	require.True(t, b.Take())
	require.False(t, b.Take())
}

func TestDoSucceedsAfterFailures(t *testing.T) {
	t.Parallel()

	b := NewBudget(5, 0)
	calls := 0
	err := Do(context.Background(), b, func(_ context.Context, attempt int) error {
		calls++
		require.Equal(t, calls, attempt)
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDoExhaustsExactlyOnce(t *testing.T) {
	t.Parallel()

	b := NewBudget(4, 0)
	calls := 0
	boom := errors.New("status 502")
	err := Do(context.Background(), b, func(context.Context, int) error {
		calls++
		return boom
	})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrExhausted)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 4, calls)

	err = Do(context.Background(), b, func(context.Context, int) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, ErrExhausted)
	require.Equal(t, 4, calls, "spent budget must not run fn again")
}

func TestDoStopsOnPermanent(t *testing.T) {
	t.Parallel()

	b := NewBudget(10, 0)
	fatal := errors.New("no such row")
	calls := 0
	err := Do(context.Background(), b, func(context.Context, int) error {
		calls++
		return Permanent(fatal)
	})
	require.Equal(t, fatal, err)
	require.Equal(t, 1, calls)
}

func TestDoHonorsContextDuringWait(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	b := NewBudget(3, time.Hour)
	calls := 0
	err := Do(ctx, b, func(context.Context, int) error {
		calls++
		cancel()
		return errors.New("fail")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestWaitUsesDelay(t *testing.T) {
	t.Parallel()

	b := NewBudget(2, 20*time.Millisecond)
	start := time.Now()
	require.NoError(t, b.Wait(context.Background()))
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
