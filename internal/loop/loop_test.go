package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLoopRunsTasksInFIFOOrder verifies tasks scheduled during a run are appended behind existing ones.
func TestLoopRunsTasksInFIFOOrder(t *testing.T) {
	t.Parallel()

	l := New(nil)
	var order []string
	l.Schedule(func() error {
		order = append(order, "a")
		l.Schedule(func() error {
			order = append(order, "c")
			return nil
		})
		return nil
	})
	l.Schedule(func() error {
		order = append(order, "b")
		return nil
	})

	require.NoError(t, l.Run(context.Background()))
	require.Equal(t, []string{"a", "b", "c"}, order)
	require.Equal(t, uint64(3), l.Ticks())
	require.Zero(t, l.Pending())
}

// TestLoopTickRunsOneTask checks Tick advances exactly one task at a time.
func TestLoopTickRunsOneTask(t *testing.T) {
	t.Parallel()

	l := New(nil)
	count := 0
	for range 2 {
		l.Schedule(func() error {
			count++
			return nil
		})
	}
	l.Schedule(nil)
	require.Equal(t, 2, l.Pending())

	ran, err := l.Tick()
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 1, count)
	require.Equal(t, 1, l.Pending())

	ran, err = l.Tick()
	require.NoError(t, err)
	require.True(t, ran)

	ran, err = l.Tick()
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, 2, count)
}

// TestLoopStopsOnTaskError asserts a failing task halts the loop and leaves later tasks queued.
func TestLoopStopsOnTaskError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	l := New(nil)
	l.Schedule(func() error { return boom })
	l.Schedule(func() error { return nil })

	err := l.Run(context.Background())
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, l.Pending())
}

// TestLoopHonorsCanceledContext ensures Run returns between ticks once ctx is done.
func TestLoopHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	l.Schedule(func() error {
		cancel()
		return nil
	})
	l.Schedule(func() error {
		t.Fatal("task ran after cancellation")
		return nil
	})

	err := l.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, l.Pending())
}
