package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = s.Shutdown(context.Background(), ShutdownAbandon) })
	return s
}

func TestScheduler_RunsAfterDelay(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	done := make(chan struct{})

	require.NoError(t, s.Schedule("c1", 10*time.Millisecond, func(context.Context) error {
		close(done)
		return nil
	}))
	assert.Equal(t, 1, s.Pending())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_Cancel(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	var ran atomic.Bool

	require.NoError(t, s.Schedule("c1", 20*time.Millisecond, func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	assert.True(t, s.Cancel("c1"))
	assert.False(t, s.Cancel("c1"))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
}

func TestScheduler_Replace(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)
	var first, second atomic.Int32

	require.NoError(t, s.Schedule("c1", 20*time.Millisecond, func(context.Context) error {
		first.Add(1)
		return nil
	}))
	require.NoError(t, s.Schedule("c1", 20*time.Millisecond, func(context.Context) error {
		second.Add(1)
		return nil
	}))

	assert.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
}

func TestScheduler_ShutdownFlush(t *testing.T) {
	t.Parallel()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var ran atomic.Int32

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, s.Schedule(key, time.Hour, func(context.Context) error {
			ran.Add(1)
			return errors.New("logged only")
		}))
	}

	require.NoError(t, s.Shutdown(context.Background(), ShutdownFlush))
	assert.Equal(t, int32(3), ran.Load())
	assert.Equal(t, 0, s.Pending())
	assert.ErrorIs(t, s.Schedule("d", time.Millisecond, func(context.Context) error { return nil }), ErrStopped)
}

func TestScheduler_ShutdownAbandon(t *testing.T) {
	t.Parallel()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	var ran atomic.Bool

	require.NoError(t, s.Schedule("a", 20*time.Millisecond, func(context.Context) error {
		ran.Store(true)
		return nil
	}))
	require.NoError(t, s.Shutdown(context.Background(), ShutdownAbandon))

	time.Sleep(50 * time.Millisecond)
	assert.False(t, ran.Load())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_ShutdownTimeout(t *testing.T) {
	t.Parallel()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	release := make(chan struct{})
	defer close(release)

	require.NoError(t, s.Schedule("slow", time.Hour, func(context.Context) error {
		<-release
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Shutdown(ctx, ShutdownFlush), context.DeadlineExceeded)
}
