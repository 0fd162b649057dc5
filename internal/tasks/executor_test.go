package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedExecutor(t *testing.T, workers int) *Executor {
	t.Helper()
	e := NewExecutor(workers)
	e.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e
}

func TestExecutor_TaskCompletion(t *testing.T) {
	e := startedExecutor(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ok := e.Submit("ok", func(ctx context.Context) error { return nil })
	boom := errors.New("provider unavailable")
	failed := e.Submit("failing", func(ctx context.Context) error { return boom })

	require.NoError(t, ok.Wait(ctx))
	assert.Equal(t, StateSucceeded, ok.State())
	assert.NotEmpty(t, ok.ID)

	assert.ErrorIs(t, failed.Wait(ctx), boom)
	assert.Equal(t, StateFailed, failed.State())
	assert.NotEqual(t, ok.ID, failed.ID)
}

func TestExecutor_PanicBecomesError(t *testing.T) {
	e := startedExecutor(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	task := e.Submit("panics", func(ctx context.Context) error { panic("nil map") })
	err := task.Wait(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")

	// The worker survives.
	assert.NoError(t, e.Submit("after", func(ctx context.Context) error { return nil }).Wait(ctx))
}

func TestExecutor_BoundsConcurrency(t *testing.T) {
	const workers = 3
	e := startedExecutor(t, workers)

	var current, maxSeen int32
	for i := 0; i < 30; i++ {
		e.Submit(fmt.Sprintf("task-%d", i), func(ctx context.Context) error {
			n := atomic.AddInt32(&current, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&current, -1)
			return nil
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(workers))
	assert.Equal(t, 0, e.Len())
}

func TestExecutor_FIFOAdmission(t *testing.T) {
	e := NewExecutor(1)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 10; i++ {
		i := i
		e.Submit(fmt.Sprintf("task-%d", i), func(ctx context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	e.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
	require.NoError(t, e.Shutdown(ctx))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, order)
}

func TestExecutor_CancelQueuedTask(t *testing.T) {
	e := startedExecutor(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	blocker := e.Submit("blocker", func(ctx context.Context) error {
		<-release
		return nil
	})

	ran := false
	queued := e.Submit("queued", func(ctx context.Context) error {
		ran = true
		return nil
	})
	queued.Cancel()
	close(release)

	require.NoError(t, blocker.Wait(ctx))
	assert.ErrorIs(t, queued.Wait(ctx), context.Canceled)
	assert.False(t, ran)
}

func TestExecutor_WaitWithNothingSubmitted(t *testing.T) {
	e := startedExecutor(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, e.Wait(ctx))
}

func TestExecutor_SubmitAfterShutdown(t *testing.T) {
	e := NewExecutor(1)
	e.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	task := e.Submit("late", func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, task.Wait(ctx), ErrExecutorShutdown)
}

func TestExecutor_ShutdownWaitsForRunningTasks(t *testing.T) {
	e := NewExecutor(2)
	e.Start(context.Background())

	started := make(chan struct{})
	var finished int32
	e.Submit("slow", func(ctx context.Context) error {
		close(started)
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt32(&finished, 1)
		return nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, int32(1), atomic.LoadInt32(&finished))
}
