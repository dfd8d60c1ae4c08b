package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_SubmitRunsAllTasks(t *testing.T) {
	runner := NewRunner(2)

	var count atomic.Int32
	for range 10 {
		require.NoError(t, runner.Submit(func(ctx context.Context) {
			count.Add(1)
		}))
	}

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.Equal(t, int32(10), count.Load())
}

func TestRunner_LimitsConcurrency(t *testing.T) {
	runner := NewRunner(2)

	var mu sync.Mutex
	var running, peak int

	for range 8 {
		require.NoError(t, runner.Submit(func(ctx context.Context) {
			mu.Lock()
			running++
			if running > peak {
				peak = running
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		}))
	}

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.LessOrEqual(t, peak, 2)
	assert.Positive(t, peak)
}

func TestRunner_RecoversFromPanic(t *testing.T) {
	runner := NewRunner(1)

	var after atomic.Bool
	require.NoError(t, runner.Submit(func(ctx context.Context) {
		panic("boom")
	}))
	require.NoError(t, runner.Submit(func(ctx context.Context) {
		after.Store(true)
	}))

	require.NoError(t, runner.Shutdown(context.Background()))

	// panicしたタスクが後続のタスクを止めない
	assert.True(t, after.Load())
}

func TestRunner_SubmitAfterShutdown(t *testing.T) {
	runner := NewRunner(1)
	require.NoError(t, runner.Shutdown(context.Background()))

	err := runner.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrRunnerClosed)
}

func TestRunner_ShutdownHonorsContext(t *testing.T) {
	runner := NewRunner(1)

	block := make(chan struct{})
	require.NoError(t, runner.Submit(func(ctx context.Context) {
		<-block
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := runner.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
}
