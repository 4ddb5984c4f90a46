package workerpool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
)

func TestClamp(t *testing.T) {
	require.Equal(t, MinWorkers, Clamp(0))
	require.Equal(t, MinWorkers, Clamp(1))
	require.Equal(t, 10, Clamp(10))
	require.Equal(t, MaxWorkers, Clamp(100))
}

func TestPoolDispatchesAllTasks(t *testing.T) {
	q := taskqueue.New()
	var processed int64

	pool := New(q, 4, func(ctx context.Context, task taskqueue.Task) {
		atomic.AddInt64(&processed, 1)
	}, nil)

	pool.Start(context.Background())

	for i := 0; i < 50; i++ {
		require.True(t, q.Push(taskqueue.Task{RequestID: uint64(i + 1)}))
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&processed) == 50
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop()
}

func TestPoolSkipsCancelledTasks(t *testing.T) {
	q := taskqueue.New()
	var processed int64

	pool := New(q, 4, func(ctx context.Context, task taskqueue.Task) {
		atomic.AddInt64(&processed, 1)
	}, nil)

	pool.Start(context.Background())

	require.True(t, q.Push(taskqueue.Task{RequestID: 1, Cancelled: true}))
	require.True(t, q.Push(taskqueue.Task{RequestID: 2}))

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&processed) == 1
	}, 2*time.Second, 10*time.Millisecond)

	pool.Stop()
}

func TestPoolStopUnblocksWorkers(t *testing.T) {
	q := taskqueue.New()
	pool := New(q, 4, func(ctx context.Context, task taskqueue.Task) {}, nil)
	pool.Start(context.Background())

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}
}
