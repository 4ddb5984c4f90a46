package taskqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	q := New()
	require.True(t, q.Push(Task{RequestID: 1}))
	require.True(t, q.Push(Task{RequestID: 2}))

	t1, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(1), t1.RequestID)

	t2, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, uint64(2), t2.RequestID)
}

func TestPushFailsWhenFull(t *testing.T) {
	q := New()
	for i := 0; i < Capacity; i++ {
		require.True(t, q.Push(Task{RequestID: uint64(i + 1)}))
	}
	require.False(t, q.Push(Task{RequestID: 9999}))
}

func TestEmpty(t *testing.T) {
	q := New()
	require.True(t, q.Empty())
	q.Push(Task{RequestID: 1})
	require.False(t, q.Empty())
}

func TestPopBlocksThenCloses(t *testing.T) {
	q := New()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}

func TestPopWakesOnPush(t *testing.T) {
	q := New()
	done := make(chan Task, 1)
	go func() {
		task, _ := q.Pop()
		done <- task
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Task{RequestID: 42})

	select {
	case task := <-done:
		require.Equal(t, uint64(42), task.RequestID)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Push")
	}
}
