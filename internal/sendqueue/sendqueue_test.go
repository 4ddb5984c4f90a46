package sendqueue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQueueMessageAssignsMonotonicSlotIDs(t *testing.T) {
	q := New(10)
	id1, err := q.QueueMessage("bob-fp", []byte("hi"))
	require.NoError(t, err)
	require.Equal(t, uint64(1), id1)

	id2, err := q.QueueMessage("bob-fp", []byte("there"))
	require.NoError(t, err)
	require.Equal(t, uint64(2), id2)
}

func TestQueueRejectsAtCapacity(t *testing.T) {
	q := New(2)
	_, err := q.QueueMessage("a", []byte("1"))
	require.NoError(t, err)
	_, err = q.QueueMessage("b", []byte("2"))
	require.NoError(t, err)

	_, err = q.QueueMessage("c", []byte("3"))
	require.ErrorIs(t, err, ErrAtCapacity)
}

func TestCompleteFreesSlotForReuse(t *testing.T) {
	q := New(1)
	id, err := q.QueueMessage("a", []byte("1"))
	require.NoError(t, err)

	q.Complete(id)
	require.Equal(t, 0, q.Occupied())

	_, err = q.QueueMessage("b", []byte("2"))
	require.NoError(t, err)
}

func TestPlaintextIsCopied(t *testing.T) {
	q := New(5)
	original := []byte("mutate me")
	_, err := q.QueueMessage("a", original)
	require.NoError(t, err)

	original[0] = 'X'
	require.Equal(t, 1, q.Occupied())
	require.Equal(t, []byte("mutate me"), q.slots[0].Plaintext)
}

func TestSetCapacityValidation(t *testing.T) {
	q := New(10)
	require.ErrorIs(t, q.SetCapacity(0), ErrInvalidCapacity)
	require.ErrorIs(t, q.SetCapacity(101), ErrInvalidCapacity)
	require.NoError(t, q.SetCapacity(50))
	require.Equal(t, 50, q.Capacity())
}

func TestSetCapacityCannotShrinkBelowOccupancy(t *testing.T) {
	q := New(10)
	_, _ = q.QueueMessage("a", []byte("1"))
	_, _ = q.QueueMessage("b", []byte("2"))
	_, _ = q.QueueMessage("c", []byte("3"))

	require.ErrorIs(t, q.SetCapacity(2), ErrCapacityBelowOccupancy)
	require.NoError(t, q.SetCapacity(3))
}

func TestNewClampsCapacity(t *testing.T) {
	require.Equal(t, 1, New(0).Capacity())
	require.Equal(t, MaxCapacity, New(1000).Capacity())
}
