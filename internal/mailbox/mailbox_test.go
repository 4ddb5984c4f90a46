package mailbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
)

func TestListenIsIdempotent(t *testing.T) {
	client := dht.NewMemory()
	r := New(client, "self-fp", nil, nil)

	t1, err := r.Listen("bob-fp")
	require.NoError(t, err)
	t2, err := r.Listen("bob-fp")
	require.NoError(t, err)

	require.Equal(t, t1, t2)
	require.Equal(t, 1, r.Count())
}

func TestListenFiresOnUpdateFunc(t *testing.T) {
	client := dht.NewMemory()
	updates := make(chan string, 1)
	r := New(client, "self-fp", func(contactFP string) {
		updates <- contactFP
	}, nil)

	_, err := r.Listen("bob-fp")
	require.NoError(t, err)

	base := mailboxBase("bob-fp", "self-fp", CurrentUTCDay())
	chunk0 := client.ChunkKey(base, 0)
	_, err = client.PutSigned(context.Background(), chunk0[:], []byte("manifest-bytes"), "owner", time.Hour)
	require.NoError(t, err)

	select {
	case fp := <-updates:
		require.Equal(t, "bob-fp", fp)
	case <-time.After(time.Second):
		t.Fatal("onUpdate not invoked")
	}
}

func TestCancelRemovesEntry(t *testing.T) {
	client := dht.NewMemory()
	r := New(client, "self-fp", nil, nil)

	_, err := r.Listen("bob-fp")
	require.NoError(t, err)
	require.Equal(t, 1, r.Count())

	r.Cancel("bob-fp")
	require.Equal(t, 0, r.Count())
}

func TestListenAllStartsOnePerContact(t *testing.T) {
	client := dht.NewMemory()
	r := New(client, "self-fp", nil, nil)

	count, err := r.ListenAll([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 3, r.Count())
}

func TestCancelAllDrainsRegistry(t *testing.T) {
	client := dht.NewMemory()
	r := New(client, "self-fp", nil, nil)

	_, _ = r.ListenAll([]string{"a", "b"})
	r.CancelAll()
	require.Equal(t, 0, r.Count())
}

func TestRegistryRejectsOverCapacity(t *testing.T) {
	client := dht.NewMemory()
	r := New(client, "self-fp", nil, nil)

	for i := 0; i < MaxListeners; i++ {
		_, err := r.Listen(fmt.Sprintf("contact-%d", i))
		require.NoError(t, err)
	}
	_, err := r.Listen("one-too-many")
	require.ErrorIs(t, err, ErrFull)
}
