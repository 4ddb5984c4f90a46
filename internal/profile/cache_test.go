package profile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/internal/keyserver"
)

type acceptAllDsa struct{}

func (acceptAllDsa) Keypair() (pub, priv []byte, err error) { return nil, nil, nil }
func (acceptAllDsa) Sign(priv, message []byte) ([]byte, error) {
	return append([]byte("sig:"), message...), nil
}
func (acceptAllDsa) Verify(pub, message, signature []byte) bool {
	expected := append([]byte("sig:"), message...)
	if len(expected) != len(signature) {
		return false
	}
	for i := range expected {
		if expected[i] != signature[i] {
			return false
		}
	}
	return true
}
func (acceptAllDsa) PublicKeySize() int { return 8 }
func (acceptAllDsa) SignatureSize() int { return 0 }

func TestCacheGetPopulatesFromLookup(t *testing.T) {
	client := dht.NewMemory()
	proto := keyserver.New(client, acceptAllDsa{})
	ctx := context.Background()

	require.NoError(t, proto.Publish(ctx, keyserver.PublishParams{
		SelfFP:  "aa",
		Profile: keyserver.Profile{DisplayName: "Alice", DsaPubKey: []byte("pub")},
		DsaPriv: []byte("priv"),
	}))

	cache := New(proto, nil)
	ui, err := cache.Get(ctx, "aa")
	require.NoError(t, err)
	require.Equal(t, "Alice", ui.Profile.DisplayName)
}

func TestCacheServesFreshWithoutRefetch(t *testing.T) {
	client := dht.NewMemory()
	proto := keyserver.New(client, acceptAllDsa{})
	ctx := context.Background()

	require.NoError(t, proto.Publish(ctx, keyserver.PublishParams{
		SelfFP:  "aa",
		Profile: keyserver.Profile{DisplayName: "Alice", DsaPubKey: []byte("pub")},
		DsaPriv: []byte("priv"),
	}))

	cache := New(proto, nil)
	_, err := cache.Get(ctx, "aa")
	require.NoError(t, err)

	cache.Put("aa", keyserver.UnifiedIdentity{Profile: keyserver.Profile{DisplayName: "Override"}})
	ui, err := cache.Get(ctx, "aa")
	require.NoError(t, err)
	require.Equal(t, "Override", ui.Profile.DisplayName)
}

func TestInvalidateForcesRefetch(t *testing.T) {
	client := dht.NewMemory()
	proto := keyserver.New(client, acceptAllDsa{})
	ctx := context.Background()

	require.NoError(t, proto.Publish(ctx, keyserver.PublishParams{
		SelfFP:  "aa",
		Profile: keyserver.Profile{DisplayName: "Alice", DsaPubKey: []byte("pub")},
		DsaPriv: []byte("priv"),
	}))

	cache := New(proto, nil)
	_, err := cache.Get(ctx, "aa")
	require.NoError(t, err)

	cache.Invalidate("aa")

	ui, err := cache.Get(ctx, "aa")
	require.NoError(t, err)
	require.Equal(t, "Alice", ui.Profile.DisplayName)
}

func TestPrefetchIgnoresIndividualFailures(t *testing.T) {
	client := dht.NewMemory()
	proto := keyserver.New(client, acceptAllDsa{})
	cache := New(proto, nil)

	require.NotPanics(t, func() {
		cache.Prefetch(context.Background(), []string{"missing-1", "missing-2"})
	})
}
