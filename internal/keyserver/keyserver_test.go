package keyserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// acceptAllDsa is a fake signer/verifier so tests exercise protocol logic
// without paying for real Dilithium5 signing.
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

func TestPublishLookupRoundTrip(t *testing.T) {
	client := dht.NewMemory()
	proto := New(client, acceptAllDsa{})
	ctx := context.Background()

	params := PublishParams{
		SelfFP: "aa", Name: "alice",
		Profile:     Profile{DisplayName: "Alice", DsaPubKey: []byte("pub")},
		DsaPriv:     []byte("priv"),
		TimestampMS: 1000,
	}
	require.NoError(t, proto.Publish(ctx, params))

	ui, err := proto.Lookup(ctx, "aa")
	require.NoError(t, err)
	require.Equal(t, "Alice", ui.Profile.DisplayName)

	fp, err := proto.LookupName(ctx, "ALICE")
	require.NoError(t, err)
	require.Equal(t, "aa", fp)

	name, ok, err := proto.ReverseLookup(ctx, "aa")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", name)
}

func TestLookupNotFound(t *testing.T) {
	proto := New(dht.NewMemory(), acceptAllDsa{})
	_, err := proto.Lookup(context.Background(), "nope")
	require.Equal(t, dnaerr.NotFound, dnaerr.CodeOf(err))
}

func TestLookupInvalidSignature(t *testing.T) {
	client := dht.NewMemory()
	ctx := context.Background()
	data, err := marshalUnifiedIdentity(UnifiedIdentity{
		Profile:   Profile{DsaPubKey: []byte("pub")},
		Signature: []byte("garbage"),
	})
	require.NoError(t, err)
	require.NoError(t, client.ChunkedPut(ctx, []byte("keyserver:bb"), data))

	proto := New(client, acceptAllDsa{})
	_, err = proto.Lookup(ctx, "bb")
	require.Equal(t, dnaerr.InvalidSignature, dnaerr.CodeOf(err))
}

func TestNameConflict(t *testing.T) {
	client := dht.NewMemory()
	proto := New(client, acceptAllDsa{})
	ctx := context.Background()

	p1 := PublishParams{SelfFP: "aa", Name: "shared", Profile: Profile{DsaPubKey: []byte("pub1")}, DsaPriv: []byte("priv1")}
	require.NoError(t, proto.Publish(ctx, p1))

	p2 := PublishParams{SelfFP: "bb", Name: "shared", Profile: Profile{DsaPubKey: []byte("pub2")}, DsaPriv: []byte("priv2")}
	err := proto.Publish(ctx, p2)
	require.Equal(t, dnaerr.AlreadyExists, dnaerr.CodeOf(err))
}

func TestRepublishOnLoginWhenMissing(t *testing.T) {
	client := dht.NewMemory()
	proto := New(client, acceptAllDsa{})
	ctx := context.Background()

	params := PublishParams{
		SelfFP:  "cc",
		Profile: Profile{DisplayName: "Carol", DsaPubKey: []byte("pub"), Wallets: Wallets{ETH: "0xabc"}},
		DsaPriv: []byte("priv"),
	}
	require.NoError(t, proto.RepublishOnLogin(ctx, params, "carol"))

	ui, err := proto.Lookup(ctx, "cc")
	require.NoError(t, err)
	require.Equal(t, "Carol", ui.Profile.DisplayName)

	fp, err := proto.LookupName(ctx, "carol")
	require.NoError(t, err)
	require.Equal(t, "cc", fp)
}
