package dnacrypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenMessageBodyRoundTrip(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	fp := bytes.Repeat([]byte{0x01}, 64)
	plaintext := []byte("hello, post-quantum world")

	nonce, sealed, err := SealMessageBody(secret, fp, 1234567890, plaintext)
	require.NoError(t, err)

	gotFp, gotTs, gotPlain, err := OpenMessageBody(secret, nonce, sealed)
	require.NoError(t, err)
	require.Equal(t, fp, gotFp)
	require.Equal(t, uint64(1234567890), gotTs)
	require.Equal(t, plaintext, gotPlain)
}

func TestOpenMessageBodyWrongKeyFails(t *testing.T) {
	secret := bytes.Repeat([]byte{0x42}, 32)
	wrong := bytes.Repeat([]byte{0x43}, 32)
	fp := bytes.Repeat([]byte{0x01}, 64)

	nonce, sealed, err := SealMessageBody(secret, fp, 1, []byte("hi"))
	require.NoError(t, err)

	_, _, _, err = OpenMessageBody(wrong, nonce, sealed)
	require.Error(t, err)
}

func TestHash512Deterministic(t *testing.T) {
	a := Hash512([]byte("abc"))
	b := Hash512([]byte("abc"))
	require.Equal(t, a, b)
	c := Hash512([]byte("abd"))
	require.NotEqual(t, a, c)
}
