package identity

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

func TestSealOpenRoundTrip(t *testing.T) {
	plaintext := []byte("super secret dsa key bytes")
	blob, err := sealKeyMaterial("P@ss1", plaintext)
	require.NoError(t, err)
	require.True(t, IsEncrypted(blob))

	got, err := openKeyMaterial("P@ss1", blob)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)
}

func TestOpenWrongPassword(t *testing.T) {
	blob, err := sealKeyMaterial("P@ss1", []byte("secret"))
	require.NoError(t, err)

	_, err = openKeyMaterial("wrong", blob)
	require.Error(t, err)
	require.Equal(t, dnaerr.WrongPassword, dnaerr.CodeOf(err))
}

func TestIsEncryptedRejectsPlainBlob(t *testing.T) {
	require.False(t, IsEncrypted([]byte("not a key file")))
}

func TestOpenTruncatedBlob(t *testing.T) {
	_, err := openKeyMaterial("whatever", []byte{1, 2, 3})
	require.Error(t, err)
}
