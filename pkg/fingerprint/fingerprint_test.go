package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	hex128 := ""
	for i := 0; i < 128; i++ {
		hex128 += "a"
	}
	fp, err := Parse(hex128)
	require.NoError(t, err)
	require.Equal(t, hex128, fp.String())
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("deadbeef")
	require.ErrorIs(t, err, ErrInvalidLength)

	// The spec calls out a 132-char red herring explicitly: 128 is canonical.
	hex132 := ""
	for i := 0; i < 132; i++ {
		hex132 += "a"
	}
	_, err = Parse(hex132)
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestParseRejectsUppercase(t *testing.T) {
	hex128 := ""
	for i := 0; i < 128; i++ {
		hex128 += "A"
	}
	_, err := Parse(hex128)
	require.ErrorIs(t, err, ErrInvalidHex)
}

func TestIsZero(t *testing.T) {
	var fp Fingerprint
	require.True(t, fp.IsZero())
}
