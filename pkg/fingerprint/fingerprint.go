// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package fingerprint implements the 128-hex / 64-byte participant identity
// id derived from a DSA public key (Sha3.hash512(dsa_public_key)).
package fingerprint

import (
	"encoding/hex"
	"errors"
	"strings"
)

// Size is the canonical byte length of a fingerprint. 128 hex characters is
// canonical; a 132-char filename convention seen in some deployments is not.
const Size = 64

// HexLen is the canonical hex-encoded length.
const HexLen = Size * 2

var (
	ErrInvalidLength = errors.New("fingerprint: invalid length, expected 128 hex characters")
	ErrInvalidHex    = errors.New("fingerprint: not valid lowercase hex")
)

// Fingerprint is the immutable identity id of a participant.
type Fingerprint [Size]byte

// HashFunc computes Sha3.hash512 over arbitrary bytes; wired to the real
// SHA3-512 adapter in pkg/dnacrypto by callers to avoid an import cycle.
type HashFunc func(data []byte) [64]byte

// FromDSAPublicKey derives a fingerprint from a DSA public key using the
// supplied hash function (normally dnacrypto.Hash512).
func FromDSAPublicKey(dsaPubKey []byte, hash HashFunc) Fingerprint {
	return Fingerprint(hash(dsaPubKey))
}

// Parse validates and decodes a 128-lowercase-hex-character fingerprint.
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	if len(s) != HexLen {
		return fp, ErrInvalidLength
	}
	if s != strings.ToLower(s) {
		return fp, ErrInvalidHex
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, ErrInvalidHex
	}
	copy(fp[:], b)
	return fp, nil
}

// IsValid reports whether s is a syntactically valid fingerprint.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the 128-char lowercase hex encoding.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Equal reports whether two fingerprints are the same identity.
func (f Fingerprint) Equal(other Fingerprint) bool {
	return f == other
}

// IsZero reports whether f is the zero value (never a valid identity).
func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}
