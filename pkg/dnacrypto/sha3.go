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

package dnacrypto

import "golang.org/x/crypto/sha3"

// Sha3 is the narrow hashing interface the engine calls.
type Sha3 interface {
	Hash512(data []byte) [64]byte
}

type sha3Hasher struct{}

// NewSha3 returns the SHA3-512 adapter backing Sha3.hash512.
func NewSha3() Sha3 {
	return sha3Hasher{}
}

func (sha3Hasher) Hash512(data []byte) [64]byte {
	return sha3.Sum512(data)
}

// Hash512 is a free function shortcut used where a Sha3 instance would be
// needlessly indirect (e.g. fingerprint derivation, chunk key derivation).
func Hash512(data []byte) [64]byte {
	return sha3.Sum512(data)
}
