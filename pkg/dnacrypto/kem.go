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

// Package dnacrypto is the narrow boundary between the engine and the
// post-quantum primitives it treats as opaque external services (spec §1):
// Kem.keypair/encap/decap, Dsa.sign/verify, Sha3.hash512. The engine never
// imports circl or x/crypto/sha3 directly; it only depends on these
// interfaces.
package dnacrypto

import (
	"fmt"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/schemes"
)

// kemSchemeName is KEM-1024 per spec §1/GLOSSARY.
const kemSchemeName = "Kyber1024"

// Kem is the narrow key-encapsulation interface the engine calls.
type Kem interface {
	// Keypair generates a fresh KEM key pair, returning opaque encodings.
	Keypair() (pub, priv []byte, err error)
	// Encap produces a ciphertext and shared secret for the given public key.
	Encap(pub []byte) (ciphertext, sharedSecret []byte, err error)
	// Decap recovers the shared secret from a ciphertext using the private key.
	Decap(priv, ciphertext []byte) (sharedSecret []byte, err error)
	// PublicKeySize / CiphertextSize describe the opaque encoding sizes, used
	// by callers that need to size buffers ahead of time (e.g. chunk budgets).
	PublicKeySize() int
	CiphertextSize() int
}

type kyberKem struct {
	scheme kem.Scheme
}

// NewKem returns the KEM-1024 adapter backing Kem.keypair/encap/decap.
func NewKem() Kem {
	sch := schemes.ByName(kemSchemeName)
	if sch == nil {
		panic("dnacrypto: " + kemSchemeName + " scheme not registered in circl")
	}
	return &kyberKem{scheme: sch}
}

func (k *kyberKem) Keypair() (pub, priv []byte, err error) {
	pk, sk, err := k.scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: kem keypair: %w", err)
	}
	pubBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: marshal kem public key: %w", err)
	}
	privBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: marshal kem private key: %w", err)
	}
	return pubBytes, privBytes, nil
}

func (k *kyberKem) Encap(pub []byte) (ciphertext, sharedSecret []byte, err error) {
	pk, err := k.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: unmarshal kem public key: %w", err)
	}
	ct, ss, err := k.scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: kem encapsulate: %w", err)
	}
	return ct, ss, nil
}

func (k *kyberKem) Decap(priv, ciphertext []byte) ([]byte, error) {
	sk, err := k.scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("dnacrypto: unmarshal kem private key: %w", err)
	}
	ss, err := k.scheme.Decapsulate(sk, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("dnacrypto: kem decapsulate: %w", err)
	}
	return ss, nil
}

func (k *kyberKem) PublicKeySize() int    { return k.scheme.PublicKeySize() }
func (k *kyberKem) CiphertextSize() int   { return k.scheme.CiphertextSize() }
