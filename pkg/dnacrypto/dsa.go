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

import (
	"fmt"

	"github.com/cloudflare/circl/sign"
	"github.com/cloudflare/circl/sign/schemes"
)

// dsaSchemeName is DSA-87 (ML-DSA-87 / Dilithium mode 5) per spec §1/GLOSSARY.
const dsaSchemeName = "Dilithium5"

// Dsa is the narrow signature interface the engine calls.
type Dsa interface {
	Keypair() (pub, priv []byte, err error)
	Sign(priv, message []byte) (signature []byte, err error)
	Verify(pub, message, signature []byte) bool
	PublicKeySize() int
	SignatureSize() int
}

type dilithiumDsa struct {
	scheme sign.Scheme
}

// NewDsa returns the DSA-87 adapter backing Dsa.sign/verify.
func NewDsa() Dsa {
	sch := schemes.ByName(dsaSchemeName)
	if sch == nil {
		panic("dnacrypto: " + dsaSchemeName + " scheme not registered in circl")
	}
	return &dilithiumDsa{scheme: sch}
}

func (d *dilithiumDsa) Keypair() (pub, priv []byte, err error) {
	pk, sk, err := d.scheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: dsa keypair: %w", err)
	}
	pubBytes, err := pk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: marshal dsa public key: %w", err)
	}
	privBytes, err := sk.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("dnacrypto: marshal dsa private key: %w", err)
	}
	return pubBytes, privBytes, nil
}

func (d *dilithiumDsa) Sign(priv, message []byte) ([]byte, error) {
	sk, err := d.scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("dnacrypto: unmarshal dsa private key: %w", err)
	}
	return d.scheme.Sign(sk, message, nil), nil
}

func (d *dilithiumDsa) Verify(pub, message, signature []byte) bool {
	pk, err := d.scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false
	}
	return d.scheme.Verify(pk, message, signature, nil)
}

func (d *dilithiumDsa) PublicKeySize() int { return d.scheme.PublicKeySize() }
func (d *dilithiumDsa) SignatureSize() int { return d.scheme.SignatureSize() }
