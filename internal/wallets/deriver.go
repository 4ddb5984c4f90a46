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

package wallets

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// ClassicalDeriver is the reference Deriver: it derives one classical
// keypair per chain from an identity seed and exposes address strings only
// (private key material never leaves DeriveAll's stack).
type ClassicalDeriver struct{}

// NewClassicalDeriver builds the reference wallet deriver.
func NewClassicalDeriver() *ClassicalDeriver {
	return &ClassicalDeriver{}
}

// subSeed derives a 32-byte per-chain scalar from seed so every chain gets
// an independent keypair from the same root seed.
func subSeed(seed []byte, chain Chain) []byte {
	h := sha3.Sum512(append(append([]byte{}, seed...), []byte(":wallet:"+string(chain))...))
	out := make([]byte, 32)
	copy(out, h[:32])
	return out
}

func (d *ClassicalDeriver) DeriveAll(seed []byte) (Addresses, error) {
	backbone, err := deriveSecp256k1Address(subSeed(seed, ChainBackbone), 0x00)
	if err != nil {
		return Addresses{}, err
	}
	btc, err := deriveSecp256k1Address(subSeed(seed, ChainBTC), 0x00)
	if err != nil {
		return Addresses{}, err
	}
	eth, err := deriveEthereumAddress(subSeed(seed, ChainETH))
	if err != nil {
		return Addresses{}, err
	}
	sol, err := deriveSolanaAddress(subSeed(seed, ChainSOL))
	if err != nil {
		return Addresses{}, err
	}
	trx, err := deriveTronAddress(subSeed(seed, ChainTRX))
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Backbone: backbone, BTC: btc, ETH: eth, SOL: sol, TRX: trx}, nil
}

// deriveSecp256k1Address builds a P2PKH-shaped address: versionByte ||
// sha3_256(compressed_pubkey)[:20], base58-encoded with a 4-byte checksum.
// This is not wire-compatible with mainnet Bitcoin (which uses
// RIPEMD160(SHA256(.))); it reuses the project's sha3 primitive rather than
// introduce a dedicated ripemd160 dependency for a chain the core only
// surfaces as an address string.
func deriveSecp256k1Address(subSeed []byte, version byte) (string, error) {
	priv := secp256k1.PrivKeyFromBytes(subSeed)
	defer priv.Zero()
	pubBytes := priv.PubKey().SerializeCompressed()
	digest := sha3.Sum256(pubBytes)
	payload := append([]byte{version}, digest[:20]...)
	return base58CheckEncode(payload), nil
}

func deriveEthereumAddress(subSeed []byte) (string, error) {
	priv, err := ethcrypto.ToECDSA(subSeed)
	if err != nil {
		return "", err
	}
	return ethcrypto.PubkeyToAddress(priv.PublicKey).Hex(), nil
}

// deriveTronAddress mirrors Ethereum key derivation (Tron uses the same
// secp256k1 + Keccak256 pipeline) but base58check-encodes the 21-byte
// payload with Tron's 0x41 address-prefix byte.
func deriveTronAddress(subSeed []byte) (string, error) {
	priv, err := ethcrypto.ToECDSA(subSeed)
	if err != nil {
		return "", err
	}
	ethAddr := ethcrypto.PubkeyToAddress(priv.PublicKey)
	payload := append([]byte{0x41}, ethAddr.Bytes()...)
	return base58CheckEncode(payload), nil
}

func deriveSolanaAddress(subSeed []byte) (string, error) {
	edPriv := ed25519.NewKeyFromSeed(subSeed)
	pub := edPriv.Public().(ed25519.PublicKey)
	var solPub solana.PublicKey
	copy(solPub[:], pub)
	return solPub.String(), nil
}

func base58CheckEncode(payload []byte) string {
	checksum := doubleSHA256(payload)[:4]
	return base58.Encode(append(payload, checksum...))
}

func doubleSHA256(b []byte) []byte {
	first := sha256.Sum256(b)
	second := sha256.Sum256(first[:])
	return second[:]
}

func (d *ClassicalDeriver) GetBalances(ctx context.Context, addrs Addresses) ([]Balance, error) {
	// Reference adapter has no RPC endpoints configured; a production
	// deployment wires per-chain RPC clients here. Returning an empty
	// slice keeps identity load non-blocking (spec §4.4 step 8 is
	// "silent background").
	return nil, nil
}

func (d *ClassicalDeriver) SendTokens(ctx context.Context, chain Chain, toAddress, amount string) (string, error) {
	return "", ErrNoRPCConfigured
}

func (d *ClassicalDeriver) GetTransactions(ctx context.Context, addrs Addresses, limit int) ([]Transaction, error) {
	return nil, nil
}

var _ Deriver = (*ClassicalDeriver)(nil)
