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

// Package wallets is the reference WalletDeriver adapter the engine calls
// during identity load's "silent background: derive any missing blockchain
// wallets" step. It sits outside the core boundary (§1 excludes "blockchain
// wallet derivation, RPC clients, address formatting" as external); the
// core only ever holds the resulting address strings.
//
// Chain keys are never the identity's own DSA/KEM keys (Dilithium/Kyber
// aren't usable on any of these chains). Instead each chain's classical
// keypair is derived deterministically from a per-identity seed so the same
// identity always re-derives the same addresses without persisting extra
// private key material beyond the seed the vault already protects.
package wallets

import (
	"context"
	"fmt"
)

// Chain identifies one of the profile's wallet slots (spec §3 Profile.wallets).
type Chain string

const (
	ChainBackbone Chain = "backbone"
	ChainBTC      Chain = "btc"
	ChainETH      Chain = "eth"
	ChainSOL      Chain = "sol"
	ChainTRX      Chain = "trx"
)

// AllChains is the fixed derivation order used by Deriver.DeriveAll.
var AllChains = []Chain{ChainBackbone, ChainBTC, ChainETH, ChainSOL, ChainTRX}

// Addresses holds one derived address per chain, matching the shape of
// keyserver.Wallets.
type Addresses struct {
	Backbone string
	BTC      string
	ETH      string
	SOL      string
	TRX      string
}

// IsZero reports whether no address has been derived yet.
func (a Addresses) IsZero() bool {
	return a == Addresses{}
}

// Balance is a single asset balance on some chain, for GET_BALANCES.
type Balance struct {
	Chain  Chain
	Asset  string
	Amount string
}

// Transaction is a single historical transfer, for GET_TRANSACTIONS.
type Transaction struct {
	Chain     Chain
	TxHash    string
	Direction string // "in" | "out"
	Amount    string
	Asset     string
	TimeMS    int64
}

// Deriver is the narrow interface internal/engine calls for every
// wallet/blockchain task (spec §4.10 "wallet/blockchain tasks... Out-of-core
// delegation; the handler copies results into engine-owned structures").
type Deriver interface {
	// DeriveAll derives one address per chain in AllChains from seed.
	DeriveAll(seed []byte) (Addresses, error)

	// GetBalances fetches balances for the given chain addresses. A
	// reference implementation with no RPC configured returns an empty
	// slice rather than an error so identity load never blocks on it.
	GetBalances(ctx context.Context, addrs Addresses) ([]Balance, error)

	// SendTokens submits a transfer and returns the transaction hash.
	SendTokens(ctx context.Context, chain Chain, toAddress, amount string) (txHash string, err error)

	// GetTransactions returns recent transaction history for addrs.
	GetTransactions(ctx context.Context, addrs Addresses, limit int) ([]Transaction, error)
}

// ErrUnsupportedChain names a Chain value outside AllChains. The reference
// ClassicalDeriver does not return it; its SendTokens returns
// ErrNoRPCConfigured for every chain.
var ErrUnsupportedChain = fmt.Errorf("wallets: unsupported chain")

// ErrNoRPCConfigured is returned by SendTokens on the reference adapter,
// which ships no chain RPC clients (spec §1 excludes "RPC clients").
var ErrNoRPCConfigured = fmt.Errorf("wallets: no RPC client configured for this chain")
