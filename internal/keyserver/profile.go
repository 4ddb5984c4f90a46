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

// Package keyserver implements C6: publish/lookup of profile and name
// records in the DHT keyserver namespace (spec §4.6).
package keyserver

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wallets mirrors the spec §3 Profile.wallets shape. Addresses are derived
// out-of-core (internal/wallets); keyserver only carries the strings.
type Wallets struct {
	Backbone string
	BTC      string
	ETH      string
	SOL      string
	TRX      string
}

// Socials mirrors the spec §3 Profile.socials shape.
type Socials struct {
	Telegram string
	X        string
	GitHub   string
}

// Profile is the spec §3 Profile record, minus the signature (kept
// alongside in UnifiedIdentity so canonicalEncoding can be re-derived for
// verification).
type Profile struct {
	DisplayName string
	Wallets     Wallets
	Socials     Socials
	Bio         string
	AvatarB64   string
	DsaPubKey   []byte
	KemPubKey   []byte
	TimestampMS int64
}

// UnifiedIdentity is a Profile plus its detached DSA signature, as stored
// under keyserver:<fingerprint>.
type UnifiedIdentity struct {
	Profile   Profile
	Signature []byte
}

// NameRecord is the spec §3 NameRecord published at name:<lowercased_name>.
type NameRecord struct {
	Name        string
	Fingerprint string
	DsaPubKey   []byte
	TimestampMS int64
	Signature   []byte
}

// canonicalEncoding produces the fixed-field-order byte string the DSA
// signature covers (spec §3: "Signature covers the canonical encoding of
// the remaining fields"). Length-prefixed fields avoid ambiguity between
// adjacent variable-length strings.
func (p Profile) canonicalEncoding() []byte {
	var buf bytes.Buffer
	writeStr := func(s string) {
		var lenField [4]byte
		binary.BigEndian.PutUint32(lenField[:], uint32(len(s)))
		buf.Write(lenField[:])
		buf.WriteString(s)
	}
	writeBytes := func(b []byte) {
		var lenField [4]byte
		binary.BigEndian.PutUint32(lenField[:], uint32(len(b)))
		buf.Write(lenField[:])
		buf.Write(b)
	}

	writeStr(p.DisplayName)
	writeStr(p.Wallets.Backbone)
	writeStr(p.Wallets.BTC)
	writeStr(p.Wallets.ETH)
	writeStr(p.Wallets.SOL)
	writeStr(p.Wallets.TRX)
	writeStr(p.Socials.Telegram)
	writeStr(p.Socials.X)
	writeStr(p.Socials.GitHub)
	writeStr(p.Bio)
	writeStr(p.AvatarB64)
	writeBytes(p.DsaPubKey)
	writeBytes(p.KemPubKey)
	var tsField [8]byte
	binary.BigEndian.PutUint64(tsField[:], uint64(p.TimestampMS))
	buf.Write(tsField[:])

	return buf.Bytes()
}

func (n NameRecord) canonicalEncoding() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\x00%s\x00", n.Name, n.Fingerprint)
	buf.Write(n.DsaPubKey)
	var tsField [8]byte
	binary.BigEndian.PutUint64(tsField[:], uint64(n.TimestampMS))
	buf.Write(tsField[:])
	return buf.Bytes()
}
