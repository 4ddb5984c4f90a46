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

package keyserver

import "encoding/json"

// wireProfile/wireNameRecord are the on-the-wire JSON shapes stored inside
// DHT values. The signature always covers Profile.canonicalEncoding() /
// NameRecord.canonicalEncoding(), never the JSON bytes themselves, so the
// wire format can evolve without invalidating existing signatures.
type wireProfile struct {
	DisplayName string   `json:"display_name,omitempty"`
	Backbone    string   `json:"wallet_backbone,omitempty"`
	BTC         string   `json:"wallet_btc,omitempty"`
	ETH         string   `json:"wallet_eth,omitempty"`
	SOL         string   `json:"wallet_sol,omitempty"`
	TRX         string   `json:"wallet_trx,omitempty"`
	Telegram    string   `json:"social_telegram,omitempty"`
	X           string   `json:"social_x,omitempty"`
	GitHub      string   `json:"social_github,omitempty"`
	Bio         string   `json:"bio,omitempty"`
	AvatarB64   string   `json:"avatar_b64,omitempty"`
	DsaPubKey   []byte   `json:"dsa_pubkey"`
	KemPubKey   []byte   `json:"kem_pubkey"`
	TimestampMS int64    `json:"timestamp_ms"`
	Signature   []byte   `json:"signature"`
}

func marshalUnifiedIdentity(ui UnifiedIdentity) ([]byte, error) {
	w := wireProfile{
		DisplayName: ui.Profile.DisplayName,
		Backbone:    ui.Profile.Wallets.Backbone,
		BTC:         ui.Profile.Wallets.BTC,
		ETH:         ui.Profile.Wallets.ETH,
		SOL:         ui.Profile.Wallets.SOL,
		TRX:         ui.Profile.Wallets.TRX,
		Telegram:    ui.Profile.Socials.Telegram,
		X:           ui.Profile.Socials.X,
		GitHub:      ui.Profile.Socials.GitHub,
		Bio:         ui.Profile.Bio,
		AvatarB64:   ui.Profile.AvatarB64,
		DsaPubKey:   ui.Profile.DsaPubKey,
		KemPubKey:   ui.Profile.KemPubKey,
		TimestampMS: ui.Profile.TimestampMS,
		Signature:   ui.Signature,
	}
	return json.Marshal(w)
}

func unmarshalUnifiedIdentity(data []byte) (UnifiedIdentity, error) {
	var w wireProfile
	if err := json.Unmarshal(data, &w); err != nil {
		return UnifiedIdentity{}, err
	}
	return UnifiedIdentity{
		Profile: Profile{
			DisplayName: w.DisplayName,
			Wallets: Wallets{
				Backbone: w.Backbone, BTC: w.BTC, ETH: w.ETH, SOL: w.SOL, TRX: w.TRX,
			},
			Socials: Socials{
				Telegram: w.Telegram, X: w.X, GitHub: w.GitHub,
			},
			Bio:         w.Bio,
			AvatarB64:   w.AvatarB64,
			DsaPubKey:   w.DsaPubKey,
			KemPubKey:   w.KemPubKey,
			TimestampMS: w.TimestampMS,
		},
		Signature: w.Signature,
	}, nil
}

func marshalNameRecord(n NameRecord) ([]byte, error) {
	return json.Marshal(n)
}

func unmarshalNameRecord(data []byte) (NameRecord, error) {
	var n NameRecord
	err := json.Unmarshal(data, &n)
	return n, err
}
