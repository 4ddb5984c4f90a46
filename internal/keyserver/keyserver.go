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

import (
	"context"
	"fmt"
	"strings"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

func keyserverKey(fp string) []byte  { return []byte("keyserver:" + fp) }
func nameKey(name string) []byte     { return []byte("name:" + strings.ToLower(name)) }
func reverseKey(fp string) []byte    { return []byte("keyserver-name:" + fp) }

// Protocol implements C6 over a DhtClient facade and a Dsa signer/verifier.
type Protocol struct {
	dht dht.Client
	dsa dnacrypto.Dsa
}

// New builds a Protocol. dsa may be nil to use the package default
// (Dilithium5).
func New(client dht.Client, dsa dnacrypto.Dsa) *Protocol {
	if dsa == nil {
		dsa = dnacrypto.NewDsa()
	}
	return &Protocol{dht: client, dsa: dsa}
}

// PublishParams bundles the inputs to Publish (spec §4.6 step list).
type PublishParams struct {
	SelfFP      string
	Name        string // optional; empty skips name registration
	Profile     Profile
	DsaPriv     []byte
	TimestampMS int64
}

// Publish canonicalizes, signs, and chunked_puts the profile under
// keyserver:<self_fp>, then optionally registers Name (spec §4.6).
func (p *Protocol) Publish(ctx context.Context, params PublishParams) error {
	profile := params.Profile
	profile.TimestampMS = params.TimestampMS

	sig, err := p.dsa.Sign(params.DsaPriv, profile.canonicalEncoding())
	if err != nil {
		return dnaerr.New(dnaerr.Crypto, err)
	}

	ui := UnifiedIdentity{Profile: profile, Signature: sig}
	data, err := marshalUnifiedIdentity(ui)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}

	if err := p.dht.ChunkedPut(ctx, keyserverKey(params.SelfFP), data); err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}

	if params.Name != "" {
		if err := p.registerName(ctx, params); err != nil {
			return err
		}
		// Secondary fp->name record for ReverseLookup; best-effort, not
		// subject to the name-claim conflict policy.
		_, _ = p.dht.PutSigned(ctx, reverseKey(params.SelfFP), []byte(params.Name), params.SelfFP, 0)
	}

	return nil
}

func (p *Protocol) registerName(ctx context.Context, params PublishParams) error {
	existing, ok, err := p.dht.Get(ctx, nameKey(params.Name))
	if err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}
	if ok {
		rec, err := unmarshalNameRecord(existing)
		if err == nil && rec.Fingerprint != "" && rec.Fingerprint != params.SelfFP {
			return dnaerr.New(dnaerr.AlreadyExists, fmt.Errorf("keyserver: name %q already claimed", params.Name))
		}
	}

	rec := NameRecord{
		Name:        strings.ToLower(params.Name),
		Fingerprint: params.SelfFP,
		DsaPubKey:   params.Profile.DsaPubKey,
		TimestampMS: params.TimestampMS,
	}
	sig, err := p.dsa.Sign(params.DsaPriv, rec.canonicalEncoding())
	if err != nil {
		return dnaerr.New(dnaerr.Crypto, err)
	}
	rec.Signature = sig

	data, err := marshalNameRecord(rec)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}

	status, err := p.dht.PutSigned(ctx, nameKey(params.Name), data, params.SelfFP, 0)
	if err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}
	if status == dht.PutPermanentConflict {
		return dnaerr.New(dnaerr.AlreadyExists, fmt.Errorf("keyserver: name %q already claimed", params.Name))
	}
	return nil
}

// Lookup fetches and signature-verifies the profile for fp (spec §4.6).
// An invalid signature is actionable at the engine layer (auto-remove
// contact); this method only reports it via dnaerr.InvalidSignature.
func (p *Protocol) Lookup(ctx context.Context, fp string) (UnifiedIdentity, error) {
	data, ok, err := p.dht.ChunkedGet(ctx, keyserverKey(fp))
	if err != nil {
		return UnifiedIdentity{}, dnaerr.New(dnaerr.Network, err)
	}
	if !ok {
		return UnifiedIdentity{}, dnaerr.New(dnaerr.NotFound, nil)
	}

	ui, err := unmarshalUnifiedIdentity(data)
	if err != nil {
		return UnifiedIdentity{}, dnaerr.New(dnaerr.Internal, err)
	}

	if !p.dsa.Verify(ui.Profile.DsaPubKey, ui.Profile.canonicalEncoding(), ui.Signature) {
		return UnifiedIdentity{}, dnaerr.New(dnaerr.InvalidSignature, nil)
	}
	return ui, nil
}

// LookupName resolves a registered name to a fingerprint.
func (p *Protocol) LookupName(ctx context.Context, name string) (string, error) {
	data, ok, err := p.dht.Get(ctx, nameKey(name))
	if err != nil {
		return "", dnaerr.New(dnaerr.Network, err)
	}
	if !ok {
		return "", dnaerr.New(dnaerr.NotFound, nil)
	}
	rec, err := unmarshalNameRecord(data)
	if err != nil {
		return "", dnaerr.New(dnaerr.Internal, err)
	}
	return rec.Fingerprint, nil
}

// ReverseLookup returns the name associated with fp, if any; absence is not
// an error (spec §4.6).
func (p *Protocol) ReverseLookup(ctx context.Context, fp string) (string, bool, error) {
	data, ok, err := p.dht.Get(ctx, reverseKey(fp))
	if err != nil {
		return "", false, dnaerr.New(dnaerr.Network, err)
	}
	if !ok {
		return "", false, nil
	}
	return string(data), true, nil
}

// RepublishOnLogin implements the spec §4.6 login-time reconciliation: if
// lookup of own profile fails, republish with cachedName and
// currentWallets; if lookup succeeds but wallet fields are empty while
// currentWallets has values, publish an update.
func (p *Protocol) RepublishOnLogin(ctx context.Context, params PublishParams, cachedName string) error {
	existing, err := p.Lookup(ctx, params.SelfFP)
	if err != nil {
		if dnaerr.CodeOf(err) == dnaerr.NotFound {
			params.Name = cachedName
			return p.Publish(ctx, params)
		}
		return err
	}

	if existing.Profile.Wallets == (Wallets{}) && params.Profile.Wallets != (Wallets{}) {
		params.Name = "" // name already registered; don't re-register
		return p.Publish(ctx, params)
	}
	return nil
}
