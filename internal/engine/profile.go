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

package engine

import (
	"context"

	"github.com/sage-x-project/dna-messenger-core/internal/keyserver"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
	"github.com/sage-x-project/dna-messenger-core/internal/wallets"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// --- Public API -------------------------------------------------------------

func (e *Engine) RegisterName(name string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskRegisterName, RegisterNameParams{Name: name}, cb, userData)
}

func (e *Engine) GetRegisteredName(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetRegisteredName, nil, cb, userData)
}

func (e *Engine) GetDisplayName(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetDisplayName, GetProfileParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) GetAvatar(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetAvatar, GetProfileParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) LookupName(name string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskLookupName, LookupNameParams{Name: name}, cb, userData)
}

func (e *Engine) GetProfile(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetProfile, GetProfileParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) LookupProfile(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskLookupProfile, LookupProfileParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) UpdateProfile(p Profile, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskUpdateProfile, UpdateProfileParams{Profile: p}, cb, userData)
}

// --- Handlers ----------------------------------------------------------------

func engineProfileOf(ui keyserver.UnifiedIdentity) Profile {
	w := ui.Profile.Wallets
	return Profile{
		DisplayName: ui.Profile.DisplayName,
		Wallets:     wallets.Addresses{Backbone: w.Backbone, BTC: w.BTC, ETH: w.ETH, SOL: w.SOL, TRX: w.TRX},
		Telegram:    ui.Profile.Socials.Telegram,
		X:           ui.Profile.Socials.X,
		GitHub:      ui.Profile.Socials.GitHub,
		Bio:         ui.Profile.Bio,
		AvatarB64:   ui.Profile.AvatarB64,
	}
}

// handleUpdateProfile publishes the caller's full profile under
// keyserver:<self_fp> (spec §4.6 Publish). Wallet fields default to the
// engine's own derived addresses when the caller leaves them zero.
func (e *Engine) handleUpdateProfile(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(UpdateProfileParams)
	selfFP, keys, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	w := p.Profile.Wallets
	if w.IsZero() {
		e.mu.RLock()
		w = e.blockchainWallets
		e.mu.RUnlock()
	}

	params := keyserver.PublishParams{
		SelfFP: selfFP,
		Profile: keyserver.Profile{
			DisplayName: p.Profile.DisplayName,
			Wallets:     keyserver.Wallets{Backbone: w.Backbone, BTC: w.BTC, ETH: w.ETH, SOL: w.SOL, TRX: w.TRX},
			Socials:     keyserver.Socials{Telegram: p.Profile.Telegram, X: p.Profile.X, GitHub: p.Profile.GitHub},
			Bio:         p.Profile.Bio,
			AvatarB64:   p.Profile.AvatarB64,
			DsaPubKey:   keys.DsaPub,
			KemPubKey:   keys.KemPub,
		},
		DsaPriv:     keys.DsaPriv,
		TimestampMS: nowMS(),
	}

	if err := e.keyserver.Publish(ctx, params); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	e.profileCache.Invalidate(selfFP)
	complete(t, dnaerr.OK, nil)
}

// handleGetProfile reads from the profile cache (self if Fingerprint is
// empty), falling back to a fresh lookup on miss (spec §4.9
// get_profile/lookup_profile).
func (e *Engine) handleGetProfile(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(GetProfileParams)
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}
	fp := p.Fingerprint
	if fp == "" {
		fp = selfFP
	}

	ui, err := e.profileCache.Get(ctx, fp)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, engineProfileOf(ui))
}

// handleLookupProfile is get_profile's explicit-fingerprint sibling with
// the InvalidSignature auto-remove policy (spec §4.9/§7: "auto-remove the
// contact, surface error").
func (e *Engine) handleLookupProfile(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(LookupProfileParams)

	ui, err := e.profileCache.Get(ctx, p.Fingerprint)
	if err != nil {
		if dnaerr.CodeOf(err) == dnaerr.InvalidSignature {
			if rmErr := e.contactsDb.RemoveContact(ctx, p.Fingerprint); rmErr != nil {
				e.log.Warn("failed to auto-remove contact after invalid signature", logger.String("fingerprint", p.Fingerprint), logger.Error(rmErr))
			}
		}
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, engineProfileOf(ui))
}

func (e *Engine) handleGetDisplayName(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(GetProfileParams)
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}
	fp := p.Fingerprint
	if fp == "" {
		fp = selfFP
	}
	ui, err := e.profileCache.Get(ctx, fp)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, ui.Profile.DisplayName)
}

func (e *Engine) handleGetAvatar(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(GetProfileParams)
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}
	fp := p.Fingerprint
	if fp == "" {
		fp = selfFP
	}
	ui, err := e.profileCache.Get(ctx, fp)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, ui.Profile.AvatarB64)
}

func (e *Engine) handleLookupName(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(LookupNameParams)
	fp, err := e.keyserver.LookupName(ctx, p.Name)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, fp)
}

// handleRegisterName registers (or re-registers) the caller's display name,
// republishing the current profile alongside it (keyserver.Publish's
// registerName path runs only when Name != "").
func (e *Engine) handleRegisterName(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(RegisterNameParams)
	selfFP, keys, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	profile := keyserver.Profile{DsaPubKey: keys.DsaPub, KemPubKey: keys.KemPub}
	if existing, err := e.profileCache.Get(ctx, selfFP); err == nil {
		profile = existing.Profile
		profile.DsaPubKey, profile.KemPubKey = keys.DsaPub, keys.KemPub
	}

	params := keyserver.PublishParams{SelfFP: selfFP, Name: p.Name, Profile: profile, DsaPriv: keys.DsaPriv, TimestampMS: nowMS()}
	if err := e.keyserver.Publish(ctx, params); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	e.mu.Lock()
	e.nameCache[selfFP] = p.Name
	e.mu.Unlock()
	e.profileCache.Invalidate(selfFP)
	complete(t, dnaerr.OK, nil)
}

// handleGetRegisteredName prefers the in-memory name_cache (spec §3 Engine
// State), falling back to a DHT reverse lookup.
func (e *Engine) handleGetRegisteredName(ctx context.Context, t taskqueue.Task) {
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	e.mu.RLock()
	name, cached := e.nameCache[selfFP]
	e.mu.RUnlock()
	if cached && name != "" {
		complete(t, dnaerr.OK, name)
		return
	}

	name, found, err := e.keyserver.ReverseLookup(ctx, selfFP)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	if !found {
		complete(t, dnaerr.NotFound, nil)
		return
	}
	e.mu.Lock()
	e.nameCache[selfFP] = name
	e.mu.Unlock()
	complete(t, dnaerr.OK, name)
}
