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
	"os"
	"path/filepath"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/identity"
	"github.com/sage-x-project/dna-messenger-core/internal/keyserver"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/metrics"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
	"github.com/sage-x-project/dna-messenger-core/pkg/fingerprint"
)

// --- Public API -----------------------------------------------------------

func (e *Engine) ListIdentities(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskListIdentities, nil, cb, userData)
}

func (e *Engine) CreateIdentity(password, name string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskCreateIdentity, CreateIdentityParams{Password: password, Name: name}, cb, userData)
}

func (e *Engine) LoadIdentity(fp, password string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskLoadIdentity, LoadIdentityParams{Fingerprint: fp, Password: password}, cb, userData)
}

func (e *Engine) DeleteIdentity(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskDeleteIdentity, DeleteIdentityParams{Fingerprint: fp}, cb, userData)
}

// --- Handlers --------------------------------------------------------------

func (e *Engine) handleListIdentities(ctx context.Context, t taskqueue.Task) {
	fps, err := e.vault.ListIdentities()
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	out := make([]string, len(fps))
	for i, fp := range fps {
		out[i] = fp.String()
	}
	complete(t, dnaerr.OK, out)
}

// handleCreateIdentity implements "create_identity_sync is transactional
// over name registration: if name registration fails, the newly created
// identity directory is removed" (spec §7).
func (e *Engine) handleCreateIdentity(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(CreateIdentityParams)

	session, err := e.vault.Create(p.Password)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	if p.Name != "" {
		params := keyserver.PublishParams{
			SelfFP:      session.Fingerprint.String(),
			Name:        p.Name,
			Profile:     keyserver.Profile{DsaPubKey: session.Keys.DsaPub, KemPubKey: session.Keys.KemPub},
			DsaPriv:     session.Keys.DsaPriv,
			TimestampMS: nowMS(),
		}
		if err := e.keyserver.Publish(ctx, params); err != nil {
			// Best-effort rollback: remove the identity directory we just created.
			_ = os.RemoveAll(filepath.Join(e.dataDir, session.Fingerprint.String()))
			complete(t, dnaerr.CodeOf(err), nil)
			return
		}
		e.mu.Lock()
		e.nameCache[session.Fingerprint.String()] = p.Name
		e.mu.Unlock()
	}

	complete(t, dnaerr.OK, session.Fingerprint.String())
}

// handleLoadIdentity implements the spec §4.4 load sequence. Steps 1-2 are
// inside vault.Load; steps 3-10 are orchestrated here.
func (e *Engine) handleLoadIdentity(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(LoadIdentityParams)

	fp, err := fingerprint.Parse(p.Fingerprint)
	if err != nil {
		complete(t, dnaerr.InvalidArg, nil)
		return
	}

	start := time.Now()
	session, err := e.vault.Load(fp, p.Password)
	if err != nil {
		// WrongPassword/PasswordRequired short-circuit before any mutation.
		metrics.SessionsCreated.WithLabelValues("failure").Inc()
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	metrics.SessionsCreated.WithLabelValues("success").Inc()
	metrics.SessionsActive.Inc()
	metrics.SessionDuration.WithLabelValues("load").Observe(time.Since(start).Seconds())

	selfFP := session.Fingerprint.String()

	e.mu.Lock()
	e.selfFingerprint = selfFP
	e.sessionPassword = session.Password
	e.sessionKeys = session.Keys
	e.keysEncrypted = session.Password != ""
	e.identityLoaded = true
	e.state = StateIdentityLoaded
	e.mu.Unlock()

	// Step 4: sync contact list from DHT. Non-fatal if absent.
	if err := e.syncContactsFromDht(ctx, selfFP); err != nil {
		e.log.Warn("contact sync from DHT failed during load", logger.Error(err))
	}

	// Steps 6-7: startListenersForLoadedIdentity itself scans every
	// contact's outbox for offline messages before wiring up listeners.
	e.startListenersForLoadedIdentity(ctx, selfFP)

	// Step 8: silent background wallet derivation.
	go e.deriveWalletsBackground(selfFP, session.Keys.DsaPriv)

	// Step 9: profile republish policy.
	go e.republishOnLogin(context.Background(), session)

	e.bus.Dispatch(eventbus.Event{Kind: eventbus.IdentityLoaded, Fingerprint: selfFP, TimestampSec: time.Now().Unix()})

	complete(t, dnaerr.OK, selfFP)
}

func (e *Engine) deriveWalletsBackground(selfFP string, dsaPriv []byte) {
	addrs, err := e.walletDeriver.DeriveAll(dsaPriv)
	if err != nil {
		e.log.Warn("wallet derivation failed", logger.String("fingerprint", selfFP), logger.Error(err))
		return
	}
	e.mu.Lock()
	e.blockchainWallets = addrs
	e.mu.Unlock()
}

// republishOnLogin implements spec §4.6 "republish on login" using
// whatever wallet addresses have been derived so far (derivation runs
// concurrently in the background; a slow RPC just means this pass
// republishes with wallets still empty, which the next login retries).
func (e *Engine) republishOnLogin(ctx context.Context, session *identity.Session) {
	selfFP := session.Fingerprint.String()

	e.mu.RLock()
	cachedName := e.nameCache[selfFP]
	addrs := e.blockchainWallets
	e.mu.RUnlock()

	params := keyserver.PublishParams{
		SelfFP: selfFP,
		Profile: keyserver.Profile{
			Wallets:   keyserver.Wallets{Backbone: addrs.Backbone, BTC: addrs.BTC, ETH: addrs.ETH, SOL: addrs.SOL, TRX: addrs.TRX},
			DsaPubKey: session.Keys.DsaPub,
			KemPubKey: session.Keys.KemPub,
		},
		DsaPriv:     session.Keys.DsaPriv,
		TimestampMS: nowMS(),
	}

	if err := e.keyserver.RepublishOnLogin(ctx, params, cachedName); err != nil {
		e.log.Warn("profile republish on login failed", logger.String("fingerprint", selfFP), logger.Error(err))
	}
}

func (e *Engine) handleDeleteIdentity(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(DeleteIdentityParams)
	fp, err := fingerprint.Parse(p.Fingerprint)
	if err != nil {
		complete(t, dnaerr.InvalidArg, nil)
		return
	}

	e.mu.Lock()
	wasLoaded := e.identityLoaded && e.selfFingerprint == fp.String()
	if wasLoaded {
		if e.outbox != nil {
			e.outbox.CancelAll()
		}
		e.sessionKeys.Zero()
		e.sessionPassword = ""
		e.identityLoaded = false
		e.selfFingerprint = ""
		e.state = StateRunning
	}
	e.mu.Unlock()
	if wasLoaded {
		metrics.SessionsActive.Dec()
		metrics.SessionsClosed.Inc()
	}

	if err := e.vault.Delete(fp, e.dataDir); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, nil)
}

func nowMS() int64 { return time.Now().UnixMilli() }
