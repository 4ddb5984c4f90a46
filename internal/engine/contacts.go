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
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/metrics"
	"github.com/sage-x-project/dna-messenger-core/internal/store"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// --- Public API -------------------------------------------------------------

func (e *Engine) GetContacts(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetContacts, nil, cb, userData)
}

func (e *Engine) AddContact(identifier, notes string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskAddContact, AddContactParams{Identifier: identifier, Notes: notes}, cb, userData)
}

func (e *Engine) RemoveContact(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskRemoveContact, RemoveContactParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) SendContactRequest(recipientFP, message string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskSendContactRequest, SendContactRequestParams{RecipientFP: recipientFP, Message: message}, cb, userData)
}

func (e *Engine) GetContactRequests(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetContactRequests, nil, cb, userData)
}

func (e *Engine) ApproveContactRequest(senderFP string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskApproveContactRequest, ApproveContactRequestParams{SenderFP: senderFP}, cb, userData)
}

func (e *Engine) DenyContactRequest(senderFP string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskDenyContactRequest, DenyContactRequestParams{SenderFP: senderFP}, cb, userData)
}

func (e *Engine) BlockUser(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskBlockUser, BlockUserParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) UnblockUser(fp string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskUnblockUser, UnblockUserParams{Fingerprint: fp}, cb, userData)
}

func (e *Engine) GetBlockedUsers(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetBlockedUsers, nil, cb, userData)
}

// --- Handlers ----------------------------------------------------------------

func (e *Engine) handleGetContacts(ctx context.Context, t taskqueue.Task) {
	contacts, err := e.contactsDb.GetContacts(ctx)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, contacts)
}

// handleAddContact implements spec §4.9 add_contact: resolve the
// identifier (fingerprint or registered name), insert locally, sync the
// contact list to DHT on success.
func (e *Engine) handleAddContact(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(AddContactParams)
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	fp := p.Identifier
	if !validFingerprint(fp) {
		resolved, err := e.keyserver.LookupName(ctx, p.Identifier)
		if err != nil {
			complete(t, dnaerr.CodeOf(err), nil)
			return
		}
		fp = resolved
	}

	exists, err := e.contactsDb.HasContact(ctx, fp)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	if exists {
		complete(t, dnaerr.AlreadyExists, nil)
		return
	}

	if err := e.contactsDb.AddContact(ctx, store.Contact{IdentityFP: fp, Notes: p.Notes, AddedAt: time.UnixMilli(nowMS())}); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	if err := e.syncContactsToDht(ctx, selfFP); err != nil {
		e.log.Warn("contact list sync to DHT failed after add_contact", logger.Error(err))
	}

	e.startContactListeners(ctx, selfFP, fp)
	complete(t, dnaerr.OK, fp)
}

func (e *Engine) handleRemoveContact(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(RemoveContactParams)
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}
	if err := e.contactsDb.RemoveContact(ctx, p.Fingerprint); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	e.mu.Lock()
	if e.outbox != nil {
		e.outbox.Cancel(p.Fingerprint)
	}
	if e.delivery != nil {
		e.delivery.Untrack(p.Fingerprint)
	}
	e.mu.Unlock()

	if err := e.syncContactsToDht(ctx, selfFP); err != nil {
		e.log.Warn("contact list sync to DHT failed after remove_contact", logger.Error(err))
	}
	complete(t, dnaerr.OK, nil)
}

// handleSendContactRequest publishes a signed ContactRequest to the
// recipient's inbox. The engine never adds the contact locally on send
// (spec §4.9); local add happens only when the reciprocal "accepted"
// request is later observed via get_contact_requests.
func (e *Engine) handleSendContactRequest(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(SendContactRequestParams)
	selfFP, keys, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	if err := e.publishContactRequest(ctx, selfFP, keys.DsaPriv, p.RecipientFP, p.Message); err != nil {
		metrics.HandshakesFailed.WithLabelValues("network").Inc()
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	metrics.HandshakesInitiated.WithLabelValues("initiator").Inc()
	complete(t, dnaerr.OK, nil)
}

func (e *Engine) publishContactRequest(ctx context.Context, selfFP string, dsaPriv []byte, recipientFP, message string) error {
	e.mu.RLock()
	senderName := e.nameCache[selfFP]
	e.mu.RUnlock()

	req := contactRequest{SenderFP: selfFP, SenderName: senderName, Message: message, TimestampMS: nowMS()}
	sig, err := e.vault.Dsa.Sign(dsaPriv, req.canonicalEncoding())
	if err != nil {
		return dnaerr.New(dnaerr.Crypto, err)
	}
	req.Signature = sig

	data, err := marshalContactRequest(req)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}
	if _, err := e.dht.PutSigned(ctx, inboxKey(recipientFP), data, "", 0); err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}
	return nil
}

// handleGetContactRequests implements spec §4.9: fetch via fan-in get_all,
// auto-add reciprocal acceptances (syncing the contact list to DHT exactly
// once for the whole batch), insert everything else into the pending
// table, then return all currently pending requests.
func (e *Engine) handleGetContactRequests(ctx context.Context, t taskqueue.Task) {
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	raw, err := e.dht.GetAll(ctx, inboxKey(selfFP))
	if err != nil {
		complete(t, dnaerr.Network, nil)
		return
	}

	blocked, err := e.contactsDb.GetBlocked(ctx)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	blockedSet := make(map[string]bool, len(blocked))
	for _, c := range blocked {
		blockedSet[c.IdentityFP] = true
	}

	contactsChanged := false
	for _, data := range raw {
		req, err := unmarshalContactRequest(data)
		if err != nil {
			continue
		}
		if blockedSet[req.SenderFP] {
			continue
		}

		if req.Message == acceptedMessage {
			exists, err := e.contactsDb.HasContact(ctx, req.SenderFP)
			if err == nil && !exists {
				if err := e.contactsDb.AddContact(ctx, store.Contact{IdentityFP: req.SenderFP, AddedAt: time.UnixMilli(req.TimestampMS)}); err == nil {
					contactsChanged = true
					e.startContactListeners(ctx, selfFP, req.SenderFP)
					metrics.HandshakesCompleted.WithLabelValues("approved").Inc()
				}
			}
			continue
		}

		_ = e.contactsDb.AddPendingRequest(ctx, store.PendingContactRequest{
			SenderFP:   req.SenderFP,
			SenderName: req.SenderName,
			Message:    req.Message,
			Timestamp:  req.TimestampMS,
		})
		metrics.HandshakesInitiated.WithLabelValues("responder").Inc()
	}

	if contactsChanged {
		if err := e.syncContactsToDht(ctx, selfFP); err != nil {
			e.log.Warn("contact list sync to DHT failed after get_contact_requests", logger.Error(err))
		}
	}

	pending, err := e.contactsDb.GetPendingRequests(ctx)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, pending)
}

// handleApproveContactRequest marks approved locally, publishes the
// reciprocal "accepted" request, then syncs the contact list (spec §4.9).
func (e *Engine) handleApproveContactRequest(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(ApproveContactRequestParams)
	selfFP, keys, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	if err := e.contactsDb.AddContact(ctx, store.Contact{IdentityFP: p.SenderFP, AddedAt: time.UnixMilli(nowMS())}); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	_ = e.contactsDb.RemovePendingRequest(ctx, p.SenderFP)

	if err := e.publishContactRequest(ctx, selfFP, keys.DsaPriv, p.SenderFP, acceptedMessage); err != nil {
		e.log.Warn("failed to publish reciprocal contact request", logger.String("sender_fp", p.SenderFP), logger.Error(err))
	}

	if err := e.syncContactsToDht(ctx, selfFP); err != nil {
		e.log.Warn("contact list sync to DHT failed after approve_contact_request", logger.Error(err))
	}

	e.startContactListeners(ctx, selfFP, p.SenderFP)
	metrics.HandshakesCompleted.WithLabelValues("approved").Inc()
	complete(t, dnaerr.OK, nil)
}

func (e *Engine) handleDenyContactRequest(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(DenyContactRequestParams)
	_ = e.contactsDb.RemovePendingRequest(ctx, p.SenderFP)
	metrics.HandshakesCompleted.WithLabelValues("rejected").Inc()
	complete(t, dnaerr.OK, nil)
}

func (e *Engine) handleBlockUser(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(BlockUserParams)
	if err := e.contactsDb.SetBlocked(ctx, p.Fingerprint, true); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, nil)
}

func (e *Engine) handleUnblockUser(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(UnblockUserParams)
	if err := e.contactsDb.SetBlocked(ctx, p.Fingerprint, false); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, nil)
}

func (e *Engine) handleGetBlockedUsers(ctx context.Context, t taskqueue.Task) {
	blocked, err := e.contactsDb.GetBlocked(ctx)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, blocked)
}

func (e *Engine) handleSyncContactsToDht(ctx context.Context, t taskqueue.Task) {
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}
	if err := e.syncContactsToDht(ctx, selfFP); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, nil)
}

func (e *Engine) handleSyncContactsFromDht(ctx context.Context, t taskqueue.Task) {
	selfFP, _, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}
	if err := e.syncContactsFromDht(ctx, selfFP); err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	complete(t, dnaerr.OK, nil)
}

// syncContactsToDht publishes the full local contact list, signed, to
// contactlist:<self_fp> (spec §3 Contact).
func (e *Engine) syncContactsToDht(ctx context.Context, selfFP string) error {
	contacts, err := e.contactsDb.GetContacts(ctx)
	if err != nil {
		return err
	}

	e.mu.RLock()
	dsaPriv := e.sessionKeys.DsaPriv
	e.mu.RUnlock()

	entries := make([]contactListEntry, len(contacts))
	for i, c := range contacts {
		entries[i] = contactListEntry{IdentityFP: c.IdentityFP, Notes: c.Notes, AddedAtMS: c.AddedAt.UnixMilli(), Blocked: c.Blocked}
	}
	list := signedContactList{Entries: entries, TimestampMS: nowMS()}

	sig, err := e.vault.Dsa.Sign(dsaPriv, list.canonicalEncoding())
	if err != nil {
		return dnaerr.New(dnaerr.Crypto, err)
	}
	list.Signature = sig

	data, err := marshalContactList(list)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}
	if _, err := e.dht.PutSigned(ctx, contactListKey(selfFP), data, selfFP, 0); err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}
	return nil
}

// syncContactsFromDht restores the contact list from contactlist:<self_fp>
// (spec §4.4 load step 4), signature-verified under the own DSA public
// key. Absence is not an error: a freshly created identity has none yet.
func (e *Engine) syncContactsFromDht(ctx context.Context, selfFP string) error {
	data, ok, err := e.dht.Get(ctx, contactListKey(selfFP))
	if err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}
	if !ok {
		return nil
	}

	list, err := unmarshalContactList(data)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}

	e.mu.RLock()
	dsaPub := e.sessionKeys.DsaPub
	e.mu.RUnlock()

	sig := list.Signature
	list.Signature = nil
	verified := e.vault.Dsa.Verify(dsaPub, list.canonicalEncoding(), sig)
	list.Signature = sig
	if !verified {
		return dnaerr.New(dnaerr.InvalidSignature, nil)
	}

	for _, entry := range list.Entries {
		exists, err := e.contactsDb.HasContact(ctx, entry.IdentityFP)
		if err != nil || exists {
			continue
		}
		_ = e.contactsDb.AddContact(ctx, store.Contact{
			IdentityFP: entry.IdentityFP,
			Notes:      entry.Notes,
			AddedAt:    time.UnixMilli(entry.AddedAtMS),
			Blocked:    entry.Blocked,
		})
	}
	return nil
}

// startContactListeners wires a single newly-added contact into the
// already-running C7/C8 registries without waiting for the next
// startListenersForLoadedIdentity pass (spec §4.9 add_contact / approve).
func (e *Engine) startContactListeners(ctx context.Context, selfFP, contactFP string) {
	e.mu.RLock()
	outbox := e.outbox
	tracker := e.delivery
	e.mu.RUnlock()
	if outbox == nil || tracker == nil {
		return
	}
	if _, err := outbox.Listen(contactFP); err != nil {
		e.log.Warn("failed to start outbox listener for new contact", logger.String("contact_fp", contactFP), logger.Error(err))
	}
	tracker.Track(contactFP)
	e.bus.Dispatch(eventbus.Event{Kind: eventbus.PresenceChanged, Fingerprint: selfFP, RecipientFP: contactFP})
}
