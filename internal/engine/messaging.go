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
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/eventbus"
	"github.com/sage-x-project/dna-messenger-core/internal/identity"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/mailbox"
	"github.com/sage-x-project/dna-messenger-core/internal/metrics"
	"github.com/sage-x-project/dna-messenger-core/internal/store"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnacrypto"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
	"github.com/sage-x-project/dna-messenger-core/pkg/fingerprint"
)

// messageEnvelope is the wire shape written to a day-bucketed mailbox: a
// KEM-encapsulated shared secret, a SealMessageBody AEAD body under it,
// and a detached DSA signature over the whole envelope (spec §4.10
// send_message: "Encrypt plaintext to recipient's kem_pub, sign with own
// dsa_priv"). Per spec §3 OutboxMailbox, this is the single live value for
// the sender/recipient/day tuple: a later send in the same day bucket
// replaces it, matching the outbox's replace-in-place write (not a queue).
type messageEnvelope struct {
	Seq           uint64
	SentAtMS      int64
	KemCiphertext []byte
	Nonce         []byte
	Sealed        []byte
	Signature     []byte
}

func (m messageEnvelope) signedPortion() []byte {
	var buf bytes.Buffer
	var seqField [8]byte
	binary.BigEndian.PutUint64(seqField[:], m.Seq)
	buf.Write(seqField[:])
	var tsField [8]byte
	binary.BigEndian.PutUint64(tsField[:], uint64(m.SentAtMS))
	buf.Write(tsField[:])
	buf.Write(m.KemCiphertext)
	buf.Write(m.Nonce)
	buf.Write(m.Sealed)
	return buf.Bytes()
}

// watermarkRecord mirrors spec §3 Watermark, published at
// watermark:<sender_fp>:<recipient_fp>.
type watermarkRecord struct {
	SenderFP    string
	RecipientFP string
	SeqNum      uint64
	TimestampMS int64
	Signature   []byte
}

func (w watermarkRecord) canonicalEncoding() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\x00%s\x00", w.SenderFP, w.RecipientFP)
	var seqField [8]byte
	binary.BigEndian.PutUint64(seqField[:], w.SeqNum)
	buf.Write(seqField[:])
	return buf.Bytes()
}

// --- Public API -------------------------------------------------------------

// SendMessage submits a SEND_MESSAGE task. slotID is 0 unless this send was
// dequeued from the send queue (spec §4.9: "Touch the send queue slot if
// the task was queued").
func (e *Engine) SendMessage(recipientFP string, plaintext []byte, slotID uint64, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskSendMessage, SendMessageParams{RecipientFP: recipientFP, Plaintext: plaintext, SlotID: slotID}, cb, userData)
}

func (e *Engine) GetConversation(contactFP string, cb Callback, userData interface{}) uint64 {
	return e.submit(TaskGetConversation, GetConversationParams{ContactFP: contactFP}, cb, userData)
}

func (e *Engine) CheckOfflineMessages(cb Callback, userData interface{}) uint64 {
	return e.submit(TaskCheckOfflineMessages, nil, cb, userData)
}

// --- Handlers ----------------------------------------------------------------

// handleSendMessage implements spec §4.10 send_message: encrypt to the
// recipient's kem_pub, sign with own dsa_priv, allocate the next outbound
// seq, chunked_put the day-bucketed mailbox, emit MessageSent.
func (e *Engine) handleSendMessage(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(SendMessageParams)
	selfFP, keys, ok := e.requireIdentity()
	if !ok {
		e.touchSlot(p.SlotID)
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	ui, err := e.profileCache.Get(ctx, p.RecipientFP)
	if err != nil {
		e.touchSlot(p.SlotID)
		e.markFailed(ctx, p.RecipientFP, p.Plaintext)
		metrics.MessagesProcessed.WithLabelValues("send", "failure").Inc()
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	seq, err := e.messageStore.NextOutboundSeq(ctx, p.RecipientFP)
	if err != nil {
		e.touchSlot(p.SlotID)
		metrics.MessagesProcessed.WithLabelValues("send", "failure").Inc()
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	sentAtMS := nowMS()
	if err := e.deliverMessage(ctx, selfFP, keys, ui.Profile.KemPubKey, p.RecipientFP, seq, sentAtMS, p.Plaintext); err != nil {
		e.touchSlot(p.SlotID)
		e.markFailed(ctx, p.RecipientFP, p.Plaintext)
		metrics.MessagesProcessed.WithLabelValues("send", "failure").Inc()
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	_ = e.messageStore.SaveMessage(ctx, store.StoredMessage{
		Seq: seq, ContactFP: p.RecipientFP, Outbound: true,
		Plaintext: p.Plaintext, Status: store.StatusSent, SentAtMS: sentAtMS,
	})

	e.touchSlot(p.SlotID)
	e.bus.Dispatch(eventbus.Event{
		Kind: eventbus.MessageSent, Fingerprint: selfFP,
		RecipientFP: p.RecipientFP, SeqNum: seq, TimestampSec: sentAtMS / 1000,
	})
	metrics.MessagesProcessed.WithLabelValues("send", "success").Inc()
	metrics.MessageSize.Observe(float64(len(p.Plaintext)))
	complete(t, dnaerr.OK, seq)
}

// deliverMessage KEM-encapsulates to the recipient, seals the plaintext
// under the resulting shared secret, signs the envelope, and chunked_puts
// it to today's sender->recipient mailbox.
func (e *Engine) deliverMessage(ctx context.Context, selfFP string, keys identity.KeyMaterial, recipientKemPub []byte, recipientFP string, seq uint64, sentAtMS int64, plaintext []byte) error {
	start := time.Now()

	ciphertext, sharedSecret, err := e.vault.Kem.Encap(recipientKemPub)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("encap").Inc()
		return dnaerr.New(dnaerr.Crypto, err)
	}
	metrics.CryptoOperations.WithLabelValues("encap", "kyber1024").Inc()

	senderFP, err := fingerprint.Parse(selfFP)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}
	nonce, sealed, err := dnacrypto.SealMessageBody(sharedSecret, senderFP[:], uint64(sentAtMS), plaintext)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("seal").Inc()
		return dnaerr.New(dnaerr.Crypto, err)
	}
	metrics.CryptoOperations.WithLabelValues("seal", "aes-256-gcm").Inc()

	env := messageEnvelope{Seq: seq, SentAtMS: sentAtMS, KemCiphertext: ciphertext, Nonce: nonce, Sealed: sealed}
	sig, err := e.vault.Dsa.Sign(keys.DsaPriv, env.signedPortion())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("sign").Inc()
		return dnaerr.New(dnaerr.Crypto, err)
	}
	metrics.CryptoOperations.WithLabelValues("sign", "dilithium5").Inc()
	env.Signature = sig

	data, err := json.Marshal(env)
	if err != nil {
		return dnaerr.New(dnaerr.Internal, err)
	}

	day := mailbox.CurrentUTCDay()
	base := mailbox.OutboxBase(selfFP, recipientFP, day)
	if err := e.dht.ChunkedPut(ctx, base, data); err != nil {
		return dnaerr.New(dnaerr.Network, err)
	}

	metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())
	metrics.SessionDuration.WithLabelValues("send").Observe(time.Since(start).Seconds())
	metrics.SessionMessageSize.WithLabelValues("outbound").Observe(float64(len(sealed)))
	return nil
}

func (e *Engine) touchSlot(slotID uint64) {
	if slotID != 0 {
		e.sendQueue.Complete(slotID)
	}
}

func (e *Engine) markFailed(ctx context.Context, recipientFP string, plaintext []byte) {
	_ = e.messageStore.SaveMessage(ctx, store.StoredMessage{
		ContactFP: recipientFP, Outbound: true, Plaintext: plaintext,
		Status: store.StatusFailed, SentAtMS: nowMS(),
	})
}

func (e *Engine) handleGetConversation(ctx context.Context, t taskqueue.Task) {
	p := t.Params.(GetConversationParams)
	msgs, err := e.messageStore.GetConversation(ctx, p.ContactFP)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}
	out := make([]ConversationMessage, len(msgs))
	for i, m := range msgs {
		out[i] = ConversationMessage{Seq: m.Seq, Outbound: m.Outbound, Plaintext: m.Plaintext, Status: m.Status, SentAtMS: m.SentAtMS}
	}
	complete(t, dnaerr.OK, out)
}

// handleCheckOfflineMessages implements the CHECK_OFFLINE_MESSAGES task: an
// on-demand rerun of scanOfflineMessages for the loaded identity.
func (e *Engine) handleCheckOfflineMessages(ctx context.Context, t taskqueue.Task) {
	selfFP, keys, ok := e.requireIdentity()
	if !ok {
		complete(t, dnaerr.NotInitialized, nil)
		return
	}

	contacts, err := e.contactsDb.GetContacts(ctx)
	if err != nil {
		complete(t, dnaerr.CodeOf(err), nil)
		return
	}

	complete(t, dnaerr.OK, e.scanOfflineMessages(ctx, selfFP, keys, contacts))
}

// scanOfflineMessages is the §4.7 bulk-read fallback shared by the
// CHECK_OFFLINE_MESSAGES task and the load-identity sequence's step 6: for
// every contact, chunked_get today's and yesterday's mailbox directly
// instead of waiting for a listener callback, decrypt with own kem_priv,
// store as inbound if new, and publish an updated delivery watermark back
// to the sender. Returns the number of (new) messages recovered.
func (e *Engine) scanOfflineMessages(ctx context.Context, selfFP string, keys identity.KeyMaterial, contacts []store.Contact) int {
	total := 0
	today := mailbox.CurrentUTCDay()
	for _, c := range contacts {
		for _, day := range []int64{today, today - 1} {
			if e.pollOneMailbox(ctx, selfFP, keys, c.IdentityFP, day) {
				total++
			}
		}
	}
	return total
}

// pollOneMailbox fetches and decrypts senderFP's mailbox for day, if
// present, storing it as an inbound message and republishing selfFP's
// delivery watermark for senderFP. Returns true if a (new) message was
// stored.
func (e *Engine) pollOneMailbox(ctx context.Context, selfFP string, keys identity.KeyMaterial, senderFP string, day int64) bool {
	base := mailbox.OutboxBase(senderFP, selfFP, day)
	data, ok, err := e.dht.ChunkedGet(ctx, base)
	if err != nil || !ok {
		return false
	}

	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		e.log.Warn("malformed mailbox envelope", logger.String("sender_fp", senderFP), logger.Error(err))
		return false
	}

	senderUI, err := e.profileCache.Get(ctx, senderFP)
	if err != nil {
		e.log.Warn("no cached profile for mailbox sender", logger.String("sender_fp", senderFP), logger.Error(err))
		return false
	}
	if !e.vault.Dsa.Verify(senderUI.Profile.DsaPubKey, env.signedPortion(), env.Signature) {
		e.log.Warn("mailbox envelope signature invalid", logger.String("sender_fp", senderFP))
		return false
	}

	sharedSecret, err := e.vault.Kem.Decap(keys.KemPriv, env.KemCiphertext)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("decap").Inc()
		e.log.Warn("mailbox envelope decap failed", logger.String("sender_fp", senderFP), logger.Error(err))
		return false
	}
	metrics.CryptoOperations.WithLabelValues("decap", "kyber1024").Inc()

	start := time.Now()
	_, senderTs, plaintext, err := dnacrypto.OpenMessageBody(sharedSecret, env.Nonce, env.Sealed)
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("open").Inc()
		metrics.NonceValidations.WithLabelValues("invalid").Inc()
		e.log.Warn("mailbox envelope open failed", logger.String("sender_fp", senderFP), logger.Error(err))
		return false
	}
	metrics.CryptoOperations.WithLabelValues("open", "aes-256-gcm").Inc()
	metrics.NonceValidations.WithLabelValues("valid").Inc()
	metrics.MessageProcessingDuration.Observe(time.Since(start).Seconds())

	if existing, err := e.messageStore.GetConversation(ctx, senderFP); err == nil {
		for _, m := range existing {
			if !m.Outbound && m.Seq == env.Seq {
				metrics.ReplayAttacksDetected.Inc()
				return false
			}
		}
	}

	_ = e.messageStore.SaveMessage(ctx, store.StoredMessage{
		Seq: env.Seq, ContactFP: senderFP, Outbound: false,
		Plaintext: plaintext, Status: store.StatusDelivered, SentAtMS: int64(senderTs),
	})

	e.publishWatermark(ctx, senderFP, selfFP, env.Seq, keys.DsaPriv)
	e.bus.Dispatch(eventbus.Event{Kind: eventbus.OutboxUpdated, Fingerprint: selfFP, RecipientFP: senderFP, SeqNum: env.Seq})
	metrics.MessagesProcessed.WithLabelValues("receive", "success").Inc()
	metrics.MessageSize.Observe(float64(len(plaintext)))
	metrics.SessionMessageSize.WithLabelValues("inbound").Observe(float64(len(env.Sealed)))
	return true
}

// publishWatermark tells senderFP that selfFP has received everything up to
// seq (spec §3 Watermark, §4.8). Signed under selfFP's own key so any
// listener can verify it originated from the claimed recipient.
func (e *Engine) publishWatermark(ctx context.Context, senderFP, recipientFP string, seq uint64, dsaPriv []byte) {
	w := watermarkRecord{SenderFP: senderFP, RecipientFP: recipientFP, SeqNum: seq, TimestampMS: nowMS()}
	sig, err := e.vault.Dsa.Sign(dsaPriv, w.canonicalEncoding())
	if err != nil {
		metrics.CryptoErrors.WithLabelValues("sign").Inc()
		e.log.Warn("failed to sign watermark", logger.Error(err))
		return
	}
	metrics.CryptoOperations.WithLabelValues("sign", "dilithium5").Inc()
	w.Signature = sig
	data, err := json.Marshal(w)
	if err != nil {
		return
	}
	if _, err := e.dht.PutSigned(ctx, watermarkKey(senderFP, recipientFP), data, recipientFP, 0); err != nil {
		e.log.Warn("failed to publish watermark", logger.String("sender_fp", senderFP), logger.Error(err))
	}
}

func watermarkKey(senderFP, recipientFP string) []byte {
	return []byte("watermark:" + senderFP + ":" + recipientFP)
}
