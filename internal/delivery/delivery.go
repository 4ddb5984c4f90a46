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

// Package delivery implements C8: per-contact watermark listeners that
// bulk-confirm delivery of previously sent messages (spec §4.8).
package delivery

import (
	"sync"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
)

// DeliveredFunc marks every locally stored outbound message to recipientFP
// with seq <= seqNum as Delivered. The engine wires this to its message
// store and to eventbus.MessageDelivered.
type DeliveredFunc func(recipientFP string, seqNum uint64)

type entry struct {
	recipientFP     string
	token           dht.Token
	lastKnownSeq    uint64
	active          bool
}

// Tracker tracks active watermark listeners for the logged-in identity
// selfFP.
type Tracker struct {
	mu        sync.Mutex
	client    dht.Client
	selfFP    string
	entries   map[string]entry
	onDelivered DeliveredFunc
	log       logger.Logger
}

// New builds a Tracker for selfFP over client.
func New(client dht.Client, selfFP string, onDelivered DeliveredFunc, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Tracker{
		client:      client,
		selfFP:      selfFP,
		entries:     make(map[string]entry),
		onDelivered: onDelivered,
		log:         log.WithTag("delivery"),
	}
}

// Track starts watching recipientFP's watermark, deduplicating if already
// tracking (spec §4.8 step 1).
func (t *Tracker) Track(recipientFP string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e, ok := t.entries[recipientFP]; ok && e.active {
		return
	}

	token := t.client.ListenWatermark(t.selfFP, recipientFP, t.callback)
	t.entries[recipientFP] = entry{recipientFP: recipientFP, token: token, active: true}
}

func (t *Tracker) callback(senderFP, recipientFP string, seq uint64) {
	// senderFP is our own fingerprint (we sent the messages); recipientFP
	// is the contact confirming receipt, matching Track's entries key.
	t.mu.Lock()
	e, ok := t.entries[recipientFP]
	if !ok {
		t.mu.Unlock()
		return
	}
	if seq > e.lastKnownSeq {
		e.lastKnownSeq = seq
		t.entries[recipientFP] = e
	}
	t.mu.Unlock()

	if t.onDelivered != nil {
		t.onDelivered(recipientFP, seq)
	}
}

// Untrack cancels the watermark listener for recipientFP and compacts the
// table.
func (t *Tracker) Untrack(recipientFP string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[recipientFP]
	if !ok {
		return
	}
	t.client.CancelWatermarkListener(e.token)
	delete(t.entries, recipientFP)
}

// LastKnownWatermark returns the highest confirmed seq for recipientFP.
func (t *Tracker) LastKnownWatermark(recipientFP string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[recipientFP]
	if !ok {
		return 0, false
	}
	return e.lastKnownSeq, true
}

// Count returns the number of currently tracked recipients.
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
