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

// Package mailbox implements C7: the per-contact outbox listener registry
// with day-bucket rotation (spec §4.7). Each contact's mailbox is addressed
// as "<contact_fp>:outbox:<self_fp>:day:<utc_day>"; a listener watches
// chunk 0 (the manifest) and rotates at UTC midnight.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
)

// MaxListeners is the per-registry cap (spec §4.7: "cap 128 per kind").
const MaxListeners = 128

var ErrFull = errors.New("mailbox: outbox listener registry full")

// UpdateFunc is invoked when a contact's mailbox chunk 0 changes; the
// engine wires this to eventbus.OutboxUpdated.
type UpdateFunc func(contactFP string)

type entry struct {
	contactFP string
	token     dht.Token
	dayBucket int64
	active    bool
}

// Registry tracks active outbox listeners for the logged-in identity
// selfFP.
type Registry struct {
	mu       sync.Mutex
	client   dht.Client
	selfFP   string
	entries  map[string]entry
	onUpdate UpdateFunc
	log      logger.Logger
}

// New builds a Registry for selfFP over client. onUpdate may be nil.
func New(client dht.Client, selfFP string, onUpdate UpdateFunc, log logger.Logger) *Registry {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Registry{
		client:   client,
		selfFP:   selfFP,
		entries:  make(map[string]entry),
		onUpdate: onUpdate,
		log:      log.WithTag("mailbox"),
	}
}

// CurrentUTCDay is the UTC day number used as the mailbox rotation bucket.
func CurrentUTCDay() int64 {
	return time.Now().UTC().Unix() / 86400
}

func mailboxBase(contactFP, selfFP string, day int64) []byte {
	return []byte(fmt.Sprintf("%s:outbox:%s:day:%d", contactFP, selfFP, day))
}

// OutboxBase returns the day-bucketed mailbox base a sender writes to
// (senderFP's outbox to recipientFP) and a recipient's Registry listens on
// for that same sender (spec §3 OutboxMailbox: "<sender_fp>:outbox:<recipient_fp>").
func OutboxBase(senderFP, recipientFP string, day int64) []byte {
	return mailboxBase(senderFP, recipientFP, day)
}

// Listen starts (or returns the existing) outbox listener for contactFP.
// Idempotent: re-requesting returns the same token without duplicating the
// registry entry (spec §4.7/§8).
func (r *Registry) Listen(contactFP string) (dht.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[contactFP]; ok && e.active {
		return e.token, nil
	}
	if len(r.entries) >= MaxListeners {
		return 0, ErrFull
	}

	day := CurrentUTCDay()
	base := mailboxBase(contactFP, r.selfFP, day)
	chunk0Key := r.client.ChunkKey(base, 0)

	token := r.client.Listen(chunk0Key[:], r.callbackFor(contactFP))
	r.entries[contactFP] = entry{contactFP: contactFP, token: token, dayBucket: day, active: true}
	return token, nil
}

func (r *Registry) callbackFor(contactFP string) dht.ValueCallback {
	return func(value []byte, expired bool) {
		if expired || len(value) == 0 {
			return
		}
		if r.onUpdate != nil {
			r.onUpdate(contactFP)
		}
	}
}

// ListenAll sets up one listener per contact, returning the count started
// (existing idempotent listeners are not re-counted as "new" but are
// included in the returned total per spec's listen_all_contacts contract).
func (r *Registry) ListenAll(contactFPs []string) (int, error) {
	count := 0
	for _, fp := range contactFPs {
		if _, err := r.Listen(fp); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Cancel stops the listener for contactFP, if any (spec §4.7: swap-remove).
func (r *Registry) Cancel(contactFP string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[contactFP]
	if !ok {
		return
	}
	r.client.CancelListen(e.token)
	delete(r.entries, contactFP)
}

// CancelAll drains every active listener.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for fp, e := range r.entries {
		r.client.CancelListen(e.token)
		delete(r.entries, fp)
	}
}

// Count returns the number of currently active listeners.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RotateDueListeners compares each listener's day bucket against the
// current UTC day; on change it cancels the stale listener and then starts
// a fresh one (spec §4.7). The registry lock is released between the two
// steps.
func (r *Registry) RotateDueListeners() {
	today := CurrentUTCDay()

	r.mu.Lock()
	var stale []string
	for fp, e := range r.entries {
		if e.dayBucket != today {
			stale = append(stale, fp)
		}
	}
	r.mu.Unlock()

	for _, fp := range stale {
		r.mu.Lock()
		e, ok := r.entries[fp]
		if !ok || e.dayBucket == today {
			r.mu.Unlock()
			continue
		}
		r.client.CancelListen(e.token)
		delete(r.entries, fp)
		r.mu.Unlock()

		if _, err := r.Listen(fp); err != nil {
			r.log.Warn("failed to rotate outbox listener", logger.String("contact_fp", fp), logger.Error(err))
		}
	}
}

// RunRotationTicker starts a background goroutine that calls
// RotateDueListeners every interval (spec §4.7: "every ~60s") until ctx is
// cancelled.
func (r *Registry) RunRotationTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.RotateDueListeners()
			}
		}
	}()
}
