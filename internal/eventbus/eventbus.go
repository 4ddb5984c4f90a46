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

// Package eventbus implements C3: a single-observer, thread-safe dispatcher
// for engine events (spec §4.3). DHT callbacks and task handlers are
// producers; at most one external UI observer consumes.
package eventbus

import "sync"

// Kind tags an Event's variant, mirroring the spec §6 event table.
type Kind int

const (
	IdentityLoaded Kind = iota
	DhtConnected
	DhtDisconnected
	MessageSent
	MessageDelivered
	OutboxUpdated
	PresenceChanged
	GroupMessageReceived
	FeedUpdated
)

func (k Kind) String() string {
	switch k {
	case IdentityLoaded:
		return "IdentityLoaded"
	case DhtConnected:
		return "DhtConnected"
	case DhtDisconnected:
		return "DhtDisconnected"
	case MessageSent:
		return "MessageSent"
	case MessageDelivered:
		return "MessageDelivered"
	case OutboxUpdated:
		return "OutboxUpdated"
	case PresenceChanged:
		return "PresenceChanged"
	case GroupMessageReceived:
		return "GroupMessageReceived"
	case FeedUpdated:
		return "FeedUpdated"
	default:
		return "Unknown"
	}
}

// Event is a value-typed tagged variant. Fields not relevant to Kind are
// left zero; consumers switch on Kind.
type Event struct {
	Kind Kind

	Fingerprint  string // IdentityLoaded
	RecipientFP  string // MessageDelivered, OutboxUpdated
	SeqNum       uint64 // MessageDelivered
	MessageID    uint64 // MessageSent
	NewStatus    int    // MessageSent
	TimestampSec int64  // MessageDelivered
}

// Observer receives dispatched events alongside the opaque user data it was
// registered with.
type Observer func(evt Event, userData interface{})

// Bus holds at most one registered Observer. Dispatch copies the observer
// pair under the mutex, then invokes it outside the critical section so a
// slow observer never blocks producers from registering/clearing.
type Bus struct {
	mu        sync.Mutex
	observer  Observer
	userData  interface{}
	disposing bool
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers the sole observer, replacing any previous one.
func (b *Bus) Subscribe(obs Observer, userData interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observer = obs
	b.userData = userData
	b.disposing = false
}

// Unsubscribe clears the observer. Concurrent in-flight Dispatch calls will
// see disposing=true and skip invoking the stale callback.
func (b *Bus) Unsubscribe() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disposing = true
	b.observer = nil
	b.userData = nil
}

// Dispatch delivers evt to the current observer, if any. The observer
// pointer and disposing flag are sampled once under the mutex; the call
// itself happens outside it so Subscribe/Unsubscribe never block on a slow
// consumer.
func (b *Bus) Dispatch(evt Event) {
	b.mu.Lock()
	obs := b.observer
	userData := b.userData
	disposing := b.disposing
	b.mu.Unlock()

	if obs == nil || disposing {
		return
	}
	obs(evt, userData)
}

// HasObserver reports whether an observer is currently registered.
func (b *Bus) HasObserver() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.observer != nil && !b.disposing
}
