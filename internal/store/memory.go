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

package store

import (
	"context"
	"sync"
)

// Memory is an in-memory implementation of ContactsDb + ProfileCacheStore +
// MessageStore, used by tests and single-session local runs that don't
// need Postgres.
type Memory struct {
	mu       sync.Mutex
	contacts map[string]Contact
	pending  map[string]PendingContactRequest
	profiles map[string][]byte
	messages map[string][]StoredMessage
	nextSeq  map[string]uint64
}

// NewMemory builds an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		contacts: make(map[string]Contact),
		pending:  make(map[string]PendingContactRequest),
		profiles: make(map[string][]byte),
		messages: make(map[string][]StoredMessage),
		nextSeq:  make(map[string]uint64),
	}
}

func (m *Memory) AddContact(ctx context.Context, c Contact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contacts[c.IdentityFP] = c
	return nil
}

func (m *Memory) RemoveContact(ctx context.Context, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contacts, fp)
	return nil
}

func (m *Memory) GetContacts(ctx context.Context) ([]Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Contact, 0, len(m.contacts))
	for _, c := range m.contacts {
		if !c.Blocked {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) HasContact(ctx context.Context, fp string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.contacts[fp]
	return ok, nil
}

func (m *Memory) SetBlocked(ctx context.Context, fp string, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[fp]
	if !ok {
		c = Contact{IdentityFP: fp}
	}
	c.Blocked = blocked
	m.contacts[fp] = c
	return nil
}

func (m *Memory) GetBlocked(ctx context.Context) ([]Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Contact
	for _, c := range m.contacts {
		if c.Blocked {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) AddPendingRequest(ctx context.Context, r PendingContactRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[r.SenderFP] = r
	return nil
}

func (m *Memory) GetPendingRequests(ctx context.Context) ([]PendingContactRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PendingContactRequest, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, r)
	}
	return out, nil
}

func (m *Memory) RemovePendingRequest(ctx context.Context, senderFP string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pending, senderFP)
	return nil
}

func (m *Memory) SaveProfileBlob(ctx context.Context, fp string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[fp] = blob
	return nil
}

func (m *Memory) LoadProfileBlob(ctx context.Context, fp string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.profiles[fp]
	if !ok {
		return nil, ErrNotFound
	}
	return blob, nil
}

func (m *Memory) SaveMessage(ctx context.Context, msg StoredMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ContactFP] = append(m.messages[msg.ContactFP], msg)
	return nil
}

func (m *Memory) GetConversation(ctx context.Context, contactFP string) ([]StoredMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StoredMessage, len(m.messages[contactFP]))
	copy(out, m.messages[contactFP])
	return out, nil
}

func (m *Memory) MarkDeliveredUpTo(ctx context.Context, contactFP string, seq uint64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	msgs := m.messages[contactFP]
	for i := range msgs {
		if msgs[i].Outbound && msgs[i].Status == StatusSent && msgs[i].Seq <= seq {
			msgs[i].Status = StatusDelivered
			count++
		}
	}
	return count, nil
}

func (m *Memory) NextOutboundSeq(ctx context.Context, contactFP string) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSeq[contactFP]++
	return m.nextSeq[contactFP], nil
}

var (
	_ ContactsDb        = (*Memory)(nil)
	_ ProfileCacheStore  = (*Memory)(nil)
	_ MessageStore       = (*Memory)(nil)
)
