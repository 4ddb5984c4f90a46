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

// Package store defines the narrow persistence interfaces the engine (C10)
// depends on (spec §1: "accessed via narrow ContactsDb, ProfileCache,
// MessageStore interfaces"). SQLite is the spec's reference backing store;
// this package additionally ships a Postgres-backed implementation so the
// daemon can run against a shared database, and an in-memory double for
// tests.
package store

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Contact mirrors the spec §3 Contact record.
type Contact struct {
	IdentityFP string
	Notes      string
	AddedAt    time.Time
	Blocked    bool
}

// PendingContactRequest mirrors the spec §3 ContactRequest record, held
// locally until approved/denied.
type PendingContactRequest struct {
	SenderFP   string
	SenderName string
	Message    string
	Timestamp  int64
}

// StoredMessage is a locally persisted outbound or inbound message.
// Status follows the spec §4.10 get_conversation mapping:
// pending=0, sent=1, failed=2, delivered=3, read=4.
type StoredMessage struct {
	Seq         uint64
	ContactFP   string
	Outbound    bool
	Plaintext   []byte
	Status      int
	SentAtMS    int64
}

const (
	StatusPending   = 0
	StatusSent      = 1
	StatusFailed    = 2
	StatusDelivered = 3
	StatusRead      = 4
)

// ContactsDb is the narrow contact-list persistence interface.
type ContactsDb interface {
	AddContact(ctx context.Context, c Contact) error
	RemoveContact(ctx context.Context, fp string) error
	GetContacts(ctx context.Context) ([]Contact, error)
	HasContact(ctx context.Context, fp string) (bool, error)
	SetBlocked(ctx context.Context, fp string, blocked bool) error
	GetBlocked(ctx context.Context) ([]Contact, error)

	AddPendingRequest(ctx context.Context, r PendingContactRequest) error
	GetPendingRequests(ctx context.Context) ([]PendingContactRequest, error)
	RemovePendingRequest(ctx context.Context, senderFP string) error
}

// ProfileCacheStore is the narrow persisted-profile-cache interface (distinct
// from internal/profile.Cache's in-memory TTL layer, which sits in front of
// this for hot reads).
type ProfileCacheStore interface {
	SaveProfileBlob(ctx context.Context, fp string, blob []byte) error
	LoadProfileBlob(ctx context.Context, fp string) ([]byte, error)
}

// MessageStore is the narrow local message persistence interface.
type MessageStore interface {
	SaveMessage(ctx context.Context, m StoredMessage) error
	GetConversation(ctx context.Context, contactFP string) ([]StoredMessage, error)
	MarkDeliveredUpTo(ctx context.Context, contactFP string, seq uint64) (int, error)
	NextOutboundSeq(ctx context.Context, contactFP string) (uint64, error)
}
