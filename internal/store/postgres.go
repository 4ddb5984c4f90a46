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
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements ContactsDb + ProfileCacheStore + MessageStore against
// a shared Postgres database, one row set per identity fingerprint (the
// reference system uses per-identity SQLite files; Postgres lets the
// daemon serve multiple logged-in identities from one process).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens a pool against dsn and verifies connectivity.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates the tables this store depends on if they don't already
// exist. Callers run this once at daemon startup.
func (p *Postgres) Migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS contacts (
	identity_fp TEXT NOT NULL,
	contact_fp  TEXT NOT NULL,
	notes       TEXT NOT NULL DEFAULT '',
	added_at    TIMESTAMPTZ NOT NULL,
	blocked     BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (identity_fp, contact_fp)
);
CREATE TABLE IF NOT EXISTS pending_contact_requests (
	identity_fp TEXT NOT NULL,
	sender_fp   TEXT NOT NULL,
	sender_name TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	timestamp   BIGINT NOT NULL,
	PRIMARY KEY (identity_fp, sender_fp)
);
CREATE TABLE IF NOT EXISTS profile_cache (
	fingerprint TEXT PRIMARY KEY,
	blob        BYTEA NOT NULL
);
CREATE TABLE IF NOT EXISTS messages (
	identity_fp TEXT NOT NULL,
	contact_fp  TEXT NOT NULL,
	seq         BIGINT NOT NULL,
	outbound    BOOLEAN NOT NULL,
	plaintext   BYTEA NOT NULL,
	status      SMALLINT NOT NULL,
	sent_at_ms  BIGINT NOT NULL,
	PRIMARY KEY (identity_fp, contact_fp, seq, outbound)
);
CREATE TABLE IF NOT EXISTS outbound_seq (
	identity_fp TEXT NOT NULL,
	contact_fp  TEXT NOT NULL,
	next_seq    BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (identity_fp, contact_fp)
);
`
	_, err := p.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// ForIdentity scopes a Postgres store to operations for a single logged-in
// fingerprint, matching the reference system's per-identity SQLite file
// boundary.
func (p *Postgres) ForIdentity(identityFP string) *IdentityScopedStore {
	return &IdentityScopedStore{db: p.pool, identityFP: identityFP}
}

// IdentityScopedStore implements ContactsDb/ProfileCacheStore/MessageStore
// for one identity.
type IdentityScopedStore struct {
	db         *pgxpool.Pool
	identityFP string
}

func (s *IdentityScopedStore) AddContact(ctx context.Context, c Contact) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO contacts (identity_fp, contact_fp, notes, added_at, blocked)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_fp, contact_fp) DO UPDATE SET notes = $3
	`, s.identityFP, c.IdentityFP, c.Notes, c.AddedAt, c.Blocked)
	if err != nil {
		return fmt.Errorf("store: add contact: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) RemoveContact(ctx context.Context, fp string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM contacts WHERE identity_fp = $1 AND contact_fp = $2`, s.identityFP, fp)
	if err != nil {
		return fmt.Errorf("store: remove contact: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) GetContacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT contact_fp, notes, added_at, blocked FROM contacts
		WHERE identity_fp = $1 AND blocked = false
	`, s.identityFP)
	if err != nil {
		return nil, fmt.Errorf("store: get contacts: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.IdentityFP, &c.Notes, &c.AddedAt, &c.Blocked); err != nil {
			return nil, fmt.Errorf("store: scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *IdentityScopedStore) HasContact(ctx context.Context, fp string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM contacts WHERE identity_fp = $1 AND contact_fp = $2)
	`, s.identityFP, fp).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("store: has contact: %w", err)
	}
	return exists, nil
}

func (s *IdentityScopedStore) SetBlocked(ctx context.Context, fp string, blocked bool) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO contacts (identity_fp, contact_fp, notes, added_at, blocked)
		VALUES ($1, $2, '', now(), $3)
		ON CONFLICT (identity_fp, contact_fp) DO UPDATE SET blocked = $3
	`, s.identityFP, fp, blocked)
	if err != nil {
		return fmt.Errorf("store: set blocked: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) GetBlocked(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.Query(ctx, `
		SELECT contact_fp, notes, added_at, blocked FROM contacts
		WHERE identity_fp = $1 AND blocked = true
	`, s.identityFP)
	if err != nil {
		return nil, fmt.Errorf("store: get blocked: %w", err)
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.IdentityFP, &c.Notes, &c.AddedAt, &c.Blocked); err != nil {
			return nil, fmt.Errorf("store: scan blocked contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *IdentityScopedStore) AddPendingRequest(ctx context.Context, r PendingContactRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pending_contact_requests (identity_fp, sender_fp, sender_name, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (identity_fp, sender_fp) DO UPDATE SET message = $4, timestamp = $5
	`, s.identityFP, r.SenderFP, r.SenderName, r.Message, r.Timestamp)
	if err != nil {
		return fmt.Errorf("store: add pending request: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) GetPendingRequests(ctx context.Context) ([]PendingContactRequest, error) {
	rows, err := s.db.Query(ctx, `
		SELECT sender_fp, sender_name, message, timestamp FROM pending_contact_requests
		WHERE identity_fp = $1
	`, s.identityFP)
	if err != nil {
		return nil, fmt.Errorf("store: get pending requests: %w", err)
	}
	defer rows.Close()

	var out []PendingContactRequest
	for rows.Next() {
		var r PendingContactRequest
		if err := rows.Scan(&r.SenderFP, &r.SenderName, &r.Message, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("store: scan pending request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *IdentityScopedStore) RemovePendingRequest(ctx context.Context, senderFP string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM pending_contact_requests WHERE identity_fp = $1 AND sender_fp = $2
	`, s.identityFP, senderFP)
	if err != nil {
		return fmt.Errorf("store: remove pending request: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) SaveProfileBlob(ctx context.Context, fp string, blob []byte) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO profile_cache (fingerprint, blob) VALUES ($1, $2)
		ON CONFLICT (fingerprint) DO UPDATE SET blob = $2
	`, fp, blob)
	if err != nil {
		return fmt.Errorf("store: save profile blob: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) LoadProfileBlob(ctx context.Context, fp string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRow(ctx, `SELECT blob FROM profile_cache WHERE fingerprint = $1`, fp).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load profile blob: %w", err)
	}
	return blob, nil
}

func (s *IdentityScopedStore) SaveMessage(ctx context.Context, m StoredMessage) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (identity_fp, contact_fp, seq, outbound, plaintext, status, sent_at_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (identity_fp, contact_fp, seq, outbound) DO UPDATE SET status = $6
	`, s.identityFP, m.ContactFP, m.Seq, m.Outbound, m.Plaintext, m.Status, m.SentAtMS)
	if err != nil {
		return fmt.Errorf("store: save message: %w", err)
	}
	return nil
}

func (s *IdentityScopedStore) GetConversation(ctx context.Context, contactFP string) ([]StoredMessage, error) {
	rows, err := s.db.Query(ctx, `
		SELECT contact_fp, seq, outbound, plaintext, status, sent_at_ms FROM messages
		WHERE identity_fp = $1 AND contact_fp = $2 ORDER BY seq ASC
	`, s.identityFP, contactFP)
	if err != nil {
		return nil, fmt.Errorf("store: get conversation: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ContactFP, &m.Seq, &m.Outbound, &m.Plaintext, &m.Status, &m.SentAtMS); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *IdentityScopedStore) MarkDeliveredUpTo(ctx context.Context, contactFP string, seq uint64) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE messages SET status = $1
		WHERE identity_fp = $2 AND contact_fp = $3 AND outbound = true AND status = $4 AND seq <= $5
	`, StatusDelivered, s.identityFP, contactFP, StatusSent, seq)
	if err != nil {
		return 0, fmt.Errorf("store: mark delivered: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *IdentityScopedStore) NextOutboundSeq(ctx context.Context, contactFP string) (uint64, error) {
	var next uint64
	err := s.db.QueryRow(ctx, `
		INSERT INTO outbound_seq (identity_fp, contact_fp, next_seq) VALUES ($1, $2, 1)
		ON CONFLICT (identity_fp, contact_fp) DO UPDATE SET next_seq = outbound_seq.next_seq + 1
		RETURNING next_seq
	`, s.identityFP, contactFP).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("store: next outbound seq: %w", err)
	}
	return next, nil
}

var (
	_ ContactsDb       = (*IdentityScopedStore)(nil)
	_ ProfileCacheStore = (*IdentityScopedStore)(nil)
	_ MessageStore      = (*IdentityScopedStore)(nil)
)
