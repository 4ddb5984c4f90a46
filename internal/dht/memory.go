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

package dht

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

type storedValue struct {
	value    []byte
	valueID  string
	ownerKey string // opaque owner identity proving replace-in-place rights
	expires  time.Time
}

type listenerEntry struct {
	key string
	cb  ValueCallback
}

type watermarkEntry struct {
	selfFP, peerFP string
	cb             WatermarkCallback
}

// watermarkKeyPrefix is internal/engine's watermarkKey encoding
// ("watermark:<senderFP>:<recipientFP>"). PutSigned recognizes it so a
// plain value write also drives ListenWatermark observers, instead of
// requiring callers to know about a separate watermark-publishing method.
var watermarkKeyPrefix = []byte("watermark:")

// watermarkPayload mirrors the exported fields of internal/engine's
// watermarkRecord (senderFP, recipientFP, seqNum); only SeqNum is needed
// here, but the field names must match for json.Unmarshal to populate it.
type watermarkPayload struct {
	SenderFP    string
	RecipientFP string
	SeqNum      uint64
}

// parseWatermarkKey reports whether key is a watermark:<senderFP>:<peerFP>
// key and, if so, extracts senderFP/peerFP.
func parseWatermarkKey(key []byte) (senderFP, peerFP string, ok bool) {
	if !bytes.HasPrefix(key, watermarkKeyPrefix) {
		return "", "", false
	}
	parts := strings.SplitN(string(key[len(watermarkKeyPrefix):]), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Memory is an in-memory Client double: single-process, no persistence,
// used by unit tests and by single-node local deployments that don't need
// a real overlay. Fan-in keys (inbox:*, etc.) accumulate multiple values
// under GetAll; single-valued keys (name:*, watermark:*) enforce the
// replace-in-place / conflict rules from spec §4.5.
type Memory struct {
	mu sync.Mutex

	// single-valued keys: latest PutSigned wins unless valueID/owner differs
	// for a name:* key already claimed by another owner (PermanentConflict).
	singles map[string]storedValue
	// fan-in keys: every PutSigned under the same raw key accumulates.
	fanins map[string][]storedValue

	listeners        map[Token]listenerEntry
	watermarks       map[Token]watermarkEntry
	nextToken        Token
	watermarkSeqByFP map[string]uint64 // "selfFP:peerFP" -> last published seq
}

// NewMemory constructs an empty in-memory DHT double.
func NewMemory() *Memory {
	return &Memory{
		singles:          make(map[string]storedValue),
		fanins:           make(map[string][]storedValue),
		listeners:        make(map[Token]listenerEntry),
		watermarks:       make(map[Token]watermarkEntry),
		watermarkSeqByFP: make(map[string]uint64),
		nextToken:        1,
	}
}

func keyStr(key []byte) string { return hex.EncodeToString(key) }

// PutSigned records every accepted write both as the key's latest value
// (read by Get) and in the key's fan-in list (read by GetAll); callers
// decide via Get vs GetAll which view applies. On a name:* key already
// claimed under a different non-empty valueID it returns
// PutPermanentConflict and stores nothing; every other key accepts writes
// from any owner. Writes to watermark:* keys also fire the matching
// ListenWatermark observers.
func (m *Memory) PutSigned(ctx context.Context, key, value []byte, valueID string, ttl time.Duration) (PutStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := keyStr(key)
	expires := time.Now().Add(ttl)
	if ttl <= 0 {
		expires = time.Now().Add(365 * 24 * time.Hour)
	}

	if existing, ok := m.singles[k]; ok && bytes.HasPrefix(key, []byte("name:")) && existing.ownerKey != "" && existing.ownerKey != valueID {
		return PutPermanentConflict, nil
	}

	sv := storedValue{value: value, valueID: valueID, ownerKey: valueID, expires: expires}
	m.singles[k] = sv
	m.fanins[k] = append(m.fanins[k], sv)

	m.notifyListeners(k, value, false)
	if senderFP, peerFP, ok := parseWatermarkKey(key); ok {
		m.notifyWatermark(senderFP, peerFP, value)
	}
	return PutOK, nil
}

func (m *Memory) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sv, ok := m.singles[keyStr(key)]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(sv.expires) {
		return nil, false, nil
	}
	return sv.value, true, nil
}

func (m *Memory) GetAll(ctx context.Context, key []byte) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.fanins[keyStr(key)]
	now := time.Now()
	out := make([][]byte, 0, len(entries))
	for _, e := range entries {
		if now.After(e.expires) {
			continue
		}
		out = append(out, e.value)
	}
	return out, nil
}

// ClearFanIn drops every accumulated value under key, used by test setup to
// simulate a processed inbox.
func (m *Memory) ClearFanIn(key []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.fanins, keyStr(key))
}

func (m *Memory) Listen(key []byte, cb ValueCallback) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := m.nextToken
	m.nextToken++
	m.listeners[token] = listenerEntry{key: keyStr(key), cb: cb}
	return token
}

func (m *Memory) CancelListen(token Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, token)
}

func (m *Memory) notifyListeners(key string, value []byte, expired bool) {
	for _, l := range m.listeners {
		if l.key == key {
			cb := l.cb
			go cb(value, expired)
		}
	}
}

// notifyWatermark fires every ListenWatermark observer registered for
// (self=senderFP, peer=peerFP) in response to a PutSigned write to their
// watermark:<senderFP>:<peerFP> key. Called with m.mu already held from
// PutSigned, same as notifyListeners; callbacks run off the lock via
// goroutines so a slow observer can't stall other writers.
func (m *Memory) notifyWatermark(senderFP, peerFP string, value []byte) {
	var payload watermarkPayload
	if err := json.Unmarshal(value, &payload); err != nil {
		return
	}

	seqKey := senderFP + ":" + peerFP
	if payload.SeqNum > m.watermarkSeqByFP[seqKey] {
		m.watermarkSeqByFP[seqKey] = payload.SeqNum
	}

	for _, w := range m.watermarks {
		if w.selfFP == senderFP && w.peerFP == peerFP {
			cb := w.cb
			seq := payload.SeqNum
			go cb(senderFP, peerFP, seq)
		}
	}
}

func (m *Memory) ListenWatermark(selfFP, peerFP string, cb WatermarkCallback) Token {
	m.mu.Lock()
	defer m.mu.Unlock()

	token := m.nextToken
	m.nextToken++
	m.watermarks[token] = watermarkEntry{selfFP: selfFP, peerFP: peerFP, cb: cb}
	return token
}

func (m *Memory) CancelWatermarkListener(token Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.watermarks, token)
}

// PublishWatermark lets a test fire a watermark update directly, without
// constructing a signed watermark:* PutSigned payload first. Production
// code never calls this: PutSigned itself recognizes watermark:* keys and
// drives the same ListenWatermark observers via notifyWatermark.
func (m *Memory) PublishWatermark(senderFP, recipientFP string, seqNum uint64) {
	m.mu.Lock()
	watermarkKey := senderFP + ":" + recipientFP
	if prev := m.watermarkSeqByFP[watermarkKey]; seqNum > prev {
		m.watermarkSeqByFP[watermarkKey] = seqNum
	}
	var targets []watermarkEntry
	for _, w := range m.watermarks {
		if w.selfFP == senderFP && w.peerFP == recipientFP {
			targets = append(targets, w)
		}
	}
	m.mu.Unlock()

	for _, w := range targets {
		w.cb(senderFP, recipientFP, seqNum)
	}
}

func (m *Memory) ChunkKey(base []byte, index int) [32]byte {
	return chunkKey(base, index)
}

func (m *Memory) ChunkedPut(ctx context.Context, base []byte, blob []byte) error {
	chunks, err := splitChunks(blob)
	if err != nil {
		return err
	}
	for i, c := range chunks {
		encoded := encodeChunk(len(chunks), i, c)
		key := m.ChunkKey(base, i)
		if _, err := m.PutSigned(ctx, key[:], encoded, "chunked:"+keyStr(base), 0); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) ChunkedGet(ctx context.Context, base []byte) ([]byte, bool, error) {
	first := m.ChunkKey(base, 0)
	raw, ok, err := m.Get(ctx, first[:])
	if err != nil || !ok {
		return nil, ok, err
	}
	chunk0, err := decodeChunk(raw)
	if err != nil {
		return nil, false, err
	}

	blob := append([]byte{}, chunk0.data...)
	for i := 1; i < chunk0.totalChunks; i++ {
		key := m.ChunkKey(base, i)
		raw, ok, err := m.Get(ctx, key[:])
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, nil
		}
		chunk, err := decodeChunk(raw)
		if err != nil {
			return nil, false, err
		}
		blob = append(blob, chunk.data...)
	}
	return blob, true, nil
}

var _ Client = (*Memory)(nil)
