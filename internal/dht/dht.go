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

// Package dht is C5: the narrow DHT facade the engine consumes (spec §4.5).
// The real Kademlia-style overlay is explicitly out of core scope (spec
// §1); this package defines the interface plus an in-memory double used by
// tests and local/single-node deployments.
package dht

import (
	"context"
	"errors"
	"time"
)

// PutStatus is the outcome of PutSigned.
type PutStatus int

const (
	PutOK PutStatus = iota
	PutTemporaryUnavailable
	PutPermanentConflict
)

func (s PutStatus) String() string {
	switch s {
	case PutOK:
		return "OK"
	case PutTemporaryUnavailable:
		return "TEMPORARY_UNAVAILABLE"
	case PutPermanentConflict:
		return "PERMANENT_CONFLICT"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("dht: key not found")

// ValueCallback is invoked on listen() updates. expired=true means the
// value's TTL lapsed; the registry should ignore, not propagate, expirations
// (spec §4.7).
type ValueCallback func(value []byte, expired bool)

// WatermarkCallback is invoked on watermark updates (spec §4.8).
type WatermarkCallback func(senderFP, recipientFP string, seqNum uint64)

// Token identifies an active listener, returned by Listen/ListenWatermark
// and required to cancel.
type Token uint64

// Client is the narrow interface the engine calls; DhtConnected/Disconnected
// status transitions are surfaced separately via the EventBus, not here.
type Client interface {
	PutSigned(ctx context.Context, key, value []byte, valueID string, ttl time.Duration) (PutStatus, error)
	Get(ctx context.Context, key []byte) ([]byte, bool, error)
	GetAll(ctx context.Context, key []byte) ([][]byte, error)

	Listen(key []byte, cb ValueCallback) Token
	CancelListen(token Token)

	ListenWatermark(selfFP, peerFP string, cb WatermarkCallback) Token
	CancelWatermarkListener(token Token)

	ChunkKey(base []byte, index int) [32]byte
	ChunkedPut(ctx context.Context, base []byte, blob []byte) error
	ChunkedGet(ctx context.Context, base []byte) ([]byte, bool, error)
}

// Chunking limits per spec §6: "Maximum chunk size 50 KiB; maximum 4 chunks
// per logical value (≤200 KiB)."
const (
	ChunkSize = 50 * 1024
	MaxChunks = 4
	MaxBlob   = ChunkSize * MaxChunks
)

var chunkMagic = [4]byte{'D', 'N', 'A', 'C'}

const chunkFormatVersion = 1

var ErrBlobTooLarge = errors.New("dht: blob exceeds max chunked value size")
