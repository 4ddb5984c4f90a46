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

// Package profile implements C11: a prefetch/refresh cache sitting in front
// of internal/keyserver lookups for both the local identity's own profile
// and peer profiles (spec §2 C11, §4.6).
package profile

import (
	"context"
	"sync"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/keyserver"
	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// DefaultTTL is how long a cached profile is served before the next Get
// looks it up again.
const DefaultTTL = 5 * time.Minute

type cacheEntry struct {
	identity  keyserver.UnifiedIdentity
	fetchedAt time.Time
}

// Cache fronts keyserver.Protocol.Lookup with an in-memory TTL cache keyed
// by fingerprint. An expired entry is served only when its refresh fails
// with a network error.
type Cache struct {
	mu    sync.RWMutex
	proto *keyserver.Protocol
	ttl   time.Duration
	byFP  map[string]cacheEntry
	log   logger.Logger
}

// New builds a Cache in front of proto.
func New(proto *keyserver.Protocol, log logger.Logger) *Cache {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Cache{
		proto: proto,
		ttl:   DefaultTTL,
		byFP:  make(map[string]cacheEntry),
		log:   log.WithTag("profile"),
	}
}

// Get returns the cached profile for fp if fresh; otherwise it blocks on a
// Lookup and populates the cache. A signature failure (InvalidSignature) is
// returned to the caller, who is expected to act on the spec §4.6/§7
// auto-remove-contact policy; it is never cached.
func (c *Cache) Get(ctx context.Context, fp string) (keyserver.UnifiedIdentity, error) {
	c.mu.RLock()
	entry, ok := c.byFP[fp]
	fresh := ok && time.Since(entry.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return entry.identity, nil
	}

	ui, err := c.proto.Lookup(ctx, fp)
	if err != nil {
		if ok && dnaerr.CodeOf(err) == dnaerr.Network {
			// Serve stale data rather than fail the caller outright when
			// only the network is unavailable.
			c.log.Warn("serving stale profile after lookup failure", logger.String("fingerprint", fp))
			return entry.identity, nil
		}
		return keyserver.UnifiedIdentity{}, err
	}

	c.mu.Lock()
	c.byFP[fp] = cacheEntry{identity: ui, fetchedAt: time.Now()}
	c.mu.Unlock()
	return ui, nil
}

// Invalidate drops the cached entry for fp (e.g. after InvalidSignature
// triggers contact removal, or after UpdateProfile republishes).
func (c *Cache) Invalidate(fp string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.byFP, fp)
}

// Put seeds or overwrites the cache for fp without a network round trip
// (used right after a local UPDATE_PROFILE publish).
func (c *Cache) Put(fp string, ui keyserver.UnifiedIdentity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFP[fp] = cacheEntry{identity: ui, fetchedAt: time.Now()}
}

// Prefetch warms the cache for every fingerprint in fps, ignoring
// individual lookup failures (best-effort, spec §4.4 load step 9's
// "profile prefetch" analog for peers).
func (c *Cache) Prefetch(ctx context.Context, fps []string) {
	for _, fp := range fps {
		if _, err := c.Get(ctx, fp); err != nil {
			c.log.Warn("prefetch failed", logger.String("fingerprint", fp), logger.Error(err))
		}
	}
}
