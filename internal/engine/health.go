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
	"context"
	"strings"

	"github.com/sage-x-project/dna-messenger-core/internal/health"
	"github.com/sage-x-project/dna-messenger-core/pkg/dnaerr"
)

// RegisterHealthChecks wires this Engine's lifecycle state into checker:
// "identity_loaded" reflects LoadIdentity/DeleteIdentity, "dht_reachable"
// round-trips a canary key through the configured DHT client, and
// "task_queue" reports unhealthy once the C1 ring backs up to 90% of its
// capacity, and "keyserver_reachable" treats a NotFound canary lookup as
// healthy.
func (e *Engine) RegisterHealthChecks(checker *health.Checker) {
	checker.RegisterCheck("identity_loaded", health.IdentityLoadedCheck(func() bool {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return e.identityLoaded
	}))
	checker.RegisterCheck("dht_reachable", health.DHTReachableCheck(e.dht))
	checker.RegisterCheck("task_queue", health.QueueNotSaturatedCheck(e.taskQueue, 0.9))
	canaryFP := strings.Repeat("0", 128)
	checker.RegisterCheck("keyserver_reachable", health.KeyServerReachableCheck(func(ctx context.Context) error {
		_, err := e.keyserver.Lookup(ctx, canaryFP)
		if err != nil && dnaerr.CodeOf(err) != dnaerr.NotFound {
			return err
		}
		return nil
	}))
}
