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

package health

import (
	"context"
	"fmt"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
)

// IdentityLoadedCheck reports unhealthy until an identity has been loaded
// via LoadIdentity/CreateIdentity, since most engine operations require one.
func IdentityLoadedCheck(isLoaded func() bool) HealthCheck {
	return func(ctx context.Context) error {
		if !isLoaded() {
			return fmt.Errorf("no identity loaded")
		}
		return nil
	}
}

// DHTReachableCheck round-trips a canary key through the DHT client to
// confirm puts/gets are actually serviced, not just that the client value
// is non-nil.
func DHTReachableCheck(client dht.Client) HealthCheck {
	return func(ctx context.Context) error {
		key := []byte("health:dht-canary")
		value := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		if _, err := client.PutSigned(ctx, key, value, "health-canary", 30*time.Second); err != nil {
			return fmt.Errorf("dht put failed: %w", err)
		}
		if _, ok, err := client.Get(ctx, key); err != nil {
			return fmt.Errorf("dht get failed: %w", err)
		} else if !ok {
			return fmt.Errorf("dht get returned no value for canary key")
		}
		return nil
	}
}

// QueueNotSaturatedCheck fails with "task queue backlogged" once the task
// queue backlog reaches degradedFraction of its fixed capacity, and with
// "task queue full" once it's completely full (new Push calls would be
// rejected per spec §4.1 back-pressure). Checker reports either failure as
// unhealthy.
func QueueNotSaturatedCheck(q *taskqueue.Queue, degradedFraction float64) HealthCheck {
	return func(ctx context.Context) error {
		length := q.Len()
		if length >= taskqueue.Capacity {
			return fmt.Errorf("task queue full: %d/%d", length, taskqueue.Capacity)
		}
		if float64(length) >= degradedFraction*float64(taskqueue.Capacity) {
			return fmt.Errorf("task queue backlogged: %d/%d", length, taskqueue.Capacity)
		}
		return nil
	}
}

// KeyServerReachableCheck confirms the name/profile directory backing store
// is reachable by attempting a lookup that is expected to simply miss.
func KeyServerReachableCheck(lookup func(ctx context.Context) error) HealthCheck {
	return func(ctx context.Context) error {
		if err := lookup(ctx); err != nil {
			return fmt.Errorf("keyserver unreachable: %w", err)
		}
		return nil
	}
}
