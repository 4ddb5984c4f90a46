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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/dna-messenger-core/internal/dht"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
)

func TestIdentityLoadedCheck(t *testing.T) {
	loaded := false
	check := IdentityLoadedCheck(func() bool { return loaded })

	err := check(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no identity loaded")

	loaded = true
	assert.NoError(t, check(context.Background()))
}

func TestDHTReachableCheck(t *testing.T) {
	mem := dht.NewMemory()
	check := DHTReachableCheck(mem)
	require.NoError(t, check(context.Background()))
}

func TestQueueNotSaturatedCheck(t *testing.T) {
	q := taskqueue.New()
	check := QueueNotSaturatedCheck(q, 0.9)
	assert.NoError(t, check(context.Background()))

	for i := 0; i < taskqueue.Capacity; i++ {
		q.Push(taskqueue.Task{RequestID: uint64(i + 1)})
	}
	err := check(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "task queue full")
}

func TestKeyServerReachableCheck(t *testing.T) {
	check := KeyServerReachableCheck(func(ctx context.Context) error { return nil })
	assert.NoError(t, check(context.Background()))

	check = KeyServerReachableCheck(func(ctx context.Context) error { return errors.New("timeout") })
	err := check(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "keyserver unreachable")
}
