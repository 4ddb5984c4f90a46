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

// Package workerpool implements C2: a fixed set of goroutines draining
// internal/taskqueue and dispatching each Task to a Handler (spec §4.2).
// Pool size is clamped to [MinWorkers, MaxWorkers] by the caller's config.
package workerpool

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/sage-x-project/dna-messenger-core/internal/logger"
	"github.com/sage-x-project/dna-messenger-core/internal/taskqueue"
)

const (
	// MinWorkers and MaxWorkers bound the pool size per spec §4.2.
	MinWorkers = 4
	MaxWorkers = 24
)

// Handler dispatches a single Task. Pool never inspects Task.Params; the
// engine (C10) owns the sum-type decoding.
type Handler func(ctx context.Context, t taskqueue.Task)

// Pool drains a Queue with a fixed number of worker goroutines.
type Pool struct {
	queue   *taskqueue.Queue
	workers int
	handler Handler
	log     logger.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// Clamp forces n into [MinWorkers, MaxWorkers].
func Clamp(n int) int {
	if n < MinWorkers {
		return MinWorkers
	}
	if n > MaxWorkers {
		return MaxWorkers
	}
	return n
}

// New builds a pool over queue with the given worker count (clamped) and
// handler. log may be nil, in which case the default logger is used.
func New(queue *taskqueue.Queue, workers int, handler Handler, log logger.Logger) *Pool {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &Pool{
		queue:   queue,
		workers: Clamp(workers),
		handler: handler,
		log:     log.WithTag("workerpool"),
	}
}

// Start launches the worker goroutines. It is not safe to call Start twice
// on the same Pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	p.group = g

	for i := 0; i < p.workers; i++ {
		id := i
		g.Go(func() error {
			p.run(gctx, id)
			return nil
		})
	}
	p.log.Info("worker pool started", logger.Int("workers", p.workers))
}

func (p *Pool) run(ctx context.Context, id int) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker panic recovered",
				logger.Int("worker_id", id),
				logger.Any("panic", fmt.Sprintf("%v", r)))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, ok := p.queue.Pop()
		if !ok {
			return
		}
		if task.Cancelled {
			continue
		}
		p.dispatch(ctx, id, task)
	}
}

func (p *Pool) dispatch(ctx context.Context, id int, task taskqueue.Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("task handler panic recovered",
				logger.Int("worker_id", id),
				logger.Uint64("request_id", task.RequestID),
				logger.Any("panic", fmt.Sprintf("%v", r)))
		}
	}()
	p.handler(ctx, task)
}

// Stop closes the underlying queue (unblocking every Pop) and waits for all
// workers to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.queue.Close()
	if p.group != nil {
		_ = p.group.Wait()
	}
	p.log.Info("worker pool stopped")
}
