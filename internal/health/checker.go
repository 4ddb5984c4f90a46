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
	"sync"
	"time"

	"github.com/sage-x-project/dna-messenger-core/internal/logger"
)

// HealthCheck is a single named probe.
type HealthCheck func(ctx context.Context) error

// Checker manages a registry of named health checks, each with its own
// cached result so a busy /health endpoint doesn't re-run an expensive
// check (like a DHT round trip) on every scrape.
type Checker struct {
	checks   map[string]HealthCheck
	timeout  time.Duration
	mu       sync.RWMutex
	logger   logger.Logger
	cacheTTL time.Duration
	cache    map[string]*cachedResult
}

type cachedResult struct {
	result    *CheckResult
	expiresAt time.Time
}

// NewChecker creates a health check registry. timeout bounds how long any
// single check may run; zero defaults to 5s.
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:   make(map[string]HealthCheck),
		timeout:  timeout,
		logger:   logger.GetDefaultLogger(),
		cacheTTL: 10 * time.Second,
		cache:    make(map[string]*cachedResult),
	}
}

func (h *Checker) SetLogger(l logger.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = l
}

func (h *Checker) SetCacheTTL(ttl time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheTTL = ttl
}

// RegisterCheck adds (or replaces) a named check.
func (h *Checker) RegisterCheck(name string, check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
	h.logger.Info("health check registered", logger.String("name", name))
}

func (h *Checker) UnregisterCheck(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.checks, name)
	delete(h.cache, name)
}

// Check runs (or returns the cached result for) a single named check.
func (h *Checker) Check(ctx context.Context, name string) (*CheckResult, error) {
	h.mu.RLock()
	check, exists := h.checks[name]
	h.mu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("health check not found: %s", name)
	}

	if cached := h.getCachedResult(name); cached != nil {
		return cached, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := check(checkCtx)
	duration := time.Since(start)

	result := &CheckResult{Name: name, Timestamp: time.Now(), Duration: duration}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Message = err.Error()
		h.logger.Warn("health check failed", logger.String("name", name), logger.Error(err), logger.Duration("duration", duration))
	} else {
		result.Status = StatusHealthy
	}

	h.cacheResult(name, result)
	return result, nil
}

// CheckAll runs every registered check concurrently.
func (h *Checker) CheckAll(ctx context.Context) map[string]*CheckResult {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	h.mu.RUnlock()

	results := make(map[string]*CheckResult, len(names))
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, name := range names {
		wg.Add(1)
		go func(n string) {
			defer wg.Done()
			result, err := h.Check(ctx, n)
			if err != nil {
				result = &CheckResult{Name: n, Status: StatusUnhealthy, Message: err.Error(), Timestamp: time.Now()}
			}
			mu.Lock()
			results[n] = result
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return results
}

// GetOverallStatus reduces CheckAll to a single verdict.
func (h *Checker) GetOverallStatus(ctx context.Context) Status {
	results := h.CheckAll(ctx)
	if len(results) == 0 {
		return StatusHealthy
	}
	for _, r := range results {
		if r.Status == StatusUnhealthy {
			return StatusUnhealthy
		}
	}
	for _, r := range results {
		if r.Status == StatusDegraded {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

func (h *Checker) getCachedResult(name string) *CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cached, ok := h.cache[name]
	if !ok || time.Now().After(cached.expiresAt) {
		return nil
	}
	return cached.result
}

func (h *Checker) cacheResult(name string, result *CheckResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache[name] = &cachedResult{result: result, expiresAt: time.Now().Add(h.cacheTTL)}
}

func (h *Checker) ClearCache() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cache = make(map[string]*cachedResult)
}

// GetOverallHealth runs every check plus the fixed system probe and reduces
// them to the shape served at GET /health.
func (h *Checker) GetOverallHealth(ctx context.Context) *OverallHealth {
	checks := h.CheckAll(ctx)
	status := h.GetOverallStatus(ctx)

	sys := CheckSystem()
	if sys.Status != StatusHealthy && status == StatusHealthy {
		status = sys.Status
	}

	var errs []string
	for name, r := range checks {
		if r.Status != StatusHealthy {
			errs = append(errs, fmt.Sprintf("%s: %s", name, r.Message))
		}
	}
	if sys.Error != "" {
		errs = append(errs, "system: "+sys.Error)
	}

	return &OverallHealth{Status: status, Timestamp: time.Now(), Checks: checks, System: sys, Errors: errs}
}
