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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecker(t *testing.T) {
	t.Run("RegisterAndCheck", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)

		checker.RegisterCheck("test_healthy", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("test_unhealthy", func(ctx context.Context) error { return errors.New("service unavailable") })

		result, err := checker.Check(context.Background(), "test_healthy")
		require.NoError(t, err)
		assert.Equal(t, StatusHealthy, result.Status)
		assert.Equal(t, "test_healthy", result.Name)
		assert.Empty(t, result.Message)

		result, err = checker.Check(context.Background(), "test_unhealthy")
		require.NoError(t, err)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Equal(t, "service unavailable", result.Message)
	})

	t.Run("CheckNonExistent", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)
		_, err := checker.Check(context.Background(), "non_existent")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "health check not found")
	})

	t.Run("CheckWithTimeout", func(t *testing.T) {
		checker := NewChecker(100 * time.Millisecond)
		checker.RegisterCheck("slow_check", func(ctx context.Context) error {
			select {
			case <-time.After(200 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})

		result, err := checker.Check(context.Background(), "slow_check")
		require.NoError(t, err)
		assert.Equal(t, StatusUnhealthy, result.Status)
		assert.Contains(t, result.Message, "context deadline exceeded")
	})

	t.Run("CheckAll", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)
		checker.RegisterCheck("check1", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("check2", func(ctx context.Context) error { return errors.New("failed") })
		checker.RegisterCheck("check3", func(ctx context.Context) error { return nil })

		results := checker.CheckAll(context.Background())
		assert.Len(t, results, 3)
		assert.Equal(t, StatusHealthy, results["check1"].Status)
		assert.Equal(t, StatusUnhealthy, results["check2"].Status)
		assert.Equal(t, StatusHealthy, results["check3"].Status)
	})

	t.Run("GetOverallStatus", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)
		checker.RegisterCheck("healthy1", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("healthy2", func(ctx context.Context) error { return nil })

		assert.Equal(t, StatusHealthy, checker.GetOverallStatus(context.Background()))

		checker.RegisterCheck("unhealthy", func(ctx context.Context) error { return errors.New("error") })
		assert.Equal(t, StatusUnhealthy, checker.GetOverallStatus(context.Background()))

		checker.UnregisterCheck("unhealthy")
		assert.Equal(t, StatusHealthy, checker.GetOverallStatus(context.Background()))
	})

	t.Run("Caching", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)
		checker.SetCacheTTL(100 * time.Millisecond)

		callCount := 0
		checker.RegisterCheck("cached_check", func(ctx context.Context) error {
			callCount++
			return nil
		})

		_, err := checker.Check(context.Background(), "cached_check")
		require.NoError(t, err)
		assert.Equal(t, 1, callCount)

		_, err = checker.Check(context.Background(), "cached_check")
		require.NoError(t, err)
		assert.Equal(t, 1, callCount)

		time.Sleep(150 * time.Millisecond)

		_, err = checker.Check(context.Background(), "cached_check")
		require.NoError(t, err)
		assert.Equal(t, 2, callCount)
	})

	t.Run("ClearCache", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)
		checker.SetCacheTTL(1 * time.Hour)

		callCount := 0
		checker.RegisterCheck("cached_check", func(ctx context.Context) error {
			callCount++
			return nil
		})

		checker.Check(context.Background(), "cached_check")
		assert.Equal(t, 1, callCount)

		checker.Check(context.Background(), "cached_check")
		assert.Equal(t, 1, callCount)

		checker.ClearCache()

		checker.Check(context.Background(), "cached_check")
		assert.Equal(t, 2, callCount)
	})

	t.Run("GetOverallHealth", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)
		checker.RegisterCheck("identity", func(ctx context.Context) error { return nil })
		checker.RegisterCheck("dht", func(ctx context.Context) error { return errors.New("connection failed") })

		overall := checker.GetOverallHealth(context.Background())

		assert.Equal(t, StatusUnhealthy, overall.Status)
		assert.Len(t, overall.Checks, 2)
		assert.Equal(t, StatusHealthy, overall.Checks["identity"].Status)
		assert.Equal(t, StatusUnhealthy, overall.Checks["dht"].Status)
		assert.NotZero(t, overall.Timestamp)
		require.NotNil(t, overall.System)
		assert.NotEmpty(t, overall.Errors)
	})

	t.Run("ConcurrentOperations", func(t *testing.T) {
		checker := NewChecker(1 * time.Second)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				name := "check_" + string(rune('0'+idx))
				checker.RegisterCheck(name, func(ctx context.Context) error { return nil })
			}(i)
		}
		wg.Wait()

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results := checker.CheckAll(context.Background())
				assert.Len(t, results, 10)
			}()
		}
		wg.Wait()

		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				name := "check_" + string(rune('0'+idx))
				checker.UnregisterCheck(name)
			}(i)
		}
		wg.Wait()

		assert.Len(t, checker.CheckAll(context.Background()), 0)
	})
}

func BenchmarkChecker(b *testing.B) {
	checker := NewChecker(1 * time.Second)
	for i := 0; i < 10; i++ {
		name := "check_" + string(rune('0'+i))
		checker.RegisterCheck(name, func(ctx context.Context) error {
			time.Sleep(1 * time.Microsecond)
			return nil
		})
	}

	b.Run("SingleCheck", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			checker.Check(context.Background(), "check_0")
		}
	})

	b.Run("CheckAll", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			checker.CheckAll(context.Background())
		}
	})

	b.Run("WithCache", func(b *testing.B) {
		checker.SetCacheTTL(1 * time.Second)
		for i := 0; i < b.N; i++ {
			checker.Check(context.Background(), "check_0")
		}
	})
}
