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
	"fmt"
	"runtime"
	"syscall"
)

const (
	MemoryThresholdHealthy  = 70.0
	MemoryThresholdDegraded = 85.0
	DiskThresholdHealthy    = 70.0
	DiskThresholdDegraded   = 85.0
)

// CheckSystem samples the daemon process's own memory/goroutine/disk usage.
func CheckSystem() *SystemHealth {
	sys := &SystemHealth{Status: StatusHealthy}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	sys.MemoryUsedMB = m.Alloc / 1024 / 1024
	sys.MemoryTotalMB = m.Sys / 1024 / 1024
	if sys.MemoryTotalMB > 0 {
		sys.MemoryPercent = float64(sys.MemoryUsedMB) / float64(sys.MemoryTotalMB) * 100
	}

	sys.GoRoutines = runtime.NumGoroutine()

	var stat syscall.Statfs_t
	if err := syscall.Statfs(".", &stat); err == nil {
		totalBytes := stat.Blocks * uint64(stat.Bsize)
		freeBytes := stat.Bfree * uint64(stat.Bsize)
		usedBytes := totalBytes - freeBytes

		sys.DiskTotalGB = totalBytes / 1024 / 1024 / 1024
		sys.DiskUsedGB = usedBytes / 1024 / 1024 / 1024
		if sys.DiskTotalGB > 0 {
			sys.DiskPercent = float64(sys.DiskUsedGB) / float64(sys.DiskTotalGB) * 100
		}
	} else {
		sys.Error = fmt.Sprintf("failed to get disk stats: %v", err)
	}

	if sys.MemoryPercent >= MemoryThresholdDegraded || sys.DiskPercent >= DiskThresholdDegraded {
		sys.Status = StatusUnhealthy
	} else if sys.MemoryPercent >= MemoryThresholdHealthy || sys.DiskPercent >= DiskThresholdHealthy {
		sys.Status = StatusDegraded
	}

	return sys
}
