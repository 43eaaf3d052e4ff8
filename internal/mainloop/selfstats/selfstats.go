// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package selfstats samples host resource usage so the main loop can
// detect resource exhaustion (spec.md §7's ResourceExhausted error
// kind) before the OS starts killing things, grounded on the teacher's
// internal/agent.SystemStats collector and its use of
// github.com/shirou/gopsutil/v3 for disk/process stats.
package selfstats

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot is a point-in-time resource reading.
type Snapshot struct {
	MemUsedPercent  float64
	DiskFreeBytes   uint64
	DiskUsedPercent float64
}

// Sample reads current memory usage and free disk space at diskPath
// (typically the disk-queue or persist-file directory).
func Sample(diskPath string) (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfstats: reading memory: %w", err)
	}
	du, err := disk.Usage(diskPath)
	if err != nil {
		return Snapshot{}, fmt.Errorf("selfstats: reading disk usage for %s: %w", diskPath, err)
	}
	return Snapshot{
		MemUsedPercent:  vm.UsedPercent,
		DiskFreeBytes:   du.Free,
		DiskUsedPercent: du.UsedPercent,
	}, nil
}

// LowDiskSpace reports whether free space at path has dropped under
// minFreeBytes, the trigger the main loop uses to surface a
// ResourceExhausted internal event; disk-queue writes are not refused.
func LowDiskSpace(path string, minFreeBytes uint64) (bool, error) {
	snap, err := Sample(path)
	if err != nil {
		return false, err
	}
	return snap.DiskFreeBytes < minFreeBytes, nil
}
