// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux

package mazerunner

import (
	"golang.org/x/sys/unix"

	"github.com/symflow/mazerunner/pkg/log"
)

// ResourceLimits mirrors config.py's MEMORY_LIMIT_PERCENTAGE and
// DISK_LIMIT_SIZE: the runner backs off once either threshold is hit,
//.
type ResourceLimits struct {
	MemoryPercent int   // 0 disables the memory check
	DiskBytes     int64 // 0 disables the disk check
	Dir           string
}

// Reached reports whether either configured resource limit has been
// crossed, mirroring Python's reached_resource_limit.
func (r ResourceLimits) Reached() (bool, error) {
	if r.MemoryPercent > 0 {
		used, err := memoryPercentUsed()
		if err != nil {
			return false, err
		}
		if used >= r.MemoryPercent {
			log.Logf(0, "mazerunner: memory usage %d%% >= limit %d%%", used, r.MemoryPercent)
			return true, nil
		}
	}
	if r.DiskBytes > 0 {
		free, err := diskFreeBytes(r.Dir)
		if err != nil {
			return false, err
		}
		if free < r.DiskBytes {
			log.Logf(0, "mazerunner: disk free %d bytes < limit %d bytes", free, r.DiskBytes)
			return true, nil
		}
	}
	return false, nil
}

// memoryPercentUsed returns system-wide memory utilization as a
// percentage, via the Sysinfo syscall from golang.org/x/sys/unix, the
// package pkg/shm also uses for its memfd-backed shared memory region.
func memoryPercentUsed() (int, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	total := uint64(info.Totalram) * uint64(info.Unit)
	free := uint64(info.Freeram) * uint64(info.Unit)
	if total == 0 {
		return 0, nil
	}
	used := total - free
	return int(used * 100 / total), nil
}

// diskFreeBytes returns the free space available on the filesystem
// backing dir.
func diskFreeBytes(dir string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * st.Bsize, nil
}
