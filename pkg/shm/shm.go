// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux
// +build linux

// Package shm allocates the shared-memory union table that the executor
// seeds and the instrumented target mutates during a run.
package shm

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// UnionTableSize is the default size of the symbolic union table, per the
// GLOSSARY's UNION_TABLE_SIZE.
const UnionTableSize = 0xc00000000

// Region is a memfd-backed shared-memory mapping, handed to the child
// process as an inherited file descriptor.
type Region struct {
	file *os.File
	mem  []byte
}

// Create allocates a new anonymous memfd of the requested size and maps it
// into this process' address space. Adapted from syzkaller's
// CreateMemMappedFile (pkg/osutil/sharedmem_memfd.go); here the region is
// also handed to a child via cmd.ExtraFiles instead of being read back
// in-process only.
func Create(size int) (*Region, error) {
	fd, err := unix.MemfdCreate("mazerunner-union-table", 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	f := os.NewFile(uintptr(fd), fmt.Sprintf("/proc/self/fd/%d", fd))
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, fmt.Errorf("truncate shm file: %w", err)
	}
	mem, err := syscall.Mmap(fd, 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap shm file: %w", err)
	}
	return &Region{file: f, mem: mem}, nil
}

// File returns the backing *os.File, suitable for cmd.ExtraFiles.
func (r *Region) File() *os.File {
	return r.file
}

// Bytes returns the mapped memory. Only the child process is expected to
// write through it; the parent only ever passes the descriptor along.
func (r *Region) Bytes() []byte {
	return r.mem
}

// Close unmaps and releases the region. Idempotent.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	err1 := syscall.Munmap(r.mem)
	r.mem = nil
	var err2 error
	if r.file != nil {
		err2 = r.file.Close()
		r.file = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}
