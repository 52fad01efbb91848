// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux
// +build linux

package channel

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/symflow/mazerunner/pkg/log"
)

// Capacity is the target pipe buffer size, per GLOSSARY's PIPE_CAPACITY.
const Capacity = 4 * 1024 * 1024

// Pipe owns the read and write ends of the target->executor event pipe.
type Pipe struct {
	Read  *os.File
	Write *os.File
}

// NewPipe creates a fresh pipe and tries to raise its buffer capacity to
// Capacity. Permission failures are logged and otherwise ignored, per
// the design ("if denied, proceed with a logged warning").
func NewPipe() (*Pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	p := &Pipe{Read: r, Write: w}
	p.tryIncreaseCapacity()
	return p, nil
}

func (p *Pipe) tryIncreaseCapacity() {
	cur, err := unix.FcntlInt(p.Read.Fd(), unix.F_GETPIPE_SZ, 0)
	if err != nil || cur >= Capacity {
		return
	}
	if _, err := unix.FcntlInt(p.Read.Fd(), unix.F_SETPIPE_SZ, Capacity); err != nil {
		log.Warnf("failed to increase pipe capacity to %d, need higher privilege: %v", Capacity, err)
		return
	}
	if _, err := unix.FcntlInt(p.Write.Fd(), unix.F_SETPIPE_SZ, Capacity); err != nil {
		log.Warnf("failed to increase pipe capacity to %d, need higher privilege: %v", Capacity, err)
	}
}

// CloseWrite closes the write end, used by the parent right after spawning
// the child so that EOF propagates cleanly once the child exits.
func (p *Pipe) CloseWrite() error {
	if p.Write == nil {
		return nil
	}
	err := p.Write.Close()
	p.Write = nil
	return err
}

// Close closes both ends. Idempotent.
func (p *Pipe) Close() error {
	err1 := p.CloseWrite()
	var err2 error
	if p.Read != nil {
		err2 = p.Read.Close()
		p.Read = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}
