// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build linux
// +build linux

package channel

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ReadyTimeout bounds how long Next waits for the target to produce a
// byte before treating it as silent ("target silent -> stop reading"),
//.
const ReadyTimeout = 3 * time.Second

// Reader decodes the event stream produced by the instrumented target.
// One event is fully processed (including any variable-length trailer)
// before the next is read, so a single execution's events are never
// buffered in memory.
type Reader struct {
	f *os.File
}

// NewReader wraps the read end of the event pipe.
func NewReader(f *os.File) *Reader {
	return &Reader{f: f}
}

// readyRead blocks up to ReadyTimeout for f to become readable. A timeout
// is treated the same as the target having gone silent.
func readyRead(f *os.File, timeout time.Duration) (bool, error) {
	fd := int(f.Fd())
	var rfds unix.FdSet
	rfds.Set(fd)
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	for {
		n, err := unix.Select(fd+1, &rfds, nil, nil, &tv)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		return n > 0, nil
	}
}

// Next reads and decodes the next event from the stream. It returns
// (nil, nil) when the target has gone silent (no data ready within
// ReadyTimeout) or the pipe ended before a full header was read (a clean
// EOF or a partial header) -- all are the normal "stop reading"
// termination.
func (r *Reader) Next() (Event, error) {
	ready, err := readyRead(r.f, ReadyTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrChannelBroken, err)
	}
	if !ready {
		return nil, nil
	}

	var hdr Header
	if err := binary.Read(r.f, binary.LittleEndian, &hdr); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrChannelBroken, err)
	}

	switch hdr.MsgType {
	case MsgCond:
		var trailer CondTrailer
		if err := binary.Read(r.f, binary.LittleEndian, &trailer); err != nil {
			return nil, fmt.Errorf("%w: cond trailer: %v", ErrTruncatedMessage, err)
		}
		return CondEvent{Header: hdr, Trailer: trailer}, nil
	case MsgGEP:
		var trailer GEPTrailer
		if err := binary.Read(r.f, binary.LittleEndian, &trailer); err != nil {
			return nil, fmt.Errorf("%w: gep trailer: %v", ErrTruncatedMessage, err)
		}
		return GEPEvent{Header: hdr, Trailer: trailer}, nil
	case MsgMemcmp:
		data := make([]byte, hdr.Result)
		if _, err := io.ReadFull(r.f, data); err != nil {
			return nil, fmt.Errorf("%w: memcmp blob: %v", ErrTruncatedMessage, err)
		}
		return MemcmpEvent{Header: hdr, Data: data}, nil
	case MsgFsize:
		return FsizeEvent{Header: hdr}, nil
	case MsgLoop:
		return LoopEvent{Header: hdr}, nil
	case MsgFini:
		return FiniEvent{Header: hdr}, nil
	default:
		// No trailer is known for an unrecognized tag: the stream is
		// now desynchronized and the loop must abort.
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, hdr.MsgType)
	}
}
