// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package channel implements the one-way, tightly-packed binary protocol
// the instrumented target uses to stream branch/GEP/memcmp/finalization
// events back to the concolic executor over a pipe.
package channel

// MsgType identifies the kind of event a Header precedes.
type MsgType uint32

const (
	MsgCond MsgType = iota
	MsgGEP
	MsgMemcmp
	MsgFsize
	MsgLoop
	MsgFini
)

func (t MsgType) String() string {
	switch t {
	case MsgCond:
		return "cond"
	case MsgGEP:
		return "gep"
	case MsgMemcmp:
		return "memcmp"
	case MsgFsize:
		return "fsize"
	case MsgLoop:
		return "loop"
	case MsgFini:
		return "fini"
	default:
		return "unknown"
	}
}

// Flags is the bitset carried in every header.
type Flags uint32

const (
	FlagHasDistance Flags = 1 << iota
	FlagLoopExit
	FlagLoopLatch
)

func (f Flags) Has(bit Flags) bool {
	return f&bit != 0
}

// Header is the fixed-size record that precedes every message on the wire.
type Header struct {
	MsgType    MsgType
	Flags      Flags
	InstanceID uint32
	Addr       uint64
	Context    uint32
	ID         uint32
	Label      uint32
	Result     uint64
}

// HeaderSize is the on-wire size of Header: 4+4+4+8+4+4+4+8, tightly
// packed with no alignment padding.
const HeaderSize = 40

// CondTrailer (mazerunner_msg) follows a cond Header.
type CondTrailer struct {
	Addr          uint64
	Context       uint32
	ID            uint32
	LocalMinDist  uint64
	GlobalMinDist uint64
	Flags         Flags
}

// CondTrailerSize is the on-wire size of CondTrailer.
const CondTrailerSize = 36

// GEPTrailer (gep_msg) follows a gep Header.
type GEPTrailer struct {
	IndexLabel uint32
}

// GEPTrailerSize is the on-wire size of GEPTrailer.
const GEPTrailerSize = 4

// CondEvent bundles a cond Header with its trailer.
type CondEvent struct {
	Header  Header
	Trailer CondTrailer
}

// GEPEvent bundles a gep Header with its trailer.
type GEPEvent struct {
	Header  Header
	Trailer GEPTrailer
}

// MemcmpEvent carries the variable-length comparison blob. Length is taken
// from Header.Result.
type MemcmpEvent struct {
	Header Header
	Data   []byte
}

// FsizeEvent, LoopEvent and FiniEvent carry only the header.
type (
	FsizeEvent struct{ Header Header }
	LoopEvent  struct{ Header Header }
	FiniEvent  struct{ Header Header }
)

// Event is the decoded union of everything Next can return.
type Event interface {
	isEvent()
}

func (CondEvent) isEvent()   {}
func (GEPEvent) isEvent()    {}
func (MemcmpEvent) isEvent() {}
func (FsizeEvent) isEvent()  {}
func (LoopEvent) isEvent()   {}
func (FiniEvent) isEvent()   {}
