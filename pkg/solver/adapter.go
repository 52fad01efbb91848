// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solver

import (
	"io"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/channel"
)

// SeedInfo is the minimal context an adapter needs about the seed under
// execution to name and derive generated files from it.
type SeedInfo struct {
	Path    string
	Session uint64
	Data    []byte
}

// Adapter is the boundary contract between the fuzzer core and an SMT
// solver backend.
type Adapter interface {
	// HandleCond processes one cond event. interestHint reports whether
	// the calling agent considers this branch worth pursuing.
	HandleCond(label uint32, taken bool, flags channel.Flags, interestHint bool,
		snapshot agent.ProgramState, seed SeedInfo) (SolvingStatus, error)
	// HandleGEP processes one gep event.
	HandleGEP(trailer channel.GEPTrailer, addr uint64, seed SeedInfo) (SolvingStatus, error)
	// HandleMemcmp consumes a memcmp event's already-read trailer bytes;
	// r is offered for adapters that need to pull further solver-side
	// context (none do in this tree, but the contract allows it).
	HandleMemcmp(ev channel.MemcmpEvent, r io.Reader) error
	// GeneratedFiles returns the filenames written since the last Reset.
	GeneratedFiles() []string
	// Reset clears per-execution generated-file bookkeeping.
	Reset()
}
