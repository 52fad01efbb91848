// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package solver

import (
	"io"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/channel"
)

// NopSolver never attempts a solve: every cond/gep is reported
// UNSOLVED_PRE_UNSAT, matching "the path precondition is unsat" for a
// backend that refuses all work. Useful for wiring tests that only
// exercise the agent/executor plumbing around the adapter boundary.
type NopSolver struct{}

func (NopSolver) HandleCond(uint32, bool, channel.Flags, bool, agent.ProgramState, SeedInfo) (SolvingStatus, error) {
	return UnsolvedPreUnsat, nil
}

func (NopSolver) HandleGEP(channel.GEPTrailer, uint64, SeedInfo) (SolvingStatus, error) {
	return UnsolvedPreUnsat, nil
}

func (NopSolver) HandleMemcmp(channel.MemcmpEvent, io.Reader) error { return nil }

func (NopSolver) GeneratedFiles() []string { return nil }

func (NopSolver) Reset() {}

// FileSolver deterministically "solves" every interesting cond by
// flipping the single byte at the label's offset (label is reused as
// the offset -- good enough for exercising the patch writer and file
// naming convention end to end without a real SMT backend). Every gep
// is reported UNSOLVED_UNINTERESTING_SAT and every uninteresting cond
// UNSOLVED_UNINTERESTING_COND.
type FileSolver struct {
	Dir string

	n        int
	files    []string
	sessions map[uint64]bool
}

func (f *FileSolver) HandleCond(label uint32, taken bool, flags channel.Flags, interestHint bool,
	snapshot agent.ProgramState, seed SeedInfo) (SolvingStatus, error) {
	if !interestHint {
		return UnsolvedUninterestingCond, nil
	}
	ps := NewPatchSet(seed.Data)
	offset := int(label) % max(1, len(seed.Data))
	if len(seed.Data) == 0 {
		return UnsolvedPreUnsat, nil
	}
	if err := ps.Add(offset, ^ps.Bytes()[offset]); err != nil {
		return UnsolvedUnknown, err
	}
	name := FileName(seed.Session, f.n, nil, "")
	f.n++
	path, err := WriteFile(f.Dir, name, ps.Bytes())
	if err != nil {
		return UnsolvedUnknown, err
	}
	f.files = append(f.files, path)
	return SolvedNested, nil
}

func (f *FileSolver) HandleGEP(channel.GEPTrailer, uint64, SeedInfo) (SolvingStatus, error) {
	return UnsolvedUninterestingSat, nil
}

func (f *FileSolver) HandleMemcmp(channel.MemcmpEvent, io.Reader) error { return nil }

func (f *FileSolver) GeneratedFiles() []string { return f.files }

func (f *FileSolver) Reset() { f.files = nil }
