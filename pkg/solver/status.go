// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package solver is the boundary between the fuzzer core and an SMT
// solver backend: the Adapter interface, the closed SolvingStatus enum
// that drives executor/agent reactions, and the byte-patch writer used
// to materialize solved inputs. Implementing an actual solver backend
// is out of scope here (out of scope); NopSolver and FileSolver
// are the test doubles the rest of the tree is exercised against.
package solver

// SolvingStatus is the closed enum returned by Adapter.HandleCond and
// Adapter.HandleGEP.
type SolvingStatus int

const (
	// SolvedNested: flip satisfied with nested constraints.
	SolvedNested SolvingStatus = iota
	// SolvedOptNestedUnsat: nested unsat but an optimistic model was found.
	SolvedOptNestedUnsat
	// SolvedOptNestedTimeout: nested timed out; an optimistic model was found.
	SolvedOptNestedTimeout
	// UnsolvedOptUnsat: flip proven infeasible.
	UnsolvedOptUnsat
	// UnsolvedTimeout: solver timeout.
	UnsolvedTimeout
	// UnsolvedPreUnsat: path precondition unsat.
	UnsolvedPreUnsat
	// UnsolvedUninterestingSat: not pursued.
	UnsolvedUninterestingSat
	// UnsolvedUninterestingCond: agent said not interesting.
	UnsolvedUninterestingCond
	// UnsolvedInvalidMsg: malformed message, fatal to this event stream.
	UnsolvedInvalidMsg
	// UnsolvedInvalidExpr: malformed expression, fatal to this event stream.
	UnsolvedInvalidExpr
	// UnsolvedUnknown: unclassified failure, fatal to this event stream.
	UnsolvedUnknown
)

var names = map[SolvingStatus]string{
	SolvedNested:               "SOLVED_NESTED",
	SolvedOptNestedUnsat:       "SOLVED_OPT_NESTED_UNSAT",
	SolvedOptNestedTimeout:     "SOLVED_OPT_NESTED_TIMEOUT",
	UnsolvedOptUnsat:           "UNSOLVED_OPT_UNSAT",
	UnsolvedTimeout:            "UNSOLVED_TIMEOUT",
	UnsolvedPreUnsat:           "UNSOLVED_PRE_UNSAT",
	UnsolvedUninterestingSat:   "UNSOLVED_UNINTERESTING_SAT",
	UnsolvedUninterestingCond: "UNSOLVED_UNINTERESTING_COND",
	UnsolvedInvalidMsg:         "UNSOLVED_INVALID_MSG",
	UnsolvedInvalidExpr:        "UNSOLVED_INVALID_EXPR",
	UnsolvedUnknown:            "UNKNOWN",
}

func (s SolvingStatus) String() string {
	if n, ok := names[s]; ok {
		return n
	}
	return "UNKNOWN"
}

// Fatal reports whether this status desynchronizes the event stream and
// must stop all further event processing table.
func (s SolvingStatus) Fatal() bool {
	switch s {
	case UnsolvedInvalidMsg, UnsolvedInvalidExpr, UnsolvedUnknown:
		return true
	default:
		return false
	}
}

// MarksUnreachable reports whether this status should cause the agent
// to mark the reversed sa unreachable.
func (s SolvingStatus) MarksUnreachable() bool {
	return s == UnsolvedOptUnsat || s == UnsolvedTimeout
}

// NeedsPunish reports whether this status should cause the agent to
// punish the reversed state.
func (s SolvingStatus) NeedsPunish() bool {
	return s == SolvedOptNestedUnsat || s == SolvedOptNestedTimeout
}

// StopsExploit reports whether the exploit agent must stop processing
// further events in this execution after seeing this status.
func (s SolvingStatus) StopsExploit() bool {
	return s == SolvedNested || s == SolvedOptNestedTimeout
}
