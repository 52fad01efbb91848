// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

// Outcome is the classification of one execution's return code, per
// the design table.
type Outcome int

const (
	// OutcomeNone: nothing special happened.
	OutcomeNone Outcome = iota
	// OutcomeHang: the timeout wrapper killed the child (exit 124 or
	// -9/SIGKILL).
	OutcomeHang
	// OutcomeError: the child crashed (SIGSEGV or SIGABRT, positive or
	// negative exit-code encoding).
	OutcomeError
)

const (
	sigsegv = 11
	sigabrt = 6
)

// Classify maps an os/exec-style return code (positive 128+signal or
// negative -signal, matching both Unix raw wait-status encodings the
// Python code checks for) to an Outcome.
func Classify(returnCode int) Outcome {
	switch returnCode {
	case 124, -9:
		return OutcomeHang
	case 128 + sigsegv, -sigsegv, 128 + sigabrt, -sigabrt:
		return OutcomeError
	default:
		return OutcomeNone
	}
}
