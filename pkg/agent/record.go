// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

// Record runs the target purely to capture a trace for later offline
// training; it never asks the solver to flip anything, or feed it back
// into a live policy.
type Record struct {
	base
}

// NewRecord builds a Record agent. Its model/trainer/reward wiring is
// only exercised by Train after a trace is replayed back in, so a
// no-op ModelView/Trainer/RewardCalculator is a legitimate choice here.
func NewRecord(model ModelView, trainer Trainer, reward RewardCalculator, alpha, gamma float64, maxDistance int64) *Record {
	return &Record{base: newBase(model, trainer, reward, alpha, gamma, maxDistance)}
}

// HandleNewState folds the branch into the tracker and offers it to the
// episode through the same appendEpisode rules every agent uses, so a
// state those rules reject is not recorded.
func (r *Record) HandleNewState(pc, callstack uint64, action int, hasDist bool, dist int64, instanceID, branchID uint64) {
	r.updateCurrState(pc, callstack, action, hasDist, dist, instanceID, branchID)
	r.appendEpisode()
}

// IsInterestingBranch is always false: Record never drives the solver.
func (r *Record) IsInterestingBranch() bool { return false }
