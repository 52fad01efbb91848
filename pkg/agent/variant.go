// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

import (
	"math/rand"

	"github.com/symflow/mazerunner/pkg/log"
)

// Variant is the small dispatch capability set every agent kind
// implements, replacing the Python class hierarchy's virtual methods
// with an explicit interface.
type Variant interface {
	// HandleNewState advances the tracker with a newly observed branch
	// and folds it into the episode.
	HandleNewState(pc, callstack uint64, action int, hasDist bool, dist int64, instanceID, branchID uint64)
	// IsInterestingBranch decides whether the branch just observed is
	// worth asking the solver to flip.
	IsInterestingBranch() bool
	// HandleUnsatCondition reacts to the solver proving the pursued
	// branch infeasible (UNSOLVED_OPT_UNSAT / UNSOLVED_TIMEOUT).
	HandleUnsatCondition()
	// HandleNestedUnsatCondition reacts to a nested-but-optimistic solve
	// (SOLVED_OPT_NESTED_UNSAT / SOLVED_OPT_NESTED_TIMEOUT): the branch
	// we hoped to reach turned out unreachable past the flip point, so
	// its value must be actively lowered.
	HandleNestedUnsatCondition()
	// ComputeBranchScore returns the model's expected-value score for
	// taking action at the current state -- higher is more promising,
	// mirroring Q_lookup(state + (action,)) in the greedy/epsilon-greedy
	// policies.
	ComputeBranchScore(action int) float64
}

// base holds the behavior and bookkeeping shared by every Variant,
// mirroring the Python Agent base class: episode accumulation, current
// state tracking, model/learner wiring and trace persistence.
type base struct {
	model       ModelView
	trainer     Trainer
	reward      RewardCalculator
	alpha       float64
	gamma       float64
	maxDistance int64

	tracker     *Tracker
	episode     Episode
	minDistance int64
}

func newBase(model ModelView, trainer Trainer, reward RewardCalculator, alpha, gamma float64, maxDistance int64) base {
	b := base{
		model:       model,
		trainer:     trainer,
		reward:      reward,
		alpha:       alpha,
		gamma:       gamma,
		maxDistance: maxDistance,
	}
	b.Reset()
	return b
}

// Reset starts a new execution: fresh tracker, empty episode, distance
// reinitialized to the configured maximum.
func (b *base) Reset() {
	b.tracker = NewTracker(b.maxDistance)
	b.episode = nil
	b.minDistance = b.maxDistance
}

// Episode exposes the accumulated episode, e.g. for tracing to disk.
func (b *base) Episode() Episode { return b.episode }

// CurrState exposes the live ProgramState snapshot.
func (b *base) CurrState() ProgramState { return b.tracker.Snapshot() }

// MinDistance is the smallest distance observed so far this execution.
func (b *base) MinDistance() int64 { return b.minDistance }

// updateCurrState mirrors Python's Agent.update_curr_state: folds a new
// branch observation into the tracker and the running minimum.
func (b *base) updateCurrState(pc, callstack uint64, action int, hasDist bool, dist int64, instanceID, branchID uint64) {
	var d *int64
	if hasDist {
		d = &dist
		if dist < b.minDistance {
			b.minDistance = dist
		}
	}
	b.tracker.Update(pc, callstack, action, d, instanceID, branchID)
}

// appendEpisode mirrors Python's Agent.append_episode.
func (b *base) appendEpisode() {
	b.episode.TryAppend(b.tracker.Snapshot())
}

// Train runs the end-to-start Q-learning pass over the completed
// episode. Call once an execution's event stream has
// ended.
func (b *base) Train() {
	if len(b.episode) == 0 {
		return
	}
	rewards := b.reward.Rewards(b.episode)
	b.trainer.Learn(b.model, b.episode, rewards, b.alpha, b.gamma)
}

// ComputeBranchScore implements Variant.ComputeBranchScore for every
// concrete agent: the model's Q-value for (state, action).
func (b *base) ComputeBranchScore(action int) float64 {
	sa := b.tracker.Snapshot().SA()
	sa.Action = action
	return b.model.QLookup(sa)
}

// HandleUnsatCondition and HandleNestedUnsatCondition default to no-ops.
// Record and Replay never propose targets, so they never need to react;
// Explore and Exploit each override both (explore.go, exploit.go).
func (b *base) HandleUnsatCondition()       {}
func (b *base) HandleNestedUnsatCondition() {}

var logf = func(format string, args ...interface{}) { log.Logf(3, format, args...) }

var randFloat = rand.Float64
