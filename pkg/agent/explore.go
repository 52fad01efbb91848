// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

// Explore is the curiosity-driven agent: it flips branches whose
// reversed sa has never been visited, unreachable, or already targeted.
type Explore struct {
	base

	lastProposed SA
	hasProposed  bool
}

// NewExplore builds an Explore agent around the shared model/learner
// wiring.
func NewExplore(model ModelView, trainer Trainer, reward RewardCalculator, alpha, gamma float64, maxDistance int64) *Explore {
	return &Explore{base: newBase(model, trainer, reward, alpha, gamma, maxDistance)}
}

// HandleNewState folds the branch into the tracker, clears the just-
// reached sa from the target set (it's no longer an open target once
// visited), and appends to the episode.
func (e *Explore) HandleNewState(pc, callstack uint64, action int, hasDist bool, dist int64, instanceID, branchID uint64) {
	e.updateCurrState(pc, callstack, action, hasDist, dist, instanceID, branchID)
	currSA := e.tracker.Snapshot().SA()
	e.model.RemoveTargetSA(currSA)
	e.appendEpisode()
}

// IsInterestingBranch reports whether the branch not taken (the
// reversed sa) is novel: unvisited, not proven unreachable, and not
// already an in-flight target. When interesting, marks the reversed sa
// as a target so concurrent agents (hybrid mode) don't duplicate work.
func (e *Explore) IsInterestingBranch() bool {
	snap := e.tracker.Snapshot()
	if snap.Dist == nil {
		return false
	}
	reversed := e.tracker.ReversedSA()
	if e.model.IsUnreachable(reversed) {
		return false
	}
	if e.model.IsTarget(reversed) {
		return false
	}
	interesting := !e.model.IsVisited(reversed)
	if interesting {
		e.model.AddTargetSA(reversed)
		e.lastProposed = reversed
		e.hasProposed = true
	}
	return interesting
}

// HandleUnsatCondition reacts to the solver proving the just-proposed
// reversed sa infeasible: it moves from the target set to unreachable.
func (e *Explore) HandleUnsatCondition() {
	if !e.hasProposed {
		return
	}
	e.model.AddUnreachableSA(e.lastProposed)
	e.hasProposed = false
}

// HandleNestedUnsatCondition punishes the just-proposed reversed sa: it
// was reachable but everything past the flip proved unsat, so its value
// is actively lowered rather than marked outright unreachable. The
// proposal stays open -- it may still be reached directly later.
func (e *Explore) HandleNestedUnsatCondition() {
	if !e.hasProposed {
		return
	}
	e.trainer.Punish(e.model, e.lastProposed, punishPenalty, e.alpha)
}
