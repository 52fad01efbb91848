// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

// target pairs an in-flight sa with the episode length at which it was
// selected, mirroring Python's (sa, trace_length) tuple -- the agent
// considers the target reached once the same sa reappears at that same
// episode depth.
type target struct {
	sa     SA
	depth  int
	active bool
}

// Exploit pursues one target branch at a time, converging once a
// configurable number of consecutive rounds make no progress.
type Exploit struct {
	base

	epsilon float64

	allTargets     []SA
	lastTargets    []SA
	curr           target
	noProgress     int
	convergeAfter  int
}

// NewExploit builds an Exploit agent. epsilon is the explore rate used
// by the epsilon-greedy policy; convergeAfter is the no-progress-round
// threshold past which the agent reports itself converged.
func NewExploit(model ModelView, trainer Trainer, reward RewardCalculator, alpha, gamma float64,
	maxDistance int64, epsilon float64, convergeAfter int) *Exploit {
	return &Exploit{
		base:          newBase(model, trainer, reward, alpha, gamma, maxDistance),
		epsilon:       epsilon,
		convergeAfter: convergeAfter,
	}
}

// HandleNewState folds the branch into the tracker and, once the
// current target's sa reappears at the recorded episode depth, clears
// it -- the target has been reached.
func (x *Exploit) HandleNewState(pc, callstack uint64, action int, hasDist bool, dist int64, instanceID, branchID uint64) {
	x.updateCurrState(pc, callstack, action, hasDist, dist, instanceID, branchID)
	x.appendEpisode()
	currSA := x.tracker.Snapshot().SA()
	if x.curr.active && currSA == x.curr.sa && len(x.episode) == x.curr.depth {
		x.curr = target{}
	}
}

// IsInterestingBranch pursues at most one target at a time: while one
// is active, nothing new is interesting. Otherwise it is the
// epsilon-greedy policy's call.
func (x *Exploit) IsInterestingBranch() bool {
	snap := x.tracker.Snapshot()
	if snap.Dist == nil {
		return false
	}
	if x.curr.active {
		return false
	}
	reversed := x.tracker.ReversedSA()
	if x.model.IsUnreachable(reversed) {
		return false
	}
	currSA := snap.SA()
	if !x.model.IsVisited(currSA) {
		return false
	}
	interesting := x.epsilonGreedyPolicy(reversed)
	if interesting {
		x.allTargets = append(x.allTargets, reversed)
		x.curr = target{sa: reversed, depth: len(x.episode), active: true}
	}
	return interesting
}

// HandleUnsatCondition marks the pursued target unreachable. The sa is
// recorded before curr is cleared -- the prescribed fix for the
// Python pop-order bug (record the sa first, pop last).
func (x *Exploit) HandleUnsatCondition() {
	if !x.curr.active {
		return
	}
	sa := x.curr.sa
	x.curr = target{}
	x.model.AddUnreachableSA(sa)
}

// HandleNestedUnsatCondition punishes the target branch: it was
// reachable but everything past the flip proved unsat, so its value
// must be actively lowered rather than marked outright unreachable.
func (x *Exploit) HandleNestedUnsatCondition() {
	if !x.curr.active {
		return
	}
	sa := x.curr.sa
	x.trainer.Punish(x.model, sa, punishPenalty, x.alpha)
}

// punishPenalty is the fixed penalty subtracted from a punished sa's
// current Q-value in the max-Q variant.
const punishPenalty = 1000

// StepRound closes one exploit round: it records whether this round
// produced a new target and returns whether the agent has converged (no
// progress for more than convergeAfter consecutive rounds). Nothing in
// this module calls it outside its tests.
func (x *Exploit) StepRound() (converged bool) {
	if sameTargets(x.allTargets, x.lastTargets) {
		x.noProgress++
	} else {
		x.noProgress = 0
	}
	x.lastTargets = append([]SA(nil), x.allTargets...)
	return x.noProgress > x.convergeAfter
}

// HasTarget reports whether the agent is currently pursuing a target;
// HybridSession.Step keeps choosing the exploit runner while this holds.
func (x *Exploit) HasTarget() bool { return x.curr.active }

func sameTargets(a, b []SA) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// epsilonGreedyPolicy mirrors Python's __epsilon_greedy_policy: favors
// unexplored or rarely-visited reversed branches with decaying
// probability, falling back to pure greediness on the learned Q-values.
func (x *Exploit) epsilonGreedyPolicy(reversed SA) bool {
	visits := x.model.VisitedCount(reversed)
	if visits == 0 && randFloat() < x.epsilon {
		return true
	}
	if visits > 0 && randFloat() < pow(x.epsilon, visits) {
		return true
	}
	return x.greedyPolicy() != x.tracker.Snapshot().Action
}

// greedyPolicy mirrors Python's __greedy_policy: the action with the
// higher Q-value at the current state, defaulting to the action just
// taken on a tie.
func (x *Exploit) greedyPolicy() int {
	taken := x.ComputeBranchScore(1)
	notTaken := x.ComputeBranchScore(0)
	switch {
	case taken > notTaken:
		return 1
	case taken < notTaken:
		return 0
	default:
		return x.tracker.Snapshot().Action
	}
}

func pow(base float64, exp int) float64 {
	r := 1.0
	for i := 0; i < exp; i++ {
		r *= base
	}
	return r
}
