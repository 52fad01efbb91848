// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

// Replay trains the shared model from a previously recorded episode,
// with no live execution involved -- the offline counterpart to Record,
// "Replay agent".
type Replay struct {
	base
}

// NewReplay builds a Replay agent around the shared model/learner
// wiring.
func NewReplay(model ModelView, trainer Trainer, reward RewardCalculator, alpha, gamma float64, maxDistance int64) *Replay {
	return &Replay{base: newBase(model, trainer, reward, alpha, gamma, maxDistance)}
}

// HandleNewState is unused by Replay: episodes arrive whole via LoadTrace,
// not incrementally from live branch events.
func (r *Replay) HandleNewState(uint64, uint64, int, bool, int64, uint64, uint64) {}

// IsInterestingBranch is always false: Replay never drives a live solver.
func (r *Replay) IsInterestingBranch() bool { return false }

// LoadTrace installs a previously recorded episode (e.g. loaded via
// pkg/store.LoadEpisode) as the current episode. Every visited sa in it
// is registered with the model first -- mirroring Python's
// replay_trace marking add_visited_sa for each step before training --
// so AddVisitedSA bookkeeping stays accurate across offline replays.
func (r *Replay) LoadTrace(ep Episode) {
	r.episode = ep
	for _, s := range ep {
		r.model.AddVisitedSA(s.SA())
	}
}
