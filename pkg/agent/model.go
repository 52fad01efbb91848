// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

// ModelView is the narrow slice of pkg/rlmodel.Model the agent and
// learner packages need. Declaring it here (rather than importing
// pkg/rlmodel, which itself imports this package for SA) keeps the
// dependency graph a DAG: *rlmodel.Model satisfies this interface
// structurally, with no import required in either direction.
type ModelView interface {
	QLookup(sa SA) float64
	QUpdate(sa SA, v float64)
	AddVisitedSA(sa SA)
	VisitedCount(sa SA) int
	IsVisited(sa SA) bool
	IsUnreachable(sa SA) bool
	AddUnreachableSA(sa SA)
	IsTarget(sa SA) bool
	AddTargetSA(sa SA)
	RemoveTargetSA(sa SA)
}

// Trainer updates a ModelView from a completed episode, implemented by
// pkg/learner's MaxQ/AvgQ. Declared here for the same DAG reason as
// ModelView.
type Trainer interface {
	Learn(m ModelView, ep Episode, rewards []float64, alpha, gamma float64)
	Punish(m ModelView, sa SA, penalty, alpha float64)
}

// RewardCalculator turns an episode into a reward sequence, implemented
// by pkg/reward's Distance/Reachability.
type RewardCalculator interface {
	Rewards(ep Episode) []float64
}
