// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeModel is a minimal in-memory ModelView for agent-level tests,
// independent of pkg/rlmodel to keep this package's test suite free of
// the rlmodel->agent import edge.
type fakeModel struct {
	q           map[SA]float64
	visited     map[SA]int
	unreachable map[SA]bool
	target      map[SA]bool
}

func newFakeModel() *fakeModel {
	return &fakeModel{
		q:           map[SA]float64{},
		visited:     map[SA]int{},
		unreachable: map[SA]bool{},
		target:      map[SA]bool{},
	}
}

func (m *fakeModel) QLookup(sa SA) float64    { return m.q[sa] }
func (m *fakeModel) QUpdate(sa SA, v float64) { m.q[sa] = v }
func (m *fakeModel) AddVisitedSA(sa SA)       { m.visited[sa]++ }
func (m *fakeModel) VisitedCount(sa SA) int   { return m.visited[sa] }
func (m *fakeModel) IsVisited(sa SA) bool     { _, ok := m.visited[sa]; return ok }
func (m *fakeModel) IsUnreachable(sa SA) bool { return m.unreachable[sa] }
func (m *fakeModel) AddUnreachableSA(sa SA) {
	m.unreachable[sa] = true
	delete(m.target, sa)
}
func (m *fakeModel) IsTarget(sa SA) bool { return m.target[sa] }
func (m *fakeModel) AddTargetSA(sa SA)   { m.target[sa] = true }
func (m *fakeModel) RemoveTargetSA(sa SA) { delete(m.target, sa) }

type fakeTrainer struct {
	learned  int
	punished []SA
}

func (t *fakeTrainer) Learn(ModelView, Episode, []float64, float64, float64) { t.learned++ }
func (t *fakeTrainer) Punish(_ ModelView, sa SA, _, _ float64)               { t.punished = append(t.punished, sa) }

type fakeReward struct{}

func (fakeReward) Rewards(ep Episode) []float64 { return make([]float64, len(ep)+1) }

func TestExploreMarksTargetAndSkipsExistingTarget(t *testing.T) {
	m := newFakeModel()
	e := NewExplore(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100)

	e.HandleNewState(0x10, 0x20, 0, true, 5, 1, 1)
	require.True(t, e.IsInterestingBranch())
	reversed := e.tracker.ReversedSA()
	require.True(t, m.IsTarget(reversed))

	// Once marked a target, it's no longer interesting to re-propose.
	require.False(t, e.IsInterestingBranch())
}

func TestExploreHandleUnsatMovesTargetToUnreachable(t *testing.T) {
	m := newFakeModel()
	e := NewExplore(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100)

	e.HandleNewState(0x10, 0x20, 0, true, 5, 1, 1)
	require.True(t, e.IsInterestingBranch())
	reversed := e.tracker.ReversedSA()
	require.True(t, m.IsTarget(reversed))

	e.HandleUnsatCondition()
	require.False(t, m.IsTarget(reversed))
	require.True(t, m.IsUnreachable(reversed))

	// A stale callback with nothing currently proposed is a no-op.
	e.HandleUnsatCondition()
}

func TestExploreHandleNestedUnsatPunishesWithoutClearingTarget(t *testing.T) {
	m := newFakeModel()
	tr := &fakeTrainer{}
	e := NewExplore(m, tr, fakeReward{}, 0.5, 0.9, 100)

	e.HandleNewState(0x10, 0x20, 0, true, 5, 1, 1)
	require.True(t, e.IsInterestingBranch())
	reversed := e.tracker.ReversedSA()

	e.HandleNestedUnsatCondition()
	require.Equal(t, []SA{reversed}, tr.punished)
	require.True(t, m.IsTarget(reversed)) // nested-unsat punishes, doesn't resolve the target
}

func TestExploreSkipsUnreachable(t *testing.T) {
	m := newFakeModel()
	e := NewExplore(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100)
	e.HandleNewState(0x10, 0x20, 0, true, 5, 1, 1)
	m.AddUnreachableSA(e.tracker.ReversedSA())
	require.False(t, e.IsInterestingBranch())
}

func TestExploitSinglesTargetAtATime(t *testing.T) {
	m := newFakeModel()
	x := NewExploit(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100, 1.0, 3)

	x.HandleNewState(0x10, 0x20, 0, true, 5, 1, 1)
	currSA := x.tracker.Snapshot().SA()
	m.AddVisitedSA(currSA)
	require.True(t, x.IsInterestingBranch()) // epsilon=1.0 always interesting
	require.True(t, x.HasTarget())
	require.False(t, x.IsInterestingBranch()) // already pursuing one
}

func TestExploitHandleUnsatRecordsBeforeClearing(t *testing.T) {
	m := newFakeModel()
	x := NewExploit(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100, 1.0, 3)
	x.HandleNewState(0x10, 0x20, 0, true, 5, 1, 1)
	m.AddVisitedSA(x.tracker.Snapshot().SA())
	x.IsInterestingBranch()
	target := x.curr.sa

	x.HandleUnsatCondition()
	require.False(t, x.HasTarget())
	require.True(t, m.IsUnreachable(target))
}

// TestExploitConvergenceDetection exercises S3: convergence requires
// strictly more than convergeAfter consecutive no-progress rounds
// (CONVERGING_THRESHOLD+1 stalls for CONVERGING_THRESHOLD=2), matching
// has_converged's "no_progress_count > CONVERGING_THRESHOLD".
func TestExploitConvergenceDetection(t *testing.T) {
	m := newFakeModel()
	x := NewExploit(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100, 0.0, 2)
	require.False(t, x.StepRound()) // noProgress=1
	require.False(t, x.StepRound()) // noProgress=2, still at the threshold
	require.True(t, x.StepRound())  // noProgress=3, strictly past it
}

func TestRecordAlwaysAppendsNeverInteresting(t *testing.T) {
	m := newFakeModel()
	r := NewRecord(m, &fakeTrainer{}, fakeReward{}, 0.5, 0.9, 100)
	r.HandleNewState(0x1, 0x2, 0, true, 5, 0, 0)
	require.Len(t, r.Episode(), 1)
	require.False(t, r.IsInterestingBranch())
}

func TestReplayLoadTraceRegistersVisited(t *testing.T) {
	m := newFakeModel()
	tr := &fakeTrainer{}
	r := NewReplay(m, tr, fakeReward{}, 0.5, 0.9, 100)
	d := int64(3)
	ep := Episode{{PC: 1, Callstack: 2, Action: 0, Dist: &d}}
	r.LoadTrace(ep)
	require.True(t, m.IsVisited(ep[0].SA()))
	r.Train()
	require.Equal(t, 1, tr.learned)
}
