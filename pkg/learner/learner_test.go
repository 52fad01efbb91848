// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package learner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/reward"
	"github.com/symflow/mazerunner/pkg/rlmodel"
)

func dptr(v int64) *int64 { return &v }

// TestMaxQLearnEndToStart covers testable property 3: training an
// episode moves Q(sa_0) toward the propagated terminal reward, and the
// last step's Q is updated using the terminal formula directly.
func TestMaxQLearnEndToStart(t *testing.T) {
	m := rlmodel.New(rlmodel.KindDistance)
	ep := agent.Episode{
		{PC: 1, Action: 0, Dist: dptr(5)},
		{PC: 2, Action: 0, Dist: dptr(0)},
	}
	rs := reward.Distance{}.Rewards(ep)

	MaxQ{}.Learn(m, ep, rs, 0.5, 0.9)

	lastSA := ep[1].SA()
	require.InDelta(t, rs[1]*0.5, m.QLookup(lastSA), 1e-9)

	firstSA := ep[0].SA()
	require.NotEqual(t, 0.0, m.QLookup(firstSA))
}

func TestAvgQLearnTerminalMatchesMaxQ(t *testing.T) {
	m1 := rlmodel.New(rlmodel.KindDistance)
	m2 := rlmodel.New(rlmodel.KindDistance)
	ep := agent.Episode{{PC: 1, Action: 1, Dist: dptr(0)}}
	rs := reward.Distance{}.Rewards(ep)

	MaxQ{}.Learn(m1, ep, rs, 0.5, 0.9)
	AvgQ{}.Learn(m2, ep, rs, 0.5, 0.9)

	sa := ep[0].SA()
	require.Equal(t, m1.QLookup(sa), m2.QLookup(sa))
}

// TestPunishLowersQ covers testable property 8: punishing a target sa
// strictly lowers its Q-value.
func TestPunishLowersQ(t *testing.T) {
	m := rlmodel.New(rlmodel.KindDistance)
	sa := agent.SA{PC: 1, Action: 1}
	m.QUpdate(sa, 100)

	MaxQ{}.Punish(m, sa, 10, 1.0)
	require.Equal(t, 90.0, m.QLookup(sa))

	m.QUpdate(sa, 100)
	AvgQ{}.Punish(m, sa, 0, 1.0)
	require.Equal(t, 50.0, m.QLookup(sa))
}

func TestUnreachableFallsBackToFiniteReward(t *testing.T) {
	m := rlmodel.New(rlmodel.KindDistance)
	sa := agent.SA{PC: 1, Action: 0}
	m.AddUnreachableSA(sa)
	ep := agent.Episode{{PC: 1, Action: 0, Dist: dptr(3)}}
	rs := []float64{42, 7}

	MaxQ{}.Learn(m, ep, rs, 0.5, 0.9)
	require.Equal(t, 42.0, m.QLookup(sa))
}
