// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package learner trains pkg/rlmodel's Q table from a reward sequence,
// iterating an episode end-to-start so every update sees its
// already-updated successor.
package learner

import (
	"math"

	"github.com/symflow/mazerunner/pkg/agent"
)

// terminal is the sentinel sa meaning "episode end", Python's (0,0,0).
var terminal = agent.SA{}

// Learner updates an agent.ModelView from an episode's reward sequence.
type Learner interface {
	// Learn trains on one full episode. rewards must have len(ep)+1
	// entries (one per step plus the terminal reward), as produced by
	// pkg/reward.Calculator.
	Learn(m agent.ModelView, ep agent.Episode, rewards []float64, alpha, gamma float64)
	// Punish forces a learn-step toward sa as if it were terminal, with
	// a reward derived from sa's current Q-value, used when a nested
	// condition is proven unsat.
	Punish(m agent.ModelView, sa agent.SA, penalty, alpha float64)
}

// MaxQ implements the max-Q learner.
type MaxQ struct{}

// AvgQ implements the avg-Q learner.
type AvgQ struct{}

func nextOf(ep agent.Episode, i int) agent.SA {
	if i+1 >= len(ep) {
		return terminal
	}
	return ep[i+1].SA()
}

// Learn implements Learner for the max-Q variant.
func (MaxQ) Learn(m agent.ModelView, ep agent.Episode, rewards []float64, alpha, gamma float64) {
	for i := len(ep) - 1; i >= 0; i-- {
		sa := ep[i].SA()
		r := rewards[i]
		q := m.QLookup(sa)
		next := nextOf(ep, i)

		var qPrime float64
		var fallback float64
		if next == terminal {
			qPrime = q + alpha*(r-q)
			fallback = r
		} else {
			mv := maxQ(m, next)
			qPrime = q + alpha*(r+gamma*mv-q)
			fallback = r + gamma*mv
		}

		if math.IsNaN(qPrime) || m.IsUnreachable(sa) {
			if !math.IsNaN(fallback) && !math.IsInf(fallback, 0) {
				m.QUpdate(sa, fallback)
			}
			continue
		}
		m.QUpdate(sa, qPrime)
	}
}

// Punish implements Learner for the max-Q variant: drives sa toward
// Q(sa) - penalty as if the episode terminated there.
func (MaxQ) Punish(m agent.ModelView, sa agent.SA, penalty, alpha float64) {
	q := m.QLookup(sa)
	r := q - penalty
	m.QUpdate(sa, q+alpha*(r-q))
}

func maxQ(m agent.ModelView, sa agent.SA) float64 {
	zero, one := sa, sa
	zero.Action, one.Action = 0, 1
	return math.Max(m.QLookup(zero), m.QLookup(one))
}

func avgQ(m agent.ModelView, sa agent.SA) float64 {
	zero, one := sa, sa
	zero.Action, one.Action = 0, 1
	return (m.QLookup(zero) + m.QLookup(one)) / 2
}

// Learn implements Learner for the avg-Q variant.
func (AvgQ) Learn(m agent.ModelView, ep agent.Episode, rewards []float64, alpha, gamma float64) {
	for i := len(ep) - 1; i >= 0; i-- {
		sa := ep[i].SA()
		r := rewards[i]
		q := m.QLookup(sa)
		next := nextOf(ep, i)

		var qPrime float64
		var fallback float64
		if next == terminal {
			qPrime = q + alpha*(r-q)
			fallback = r
		} else {
			avg := avgQ(m, next)
			qPrime = q + alpha*(gamma*avg-q)
			fallback = avg
		}

		if math.IsNaN(qPrime) || m.IsUnreachable(sa) {
			if !math.IsNaN(fallback) && !math.IsInf(fallback, 0) {
				m.QUpdate(sa, fallback)
			}
			continue
		}
		m.QUpdate(sa, qPrime)
	}
}

// Punish implements Learner for the avg-Q variant: drives sa toward
// Q(sa)/2 as if the episode terminated there. penalty is accepted for
// interface symmetry with MaxQ but unused ("Q/2" has
// no penalty parameter in the avg variant).
func (AvgQ) Punish(m agent.ModelView, sa agent.SA, penalty, alpha float64) {
	q := m.QLookup(sa)
	r := q / 2
	m.QUpdate(sa, q+alpha*(r-q))
}
