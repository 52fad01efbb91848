// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package reward turns an episode into a per-step and terminal reward
// sequence, pure functions over pkg/agent.Episode with no side effects,
// mirroring syzkaller's separation of reward shaping from learning.
package reward

import (
	"math"

	"github.com/symflow/mazerunner/pkg/agent"
)

// MaxDistance is the terminal reward magnitude and the "unknown/
// unreachable" distance sentinel and the GLOSSARY.
const MaxDistance = 1 << 20

// Calculator turns an episode into per-step rewards plus a terminal
// reward. Implemented by Distance and Reachability.
type Calculator interface {
	// Rewards returns len(ep) per-step rewards followed by the terminal
	// reward, in episode order (index n holds the terminal reward).
	Rewards(ep agent.Episode) []float64
}

// Distance is the distance-model reward calculator.
type Distance struct{}

// Reachability is the reachability-model reward calculator, with
// rewards confined to {0, 1}.
type Reachability struct{}

func minDistance(ep agent.Episode) int64 {
	min := int64(MaxDistance)
	for _, s := range ep {
		if s.Dist != nil && *s.Dist < min {
			min = *s.Dist
		}
	}
	return min
}

// isLocalMinimum reports whether index i is a local minimum of the
// distance sequence, treating out-of-range neighbors as +infinity, per
// the design.
func isLocalMinimum(ep agent.Episode, i int) bool {
	d := dist(ep, i)
	left := math.Inf(1)
	if i > 0 {
		left = dist(ep, i-1)
	}
	right := math.Inf(1)
	if i < len(ep)-1 {
		right = dist(ep, i+1)
	}
	return left >= d && d <= right
}

func dist(ep agent.Episode, i int) float64 {
	if ep[i].Dist == nil {
		return math.Inf(1)
	}
	return float64(*ep[i].Dist)
}

// Rewards implements Calculator for the distance model.
func (Distance) Rewards(ep agent.Episode) []float64 {
	out := make([]float64, len(ep)+1)
	minD := minDistance(ep)

	for i, s := range ep {
		switch {
		case s.Dist != nil && *s.Dist == 0:
			out[i] = MaxDistance
		case isLocalMinimum(ep, i):
			d := dist(ep, i)
			if d <= 0 || math.IsInf(d, 1) {
				out[i] = 0
				continue
			}
			out[i] = (1000 / d) * (1000 / d) * MaxDistance
		default:
			out[i] = 0
		}
	}

	switch {
	case minD == 0:
		out[len(ep)] = MaxDistance
	case minD > 0:
		out[len(ep)] = -MaxDistance
	default:
		out[len(ep)] = 0
	}
	return out
}

// Rewards implements Calculator for the reachability model.
func (Reachability) Rewards(ep agent.Episode) []float64 {
	out := make([]float64, len(ep)+1)
	for i, s := range ep {
		if s.Dist != nil && *s.Dist == 0 {
			out[i] = 1
		}
	}
	if minDistance(ep) == 0 {
		out[len(ep)] = 1
	}
	return out
}
