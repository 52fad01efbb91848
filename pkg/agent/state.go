// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package agent tracks per-execution program state, decides which
// branches are worth flipping, and trains the shared RL model on the
// resulting episode. See ProgramState, Episode and the Variant
// implementations (Explore/Exploit/Record/Replay).
package agent

import "math"

// MaxBucketSize clamps the logarithmic visit-count bucket: once a
// (pc, callstack) pair has looped enough times to hit this bucket, all
// further visits keep the same bucket (state inheritance).
const MaxBucketSize = 20

// bucketLookup maps a per-episode visit count to its logarithmic bucket.
// Non-decreasing in count and clamped at MaxBucketSize-1, mirroring the
// clamp-with-floor shape of pkg/learning/rank.go's Ranker.bucket (there
// sqrt-scaled, here log2-scaled to match the coarser "loop iteration"
// semantics this format calls for).
func bucketLookup(count int) int {
	if count <= 0 {
		return 0
	}
	b := int(math.Log2(float64(count))) + 1
	if b >= MaxBucketSize {
		return MaxBucketSize - 1
	}
	return b
}

// SA is the (state, action) key the RL model is indexed by: a plain
// comparable struct works directly as a Go map key, replacing the Python
// tuple key.
type SA struct {
	PC         uint64
	Callstack  uint64
	Bucket     int
	Action     int
}

// Reversed returns the sa with the action bit flipped -- "what if we had
// gone the other way here".
func (sa SA) Reversed() SA {
	r := sa
	if r.Action == 0 {
		r.Action = 1
	} else {
		r.Action = 0
	}
	return r
}

// ProgramState is one snapshot appended to an Episode: where execution is,
// the action just taken, and the distance to the target observed there.
// Dist == nil encodes "no distance reported" (Python's d=None).
type ProgramState struct {
	PC         uint64
	Callstack  uint64
	Bucket     int
	Action     int
	Dist       *int64
	InstanceID uint64
	BranchID   uint64
}

// SA derives the RL key for this snapshot.
func (s ProgramState) SA() SA {
	return SA{PC: s.PC, Callstack: s.Callstack, Bucket: s.Bucket, Action: s.Action}
}

type edge struct {
	from, to, callstack uint64
}

// Tracker is the live, mutable state-tracking object an agent updates on
// every branch event (Python's self.curr_state). It owns the per-episode
// edge visit counter that feeds bucketLookup.
type Tracker struct {
	edgeCounts map[edge]int
	lastPC     uint64
	snapshot   ProgramState
	maxDist    int64
}

// NewTracker creates a tracker whose initial distance is maxDistance,
// matching ProgramState(distance=self.max_distance) in the source.
func NewTracker(maxDistance int64) *Tracker {
	d := maxDistance
	return &Tracker{
		maxDist:  maxDistance,
		snapshot: ProgramState{Dist: &d},
	}
}

// Update advances the tracker to a newly observed branch: it bumps the
// per-episode edge counter for (lastPC -> pc, callstack), recomputes the
// bucket, and records the action/distance pair.
func (t *Tracker) Update(pc, callstack uint64, action int, distance *int64, instanceID, branchID uint64) {
	e := edge{from: t.lastPC, to: pc, callstack: callstack}
	if t.edgeCounts == nil {
		t.edgeCounts = map[edge]int{}
	}
	t.edgeCounts[e]++
	t.lastPC = pc
	t.snapshot = ProgramState{
		PC:         pc,
		Callstack:  callstack,
		Bucket:     bucketLookup(t.edgeCounts[e]),
		Action:     action,
		Dist:       distance,
		InstanceID: instanceID,
		BranchID:   branchID,
	}
}

// Snapshot returns the current ProgramState.
func (t *Tracker) Snapshot() ProgramState {
	return t.snapshot
}

// ReversedSA returns the reversed sa for the current state -- the branch
// direction not taken.
func (t *Tracker) ReversedSA() SA {
	return t.snapshot.SA().Reversed()
}

// Episode is the ordered, finite sequence of ProgramState snapshots
// captured during one concrete execution.
type Episode []ProgramState

// TryAppend appends s to the episode iff (i) its bucket is within
// MaxBucketSize, (ii) it has a reported distance, and (iii) its sa differs
// from the last appended entry's sa (consecutive-duplicate dedup), per
// the design. Returns whether it was appended.
func (e *Episode) TryAppend(s ProgramState) bool {
	if s.Bucket >= MaxBucketSize {
		return false
	}
	if s.Dist == nil {
		return false
	}
	if n := len(*e); n > 0 && (*e)[n-1].SA() == s.SA() {
		return false
	}
	*e = append(*e, s)
	return true
}
