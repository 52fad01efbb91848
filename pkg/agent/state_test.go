// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package agent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestBucketMonotonicity covers testable property 1: for any sequence of
// visits to the same (pc, callstack), the bucket index is non-decreasing
// until it clamps at the maximum, after which it is constant.
func TestBucketMonotonicity(t *testing.T) {
	tr := NewTracker(1000)
	prev := -1
	clamped := false
	for i := 1; i <= 1<<19; i++ {
		d := int64(5)
		tr.Update(0x1000, 0x2000, 1, &d, 0, 0)
		b := tr.Snapshot().Bucket
		require.GreaterOrEqual(t, b, prev)
		if b == MaxBucketSize-1 {
			if clamped {
				require.Equal(t, prev, b)
			}
			clamped = true
		}
		prev = b
	}
	require.True(t, clamped)
}

// TestEpisodeDedup covers testable property 2: no two consecutive entries
// in an episode share the same sa.
func TestEpisodeDedup(t *testing.T) {
	var ep Episode
	d := int64(3)
	s := ProgramState{PC: 1, Callstack: 2, Bucket: 0, Action: 0, Dist: &d}
	require.True(t, ep.TryAppend(s))
	require.False(t, ep.TryAppend(s)) // exact dup, same sa
	s2 := s
	s2.Action = 1
	require.True(t, ep.TryAppend(s2)) // different sa
	require.Len(t, ep, 2)

	// A state exceeding the max bucket is never appended.
	s3 := ProgramState{PC: 9, Callstack: 9, Bucket: MaxBucketSize, Dist: &d}
	require.False(t, ep.TryAppend(s3))

	// A state with no reported distance is never appended.
	s4 := ProgramState{PC: 9, Callstack: 9, Bucket: 0, Dist: nil}
	require.False(t, ep.TryAppend(s4))
}

func TestReversedSA(t *testing.T) {
	sa := SA{PC: 1, Callstack: 2, Bucket: 3, Action: 0}
	require.Equal(t, 1, sa.Reversed().Action)
	require.Equal(t, 0, sa.Reversed().Reversed().Action)
}
