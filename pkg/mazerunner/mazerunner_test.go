// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestSeedQueuePopsMinPriority covers testable property 7: the seed
// queue is a strict min-priority ordering.
func TestSeedQueuePopsMinPriority(t *testing.T) {
	q := newSeedQueue()
	require.NoError(t, q.Push("c", 5))
	require.NoError(t, q.Push("a", 1))
	require.NoError(t, q.Push("b", 3))

	require.Equal(t, "a", q.Pop())
	require.Equal(t, "b", q.Pop())
	require.Equal(t, "c", q.Pop())
	require.Equal(t, 0, q.Len())
}

func TestSeedQueueRejectsInvalid(t *testing.T) {
	q := newSeedQueue()
	require.Error(t, q.Push("", 1))
	require.Error(t, q.Push("a", -1))
}

func TestStateBestSeedAndAck(t *testing.T) {
	s := NewState(60 * time.Second)
	require.False(t, s.DiscoveredCloserSeed())
	s.UpdateBestSeed("id-1", 3)
	name, dist := s.BestSeed()
	require.Equal(t, "id-1", name)
	require.Equal(t, int64(3), dist)
	require.True(t, s.DiscoveredCloserSeed())
	s.AckDiscoveredCloserSeed()
	require.False(t, s.DiscoveredCloserSeed())
}

func TestStateClearRemovesHungFromProcessed(t *testing.T) {
	s := NewState(time.Second)
	s.Processed["a"] = true
	s.Processed["b"] = true
	s.Hang["a"] = true
	s.Clear()
	require.False(t, s.Processed["a"])
	require.True(t, s.Processed["b"])
}

func TestStateIncreaseTimeoutCaps(t *testing.T) {
	s := NewState(10 * time.Second)
	s.IncreaseTimeout(15 * time.Second)
	require.Equal(t, 15*time.Second, s.Timeout)
	s.IncreaseTimeout(15 * time.Second)
	require.Equal(t, 15*time.Second, s.Timeout) // already at/above cap, unchanged
}

func TestStateTickIncrements(t *testing.T) {
	s := NewState(time.Second)
	require.Equal(t, 0, s.Tick())
	require.Equal(t, 1, s.Tick())
	require.Equal(t, 2, s.Index)
}

func TestClassifyHangAndError(t *testing.T) {
	require.Equal(t, OutcomeHang, Classify(124))
	require.Equal(t, OutcomeHang, Classify(-9))
	require.Equal(t, OutcomeError, Classify(128+11))
	require.Equal(t, OutcomeError, Classify(-11))
	require.Equal(t, OutcomeError, Classify(128+6))
	require.Equal(t, OutcomeNone, Classify(0))
}
