// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
)

// TestLeafUnfold covers a leaf plan: the step repeated Repeats times.
func TestLeafUnfold(t *testing.T) {
	p := Leaf(Step{Mode: "explore", Rounds: 3}, 4)
	got := p.Unfold()
	require.Len(t, got, 4)
	for _, s := range got {
		require.Equal(t, Step{Mode: "explore", Rounds: 3}, s)
	}
}

// TestSequenceUnfoldLength covers testable property 7's length law:
// unfolding yields a sequence whose length is repeats times the sum of
// the children's unfold lengths.
func TestSequenceUnfoldLength(t *testing.T) {
	explore := Leaf(Step{Mode: "explore", Rounds: 1}, 2)
	exploit := Leaf(Step{Mode: "exploit", Rounds: 1}, 3)
	seq := Sequence([]*Plan{explore, exploit}, 5)

	got := seq.Unfold()
	wantLen := seq.Repeats() * (len(explore.Unfold()) + len(exploit.Unfold()))
	require.Len(t, got, wantLen)
	require.Equal(t, wantLen, 25)
}

// TestNestedSequenceUnfold exercises a sequence-of-sequences, matching
// plan.py's recursive unfold over nested child Plans.
func TestNestedSequenceUnfold(t *testing.T) {
	inner := Sequence([]*Plan{
		Leaf(Step{Mode: "explore", Rounds: 1}, 1),
		Leaf(Step{Mode: "exploit", Rounds: 1}, 1),
	}, 2)
	outer := Sequence([]*Plan{inner}, 3)

	got := outer.Unfold()
	require.Len(t, got, 3*2*2)
}

// TestPlanSerializeRoundTrip covers testable property 7: deserializing
// a serialized plan reproduces an equal plan, for both leaf and nested
// sequence shapes.
func TestPlanSerializeRoundTrip(t *testing.T) {
	cases := []*Plan{
		Leaf(Step{Mode: "explore", Rounds: 7}, 1),
		Sequence([]*Plan{
			Leaf(Step{Mode: "explore", Rounds: 2}, 3),
			Leaf(Step{Mode: "exploit", Rounds: 1}, 1),
		}, 4),
		Sequence([]*Plan{
			Sequence([]*Plan{
				Leaf(Step{Mode: "record", Rounds: 1}, 2),
			}, 2),
			Leaf(Step{Mode: "replay", Rounds: 5}, 1),
		}, 1),
	}

	for _, p := range cases {
		s := p.Serialize()
		got, err := Deserialize(s)
		require.NoError(t, err)
		require.True(t, p.Equal(got), "round-trip mismatch for %q", s)

		// go-cmp over the unfolded step sequence as an independent,
		// field-level cross-check of Equal's structural comparison.
		if diff := cmp.Diff(p.Unfold(), got.Unfold(), cmpopts.EquateComparable(Step{})); diff != "" {
			t.Errorf("unfold mismatch after round-trip (-want +got):\n%s", diff)
		}
	}
}

// TestDeserializeRejectsTrailingData covers the parser's EOF check.
func TestDeserializeRejectsTrailingData(t *testing.T) {
	p := Leaf(Step{Mode: "explore", Rounds: 1}, 1)
	_, err := Deserialize(p.Serialize() + "garbage")
	require.Error(t, err)
}
