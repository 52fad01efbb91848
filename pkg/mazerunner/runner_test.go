// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestKeepSeedNovelOrCloser(t *testing.T) {
	keep, err := KeepSeed(AlwaysNovel{}, "x", 5, 10)
	require.NoError(t, err)
	require.True(t, keep)

	keep, err = KeepSeed(rejectAll{}, "x", 5, 10)
	require.NoError(t, err)
	require.True(t, keep, "strictly closer distance should still be kept even without novelty")

	keep, err = KeepSeed(rejectAll{}, "x", 10, 5)
	require.NoError(t, err)
	require.False(t, keep)
}

type rejectAll struct{}

func (rejectAll) HasNewCoverage(string) (bool, error) { return false, nil }

func TestRunnerSyncFromInitialSeeds(t *testing.T) {
	root := t.TempDir()
	seeds := filepath.Join(root, "seeds")
	maze := filepath.Join(root, "maze")
	require.NoError(t, os.MkdirAll(seeds, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(seeds, "a"), []byte("AAAA"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(seeds, "b"), []byte("BBBB"), 0o644))

	dirs := Dirs{MazerunnerDir: maze, InitialSeeds: seeds}
	require.NoError(t, dirs.EnsureDirs())

	r := &Runner{Dirs: dirs, State: NewState(time.Second)}
	names, err := r.SyncFromInitialSeeds()
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, names)

	data, err := os.ReadFile(filepath.Join(dirs.generated(), "a"))
	require.NoError(t, err)
	require.Equal(t, "AAAA", string(data))

	// A second sync should find nothing new.
	names, err = r.SyncFromInitialSeeds()
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestRunnerSyncFromEitherFallsBackToInitialSeeds(t *testing.T) {
	root := t.TempDir()
	seeds := filepath.Join(root, "seeds")
	maze := filepath.Join(root, "maze")
	require.NoError(t, os.MkdirAll(seeds, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seeds, "a"), []byte("AAAA"), 0o644))

	dirs := Dirs{MazerunnerDir: maze, InitialSeeds: seeds} // AflName left unset
	require.NoError(t, dirs.EnsureDirs())

	r := &Runner{Dirs: dirs, State: NewState(time.Second)}
	names, err := r.SyncFromEither()
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, names)
}

func TestRunnerHandleEmptyQueueGrowsTimeoutPastHangThreshold(t *testing.T) {
	s := NewState(10 * time.Second)
	for _, fn := range []string{"a", "b", "c"} {
		s.Hang[fn] = true
	}
	r := &Runner{State: s, MinHangFiles: 2, MaxTimeout: time.Minute}

	var slept time.Duration
	r.HandleEmptyQueue(func(d time.Duration) { slept = d })

	require.Equal(t, 20*time.Second, s.Timeout)
	require.Equal(t, 60*time.Second, slept)
}

func TestRunnerHandleEmptyQueueWaitsBelowHangThreshold(t *testing.T) {
	s := NewState(10 * time.Second)
	r := &Runner{State: s, MinHangFiles: 5, MaxTimeout: time.Minute}

	var slept time.Duration
	r.HandleEmptyQueue(func(d time.Duration) { slept = d })

	require.Equal(t, 10*time.Second, s.Timeout, "timeout should not grow below the hang threshold")
	require.Equal(t, 5*time.Second, slept)
}
