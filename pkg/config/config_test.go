// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/symflow/mazerunner/pkg/rlmodel"
)

func TestDefaultsMatchOriginalConstants(t *testing.T) {
	c := Defaults()
	require.Equal(t, DefaultRandomInput, c.RandomInput)
	require.Equal(t, rlmodel.KindReachability, c.ModelType)
	require.True(t, c.NestedBranchEnabled)
	require.False(t, c.GEPSolverEnabled)
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mazerunner.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"learning_rate": 0.1, "model_type": "distance"}`), 0o644))

	c := Defaults()
	require.NoError(t, c.LoadFile(path))
	require.Equal(t, 0.1, c.LearningRate)
	require.Equal(t, rlmodel.KindDistance, c.ModelType)
	require.Equal(t, DefaultExploreRate, c.ExploreRate) // untouched field survives
}

func TestLoadFileMissingPathIsNoOp(t *testing.T) {
	c := Defaults()
	require.NoError(t, c.LoadFile(""))
}

func TestApplyCLIOverridesMazerunnerDirJoinsOutputDir(t *testing.T) {
	c := Defaults()
	c.OutputDir = "/out"
	require.NoError(t, c.ApplyCLI(CLIOverrides{MazerunnerDir: "mr"}))
	require.Equal(t, filepath.Join("/out", "mr"), c.MazerunnerDir)
}

func TestValidateRequiresCmd(t *testing.T) {
	c := Defaults()
	c.OutputDir = t.TempDir()
	require.Error(t, c.Validate())
	c.Cmd = []string{"target", "@@"}
	require.NoError(t, c.Validate())
}

func TestValidateRequiresAflDirForQsym(t *testing.T) {
	c := Defaults()
	c.OutputDir = t.TempDir()
	c.Cmd = []string{"target"}
	c.AgentType = "qsym"
	require.Error(t, c.Validate())
	c.AflDir = t.TempDir()
	require.NoError(t, c.Validate())
}

func TestDistanceFileSelectsMaxOfLastField(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "distance.cfg.txt"), []byte("a,1\nb,42\n"), 0o644))

	c := Defaults()
	require.NoError(t, c.ApplyCLI(CLIOverrides{StaticResultFolder: dir}))
	require.Equal(t, int64(42), c.MaxDistance)
}
