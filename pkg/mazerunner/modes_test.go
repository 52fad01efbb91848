// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/config"
	"github.com/symflow/mazerunner/pkg/executor"
	"github.com/symflow/mazerunner/pkg/solver"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.Defaults()
	cfg.MazerunnerDir = t.TempDir()
	cfg.Cmd = []string{"target", "@@"}
	return cfg
}

func TestNewExploreSessionWiresAgentAndRunner(t *testing.T) {
	cfg := testConfig(t)
	sess := NewExploreSession(cfg, executor.Target{Cmd: cfg.Cmd}, solver.NopSolver{}, AlwaysNovel{})
	require.NotNil(t, sess.Model)
	require.NotNil(t, sess.Runner)
	_, ok := sess.Agent.(*agent.Explore)
	require.True(t, ok)
}

func TestNewExploitSessionWiresAgentAndRunner(t *testing.T) {
	cfg := testConfig(t)
	sess := NewExploitSession(cfg, executor.Target{Cmd: cfg.Cmd}, solver.NopSolver{}, AlwaysNovel{})
	_, ok := sess.Agent.(*agent.Exploit)
	require.True(t, ok)
}

func TestHybridSessionStepExploresWithoutActiveTarget(t *testing.T) {
	cfg := testConfig(t)
	h := NewHybridSession(cfg, executor.Target{Cmd: cfg.Cmd}, solver.NopSolver{}, AlwaysNovel{})
	require.Same(t, h.Explore, h.Step(), "no active exploit target yet, should explore")
}

func TestHybridSessionSharesOneModel(t *testing.T) {
	cfg := testConfig(t)
	h := NewHybridSession(cfg, executor.Target{Cmd: cfg.Cmd}, solver.NopSolver{}, AlwaysNovel{})
	require.Same(t, h.Model, h.Explore.Model)
	require.Same(t, h.Model, h.Exploit.Model)
}
