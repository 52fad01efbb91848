// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Command mazerunner drives the directed greybox concolic fuzzer: pick
// a mode (explore, exploit, hybrid, qsym, record, replay) and point it
// at an instrumented target binary.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/symflow/mazerunner/pkg/config"
	"github.com/symflow/mazerunner/pkg/executor"
	"github.com/symflow/mazerunner/pkg/log"
	"github.com/symflow/mazerunner/pkg/mazerunner"
	"github.com/symflow/mazerunner/pkg/solver"
)

var overrides config.CLIOverrides
var configPath string
var modelKind = modelKindFlag{value: "reachability"}

// modelKindFlag is a pflag.Value restricting --model-type to the two
// rlmodel.Kind names, rather than accepting an arbitrary string.
type modelKindFlag struct{ value string }

func (f *modelKindFlag) String() string { return f.value }
func (f *modelKindFlag) Type() string   { return "distance|reachability" }
func (f *modelKindFlag) Set(s string) error {
	switch s {
	case "distance", "reachability":
		f.value = s
		return nil
	default:
		return fmt.Errorf("model-type must be distance or reachability, got %q", s)
	}
}

var _ pflag.Value = (*modelKindFlag)(nil)

func main() {
	root := &cobra.Command{
		Use:   "mazerunner",
		Short: "Directed greybox concolic fuzzer steered by Q-learning",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "JSON config file overriding defaults")
	root.PersistentFlags().StringVar(&overrides.OutputDir, "output-dir", "", "shared output directory")
	root.PersistentFlags().StringVar(&overrides.AflDir, "afl-dir", "", "external fuzzer instance name under output-dir")
	root.PersistentFlags().StringVar(&overrides.MazerunnerDir, "mazerunner-dir", "mazerunner", "this run's working directory, relative to output-dir")
	root.PersistentFlags().StringVar(&overrides.Input, "input", "", "initial seed directory")
	root.PersistentFlags().StringVar(&overrides.Mail, "mail", "", "address to mail crash/error reports to")
	root.PersistentFlags().StringVar(&overrides.StaticResultFolder, "static-result-folder", "", "precomputed static-distance result directory")
	root.PersistentFlags().BoolVar(&overrides.Debug, "debug", false, "enable debug-level logging")
	root.PersistentFlags().Var(&modelKind, "model-type", "Q-model kind: distance or reachability")

	root.AddCommand(
		newModeCommand("explore", "curiosity-driven branch exploration"),
		newModeCommand("exploit", "single-target directed solving"),
		newModeCommand("hybrid", "alternates explore and exploit over a shared model"),
		newModeCommand("qsym", "baseline concolic replay of the external fuzzer's seeds"),
		newModeCommand("record", "trace branch decisions to episodes without solving"),
		newModeCommand("replay", "offline Q-learning training over recorded traces"),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newModeCommand(name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " -- cmd [args...]",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides.AgentType = name
			overrides.Cmd = args
			return run(cmd.Context(), name)
		},
	}
}

func run(ctx context.Context, mode string) error {
	cfg := config.Defaults()
	if err := cfg.LoadFile(configPath); err != nil {
		return err
	}
	overrides.ModelType = modelKind.String()
	if err := cfg.ApplyCLI(overrides); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	log.Init(1, cfg.Debug)
	defer log.Sync()

	dirs := mazerunner.Dirs{
		MazerunnerDir: cfg.MazerunnerDir,
		InitialSeeds:  cfg.InitialSeedDir,
		OutputDir:     cfg.OutputDir,
		AflName:       cfg.AflDir,
	}
	if err := dirs.EnsureDirs(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := executor.Target{Cmd: cfg.Cmd}
	ad := &solver.FileSolver{Dir: dirs.GeneratedDir()}
	filter := mazerunner.AlwaysNovel{}

	log.Logf(0, "mazerunner: starting mode=%s cmd=%v", mode, cfg.Cmd)

	if mode == "hybrid" {
		h := mazerunner.NewHybridSession(cfg, target, ad, filter)
		return driveHybrid(ctx, h, cfg.SaveFrequency)
	}

	sess, err := newSession(mode, cfg, target, ad, filter)
	if err != nil {
		return err
	}
	return sess.Runner.Drive(ctx, sess.Model, cfg.SaveFrequency)
}

func newSession(mode string, cfg *config.Config, target executor.Target, ad solver.Adapter, filter mazerunner.NoveltyFilter) (*mazerunner.Session, error) {
	switch mode {
	case "explore":
		return mazerunner.NewExploreSession(cfg, target, ad, filter), nil
	case "exploit":
		return mazerunner.NewExploitSession(cfg, target, ad, filter), nil
	case "qsym":
		return mazerunner.NewQSymSession(cfg, target, ad, filter), nil
	case "record":
		return mazerunner.NewRecordSession(cfg, target, ad, filter), nil
	case "replay":
		return mazerunner.NewReplaySession(cfg, target, filter), nil
	default:
		return nil, fmt.Errorf("mazerunner: unknown mode %q", mode)
	}
}

// driveHybrid alternates explore/exploit steps one seed at a time: each
// iteration asks the HybridSession which agent should run next, rather
// than running either to completion.
func driveHybrid(ctx context.Context, h *mazerunner.HybridSession, saveEvery int) error {
	for {
		select {
		case <-ctx.Done():
			return h.Model.Save(h.Explore.Runner.Dirs.MazerunnerDir)
		default:
		}

		sess := h.Step()
		if err := sess.Runner.Step(ctx); err != nil {
			return err
		}

		if n := h.State.Index; saveEvery > 0 && n > 0 && n%saveEvery == 0 {
			if err := h.Model.Save(h.Explore.Runner.Dirs.MazerunnerDir); err != nil {
				return err
			}
		}
	}
}
