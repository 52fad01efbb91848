// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import (
	"time"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/config"
	"github.com/symflow/mazerunner/pkg/executor"
	"github.com/symflow/mazerunner/pkg/learner"
	"github.com/symflow/mazerunner/pkg/notify"
	"github.com/symflow/mazerunner/pkg/reward"
	"github.com/symflow/mazerunner/pkg/rlmodel"
	"github.com/symflow/mazerunner/pkg/solver"
)

// Session bundles everything the six top-level modes share: the
// persistent model, the working Runner, and the concrete agent driving
// it. Each NewXxxSession below wires the same components together
// differently, mirroring mazerunner.py's explore()/exploit()/hybrid()/
// qsym()/record()/replay() entry points.
type Session struct {
	Model  *rlmodel.Model
	Runner *Runner
	Agent  agent.Variant
}

func newModel(cfg *config.Config) *rlmodel.Model {
	return rlmodel.New(cfg.ModelType)
}

func newTrainer(cfg *config.Config) learner.Learner {
	if cfg.AgentType == "avg_q" {
		return learner.AvgQ{}
	}
	return learner.MaxQ{}
}

func newRewardCalc(cfg *config.Config) agent.RewardCalculator {
	if cfg.ModelType == rlmodel.KindReachability {
		return reward.Reachability{}
	}
	return reward.Distance{}
}

func newDirs(cfg *config.Config) Dirs {
	return Dirs{
		MazerunnerDir: cfg.MazerunnerDir,
		InitialSeeds:  cfg.InitialSeedDir,
		OutputDir:     cfg.OutputDir,
		AflName:       cfg.AflDir,
	}
}

func newMailer(cfg *config.Config) *notify.Mailer {
	if cfg.Mail == "" {
		return nil
	}
	return notify.New("localhost", 25, "", "", "mazerunner@localhost", cfg.Mail, cfg.MaxCrashReports)
}

func newBaseRunner(cfg *config.Config, target executor.Target, ad solver.Adapter, vari agent.Variant, filter NoveltyFilter) *Runner {
	exec := executor.New(target, ad, vari)
	return &Runner{
		Dirs:            newDirs(cfg),
		State:           NewState(time.Duration(cfg.Timeout) * time.Second),
		Exec:            exec,
		Agent:           vari,
		Filter:          filter,
		Mailer:          newMailer(cfg),
		MaxErrorReports: cfg.MaxErrorReports,
		MinHangFiles:    cfg.MinHangFiles,
		MaxTimeout:      time.Duration(cfg.MaxTimeout) * time.Second,
	}
}

// NewExploreSession builds the explore mode: curiosity-driven flip
// selection with a fresh reversed-sa target on every new branch, per
// the design.
func NewExploreSession(cfg *config.Config, target executor.Target, ad solver.Adapter, filter NoveltyFilter) *Session {
	m := newModel(cfg)
	a := agent.NewExplore(m, newTrainer(cfg), newRewardCalc(cfg), cfg.LearningRate, cfg.DiscountFactor, cfg.MaxDistance)
	return &Session{Model: m, Agent: a, Runner: newBaseRunner(cfg, target, ad, a, filter)}
}

// NewExploitSession builds the exploit mode: single in-flight target
// with epsilon-greedy policy and convergence detection.
func NewExploitSession(cfg *config.Config, target executor.Target, ad solver.Adapter, filter NoveltyFilter) *Session {
	m := newModel(cfg)
	a := agent.NewExploit(m, newTrainer(cfg), newRewardCalc(cfg), cfg.LearningRate, cfg.DiscountFactor,
		cfg.MaxDistance, cfg.ExploreRate, defaultConvergeAfter)
	return &Session{Model: m, Agent: a, Runner: newBaseRunner(cfg, target, ad, a, filter)}
}

// defaultConvergeAfter is CONVERGING_THRESHOLD: has_converged fires once
// noProgress strictly exceeds this many consecutive no-progress rounds
// (Exploit.StepRound's "> convergeAfter", not ">="), so convergence
// actually takes convergeAfter+1 stalled rounds.
const defaultConvergeAfter = 10

// NewRecordSession builds the record mode: trace every branch decision
// to an episode, no targeting.
func NewRecordSession(cfg *config.Config, target executor.Target, ad solver.Adapter, filter NoveltyFilter) *Session {
	m := newModel(cfg)
	a := agent.NewRecord(m, newTrainer(cfg), newRewardCalc(cfg), cfg.LearningRate, cfg.DiscountFactor, cfg.MaxDistance)
	return &Session{Model: m, Agent: a, Runner: newBaseRunner(cfg, target, ad, a, filter)}
}

// NewReplaySession builds the replay mode: offline training over
// traces already recorded, driving the same concolic executor against
// a NopSolver since no new branches are resolved.
func NewReplaySession(cfg *config.Config, target executor.Target, filter NoveltyFilter) *Session {
	m := newModel(cfg)
	a := agent.NewReplay(m, newTrainer(cfg), newRewardCalc(cfg), cfg.LearningRate, cfg.DiscountFactor, cfg.MaxDistance)
	return &Session{Model: m, Agent: a, Runner: newBaseRunner(cfg, target, solver.NopSolver{}, a, filter)}
}

// NewQSymSession builds the qsym baseline mode: runs the instrumented
// target over every externally-synced AFL seed with the solver enabled
// but no RL-driven targeting, mirroring qsym.py's plain replay loop.
func NewQSymSession(cfg *config.Config, target executor.Target, ad solver.Adapter, filter NoveltyFilter) *Session {
	m := newModel(cfg)
	a := agent.NewRecord(m, newTrainer(cfg), newRewardCalc(cfg), cfg.LearningRate, cfg.DiscountFactor, cfg.MaxDistance)
	return &Session{Model: m, Agent: a, Runner: newBaseRunner(cfg, target, ad, a, filter)}
}

// HybridSession drives Explore and Exploit over one shared model and
// State, alternating between them: exploit while the exploit agent has a
// target in flight, explore otherwise. Exploit convergence and the
// closer-seed flag are not consulted.
type HybridSession struct {
	Model   *rlmodel.Model
	State   *State
	Explore *Session
	Exploit *Session
}

// NewHybridSession builds both agents against one shared model and
// shares the Runner's State across them so convergence and best-seed
// bookkeeping line up.
func NewHybridSession(cfg *config.Config, target executor.Target, ad solver.Adapter, filter NoveltyFilter) *HybridSession {
	m := newModel(cfg)
	trainer := newTrainer(cfg)
	rc := newRewardCalc(cfg)

	explore := agent.NewExplore(m, trainer, rc, cfg.LearningRate, cfg.DiscountFactor, cfg.MaxDistance)
	exploit := agent.NewExploit(m, trainer, rc, cfg.LearningRate, cfg.DiscountFactor,
		cfg.MaxDistance, cfg.ExploreRate, defaultConvergeAfter)

	state := NewState(time.Duration(cfg.Timeout) * time.Second)
	dirs := newDirs(cfg)
	mailer := newMailer(cfg)

	mkRunner := func(vari agent.Variant) *Runner {
		return &Runner{
			Dirs:            dirs,
			State:           state,
			Exec:            executor.New(target, ad, vari),
			Agent:           vari,
			Filter:          filter,
			Mailer:          mailer,
			MaxErrorReports: cfg.MaxErrorReports,
			MinHangFiles:    cfg.MinHangFiles,
			MaxTimeout:      time.Duration(cfg.MaxTimeout) * time.Second,
		}
	}

	return &HybridSession{
		Model:   m,
		State:   state,
		Explore: &Session{Model: m, Agent: explore, Runner: mkRunner(explore)},
		Exploit: &Session{Model: m, Agent: exploit, Runner: mkRunner(exploit)},
	}
}

// Step picks one of the two runners for the next iteration: exploit
// while it still has an active target, explore otherwise. It does not
// check whether the exploit agent has converged or whether
// State.DiscoveredCloserSeed is set.
func (h *HybridSession) Step() *Session {
	exploit := h.Exploit.Agent.(*agent.Exploit)
	if exploit.HasTarget() {
		return h.Exploit
	}
	return h.Explore
}
