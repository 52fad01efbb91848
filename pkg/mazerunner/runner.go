// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/executor"
	"github.com/symflow/mazerunner/pkg/log"
	"github.com/symflow/mazerunner/pkg/mazerunner/extqueue"
	"github.com/symflow/mazerunner/pkg/notify"
)

// Trainer is the subset of agent.Variant's embedding every concrete
// agent type exposes for post-execution training, letting Runner stay
// agnostic of which concrete agent it drives.
type Trainer interface {
	Train()
	Episode() agent.Episode
	Reset()
}

// Dirs is the set of working directories a Runner reads from and
// writes to, mirroring the Mazerunner class's path properties
// (my_queue, my_hangs, my_errors, my_generations, ...).
type Dirs struct {
	MazerunnerDir string
	InitialSeeds  string
	OutputDir     string // shared root the external fuzzer writes under
	AflName       string // empty when no external fuzzer is configured
}

func (d Dirs) curInput() string  { return filepath.Join(d.MazerunnerDir, ".cur_input") }
func (d Dirs) hangs() string     { return filepath.Join(d.MazerunnerDir, "hangs") }
func (d Dirs) errors() string    { return filepath.Join(d.MazerunnerDir, "errors") }
func (d Dirs) generated() string { return filepath.Join(d.MazerunnerDir, "generated_inputs") }
func (d Dirs) queue() string     { return filepath.Join(d.MazerunnerDir, "queue") }

// GeneratedDir exposes the staging directory new testcases are written
// to, for callers (e.g. cmd/mazerunner wiring a solver.Adapter) that
// need the path without reaching into package internals.
func (d Dirs) GeneratedDir() string { return d.generated() }

// EnsureDirs creates every directory the runner expects to exist.
func (d Dirs) EnsureDirs() error {
	for _, dir := range []string{d.MazerunnerDir, d.hangs(), d.errors(), d.generated(), d.queue()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Runner drives the common per-seed loop shared by every mode: copy
// seed into .cur_input, run the executor, classify the outcome, train
// the agent, filter and requeue generated testcases
// "Common loop".
type Runner struct {
	Dirs   Dirs
	State  *State
	Exec   *executor.Executor
	Agent  Trainer
	Filter NoveltyFilter
	Mailer *notify.Mailer

	MaxErrorReports int
	MinHangFiles    int
	MaxTimeout      time.Duration
}

// RunFile executes one seed file end to end: copies it into
// .cur_input, runs the target, classifies the return code, and syncs
// back any interesting generated testcase. Mirrors Python's run_file.
func (r *Runner) RunFile(seedPath string) (executor.Result, error) {
	if err := copyFile(seedPath, r.Dirs.curInput()); err != nil {
		return executor.Result{}, fmt.Errorf("mazerunner: copy seed: %w", err)
	}
	log.Logf(1, "mazerunner: run: input=%s", seedPath)

	res, err := r.runTarget()
	if err != nil {
		return res, err
	}

	r.handleReturnStatus(res, seedPath)
	r.Agent.Train()
	if err := r.syncBackIfInteresting(seedPath, res); err != nil {
		return res, err
	}
	r.Agent.Reset()
	r.State.Processed[filepath.Base(seedPath)] = true
	return res, nil
}

// runTarget runs Setup/Run/ProcessRequest(implicit in Run)/TearDown/
// GetResult in the defer-guarded order the design prescribes.
func (r *Runner) runTarget() (executor.Result, error) {
	if err := r.Exec.Setup(r.Dirs.curInput(), uint64(r.State.ProcessedCount())); err != nil {
		return executor.Result{}, err
	}
	defer r.Exec.TearDown()

	if err := r.Exec.Run(r.State.Timeout); err != nil {
		return executor.Result{}, err
	}
	res := r.Exec.GetResult()
	log.Logf(1, "mazerunner: total=%v emulation=%v solving=%v return=%d",
		res.TotalTime, res.EmulationTime, res.SolvingTime, res.ReturnCode)
	return res, nil
}

// handleReturnStatus classifies the outcome and, on hang or error,
// copies the triggering input aside and optionally mails a report, per
// the design classification table.
func (r *Runner) handleReturnStatus(res executor.Result, seedPath string) {
	fn := filepath.Base(seedPath)
	switch Classify(res.ReturnCode) {
	case OutcomeHang:
		_ = copyFile(seedPath, filepath.Join(r.Dirs.hangs(), fn))
		r.State.Hang[fn] = true
	case OutcomeError:
		_ = copyFile(seedPath, filepath.Join(r.Dirs.errors(), fn))
		r.reportError(seedPath, res.Stderr)
	}
}

func (r *Runner) reportError(seedPath string, stderr []byte) {
	r.State.NumErrorReports++
	if r.Mailer == nil {
		return
	}
	if r.MaxErrorReports > 0 && r.State.NumErrorReports > r.MaxErrorReports {
		return
	}
	if err := r.Mailer.Send(notify.CrashReport("error", seedPath, stderr)); err != nil {
		log.Warnf("mazerunner: mail: %v", err)
	}
}

// syncBackIfInteresting filters every file the solver generated this
// execution through the novelty filter and the running best distance,
// enqueuing survivors and advancing the best-seed bookkeeping.
func (r *Runner) syncBackIfInteresting(seedPath string, res executor.Result) error {
	_, bestDist := r.State.BestSeed()
	for _, gen := range res.Generated {
		keep, err := KeepSeed(r.Filter, gen, res.MinDistance, bestDist)
		if err != nil {
			return err
		}
		if !keep {
			_ = os.Remove(gen)
			continue
		}
		if err := r.State.PutSeed(gen, res.MinDistance); err != nil {
			return err
		}
		if res.MinDistance < bestDist {
			r.State.UpdateBestSeed(gen, res.MinDistance)
			bestDist = res.MinDistance
		}
	}
	return nil
}

// HandleEmptyQueue is called when State.IsQueueEmpty(): grows the
// timeout once enough seeds have hung, otherwise sleeps briefly to let
// the external fuzzer produce more seeds "Hang
// handling". sleep is injected so tests don't block.
func (r *Runner) HandleEmptyQueue(sleep func(time.Duration)) {
	if len(r.State.Hang) > r.MinHangFiles {
		r.State.IncreaseTimeout(r.MaxTimeout)
		sleep(60 * time.Second)
		return
	}
	log.Logf(1, "mazerunner: sleeping, waiting for external fuzzer queue")
	sleep(5 * time.Second)
}

// SyncFromAFL copies every not-yet-seen file from the external fuzzer's
// queue into the generated-inputs staging directory, ordered by the
// external fuzzer's own triage priority.
func (r *Runner) SyncFromAFL() ([]string, error) {
	if r.Dirs.AflName == "" {
		return nil, nil
	}
	entries, err := extqueue.List(r.Dirs.OutputDir, r.Dirs.AflName)
	if err != nil {
		return nil, err
	}
	extqueue.SortBySyncPriority(entries, func(e extqueue.Entry) int64 {
		info, err := os.Stat(e.Path)
		if err != nil {
			return 0
		}
		return info.Size()
	})

	var names []string
	for _, e := range entries {
		if r.State.Synced[e.Name] {
			continue
		}
		dst := filepath.Join(r.Dirs.generated(), e.Name)
		if err := copyFile(e.Path, dst); err != nil {
			return nil, err
		}
		r.State.Synced[e.Name] = true
		names = append(names, e.Name)
	}
	return names, nil
}

// SyncFromInitialSeeds copies every not-yet-seen file from the initial
// seed directory, used once at startup (and as SyncFromAFL's fallback
// when the external queue is empty).
func (r *Runner) SyncFromInitialSeeds() ([]string, error) {
	entries, err := os.ReadDir(r.Dirs.InitialSeeds)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || r.State.Synced[e.Name()] {
			continue
		}
		src := filepath.Join(r.Dirs.InitialSeeds, e.Name())
		dst := filepath.Join(r.Dirs.generated(), e.Name())
		if err := copyFile(src, dst); err != nil {
			return nil, err
		}
		r.State.Synced[e.Name()] = true
		names = append(names, e.Name())
	}
	return names, nil
}

// SyncFromEither tries the external fuzzer's queue first, falling back
// to the initial seed directory when nothing new is there.
func (r *Runner) SyncFromEither() ([]string, error) {
	files, err := r.SyncFromAFL()
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		return files, nil
	}
	return r.SyncFromInitialSeeds()
}

// modelSaver is the subset of *rlmodel.Model a Drive loop persists
// periodically; kept as an interface so this package never imports
// pkg/rlmodel directly.
type modelSaver interface {
	Save(dir string) error
}

// Drive runs the common loop until ctx is cancelled: sync in new seeds,
// pop the best-priority one, run it, and periodically persist the
// model. saveEvery <= 0 disables periodic saves.
func (r *Runner) Drive(ctx context.Context, model modelSaver, saveEvery int) error {
	for {
		select {
		case <-ctx.Done():
			return saveModel(model, r.Dirs.MazerunnerDir)
		default:
		}
		if err := r.Step(ctx); err != nil {
			return err
		}
		if n := r.State.Index; saveEvery > 0 && n > 0 && n%saveEvery == 0 {
			if err := saveModel(model, r.Dirs.MazerunnerDir); err != nil {
				return err
			}
		}
	}
}

// Step runs exactly one iteration of the common loop: sync, then
// either run the best-priority queued seed or back off because the
// queue is empty. Exposed so a hybrid driver can interleave Steps from
// two Runners sharing one State.
func (r *Runner) Step(ctx context.Context) error {
	if _, err := r.SyncFromEither(); err != nil {
		return err
	}
	r.enqueueUnprocessed()

	if r.State.IsQueueEmpty() {
		r.HandleEmptyQueue(sleepUnlessCancelled(ctx))
		return nil
	}

	seed := r.State.GetSeed()
	if _, err := r.RunFile(filepath.Join(r.Dirs.generated(), seed)); err != nil {
		log.Warnf("mazerunner: run %s: %v", seed, err)
	}
	r.State.Tick()
	return nil
}

// enqueueUnprocessed puts every generated file not yet processed or
// already queued onto the seed queue at a neutral starting priority;
// RunFile/syncBackIfInteresting refine priority from observed distance
// once a seed has actually been run.
func (r *Runner) enqueueUnprocessed() {
	entries, err := os.ReadDir(r.Dirs.generated())
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || r.State.Processed[name] || r.State.Queued[name] {
			continue
		}
		_ = r.State.PutSeed(name, 0)
	}
}

func saveModel(model modelSaver, dir string) error {
	if model == nil {
		return nil
	}
	return model.Save(dir)
}

// sleepUnlessCancelled returns a sleep function that honors ctx
// cancellation instead of blocking the full duration.
func sleepUnlessCancelled(ctx context.Context) func(time.Duration) {
	return func(d time.Duration) {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
		case <-t.C:
		}
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
