// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package executor drives one concolic execution of the instrumented
// target: spawns the child with the shared-memory and event-pipe file
// descriptors passed through, reads and dispatches its event stream,
// and reports a Result. Grounded on syzkaller's os/exec child-spawning
// idiom (pkg/vcs/git.go, pkg/rpcserver/local.go) generalized to the
// fd-passing contract the design requires; no third-party library in
// the example pack offers an alternative to os/exec + ExtraFiles for
// this (see DESIGN.md).
package executor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/channel"
	"github.com/symflow/mazerunner/pkg/log"
	"github.com/symflow/mazerunner/pkg/shm"
	"github.com/symflow/mazerunner/pkg/solver"
)

// Result is the per-execution record returned by GetResult.
type Result struct {
	TotalTime     time.Duration
	SolvingTime   time.Duration
	EmulationTime time.Duration
	MinDistance   int64
	ReturnCode    int
	EventCount    int
	Generated     []string
	Stdout        []byte
	Stderr        []byte
}

// Target describes how to invoke the instrumented binary: either a
// filename placeholder ("@@") substituted with the current input path,
// or, absent that placeholder, the input delivered over stdin.
type Target struct {
	Cmd       []string
	UnionSize int
}

// Executor runs a Target against one input file, one execution at a
// time: Setup, Run (which also processes the event stream), TearDown, in
// that order.
type Executor struct {
	target Target
	solver solver.Adapter
	vari   agent.Variant

	shmRegion *shm.Region
	pipe      *channel.Pipe
	reader    *channel.Reader
	cmd       *exec.Cmd

	session    uint64
	inputFile  string
	seedData   []byte
	startTime  time.Time
	solving    time.Duration
	eventCount int
	returnCode int
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	torndown   bool
}

// New builds an Executor bound to one target command, solver adapter
// and agent variant for the lifetime of many Setup/Run/TearDown cycles.
func New(target Target, ad solver.Adapter, vari agent.Variant) *Executor {
	return &Executor{target: target, solver: ad, vari: vari}
}

// Setup allocates the shared-memory union table, recreates the event
// pipe, and resets per-execution bookkeeping.
func (e *Executor) Setup(inputFile string, session uint64) error {
	size := e.target.UnionSize
	if size == 0 {
		size = shm.UnionTableSize
	}
	region, err := shm.Create(size)
	if err != nil {
		return fmt.Errorf("executor: shared memory: %w", err)
	}
	p, err := channel.NewPipe()
	if err != nil {
		region.Close()
		return fmt.Errorf("executor: pipe: %w", err)
	}

	data, err := os.ReadFile(inputFile)
	if err != nil {
		region.Close()
		p.Close()
		return fmt.Errorf("executor: read input: %w", err)
	}

	e.shmRegion = region
	e.pipe = p
	e.reader = channel.NewReader(p.Read)
	e.session = session
	e.inputFile = inputFile
	e.seedData = data
	e.solving = 0
	e.eventCount = 0
	e.returnCode = 0
	e.stdout.Reset()
	e.stderr.Reset()
	e.torndown = false
	e.solver.Reset()
	return nil
}

// Run spawns the target under a `timeout -k 1 <t>` wrapper, passing the
// shared-memory region and the pipe's write end as extra file
// descriptors and setting TAINT_OPTIONS in its environment, and blocks
// until it exits. Stdin inputs are written once
// after spawn; @@ placeholders are substituted before spawn.
func (e *Executor) Run(timeout time.Duration) error {
	e.startTime = time.Now()

	args, useStdin := substituteInput(e.target.Cmd, e.inputFile)
	killAfter := "1"
	timeoutArg := strconv.Itoa(int(timeout.Seconds()))
	wrapped := append([]string{"-k", killAfter, timeoutArg}, args...)
	cmd := exec.Command("timeout", wrapped...)
	cmd.Stdout = &e.stdout
	cmd.Stderr = &e.stderr
	cmd.ExtraFiles = []*os.File{e.shmRegion.File(), e.pipe.Write}
	taintFile := e.inputFile
	if useStdin {
		taintFile = "stdin"
	}
	// ExtraFiles[0] and [1] become fds 3 and 4 in the child.
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TAINT_OPTIONS=taint_file=\"%s\":shm_fd=3:pipe_fd=4:debug=0", taintFile))

	if useStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fmt.Errorf("executor: stdin pipe: %w", err)
		}
		go func() {
			defer stdin.Close()
			stdin.Write(e.seedData)
		}()
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("executor: spawn: %w", err)
	}
	e.cmd = cmd
	// The child holds its own copy of the write end via ExtraFiles; the
	// parent's copy must be closed so the read side sees EOF once the
	// child exits.
	e.pipe.Write.Close()

	if err := e.processEvents(); err != nil {
		log.Warnf("executor: event processing: %v", err)
	}

	err := cmd.Wait()
	e.returnCode = exitCode(err)
	return nil
}

// processEvents implements process_request(): reads headers until the
// channel closes or returns empty, dispatching by msg_type and
// accumulating solving_time around each dispatch call. Stops early on a
// fatal solver status or an exploit single-shot nested solve.
func (e *Executor) processEvents() error {
	for {
		ev, err := e.reader.Next()
		if err != nil {
			return err
		}
		if ev == nil {
			return nil
		}
		e.eventCount++

		dispatchStart := time.Now()
		stop, err := e.dispatch(ev)
		e.solving += time.Since(dispatchStart)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
}

func (e *Executor) dispatch(ev channel.Event) (stop bool, err error) {
	switch v := ev.(type) {
	case channel.CondEvent:
		return e.handleCond(v)
	case channel.GEPEvent:
		return e.handleGEP(v)
	case channel.MemcmpEvent:
		err = e.solver.HandleMemcmp(v, nil)
		return false, err
	case channel.FsizeEvent, channel.LoopEvent, channel.FiniEvent:
		return false, nil
	default:
		return false, fmt.Errorf("executor: unhandled event %T", ev)
	}
}

func (e *Executor) handleCond(ev channel.CondEvent) (bool, error) {
	taken := ev.Header.Result != 0
	hasDist := ev.Trailer.Flags.Has(channel.FlagHasDistance)
	dist := int64(ev.Trailer.LocalMinDist)
	e.vari.HandleNewState(ev.Trailer.Addr, uint64(ev.Trailer.Context), boolToAction(taken), hasDist, dist,
		uint64(ev.Header.InstanceID), uint64(ev.Trailer.ID))

	interesting := e.vari.IsInterestingBranch()
	seed := solver.SeedInfo{Path: e.inputFile, Session: e.session, Data: e.seedData}
	status, err := e.solver.HandleCond(ev.Header.Label, taken, ev.Trailer.Flags, interesting,
		agent.ProgramState{}, seed)
	if err != nil {
		return false, err
	}

	switch {
	case status.MarksUnreachable():
		e.vari.HandleUnsatCondition()
	case status.NeedsPunish():
		e.vari.HandleNestedUnsatCondition()
	}
	if status.Fatal() {
		return true, nil
	}
	if _, ok := e.vari.(*agent.Exploit); ok {
		return status.StopsExploit(), nil
	}
	return false, nil
}

func (e *Executor) handleGEP(ev channel.GEPEvent) (bool, error) {
	seed := solver.SeedInfo{Path: e.inputFile, Session: e.session, Data: e.seedData}
	status, err := e.solver.HandleGEP(ev.Trailer, ev.Header.Addr, seed)
	if err != nil {
		return false, err
	}
	if status.Fatal() {
		return true, nil
	}
	return false, nil
}

func boolToAction(taken bool) int {
	if taken {
		return 1
	}
	return 0
}

// TearDown releases every resource Setup/Run acquired. It is idempotent
// and safe to call on a partially-set-up Executor.
func (e *Executor) TearDown() error {
	if e.torndown {
		return nil
	}
	e.torndown = true

	if e.cmd != nil && e.cmd.Process != nil {
		_ = e.cmd.Process.Kill()
	}
	var firstErr error
	if e.pipe != nil {
		if err := e.pipe.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.shmRegion != nil {
		if err := e.shmRegion.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// maxCapturedOutput bounds how much of the child's stdout/stderr a
// Result carries; beyond it the middle is cut, keeping the head (where
// the target usually announces itself) and the tail (where it usually
// crashes).
const maxCapturedOutput = 64 << 10

// GetResult returns the ExecutorResult for the last Run; safe to call
// after TearDown.
func (e *Executor) GetResult() Result {
	total := time.Since(e.startTime)
	return Result{
		TotalTime:     total,
		SolvingTime:   e.solving,
		EmulationTime: total - e.solving,
		MinDistance:   minDistanceOf(e.vari),
		ReturnCode:    e.returnCode,
		EventCount:    e.eventCount,
		Generated:     e.solver.GeneratedFiles(),
		Stdout:        log.Truncate(append([]byte(nil), e.stdout.Bytes()...), maxCapturedOutput/2, maxCapturedOutput/2),
		Stderr:        log.Truncate(append([]byte(nil), e.stderr.Bytes()...), maxCapturedOutput/2, maxCapturedOutput/2),
	}
}

// minDistancer is implemented by every agent.Variant concrete type via
// their embedded base, letting GetResult read MinDistance without the
// executor depending on a specific agent kind.
type minDistancer interface {
	MinDistance() int64
}

func minDistanceOf(v agent.Variant) int64 {
	if md, ok := v.(minDistancer); ok {
		return md.MinDistance()
	}
	return 0
}

// substituteInput replaces a literal "@@" argument with path; if no
// placeholder is present, the caller must feed path over stdin instead.
func substituteInput(cmdline []string, path string) (args []string, useStdin bool) {
	args = make([]string, len(cmdline))
	found := false
	for i, a := range cmdline {
		if a == "@@" {
			args[i] = path
			found = true
		} else {
			args[i] = a
		}
	}
	return args, !found
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// TaintOptions joins a union-table size and an output directory into a
// colon-separated key=value string. Run does not use it: Run builds the
// child's TAINT_OPTIONS value (taint_file, shm_fd, pipe_fd, debug) itself.
func TaintOptions(unionSize int, logPath string) string {
	return strings.Join([]string{
		"union_table_size=" + strconv.Itoa(unionSize),
		"output_dir=" + logPath,
	}, ":")
}
