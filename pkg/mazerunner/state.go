// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mazerunner

import (
	"time"

	"github.com/symflow/mazerunner/pkg/log"
)

// State is the persistent run-wide bookkeeping shared by every Runner
// in a process (and, in hybrid mode, by both the explore and exploit
// agents), porting Python's MazerunnerState.
type State struct {
	Timeout   time.Duration
	StartTime time.Time
	EndTime   time.Time

	Synced    map[string]bool
	Hang      map[string]bool
	Processed map[string]bool
	Queued    map[string]bool
	Crashes   map[string]int

	Index           int
	NumErrorReports int
	NumCrashReports int

	bestSeedFile     string
	bestSeedDistance int64
	discoveredCloser bool

	queue *seedQueue
}

// NewState builds a fresh State with the given starting timeout.
func NewState(timeout time.Duration) *State {
	return &State{
		Timeout:          timeout,
		StartTime:        time.Now(),
		Synced:           map[string]bool{},
		Hang:             map[string]bool{},
		Processed:        map[string]bool{},
		Queued:           map[string]bool{},
		Crashes:          map[string]int{},
		bestSeedDistance: maxInt64,
		queue:            newSeedQueue(),
	}
}

const maxInt64 = int64(1<<63 - 1)

// ProcessedCount mirrors Python's processed_num property.
func (s *State) ProcessedCount() int { return len(s.Processed) }

// BestSeed returns the best seed filename and the distance it achieved.
func (s *State) BestSeed() (string, int64) { return s.bestSeedFile, s.bestSeedDistance }

// UpdateBestSeed records a new best seed and flags discoveredCloser.
func (s *State) UpdateBestSeed(filename string, distance int64) {
	s.bestSeedFile = filename
	s.bestSeedDistance = distance
	s.discoveredCloser = true
}

// DiscoveredCloserSeed reports (and, via Ack, clears) whether a seed
// strictly closer to the target was found since the last check --
// mirrors Python's discovered_closer_seed property/setter pair.
// HybridSession.Step does not read this flag.
func (s *State) DiscoveredCloserSeed() bool { return s.discoveredCloser }

// AckDiscoveredCloserSeed clears the discoveredCloser flag.
func (s *State) AckDiscoveredCloserSeed() { s.discoveredCloser = false }

// IsQueueEmpty reports whether the seed queue has any entries.
func (s *State) IsQueueEmpty() bool { return s.queue.Len() == 0 }

// PutSeed inserts fn at the given priority (smaller priority = better),
//.
func (s *State) PutSeed(fn string, priority int64) error {
	if err := s.queue.Push(fn, priority); err != nil {
		return err
	}
	s.Queued[fn] = true
	return nil
}

// GetSeed pops the best-priority filename.
func (s *State) GetSeed() string {
	fn := s.queue.Pop()
	delete(s.Queued, fn)
	return fn
}

// Clear removes hung filenames from Processed so they're retried after
// a timeout increase, per Python's clear().
func (s *State) Clear() {
	for fn := range s.Hang {
		delete(s.Processed, fn)
	}
}

// IncreaseTimeout doubles Timeout up to maxTimeout, then clears hung
// entries and sleeps -- mirroring Python's increase_timeout. The sleep
// is the caller's responsibility (see Runner.HandleEmptyQueue) so this
// method stays a pure state transition for testability.
func (s *State) IncreaseTimeout(maxTimeout time.Duration) {
	old := s.Timeout
	if s.Timeout < maxTimeout {
		s.Timeout *= 2
		if s.Timeout > maxTimeout {
			s.Timeout = maxTimeout
		}
		log.Logf(1, "mazerunner: increase timeout %v -> %v", old, s.Timeout)
	} else {
		log.Logf(1, "mazerunner: hit the maximum timeout")
	}
	s.Clear()
}

// Tick returns the current index and increments it, per Python's
// tick() (used to number generated files: id:NNNNNN).
func (s *State) Tick() int {
	old := s.Index
	s.Index++
	return old
}
