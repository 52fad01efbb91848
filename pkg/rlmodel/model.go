// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package rlmodel is the persistent Q-table shared across executions: the
// learned value function, the visited/unreachable/target sa bookkeeping,
// and disk persistence as files directly under the directory passed to
// Save/Load (no model/ subdirectory is created).
package rlmodel

import (
	"math"
	"sync"

	"github.com/symflow/mazerunner/pkg/agent"
	"github.com/symflow/mazerunner/pkg/store"
)

// Kind selects how Q-values are interpreted by GetDistance.
type Kind int

const (
	// KindDistance treats Q-values as distance-like: GetDistance is the
	// identity.
	KindDistance Kind = iota
	// KindReachability treats Q-values as probability-like in [0,1]:
	// GetDistance maps them through -ln(p), +Inf at p == 0.
	KindReachability
)

// Model is the shared, persistent (state, action) value table. In hybrid
// mode two agents share one *Model instance; every accessor is guarded by
// the read-write lock mu.
type Model struct {
	Kind Kind

	mu          sync.RWMutex
	q           map[agent.SA]float64
	visited     map[agent.SA]int
	unreachable map[agent.SA]struct{}
	target      map[agent.SA]struct{}
}

// New creates an empty model of the given kind.
func New(kind Kind) *Model {
	return &Model{
		Kind:        kind,
		q:           map[agent.SA]float64{},
		visited:     map[agent.SA]int{},
		unreachable: map[agent.SA]struct{}{},
		target:      map[agent.SA]struct{}{},
	}
}

// QLookup returns the current Q-value for sa, defaulting to 0.
func (m *Model) QLookup(sa agent.SA) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.q[sa]
}

// QUpdate sets sa's Q-value, unless v is NaN, in which case the previous
// value is kept (the design: "Q[sa] is NaN-free after any successful
// update; NaN results fall back to the previous value").
func (m *Model) QUpdate(sa agent.SA, v float64) {
	if math.IsNaN(v) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.q[sa] = v
}

// GetDistance maps a Q-value back into a comparable distance, per
// the design. compareOnly permits callers that only need ordering (not
// an exact value) to request a cheaper representative; for both model
// kinds here the cheap and exact forms coincide, so the flag is accepted
// for interface symmetry with callers that may later swap in a pricier
// model.
func (m *Model) GetDistance(sa agent.SA, compareOnly bool) float64 {
	q := m.QLookup(sa)
	switch m.Kind {
	case KindReachability:
		if q <= 0 {
			return math.Inf(1)
		}
		return -math.Log(q)
	default:
		return q
	}
}

// AddVisitedSA bumps sa's visit count. Never decreases across executions
// (a key correctness property).
func (m *Model) AddVisitedSA(sa agent.SA) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.visited[sa]++
}

// VisitedCount returns how many times sa has been visited.
func (m *Model) VisitedCount(sa agent.SA) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.visited[sa]
}

// IsVisited reports whether sa has ever been visited.
func (m *Model) IsVisited(sa agent.SA) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.visited[sa]
	return ok
}

// IsUnreachable reports whether sa has been proven infeasible.
func (m *Model) IsUnreachable(sa agent.SA) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.unreachable[sa]
	return ok
}

// AddUnreachableSA marks sa infeasible and, to preserve the "disjoint at
// rest" invariant, removes it from the target set.
func (m *Model) AddUnreachableSA(sa agent.SA) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unreachable[sa] = struct{}{}
	delete(m.target, sa)
}

// IsTarget reports whether sa is currently an in-flight target.
func (m *Model) IsTarget(sa agent.SA) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.target[sa]
	return ok
}

// AddTargetSA marks sa as an in-flight target the agent wants the solver
// to realize.
func (m *Model) AddTargetSA(sa agent.SA) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target[sa] = struct{}{}
}

// RemoveTargetSA clears sa from the target set -- called when the branch
// is reached in a later execution or the solver reports UNSAT.
func (m *Model) RemoveTargetSA(sa agent.SA) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.target, sa)
}

// AtRest reports whether the disjointness invariant holds: no sa is both
// unreachable and targeted.
func (m *Model) AtRest() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sa := range m.target {
		if _, ok := m.unreachable[sa]; ok {
			return false
		}
	}
	return true
}

// Save persists Q, visited_sa and unreachable_sa to separate files
// directly under dir.
func (m *Model) Save(dir string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := store.SaveQTable(store.Path(dir, "Q_table"), m.q); err != nil {
		return err
	}
	if err := store.SaveVisited(store.Path(dir, "visited_sa"), m.visited); err != nil {
		return err
	}
	return store.SaveSASet(store.Path(dir, "unreachable_branches"), m.unreachable)
}

// Load restores Q, visited_sa and unreachable_sa from dir. A missing file
// yields an empty structure, not an error.
func (m *Model) Load(dir string) error {
	q, err := store.LoadQTable(store.Path(dir, "Q_table"))
	if err != nil {
		return err
	}
	visited, err := store.LoadVisited(store.Path(dir, "visited_sa"))
	if err != nil {
		return err
	}
	unreachable, err := store.LoadSASet(store.Path(dir, "unreachable_branches"))
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.q = q
	m.visited = visited
	m.unreachable = unreachable
	if m.target == nil {
		m.target = map[agent.SA]struct{}{}
	}
	return nil
}
