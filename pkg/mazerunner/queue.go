// Copyright 2024 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mazerunner is the seed scheduler & orchestrator: the priority
// seed queue, persistent run state, return-code classification, the
// Runner that executes seeds, and the Session builders
// (qsym/explore/exploit/hybrid/record/replay) that wire one Runner per
// mode.
package mazerunner

import "container/heap"

// seedQueue is a min-heap over (priority, filename) pairs: smaller
// priority pops first, matching Python's heapq-backed _seed_queue
// (priority == the seed's observed distance -- closer is better).
// Structurally grounded on pkg/fuzzer/prio_queue.go's heap.Interface
// implementation, inverted here since we want the minimum, not the
// maximum, priority.
type seedQueue struct {
	items seedQueueImpl
}

func newSeedQueue() *seedQueue {
	q := &seedQueue{}
	heap.Init(&q.items)
	return q
}

// Len reports how many seeds are queued.
func (q *seedQueue) Len() int { return q.items.Len() }

// Push inserts fn at the given priority. Negative priorities are
// rejected, matching Python's put_seed validation.
func (q *seedQueue) Push(fn string, priority int64) error {
	if fn == "" || priority < 0 {
		return errInvalidSeed
	}
	heap.Push(&q.items, &seedQueueItem{fn: fn, priority: priority})
	return nil
}

// Pop removes and returns the lowest-priority filename. Panics if
// empty -- callers must check Len() first, matching Python's
// unconditional heapq.heappop.
func (q *seedQueue) Pop() string {
	return heap.Pop(&q.items).(*seedQueueItem).fn
}

type seedQueueItem struct {
	fn       string
	priority int64
}

type seedQueueImpl []*seedQueueItem

func (q seedQueueImpl) Len() int            { return len(q) }
func (q seedQueueImpl) Less(i, j int) bool  { return q[i].priority < q[j].priority }
func (q seedQueueImpl) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *seedQueueImpl) Push(x interface{}) { *q = append(*q, x.(*seedQueueItem)) }
func (q *seedQueueImpl) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}
