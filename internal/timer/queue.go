// Package timer implements the cancellable deferred callbacks used by the
// tracker. Each (source, kind) pair has at most one pending deadline;
// scheduling it again replaces the earlier one in a single call.
package timer

import (
	"container/heap"
	"time"
)

// Kind names a logical timer owned by a source.
type Kind int

// Timer kinds.
const (
	Tick Kind = iota
	Freshness
	RemovalGrace
)

func (k Kind) String() string {
	switch k {
	case Tick:
		return "tick"
	case Freshness:
		return "freshness"
	case RemovalGrace:
		return "removal_grace"
	default:
		return "unknown"
	}
}

// Key identifies one logical timer.
type Key struct {
	Source string
	Kind   Kind
}

type entry struct {
	key   Key
	at    time.Time
	seq   uint64
	index int
}

// Queue is a deadline-ordered set of timers. It is not safe for concurrent
// use; the tracker loop owns it.
type Queue struct {
	items   entryHeap
	byKey   map[Key]*entry
	nextSeq uint64
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{byKey: make(map[Key]*entry)}
}

// Schedule sets the deadline for key, replacing any pending one.
func (q *Queue) Schedule(key Key, at time.Time) {
	q.nextSeq++
	if e, ok := q.byKey[key]; ok {
		e.at = at
		e.seq = q.nextSeq
		heap.Fix(&q.items, e.index)
		return
	}
	e := &entry{key: key, at: at, seq: q.nextSeq}
	heap.Push(&q.items, e)
	q.byKey[key] = e
}

// Cancel drops the pending deadline for key. It reports whether one existed.
func (q *Queue) Cancel(key Key) bool {
	e, ok := q.byKey[key]
	if !ok {
		return false
	}
	heap.Remove(&q.items, e.index)
	delete(q.byKey, key)
	return true
}

// CancelSource drops every pending timer owned by source.
func (q *Queue) CancelSource(source string) {
	for _, kind := range []Kind{Tick, Freshness, RemovalGrace} {
		q.Cancel(Key{Source: source, Kind: kind})
	}
}

// Pending returns the deadline for key if one is scheduled.
func (q *Queue) Pending(key Key) (time.Time, bool) {
	e, ok := q.byKey[key]
	if !ok {
		return time.Time{}, false
	}
	return e.at, true
}

// Next returns the earliest deadline.
func (q *Queue) Next() (time.Time, bool) {
	if len(q.items) == 0 {
		return time.Time{}, false
	}
	return q.items[0].at, true
}

// PopDue removes and returns the earliest timer due at or before now.
// Timers with equal deadlines pop in scheduling order.
func (q *Queue) PopDue(now time.Time) (Key, time.Time, bool) {
	if len(q.items) == 0 || q.items[0].at.After(now) {
		return Key{}, time.Time{}, false
	}
	e, _ := heap.Pop(&q.items).(*entry)
	delete(q.byKey, e.key)
	return e.key, e.at, true
}

// Len returns the number of pending timers.
func (q *Queue) Len() int {
	return len(q.items)
}

type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x any) {
	e, _ := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
