// Package arbiter decides which single progress source the overlay shows.
//
// The Arbiter keeps one Entry per source id. Removed entries linger in a
// pending state until the tracker finalizes them after the grace window, so
// a source that is removed and immediately re-posted never flickers.
package arbiter

import (
	"fmt"
	"slices"
	"time"

	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/palette"
)

// Entry is the arbiter's view of one source.
type Entry struct {
	ID        string
	PackageID string
	Kind      event.Kind
	Priority  int
	Progress  int
	// ColorHint is the notification or artwork color, when known.
	ColorHint *palette.Color
	UpdatedAt time.Time

	seq     uint64
	pending bool
}

// Pending reports whether the entry was removed and awaits finalization.
func (e Entry) Pending() bool {
	return e.pending
}

// Decision is the outcome of one recomputation.
type Decision struct {
	// Winner is valid when Show is true.
	Winner Entry
	Show   bool
}

// Policy selects the current entry. entries are ordered by first insertion;
// current is the previous winner if it still exists; changed is the entry
// that was just upserted, or nil after a removal or finalization.
type Policy interface {
	Name() string
	Choose(entries []Entry, current, changed *Entry) (Entry, bool)
}

// PolicyByName resolves a configured policy name.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PriorityPolicy{}.Name():
		return PriorityPolicy{}, nil
	case StickyPolicy{}.Name():
		return StickyPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown arbitration policy %q", name)
	}
}

// Arbiter holds every known entry and the current winner. It is not safe for
// concurrent use; the tracker loop owns it.
type Arbiter struct {
	policy  Policy
	entries map[string]*Entry
	current string
	nextSeq uint64
}

// New constructs an Arbiter using policy, defaulting to PriorityPolicy.
func New(policy Policy) *Arbiter {
	if policy == nil {
		policy = PriorityPolicy{}
	}
	return &Arbiter{policy: policy, entries: make(map[string]*Entry)}
}

// Policy returns the active policy.
func (a *Arbiter) Policy() Policy {
	return a.policy
}

// Upsert records a fresh value for e.ID, cancelling any pending removal.
func (a *Arbiter) Upsert(e Entry) Decision {
	if prev, ok := a.entries[e.ID]; ok {
		e.seq = prev.seq
	} else {
		a.nextSeq++
		e.seq = a.nextSeq
	}
	e.pending = false
	a.entries[e.ID] = &e
	changed := e
	return a.recompute(&changed)
}

// MarkRemoved moves id into the pending state. The entry still counts until
// Finalize is called.
func (a *Arbiter) MarkRemoved(id string) Decision {
	if e, ok := a.entries[id]; ok {
		e.pending = true
	}
	return a.recompute(nil)
}

// Finalize drops id if it is still pending. A fresher Upsert since
// MarkRemoved keeps the entry.
func (a *Arbiter) Finalize(id string) Decision {
	if e, ok := a.entries[id]; ok && e.pending {
		delete(a.entries, id)
	}
	return a.recompute(nil)
}

// Forget drops id immediately, pending or not.
func (a *Arbiter) Forget(id string) Decision {
	delete(a.entries, id)
	return a.recompute(nil)
}

// Current returns the current winner, if any.
func (a *Arbiter) Current() (Entry, bool) {
	e, ok := a.entries[a.current]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Decision reports the current outcome without recomputing.
func (a *Arbiter) Decision() Decision {
	cur, ok := a.Current()
	if !ok {
		return Decision{}
	}
	return Decision{Winner: cur, Show: cur.Progress > 0}
}

// Entries returns every entry in insertion order.
func (a *Arbiter) Entries() []Entry {
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(x, y Entry) int {
		switch {
		case x.seq < y.seq:
			return -1
		case x.seq > y.seq:
			return 1
		}
		return 0
	})
	return out
}

func (a *Arbiter) recompute(changed *Entry) Decision {
	var current *Entry
	if e, ok := a.entries[a.current]; ok {
		c := *e
		current = &c
	}
	winner, ok := a.policy.Choose(a.Entries(), current, changed)
	if !ok {
		a.current = ""
		return Decision{}
	}
	a.current = winner.ID
	if winner.Progress <= 0 {
		return Decision{Winner: winner}
	}
	return Decision{Winner: winner, Show: true}
}
