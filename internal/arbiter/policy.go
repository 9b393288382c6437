package arbiter

// PriorityPolicy shows the highest-priority entry, breaking ties by the
// larger progress and then by age. It recomputes from scratch every time.
type PriorityPolicy struct{}

// Name implements Policy.
func (PriorityPolicy) Name() string { return "priority" }

// Choose implements Policy.
func (PriorityPolicy) Choose(entries []Entry, _, _ *Entry) (Entry, bool) {
	return best(entries)
}

// StickyPolicy keeps the current entry until something clearly better
// arrives. A lower-priority update is rejected, and so is an equal-priority
// update from another package with less progress, unless the current entry
// is already pending removal.
type StickyPolicy struct{}

// Name implements Policy.
func (StickyPolicy) Name() string { return "sticky" }

// Choose implements Policy.
func (StickyPolicy) Choose(entries []Entry, current, changed *Entry) (Entry, bool) {
	if current == nil {
		if changed != nil {
			return *changed, true
		}
		return best(entries)
	}
	if changed == nil || changed.ID == current.ID {
		if changed != nil {
			return *changed, true
		}
		return *current, true
	}
	if Accepts(*current, *changed) {
		return *changed, true
	}
	return *current, true
}

// Accepts reports whether the sticky rule lets incoming replace current.
func Accepts(current, incoming Entry) bool {
	if incoming.ID == current.ID {
		return true
	}
	if incoming.Priority < current.Priority {
		return false
	}
	if incoming.Priority == current.Priority &&
		incoming.PackageID != current.PackageID &&
		incoming.Progress < current.Progress &&
		!current.pending {
		return false
	}
	return true
}

func best(entries []Entry) (Entry, bool) {
	var (
		win   Entry
		found bool
	)
	for _, e := range entries {
		if !found || outranks(e, win) {
			win, found = e, true
		}
	}
	return win, found
}

// outranks orders by priority then progress; entries arrive oldest first so
// a strict comparison keeps the older entry on ties.
func outranks(a, b Entry) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.Progress > b.Progress
}
