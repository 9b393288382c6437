package tracker

import (
	"fmt"
	"time"

	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/extrapolator"
	"github.com/JakeFAU/progress-overlay/internal/palette"
)

// State is the lifecycle position of a Source.
type State int

// Source states. Removed is terminal.
const (
	Active State = iota
	PendingRemoval
	Removed
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case PendingRemoval:
		return "pending_removal"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Active, PendingRemoval, Removed} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown source state %q", text)
}

// Source is one in-flight progress stream.
type Source struct {
	ID        string     `json:"id"`
	PackageID string     `json:"package_id"`
	Kind      event.Kind `json:"kind"`
	Priority  int        `json:"priority"`
	// Progress is normalized onto the engine's scale.
	Progress int   `json:"progress"`
	Raw      int64 `json:"raw"`
	RawMax   int64 `json:"raw_max"`
	// Extrapolation is set while a continuous kind is running.
	Extrapolation     *extrapolator.Extrapolation `json:"extrapolation,omitempty"`
	ColorHint         *palette.Color              `json:"color_hint,omitempty"`
	LastUpdate        time.Time                   `json:"last_update"`
	FreshnessDeadline time.Time                   `json:"freshness_deadline"`
	State             State                       `json:"state"`

	// surfaced is true while the arbiter knows about the source.
	surfaced bool
	// initial is the first percentage seen; it stays hidden until the
	// value changes.
	initial     int
	initialSeen bool
	changed     bool
}

func (s *Source) snapshot() Source {
	out := *s
	if s.Extrapolation != nil {
		x := *s.Extrapolation
		out.Extrapolation = &x
	}
	if s.ColorHint != nil {
		c := *s.ColorHint
		out.ColorHint = &c
	}
	return out
}

// sameRun compares run parameters; start times only count when the incoming
// run carries a timestamp from the event.
func sameRun(a *extrapolator.Extrapolation, b extrapolator.Extrapolation, stamped bool) bool {
	return a != nil &&
		a.Initial == b.Initial &&
		a.Duration == b.Duration &&
		a.Speed == b.Speed &&
		(!stamped || a.Start.Equal(b.Start))
}
