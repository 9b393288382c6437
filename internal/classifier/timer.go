package classifier

import (
	"strconv"
	"strings"
	"time"
)

const (
	remainingMarker = "⏳"
	totalMarker     = "Σ"
)

// TimerState is the decoded clock sort key, e.g. "…|RUNNING|⏳0:04:10|Σ0:05:00|…".
type TimerState struct {
	Running      bool
	Paused       bool
	Remaining    time.Duration
	Total        time.Duration
	HasRemaining bool
	HasTotal     bool
}

// Complete reports whether both the remaining and total segments were found.
func (t TimerState) Complete() bool {
	return t.HasRemaining && t.HasTotal
}

// ParseTimerSortKey splits key on '|' and reads the first remaining and total
// segments as H:MM:SS. Missing or unparsable components count as zero.
func ParseTimerSortKey(key string) TimerState {
	state := TimerState{
		Running: strings.Contains(key, "RUNNING"),
		Paused:  strings.Contains(key, "PAUSED"),
	}
	for _, segment := range strings.Split(key, "|") {
		if !state.HasRemaining {
			if _, after, ok := strings.Cut(segment, remainingMarker); ok {
				state.Remaining = parseClock(after)
				state.HasRemaining = true
				continue
			}
		}
		if !state.HasTotal {
			if _, after, ok := strings.Cut(segment, totalMarker); ok {
				state.Total = parseClock(after)
				state.HasTotal = true
			}
		}
	}
	return state
}

func parseClock(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	var units [3]int64
	for i := 0; i < len(units) && i < len(parts); i++ {
		if v, err := strconv.ParseInt(parts[i], 10, 64); err == nil {
			units[i] = v
		}
	}
	return time.Duration(units[0])*time.Hour +
		time.Duration(units[1])*time.Minute +
		time.Duration(units[2])*time.Second
}
