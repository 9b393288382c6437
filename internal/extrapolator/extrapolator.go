// Package extrapolator projects continuously advancing positions (media
// playback, countdown timers) forward in time between discrete updates.
package extrapolator

import (
	"math"
	"time"
)

// Extrapolation is one linear run. Initial and Duration are in milliseconds
// and Speed is milliseconds of position per millisecond of wall time.
type Extrapolation struct {
	Initial  int64
	Duration int64
	Speed    float64
	Start    time.Time
}

// Projection is the position reported for one tick.
type Projection struct {
	Position int64
	// Snapped is true when the position was forced onto a boundary.
	Snapped bool
}

// Valid reports whether the run can produce any position.
func (x Extrapolation) Valid() bool {
	return x.Duration > 0 && x.Initial >= 0 && x.Initial <= x.Duration &&
		!math.IsNaN(x.Speed) && !math.IsInf(x.Speed, 0)
}

// Project computes Initial + (now-Start)*Speed. It returns false once the
// position leaves [0, Duration], at which point ticking must stop.
//
// Sampling on a fixed tick rarely lands exactly on a boundary, so a position
// within one tick of the end is snapped to Duration, and a position within
// one tick of zero on a falling run is snapped to the smallest raw value that
// still normalizes to a visible step on scale.
func (x Extrapolation) Project(now time.Time, tick time.Duration, scale int) (Projection, bool) {
	if !x.Valid() {
		return Projection{}, false
	}
	elapsed := float64(now.Sub(x.Start)) / float64(time.Millisecond)
	pos := float64(x.Initial) + elapsed*x.Speed
	if pos < 0 || pos > float64(x.Duration) {
		return Projection{}, false
	}
	step := math.Abs(float64(tick) / float64(time.Millisecond) * x.Speed)
	p := int64(pos)
	switch {
	case x.Speed > 0 && p < x.Duration && float64(x.Duration-p) < step:
		return Projection{Position: x.Duration, Snapped: true}, true
	case x.Speed < 0 && p > 0 && float64(p) < step:
		floor := MinVisible(x.Duration, scale)
		if p != floor {
			return Projection{Position: floor, Snapped: true}, true
		}
	}
	return Projection{Position: p}, true
}

// MinVisible is the smallest raw position in [1, duration] that normalizes to
// at least one step of scale.
func MinVisible(duration int64, scale int) int64 {
	if duration <= 0 || scale <= 0 {
		return 1
	}
	v := int64(math.Ceil(float64(duration) / float64(scale)))
	return min(max(v, 1), duration)
}

// Normalize reprojects raw in [0, rawMax] onto [0, scale], clamping first.
func Normalize(raw, rawMax int64, scale int) int {
	if rawMax <= 0 || scale <= 0 {
		return 0
	}
	raw = min(max(raw, 0), rawMax)
	return int(math.Round(float64(raw) / float64(rawMax) * float64(scale)))
}
