// Package classifier decides which kind of progress source, if any, a
// notification envelope describes and extracts the kind-specific raw values.
// Everything here is pure: the same envelope and clock package always yield
// the same result.
package classifier

import (
	"math"
	"strconv"
	"strings"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// DefaultClockPackage is the package whose sort keys carry countdown timers.
const DefaultClockPackage = "com.google.android.deskclock"

// Result is the outcome of a successful classification.
type Result struct {
	Kind event.Kind
	// Percent is set for KindPercentage, in [1, 100].
	Percent int
	// Timer is set for KindCountdownTimer.
	Timer TimerState
}

// Classify applies the precedence media, countdown timer, download,
// percentage. The boolean is false when the envelope carries no progress.
func Classify(env event.Envelope, clockPackage string) (Result, bool) {
	switch {
	case env.MediaSession != "":
		return Result{Kind: event.KindMedia}, true
	case IsClockTimer(env, clockPackage):
		return Result{Kind: event.KindCountdownTimer, Timer: ParseTimerSortKey(env.SortKey)}, true
	case IsDownload(env):
		return Result{Kind: event.KindDownload}, true
	}
	if pct, ok := Percentage(env); ok && pct > 0 {
		return Result{Kind: event.KindPercentage, Percent: pct}, true
	}
	return Result{}, false
}

// IsClockTimer reports whether env is a timer notification from the clock app.
func IsClockTimer(env event.Envelope, clockPackage string) bool {
	return clockPackage != "" && env.PackageID == clockPackage && env.SortKey != ""
}

// IsDownload reports whether env carries a determinate numeric progress.
func IsDownload(env event.Envelope) bool {
	return env.Progress > 0 && env.ProgressMax > 0 && !env.Indeterminate
}

// Percentage searches title, text, subtext, the first long-text line holding
// a '%', then the first text line holding a '%'. The text before the first
// '%' must parse as a number; otherwise the search moves on. The value is
// rounded and clamped to [0, 100].
func Percentage(env event.Envelope) (int, bool) {
	candidates := []string{env.Title, env.Text, env.SubText}
	if line, ok := firstWithPercent(strings.Split(env.BigText, "\n")); ok {
		candidates = append(candidates, line)
	}
	if line, ok := firstWithPercent(env.TextLines); ok {
		candidates = append(candidates, line)
	}
	for _, field := range candidates {
		if v, ok := leadingPercent(field); ok {
			return v, true
		}
	}
	return 0, false
}

func firstWithPercent(lines []string) (string, bool) {
	for _, line := range lines {
		if strings.Contains(line, "%") {
			return line, true
		}
	}
	return "", false
}

func leadingPercent(field string) (int, bool) {
	before, _, found := strings.Cut(field, "%")
	if !found {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(before), 32)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	pct := int(math.Round(v))
	return min(max(pct, 0), 100), true
}
