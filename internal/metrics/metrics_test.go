package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

func TestSanitizeLabel(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain", "download", "download"},
		{"upper", "Countdown_Timer", "countdown_timer"},
		{"spaces", " media ", "media"},
		{"punctuation", "com.example/app", "com_example_app"},
		{"empty", "", "none"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeLabel(tc.input); got != tc.expected {
				t.Errorf("SanitizeLabel(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if overlayEventsTotal == nil || overlayActiveSources == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestTrackerObserver(t *testing.T) {
	obs := NewTrackerObserver()
	before := testutil.ToFloat64(overlayEventsTotal.WithLabelValues("percentage", "created"))
	obs.ObserveEvent(event.KindPercentage, "created")
	if got := testutil.ToFloat64(overlayEventsTotal.WithLabelValues("percentage", "created")); got != before+1 {
		t.Errorf("expected overlay_events_total to grow by one, got %f -> %f", before, got)
	}

	obs.SetActiveSources(3)
	if got := testutil.ToFloat64(overlayActiveSources); got != 3 {
		t.Errorf("expected overlay_active_sources 3, got %f", got)
	}
}

// Fuzz test for SanitizeLabel.
func FuzzSanitizeLabel(f *testing.F) {
	for _, tc := range []string{"download", "Media", "a.b-c", ""} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeLabel(orig)
		if sanitized == "" {
			t.Errorf("SanitizeLabel(%q) returned an empty string", orig)
		}
	})
}
