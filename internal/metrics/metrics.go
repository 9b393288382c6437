// Package metrics exposes Prometheus collectors for the overlay service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

var (
	overlayEventsTotal         *prometheus.CounterVec
	overlayActiveSources       prometheus.Gauge
	overlayRateLimitedTotal    prometheus.Counter
	overlayAppUpdatesTotal     prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		overlayEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "overlay_events_total",
				Help: "Inbound notification events, labeled by classified kind and outcome.",
			},
			[]string{"kind", "action"},
		)

		overlayActiveSources = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "overlay_active_sources",
				Help: "Number of progress sources currently tracked as active.",
			},
		)

		overlayRateLimitedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "overlay_events_rate_limited_total",
				Help: "Inbound events rejected by the per-package rate limiter.",
			},
		)

		overlayAppUpdatesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "overlay_app_config_updates_total",
				Help: "AppConfig writes accepted through the API.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeLabel lowercases v and maps anything outside [a-z0-9_] to '_'.
// It returns "none" for empty input.
func SanitizeLabel(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "none"
	}
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, v)
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveEvent counts one inbound event.
func ObserveEvent(kind, action string) {
	overlayEventsTotal.WithLabelValues(SanitizeLabel(kind), SanitizeLabel(action)).Inc()
}

// SetActiveSources records the number of active sources.
func SetActiveSources(n int) {
	overlayActiveSources.Set(float64(n))
}

// ObserveRateLimited counts an event rejected by the rate limiter.
func ObserveRateLimited() {
	overlayRateLimitedTotal.Inc()
}

// ObserveAppUpdate counts an accepted AppConfig write.
func ObserveAppUpdate() {
	overlayAppUpdatesTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// TrackerObserver forwards tracker counters to the package collectors.
type TrackerObserver struct{}

// NewTrackerObserver initializes the collectors and returns an observer.
func NewTrackerObserver() TrackerObserver {
	Init()
	return TrackerObserver{}
}

// ObserveEvent implements tracker.Observer.
func (TrackerObserver) ObserveEvent(kind event.Kind, action string) {
	ObserveEvent(string(kind), action)
}

// SetActiveSources implements tracker.Observer.
func (TrackerObserver) SetActiveSources(n int) {
	SetActiveSources(n)
}
