package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// PrometheusSink exports what the overlay currently shows.
type PrometheusSink struct {
	displays *prometheus.CounterVec
	hides    prometheus.Counter
	switches prometheus.Counter
	progress prometheus.Gauge
	priority prometheus.Gauge
	visible  prometheus.Gauge

	mu     sync.Mutex
	lastID string
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		displays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "overlay_displays_total",
			Help: "Display updates delivered to presenters, partitioned by source kind.",
		}, []string{"kind"}),
		hides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_hides_total",
			Help: "Hide requests delivered to presenters.",
		}),
		switches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "overlay_winner_switches_total",
			Help: "Times the displayed source changed to a different id.",
		}),
		progress: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_display_progress",
			Help: "Normalized progress currently displayed; 0 while hidden.",
		}),
		priority: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_display_priority",
			Help: "Priority of the displayed source; -1 while hidden.",
		}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "overlay_visible",
			Help: "1 while the indicator is shown.",
		}),
	}
	for _, collector := range []prometheus.Collector{
		s.displays,
		s.hides,
		s.switches,
		s.progress,
		s.priority,
		s.visible,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register overlay collector: %w", err)
		}
	}
	s.priority.Set(-1)
	return s, nil
}

// Consume updates the collectors. It is safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []event.Display) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range batch {
		if d.Removal {
			s.hides.Inc()
			s.progress.Set(0)
			s.priority.Set(-1)
			s.visible.Set(0)
			s.lastID = ""
			continue
		}
		s.displays.WithLabelValues(string(d.Kind)).Inc()
		if s.lastID != "" && s.lastID != d.ID {
			s.switches.Inc()
		}
		s.lastID = d.ID
		s.progress.Set(float64(d.Progress))
		s.priority.Set(float64(d.Priority))
		s.visible.Set(1)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
