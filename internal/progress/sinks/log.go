package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

// LogSink writes every display update as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each display in the batch.
func (s *LogSink) Consume(_ context.Context, batch []event.Display) error {
	for _, d := range batch {
		if d.Removal {
			s.logger.Info("overlay hidden",
				zap.String("source_id", d.ID),
				zap.String("package_id", d.PackageID),
				zap.Time("at", d.At),
			)
			continue
		}
		s.logger.Info("overlay shown",
			zap.String("source_id", d.ID),
			zap.String("package_id", d.PackageID),
			zap.String("kind", string(d.Kind)),
			zap.Int("progress", d.Progress),
			zap.Int("priority", d.Priority),
			zap.Stringer("color", d.Color),
			zap.Time("at", d.At),
		)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
