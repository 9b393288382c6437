// Package sinks implements presenters for display updates: structured logs,
// Prometheus gauges, a Pub/Sub topic and WebSocket subscribers. Each sink
// satisfies progress.Sink.
package sinks
