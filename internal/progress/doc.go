// Package progress delivers the overlay's display updates to presenters. A
// non-blocking Hub batches updates on a background goroutine and fans them
// out to pluggable sinks such as structured logs, Prometheus gauges, Pub/Sub
// topics or WebSocket subscribers.
package progress
