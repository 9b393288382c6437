// Package api hosts the HTTP server, middleware, and REST handlers of the
// overlay service. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/events to ingest notification envelopes, synchronously or
//     with ?async=true.
//   - POST /v1/classify to dry-run the classifier.
//   - GET /v1/sources and /v1/display for tracker snapshots.
//   - GET /v1/display/stream for the live WebSocket feed.
//   - GET|PUT /v1/apps/... for per-app settings and icons.
package api
