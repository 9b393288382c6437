// Package store defines the persistence contracts for per-app overlay
// settings and application icons. Implementations live under
// internal/storage; this package must not import database drivers or
// concrete clients.
package store
