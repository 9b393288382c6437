// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/progress-overlay/internal/store"
)

// AppConfigStore keeps AppConfig records in a map.
type AppConfigStore struct {
	mu   sync.RWMutex
	apps map[string]store.AppConfig
}

// NewAppConfigStore constructs an empty AppConfigStore.
func NewAppConfigStore() *AppConfigStore {
	return &AppConfigStore{apps: make(map[string]store.AppConfig)}
}

// Get fetches a record by package id.
func (s *AppConfigStore) Get(_ context.Context, packageID string) (store.AppConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.apps[packageID]
	if !ok {
		return store.AppConfig{}, store.ErrNotFound
	}
	return clone(cfg), nil
}

// GetOrCreate fetches a record, inserting defaults for unseen packages.
func (s *AppConfigStore) GetOrCreate(_ context.Context, packageID string) (store.AppConfig, error) {
	if packageID == "" {
		return store.AppConfig{}, fmt.Errorf("package_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.apps[packageID]
	if !ok {
		cfg = store.DefaultAppConfig(packageID)
		s.apps[packageID] = cfg
	}
	return clone(cfg), nil
}

// Update replaces the record for cfg.PackageID.
func (s *AppConfigStore) Update(_ context.Context, cfg store.AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apps[cfg.PackageID] = clone(cfg)
	return nil
}

// All lists every record ordered by package id.
func (s *AppConfigStore) All(_ context.Context) ([]store.AppConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.AppConfig, 0, len(s.apps))
	for _, cfg := range s.apps {
		out = append(out, clone(cfg))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageID < out[j].PackageID })
	return out, nil
}

// Close implements store.AppConfigStore; it performs no action.
func (s *AppConfigStore) Close() error {
	return nil
}

func clone(cfg store.AppConfig) store.AppConfig {
	if cfg.Color != nil {
		c := *cfg.Color
		cfg.Color = &c
	}
	return cfg
}
