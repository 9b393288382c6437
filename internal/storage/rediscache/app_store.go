// Package rediscache fronts an AppConfigStore with a Redis read-through cache.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/store"
)

const (
	defaultTTL    = 10 * time.Minute
	defaultPrefix = "overlay:app:"
)

// Client is the subset of *redis.Client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Config tunes key naming and expiry.
type Config struct {
	TTL    time.Duration
	Prefix string
}

// AppConfigStore caches records from a backing store. Cache failures are
// logged and never fail the call.
type AppConfigStore struct {
	backing store.AppConfigStore
	client  Client
	ttl     time.Duration
	prefix  string
	logger  *zap.Logger
}

// NewAppConfigStore wraps backing with the Redis client.
func NewAppConfigStore(backing store.AppConfigStore, client Client, cfg Config, logger *zap.Logger) (*AppConfigStore, error) {
	if backing == nil {
		return nil, fmt.Errorf("backing store is required")
	}
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppConfigStore{
		backing: backing,
		client:  client,
		ttl:     cfg.TTL,
		prefix:  cfg.Prefix,
		logger:  logger,
	}, nil
}

// Dial connects a go-redis client and verifies it with PING.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// Get serves from the cache and falls back to the backing store.
func (s *AppConfigStore) Get(ctx context.Context, packageID string) (store.AppConfig, error) {
	if cfg, ok := s.cached(ctx, packageID); ok {
		return cfg, nil
	}
	cfg, err := s.backing.Get(ctx, packageID)
	if err != nil {
		return store.AppConfig{}, err //nolint:wrapcheck // preserve store.ErrNotFound for callers
	}
	s.remember(ctx, cfg)
	return cfg, nil
}

// GetOrCreate serves from the cache and falls back to the backing store.
func (s *AppConfigStore) GetOrCreate(ctx context.Context, packageID string) (store.AppConfig, error) {
	if cfg, ok := s.cached(ctx, packageID); ok {
		return cfg, nil
	}
	cfg, err := s.backing.GetOrCreate(ctx, packageID)
	if err != nil {
		return store.AppConfig{}, fmt.Errorf("backing get or create: %w", err)
	}
	s.remember(ctx, cfg)
	return cfg, nil
}

// Update writes through to the backing store and refreshes the cache entry.
func (s *AppConfigStore) Update(ctx context.Context, cfg store.AppConfig) error {
	if err := s.backing.Update(ctx, cfg); err != nil {
		if delErr := s.client.Del(ctx, s.key(cfg.PackageID)).Err(); delErr != nil {
			s.logger.Warn("app config cache invalidation failed", zap.String("package_id", cfg.PackageID), zap.Error(delErr))
		}
		return fmt.Errorf("backing update: %w", err)
	}
	s.remember(ctx, cfg)
	return nil
}

// All bypasses the cache.
func (s *AppConfigStore) All(ctx context.Context) ([]store.AppConfig, error) {
	all, err := s.backing.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("backing all: %w", err)
	}
	return all, nil
}

// Close closes the Redis client and the backing store.
func (s *AppConfigStore) Close() error {
	return errors.Join(s.client.Close(), s.backing.Close())
}

func (s *AppConfigStore) key(packageID string) string {
	return s.prefix + packageID
}

func (s *AppConfigStore) cached(ctx context.Context, packageID string) (store.AppConfig, bool) {
	raw, err := s.client.Get(ctx, s.key(packageID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("app config cache read failed", zap.String("package_id", packageID), zap.Error(err))
		}
		return store.AppConfig{}, false
	}
	var cfg store.AppConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		s.logger.Warn("app config cache entry corrupt", zap.String("package_id", packageID), zap.Error(err))
		return store.AppConfig{}, false
	}
	return cfg, true
}

func (s *AppConfigStore) remember(ctx context.Context, cfg store.AppConfig) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		s.logger.Warn("app config cache encode failed", zap.String("package_id", cfg.PackageID), zap.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.key(cfg.PackageID), payload, s.ttl).Err(); err != nil {
		s.logger.Warn("app config cache write failed", zap.String("package_id", cfg.PackageID), zap.Error(err))
	}
}
