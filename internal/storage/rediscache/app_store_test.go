package rediscache_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/storage/memory"
	"github.com/JakeFAU/progress-overlay/internal/storage/rediscache"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

type fakeClient struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
	getErr error
	gets   int
	closed bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.values, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

type failingStore struct {
	store.AppConfigStore
}

func (failingStore) Update(context.Context, store.AppConfig) error {
	return errors.New("db down")
}

func TestGetOrCreatePopulatesCache(t *testing.T) {
	t.Parallel()
	backing := memory.NewAppConfigStore()
	client := newFakeClient()
	s, err := rediscache.NewAppConfigStore(backing, client, rediscache.Config{TTL: time.Minute}, nil)
	require.NoError(t, err)

	cfg, err := s.GetOrCreate(context.Background(), "com.example")
	require.NoError(t, err)
	require.True(t, cfg.ShowProgress)

	raw, ok := client.values["overlay:app:com.example"]
	require.True(t, ok)
	require.Equal(t, time.Minute, client.ttls["overlay:app:com.example"])
	var cached store.AppConfig
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	require.Equal(t, cfg, cached)
}

func TestGetServesFromCache(t *testing.T) {
	t.Parallel()
	backing := memory.NewAppConfigStore()
	client := newFakeClient()
	c := palette.Color(0xFF112233)
	payload, err := json.Marshal(store.AppConfig{PackageID: "com.cached", ShowProgress: false, Color: &c})
	require.NoError(t, err)
	client.values["overlay:app:com.cached"] = string(payload)

	s, err := rediscache.NewAppConfigStore(backing, client, rediscache.Config{}, nil)
	require.NoError(t, err)

	cfg, err := s.Get(context.Background(), "com.cached")
	require.NoError(t, err)
	require.False(t, cfg.ShowProgress)
	require.NotNil(t, cfg.Color)
	require.Equal(t, c, *cfg.Color)

	_, err = backing.Get(context.Background(), "com.cached")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetMissReturnsNotFound(t *testing.T) {
	t.Parallel()
	s, err := rediscache.NewAppConfigStore(memory.NewAppConfigStore(), newFakeClient(), rediscache.Config{}, nil)
	require.NoError(t, err)

	_, err = s.Get(context.Background(), "com.unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCacheReadFailureFallsBack(t *testing.T) {
	t.Parallel()
	backing := memory.NewAppConfigStore()
	require.NoError(t, backing.Update(context.Background(), store.AppConfig{PackageID: "com.example", ShowProgress: true}))
	client := newFakeClient()
	client.getErr = errors.New("connection refused")

	s, err := rediscache.NewAppConfigStore(backing, client, rediscache.Config{}, nil)
	require.NoError(t, err)

	cfg, err := s.Get(context.Background(), "com.example")
	require.NoError(t, err)
	require.Equal(t, "com.example", cfg.PackageID)
}

func TestUpdateWritesThrough(t *testing.T) {
	t.Parallel()
	backing := memory.NewAppConfigStore()
	client := newFakeClient()
	s, err := rediscache.NewAppConfigStore(backing, client, rediscache.Config{Prefix: "t:"}, nil)
	require.NoError(t, err)

	_, err = s.GetOrCreate(context.Background(), "com.example")
	require.NoError(t, err)

	update := store.AppConfig{PackageID: "com.example", ShowProgress: false}
	require.NoError(t, s.Update(context.Background(), update))

	fromBacking, err := backing.Get(context.Background(), "com.example")
	require.NoError(t, err)
	require.False(t, fromBacking.ShowProgress)

	fromCache, err := s.Get(context.Background(), "com.example")
	require.NoError(t, err)
	require.False(t, fromCache.ShowProgress)
}

func TestUpdateFailureInvalidates(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	client.values["overlay:app:com.example"] = `{"package_id":"com.example","show_progress":true}`
	s, err := rediscache.NewAppConfigStore(failingStore{memory.NewAppConfigStore()}, client, rediscache.Config{}, nil)
	require.NoError(t, err)

	err = s.Update(context.Background(), store.AppConfig{PackageID: "com.example"})
	require.Error(t, err)
	_, ok := client.values["overlay:app:com.example"]
	require.False(t, ok)
}

func TestCloseClosesClient(t *testing.T) {
	t.Parallel()
	client := newFakeClient()
	s, err := rediscache.NewAppConfigStore(memory.NewAppConfigStore(), client, rediscache.Config{}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.True(t, client.closed)
}

func TestNewAppConfigStoreValidation(t *testing.T) {
	t.Parallel()
	_, err := rediscache.NewAppConfigStore(nil, newFakeClient(), rediscache.Config{}, nil)
	require.Error(t, err)
	_, err = rediscache.NewAppConfigStore(memory.NewAppConfigStore(), nil, rediscache.Config{}, nil)
	require.Error(t, err)
}
