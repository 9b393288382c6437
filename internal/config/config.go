// Package config loads and validates overlay service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/progress-overlay/internal/arbiter"
	"github.com/JakeFAU/progress-overlay/internal/palette"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Tracker     TrackerConfig     `mapstructure:"tracker"`
	Filters     FiltersConfig     `mapstructure:"filters"`
	Arbitration ArbitrationConfig `mapstructure:"arbitration"`
	Appearance  AppearanceConfig  `mapstructure:"appearance"`
	Store       StoreConfig       `mapstructure:"store"`
	DB          DBConfig          `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Icons       IconsConfig       `mapstructure:"icons"`
	Hub         HubConfig         `mapstructure:"hub"`
	Sinks       SinksConfig       `mapstructure:"sinks"`
	PubSub      PubSubConfig      `mapstructure:"pubsub"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features and optional file output.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
	MaxAgeDays  int    `mapstructure:"max_age_days"`
	Compress    bool   `mapstructure:"compress"`
}

// TrackerConfig governs source lifecycles and the event loop.
type TrackerConfig struct {
	Scale        int           `mapstructure:"scale"`
	Freshness    time.Duration `mapstructure:"freshness"`
	Tick         time.Duration `mapstructure:"tick"`
	RemovalGrace time.Duration `mapstructure:"removal_grace"`
	InboxSize    int           `mapstructure:"inbox_size"`
	ClockPackage string        `mapstructure:"clock_package"`
	SelfPackage  string        `mapstructure:"self_package"`
	User         string        `mapstructure:"user"`
}

// FiltersConfig holds the global per-kind switches.
type FiltersConfig struct {
	ShowForDownloads bool `mapstructure:"show_for_downloads"`
	ShowForMedia     bool `mapstructure:"show_for_media"`
}

// ArbitrationConfig selects the winner policy: "priority" or "sticky".
type ArbitrationConfig struct {
	Policy string `mapstructure:"policy"`
}

// AppearanceConfig holds the global color switches. Colors are #RRGGBB or #AARRGGBB.
type AppearanceConfig struct {
	UseNotificationColor bool   `mapstructure:"use_notification_color"`
	UseSystemAccent      bool   `mapstructure:"use_system_accent"`
	Accent               string `mapstructure:"accent"`
	Default              string `mapstructure:"default"`
}

// StoreConfig selects the AppConfig backend: "memory" or "postgres".
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RedisConfig enables the read-through AppConfig cache.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// IconsConfig selects where app icons live: "none", "memory", "local" or "gcs".
type IconsConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// HubConfig tunes display batching.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// SinksConfig toggles display presenters.
type SinksConfig struct {
	Log              bool `mapstructure:"log"`
	Prometheus       bool `mapstructure:"prometheus"`
	PubSub           bool `mapstructure:"pubsub"`
	WebSocket        bool `mapstructure:"websocket"`
	WebSocketBacklog int  `mapstructure:"websocket_backlog"`
}

// PubSubConfig holds metadata for the Pub/Sub presenter.
type PubSubConfig struct {
	ProjectID   string `mapstructure:"project_id"`
	TopicName   string `mapstructure:"topic_name"`
	OrderingKey string `mapstructure:"ordering_key"`
}

// RateLimitConfig bounds per-package ingestion. EventsPerSecond <= 0 disables it.
type RateLimitConfig struct {
	EventsPerSecond float64 `mapstructure:"events_per_second"`
	Burst           int     `mapstructure:"burst"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("OVERLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.request_timeout", "10s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("tracker.scale", 1000)
	v.SetDefault("tracker.freshness", "10s")
	v.SetDefault("tracker.tick", "1s")
	v.SetDefault("tracker.removal_grace", "1s")
	v.SetDefault("tracker.inbox_size", 1024)
	v.SetDefault("tracker.clock_package", "com.google.android.deskclock")
	v.SetDefault("filters.show_for_downloads", true)
	v.SetDefault("filters.show_for_media", true)
	v.SetDefault("arbitration.policy", "priority")
	v.SetDefault("appearance.use_notification_color", true)
	v.SetDefault("appearance.use_system_accent", false)
	v.SetDefault("appearance.accent", "#FF2196F3")
	v.SetDefault("appearance.default", "#FF2196F3")
	v.SetDefault("store.backend", "memory")
	v.SetDefault("db.table", "app_configs")
	v.SetDefault("redis.ttl", "10m")
	v.SetDefault("redis.prefix", "overlay:app:")
	v.SetDefault("icons.backend", "none")
	v.SetDefault("icons.prefix", "icons")
	v.SetDefault("hub.buffer_size", 256)
	v.SetDefault("hub.max_batch_events", 32)
	v.SetDefault("hub.max_batch_wait", "20ms")
	v.SetDefault("hub.sink_timeout", "10s")
	v.SetDefault("sinks.log", true)
	v.SetDefault("sinks.prometheus", true)
	v.SetDefault("sinks.websocket", true)
	v.SetDefault("sinks.websocket_backlog", 16)
	v.SetDefault("pubsub.ordering_key", "overlay")
	v.SetDefault("ratelimit.events_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Tracker.Scale <= 0 {
		return fmt.Errorf("tracker.scale must be > 0")
	}
	if c.Tracker.Freshness <= 0 || c.Tracker.Tick <= 0 || c.Tracker.RemovalGrace <= 0 {
		return fmt.Errorf("tracker.freshness, tracker.tick and tracker.removal_grace must be > 0")
	}
	if _, err := arbiter.PolicyByName(c.Arbitration.Policy); err != nil {
		return fmt.Errorf("arbitration.policy: %w", err)
	}
	if _, err := c.AccentColor(); err != nil {
		return fmt.Errorf("appearance.accent: %w", err)
	}
	if _, err := c.DefaultColor(); err != nil {
		return fmt.Errorf("appearance.default: %w", err)
	}
	switch c.Store.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when store.backend is postgres")
		}
	default:
		return fmt.Errorf("store.backend must be memory or postgres, got %q", c.Store.Backend)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be set when redis is enabled")
	}
	switch c.Icons.Backend {
	case "none", "memory":
	case "local":
		if c.Icons.Dir == "" {
			return fmt.Errorf("icons.dir must be set when icons.backend is local")
		}
	case "gcs":
		if c.Icons.Bucket == "" {
			return fmt.Errorf("icons.bucket must be set when icons.backend is gcs")
		}
	default:
		return fmt.Errorf("icons.backend must be none, memory, local or gcs, got %q", c.Icons.Backend)
	}
	if c.Sinks.PubSub && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when sinks.pubsub is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// AccentColor parses appearance.accent.
func (c Config) AccentColor() (palette.Color, error) {
	return parseColor(c.Appearance.Accent)
}

// DefaultColor parses appearance.default.
func (c Config) DefaultColor() (palette.Color, error) {
	return parseColor(c.Appearance.Default)
}

func parseColor(s string) (palette.Color, error) {
	if s == "" {
		return 0, nil
	}
	col, err := palette.ParseHex(s)
	if err != nil {
		return 0, fmt.Errorf("parse color: %w", err)
	}
	return col, nil
}
