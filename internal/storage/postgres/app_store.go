// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "app_configs"

// AppConfigStoreConfig controls the Postgres connection pool used for app settings.
type AppConfigStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// AppConfigStore persists AppConfig rows in Postgres.
type AppConfigStore struct {
	pool  pool
	table string
}

// NewAppConfigStore connects to Postgres using the provided config.
func NewAppConfigStore(ctx context.Context, cfg AppConfigStoreConfig) (*AppConfigStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewAppConfigStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewAppConfigStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewAppConfigStoreWithPool(p pool, table string) (*AppConfigStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &AppConfigStore{pool: p, table: table}, nil
}

// EnsureSchema creates the settings table when it does not exist.
func (s *AppConfigStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	package_id TEXT PRIMARY KEY,
	show_progress BOOLEAN NOT NULL DEFAULT TRUE,
	color BIGINT NULL,
	use_default_color BOOLEAN NOT NULL DEFAULT TRUE,
	use_material_you_color BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *AppConfigStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

const columns = "package_id, show_progress, color, use_default_color, use_material_you_color"

// Get fetches one row; store.ErrNotFound when absent.
func (s *AppConfigStore) Get(ctx context.Context, packageID string) (store.AppConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE package_id = $1`, columns, s.table)
	cfg, err := scanAppConfig(s.pool.QueryRow(ctx, query, packageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.AppConfig{}, store.ErrNotFound
		}
		return store.AppConfig{}, fmt.Errorf("get app config: %w", err)
	}
	return cfg, nil
}

// GetOrCreate returns the stored row, inserting defaults only when it is
// missing. Existing rows are never written.
func (s *AppConfigStore) GetOrCreate(ctx context.Context, packageID string) (store.AppConfig, error) {
	if packageID == "" {
		return store.AppConfig{}, fmt.Errorf("package_id is required")
	}
	cfg, err := s.Get(ctx, packageID)
	if !errors.Is(err, store.ErrNotFound) {
		return cfg, err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (package_id) VALUES ($1)
ON CONFLICT (package_id) DO NOTHING
RETURNING %s`, s.table, columns)
	cfg, err = scanAppConfig(s.pool.QueryRow(ctx, query, packageID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		// Inserted concurrently since the lookup.
		return s.Get(ctx, packageID)
	case err != nil:
		return store.AppConfig{}, fmt.Errorf("get or create app config: %w", err)
	}
	return cfg, nil
}

// Update upserts the full row.
func (s *AppConfigStore) Update(ctx context.Context, cfg store.AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (package_id, show_progress, color, use_default_color, use_material_you_color, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (package_id) DO UPDATE SET
	show_progress = EXCLUDED.show_progress,
	color = EXCLUDED.color,
	use_default_color = EXCLUDED.use_default_color,
	use_material_you_color = EXCLUDED.use_material_you_color,
	updated_at = EXCLUDED.updated_at`, s.table)
	if _, err := s.pool.Exec(
		ctx,
		query,
		cfg.PackageID,
		cfg.ShowProgress,
		colorToInt8(cfg.Color),
		cfg.UseDefaultColor,
		cfg.UseMaterialYouColor,
	); err != nil {
		return fmt.Errorf("update app config: %w", err)
	}
	return nil
}

// All lists every row ordered by package id.
func (s *AppConfigStore) All(ctx context.Context) ([]store.AppConfig, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY package_id`, columns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list app configs: %w", err)
	}
	defer rows.Close()
	var out []store.AppConfig
	for rows.Next() {
		cfg, err := scanAppConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan app config: %w", err)
		}
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate app configs: %w", err)
	}
	return out, nil
}

func scanAppConfig(row pgx.Row) (store.AppConfig, error) {
	var (
		cfg   store.AppConfig
		color pgtype.Int8
	)
	if err := row.Scan(
		&cfg.PackageID,
		&cfg.ShowProgress,
		&color,
		&cfg.UseDefaultColor,
		&cfg.UseMaterialYouColor,
	); err != nil {
		return store.AppConfig{}, err
	}
	if color.Valid {
		c := palette.Color(uint32(color.Int64))
		cfg.Color = &c
	}
	return cfg, nil
}

func colorToInt8(c *palette.Color) pgtype.Int8 {
	if c == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: int64(*c), Valid: true}
}
