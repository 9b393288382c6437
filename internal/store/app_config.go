package store

import (
	"context"
	"errors"
	"io"

	"github.com/JakeFAU/progress-overlay/internal/palette"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("record not found")

// AppConfig holds the overlay settings of one application.
type AppConfig struct {
	// PackageID is the unique key.
	PackageID string `json:"package_id"`
	// ShowProgress disables the overlay for the app when false.
	ShowProgress bool `json:"show_progress"`
	// Color is the app override, or the last color derived from its
	// notifications when UseDefaultColor is set.
	Color *palette.Color `json:"color,omitempty"`
	// UseDefaultColor ignores Color in favor of the global appearance.
	UseDefaultColor bool `json:"use_default_color"`
	// UseMaterialYouColor selects the system accent as the app color.
	UseMaterialYouColor bool `json:"use_material_you_color"`
}

// DefaultAppConfig is the record materialized for an unseen package.
func DefaultAppConfig(packageID string) AppConfig {
	return AppConfig{
		PackageID:       packageID,
		ShowProgress:    true,
		UseDefaultColor: true,
	}
}

// Validate performs coarse validation before writes.
func (c AppConfig) Validate() error {
	if c.PackageID == "" {
		return errors.New("package_id is required")
	}
	return nil
}

// AppConfigStore persists AppConfig records keyed by package id.
type AppConfigStore interface {
	// Get returns ErrNotFound for unknown packages.
	Get(ctx context.Context, packageID string) (AppConfig, error)
	// GetOrCreate materializes DefaultAppConfig for unknown packages.
	GetOrCreate(ctx context.Context, packageID string) (AppConfig, error)
	// Update replaces the record, creating it when missing.
	Update(ctx context.Context, cfg AppConfig) error
	// All lists every record ordered by package id.
	All(ctx context.Context) ([]AppConfig, error)
	Close() error
}

// IconStore serves encoded application icons keyed by package id.
type IconStore interface {
	// Open returns ErrNotFound when no icon is stored for the package.
	Open(ctx context.Context, packageID string) (io.ReadCloser, error)
	// Put stores an encoded icon.
	Put(ctx context.Context, packageID string, r io.Reader) error
}
