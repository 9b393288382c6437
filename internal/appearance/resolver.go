// Package appearance resolves the indicator color for the winning source.
package appearance

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

// DefaultColor is used when nothing else applies.
const DefaultColor palette.Color = 0xFF2196F3

// Settings are the global appearance switches.
type Settings struct {
	// UseNotificationColor derives the color from the notification or the
	// app icon for apps that keep the default color.
	UseNotificationColor bool
	// UseSystemAccent falls back to Accent instead of Default.
	UseSystemAccent bool
	Accent          palette.Color
	Default         palette.Color
}

// Resolver picks colors and remembers icon swatches per package.
type Resolver struct {
	settings Settings
	apps     store.AppConfigStore
	icons    store.IconStore
	logger   *zap.Logger

	mu     sync.Mutex
	swatch map[string]*palette.Color
}

// NewResolver constructs a Resolver. icons may be nil.
func NewResolver(settings Settings, apps store.AppConfigStore, icons store.IconStore, logger *zap.Logger) *Resolver {
	if settings.Default == 0 {
		settings.Default = DefaultColor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		settings: settings,
		apps:     apps,
		icons:    icons,
		logger:   logger,
		swatch:   make(map[string]*palette.Color),
	}
}

// Resolve returns the color for a source of app carrying hint. A color
// derived from the notification is written back to the app's record.
func (r *Resolver) Resolve(ctx context.Context, app store.AppConfig, hint *palette.Color) palette.Color {
	if app.UseDefaultColor && r.settings.UseNotificationColor {
		derived := hint
		if derived == nil {
			derived = r.iconColor(ctx, app.PackageID)
		}
		if derived != nil {
			r.persist(ctx, app, *derived)
			return *derived
		}
	}
	if !app.UseDefaultColor {
		if app.UseMaterialYouColor {
			return r.settings.Accent
		}
		if app.Color != nil {
			return *app.Color
		}
	}
	if r.settings.UseSystemAccent {
		return r.settings.Accent
	}
	return r.settings.Default
}

// Forget drops the cached swatch for packageID, e.g. after a new icon upload.
func (r *Resolver) Forget(packageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.swatch, packageID)
}

func (r *Resolver) iconColor(ctx context.Context, packageID string) *palette.Color {
	if r.icons == nil {
		return nil
	}
	r.mu.Lock()
	c, ok := r.swatch[packageID]
	r.mu.Unlock()
	if ok {
		return c
	}

	c = r.extract(ctx, packageID)
	r.mu.Lock()
	r.swatch[packageID] = c
	r.mu.Unlock()
	return c
}

func (r *Resolver) extract(ctx context.Context, packageID string) *palette.Color {
	rc, err := r.icons.Open(ctx, packageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("icon unavailable", zap.String("package_id", packageID), zap.Error(err))
		}
		return nil
	}
	defer func() {
		if closeErr := rc.Close(); closeErr != nil {
			r.logger.Debug("icon close failed", zap.String("package_id", packageID), zap.Error(closeErr))
		}
	}()
	p, err := palette.FromReader(rc)
	if err != nil {
		r.logger.Warn("icon palette extraction failed", zap.String("package_id", packageID), zap.Error(err))
		return nil
	}
	c, ok := p.Preferred()
	if !ok {
		return nil
	}
	return &c
}

// persist writes the derived color onto the latest stored record so that
// settings changed since app was read are kept.
func (r *Resolver) persist(ctx context.Context, app store.AppConfig, c palette.Color) {
	if r.apps == nil || (app.Color != nil && *app.Color == c) {
		return
	}
	current, err := r.apps.Get(ctx, app.PackageID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			r.logger.Warn("reload app config failed", zap.String("package_id", app.PackageID), zap.Error(err))
		}
		return
	}
	if !current.UseDefaultColor || (current.Color != nil && *current.Color == c) {
		return
	}
	current.Color = &c
	if err := r.apps.Update(ctx, current); err != nil {
		r.logger.Warn("persist derived color failed", zap.String("package_id", app.PackageID), zap.Error(err))
	}
}
