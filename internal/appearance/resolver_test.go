package appearance_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/appearance"
	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/storage/memory"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

const (
	accent palette.Color = 0xFF6750A4
	deflt  palette.Color = 0xFF00FF00
)

func ptr(c palette.Color) *palette.Color { return &c }

func solidPNG(t *testing.T, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := range 8 {
		for x := range 8 {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestResolveOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	hint := palette.Color(0xFFAA0000)
	override := palette.Color(0xFF0000AA)

	tests := []struct {
		name     string
		settings appearance.Settings
		app      store.AppConfig
		hint     *palette.Color
		want     palette.Color
	}{
		{
			name:     "notification color",
			settings: appearance.Settings{UseNotificationColor: true, Default: deflt},
			app:      store.DefaultAppConfig("a"),
			hint:     &hint,
			want:     hint,
		},
		{
			name:     "notification switch off",
			settings: appearance.Settings{Default: deflt},
			app:      store.DefaultAppConfig("a"),
			hint:     &hint,
			want:     deflt,
		},
		{
			name:     "app override",
			settings: appearance.Settings{UseNotificationColor: true, Default: deflt},
			app:      store.AppConfig{PackageID: "a", ShowProgress: true, Color: &override},
			hint:     &hint,
			want:     override,
		},
		{
			name:     "material you",
			settings: appearance.Settings{UseNotificationColor: true, Accent: accent, Default: deflt},
			app:      store.AppConfig{PackageID: "a", ShowProgress: true, Color: &override, UseMaterialYouColor: true},
			want:     accent,
		},
		{
			name:     "system accent",
			settings: appearance.Settings{UseSystemAccent: true, Accent: accent, Default: deflt},
			app:      store.DefaultAppConfig("a"),
			want:     accent,
		},
		{
			name:     "fixed default",
			settings: appearance.Settings{},
			app:      store.DefaultAppConfig("a"),
			want:     appearance.DefaultColor,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			r := appearance.NewResolver(tc.settings, memory.NewAppConfigStore(), nil, nil)
			require.Equal(t, tc.want, r.Resolve(ctx, tc.app, tc.hint))
		})
	}
}

func TestResolvePersistsDerivedColor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	apps := memory.NewAppConfigStore()
	app, err := apps.GetOrCreate(ctx, "com.example")
	require.NoError(t, err)

	r := appearance.NewResolver(appearance.Settings{UseNotificationColor: true}, apps, nil, nil)
	got := r.Resolve(ctx, app, ptr(0xFF123456))
	require.Equal(t, palette.Color(0xFF123456), got)

	stored, err := apps.Get(ctx, "com.example")
	require.NoError(t, err)
	require.NotNil(t, stored.Color)
	require.Equal(t, palette.Color(0xFF123456), *stored.Color)
	require.True(t, stored.UseDefaultColor)
}

func TestResolveKeepsSettingsChangedSinceRead(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	apps := memory.NewAppConfigStore()
	stale, err := apps.GetOrCreate(ctx, "com.example")
	require.NoError(t, err)

	latest := stale
	latest.ShowProgress = false
	require.NoError(t, apps.Update(ctx, latest))

	r := appearance.NewResolver(appearance.Settings{UseNotificationColor: true}, apps, nil, nil)
	require.Equal(t, palette.Color(0xFF123456), r.Resolve(ctx, stale, ptr(0xFF123456)))

	stored, err := apps.Get(ctx, "com.example")
	require.NoError(t, err)
	require.False(t, stored.ShowProgress)
	require.NotNil(t, stored.Color)
	require.Equal(t, palette.Color(0xFF123456), *stored.Color)
}

func TestResolveFallsBackToIconSwatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	icons := memory.NewIconStore()
	require.NoError(t, icons.Put(ctx, "com.example", bytes.NewReader(solidPNG(t, color.NRGBA{R: 200, G: 190, B: 180, A: 255}))))

	r := appearance.NewResolver(appearance.Settings{UseNotificationColor: true}, memory.NewAppConfigStore(), icons, nil)
	got := r.Resolve(ctx, store.DefaultAppConfig("com.example"), nil)
	require.Equal(t, palette.Color(0xFFC8BEB4), got)

	require.NoError(t, icons.Put(ctx, "com.example", bytes.NewReader([]byte("not an image"))))
	require.Equal(t, palette.Color(0xFFC8BEB4), r.Resolve(ctx, store.DefaultAppConfig("com.example"), nil), "swatch is cached")

	r.Forget("com.example")
	require.Equal(t, appearance.DefaultColor, r.Resolve(ctx, store.DefaultAppConfig("com.example"), nil))
}
