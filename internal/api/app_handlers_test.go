package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/store"
	"github.com/JakeFAU/progress-overlay/internal/tracker"
)

func TestApps_PutGetList(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/v1/apps/com.app", nil).Code)

	rec := ts.do(t, http.MethodPut, "/v1/apps/com.app", `{"color":"#336699","use_default_color":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/apps/com.app", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		App store.AppConfig `json:"app"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.True(t, got.App.ShowProgress)
	require.False(t, got.App.UseDefaultColor)
	require.NotNil(t, got.App.Color)
	require.Equal(t, palette.Color(0xFF336699), *got.App.Color)

	rec = ts.do(t, http.MethodPut, "/v1/apps/com.app", `{"color":""}`)
	require.Equal(t, http.StatusOK, rec.Code)
	stored, err := ts.apps.Get(context.Background(), "com.app")
	require.NoError(t, err)
	require.Nil(t, stored.Color)

	rec = ts.do(t, http.MethodGet, "/v1/apps", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Apps []store.AppConfig `json:"apps"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Apps, 1)
}

func TestApps_PutRejectsBadInput(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/v1/apps/com.app", "{").Code)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/v1/apps/com.app", `{"color":"teal"}`).Code)
}

func TestApps_DisablingRemovesActiveSource(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	rec := ts.do(t, http.MethodPost, "/v1/events", event.Envelope{
		ID: "dl-1", PackageID: "com.store", Progress: 5, ProgressMax: 10,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPut, "/v1/apps/com.store", `{"show_progress":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/sources", nil)
	var body struct {
		Sources []tracker.Source `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Sources)

	rec = ts.do(t, http.MethodGet, "/v1/display", nil)
	var disp struct {
		Visible bool `json:"visible"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &disp))
	require.False(t, disp.Visible)

	rec = ts.do(t, http.MethodPost, "/v1/events", event.Envelope{
		ID: "dl-2", PackageID: "com.store", Progress: 5, ProgressMax: 10,
	})
	var out tracker.Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Equal(t, tracker.ActionIgnored, out.Action)
}

func TestApps_PutIcon(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), nil)
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	rec := ts.do(t, http.MethodPut, "/v1/apps/com.app/icon", buf.Bytes())
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, []string{"com.app"}, ts.colors.forgotten)

	rc, err := ts.icons.Open(context.Background(), "com.app")
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, buf.Bytes(), stored)

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPut, "/v1/apps/com.app/icon", "not an image").Code)
}

func TestApps_PutIconDisabled(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t, testConfig(), func(d *Deps) { d.Icons = nil })
	require.Equal(t, http.StatusNotImplemented, ts.do(t, http.MethodPut, "/v1/apps/com.app/icon", "x").Code)
}
