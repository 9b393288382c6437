package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/metrics"
	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/store"
)

const maxIconBytes = 1 << 20

// listApps handles GET /v1/apps.
func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.All(r.Context())
	if err != nil {
		s.logger.Error("list apps failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list apps")
		return
	}
	if apps == nil {
		apps = []store.AppConfig{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

// getApp handles GET /v1/apps/{package_id}. Unknown packages are 404; they
// are only materialized when an event or a PUT arrives.
func (s *Server) getApp(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package_id")
	app, err := s.apps.Get(r.Context(), pkg)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "app not found")
			return
		}
		s.logger.Error("get app failed", zap.String("package_id", pkg), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load app")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"app": app})
}

// putApp handles PUT /v1/apps/{package_id}. Absent fields keep their value;
// an empty color clears the override.
func (s *Server) putApp(w http.ResponseWriter, r *http.Request) {
	pkg := chi.URLParam(r, "package_id")
	var req appUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	app, err := s.apps.GetOrCreate(r.Context(), pkg)
	if err != nil {
		s.logger.Error("load app failed", zap.String("package_id", pkg), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load app")
		return
	}
	if err := req.apply(&app); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.apps.Update(r.Context(), app); err != nil {
		s.logger.Error("update app failed", zap.String("package_id", pkg), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update app")
		return
	}
	metrics.ObserveAppUpdate()
	if err := s.tracker.ApplyAppConfig(r.Context(), app); err != nil {
		s.logger.Warn("apply app config failed", zap.String("package_id", pkg), zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]any{"app": app})
}

// putIcon handles PUT /v1/apps/{package_id}/icon. The body must decode as an
// image so the swatch extractor can use it later.
func (s *Server) putIcon(w http.ResponseWriter, r *http.Request) {
	if s.icons == nil {
		writeError(w, http.StatusNotImplemented, "icon storage disabled")
		return
	}
	pkg := chi.URLParam(r, "package_id")
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxIconBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "icon too large")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read icon")
		return
	}
	if _, err := palette.Decode(bytes.NewReader(data)); err != nil {
		writeError(w, http.StatusBadRequest, "icon is not a supported image")
		return
	}
	if err := s.icons.Put(r.Context(), pkg, bytes.NewReader(data)); err != nil {
		s.logger.Error("store icon failed", zap.String("package_id", pkg), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to store icon")
		return
	}
	if s.colors != nil {
		s.colors.Forget(pkg)
	}
	w.WriteHeader(http.StatusNoContent)
}

type appUpdateRequest struct {
	ShowProgress        *bool   `json:"show_progress"`
	Color               *string `json:"color"`
	UseDefaultColor     *bool   `json:"use_default_color"`
	UseMaterialYouColor *bool   `json:"use_material_you_color"`
}

func (req appUpdateRequest) apply(app *store.AppConfig) error {
	if req.ShowProgress != nil {
		app.ShowProgress = *req.ShowProgress
	}
	if req.UseDefaultColor != nil {
		app.UseDefaultColor = *req.UseDefaultColor
	}
	if req.UseMaterialYouColor != nil {
		app.UseMaterialYouColor = *req.UseMaterialYouColor
	}
	if req.Color != nil {
		if *req.Color == "" {
			app.Color = nil
		} else {
			c, err := palette.ParseHex(*req.Color)
			if err != nil {
				return err
			}
			app.Color = &c
		}
	}
	return app.Validate()
}
