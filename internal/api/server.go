package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/config"
	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/metrics"
	"github.com/JakeFAU/progress-overlay/internal/store"
	"github.com/JakeFAU/progress-overlay/internal/tracker"
)

const defaultRequestTimeout = 10 * time.Second

// Tracker is the event loop the handlers drive. *tracker.Loop satisfies it.
type Tracker interface {
	HandleEvent(ctx context.Context, env event.Envelope) (tracker.Outcome, error)
	Submit(env event.Envelope) error
	ApplyAppConfig(ctx context.Context, cfg store.AppConfig) error
	Do(ctx context.Context, fn func(context.Context, *tracker.Engine)) error
}

// Limiter gates ingestion per package.
type Limiter interface {
	Allow(packageID string) bool
}

// ColorCache drops derived colors when an app icon changes.
type ColorCache interface {
	Forget(packageID string)
}

// IDGenerator produces request ids.
type IDGenerator interface {
	MustID() string
}

// Deps are the collaborators of a Server. Icons, Colors, Stream, Limiter,
// IDs and Ready are optional.
type Deps struct {
	Tracker Tracker
	Apps    store.AppConfigStore
	Icons   store.IconStore
	Colors  ColorCache
	// Stream serves the live display feed; it is mounted without the
	// request timeout.
	Stream  http.Handler
	Limiter Limiter
	IDs     IDGenerator
	Ready   func(context.Context) error
	Logger  *zap.Logger
}

// Server wires HTTP handlers to the tracker loop and stores.
type Server struct {
	router       chi.Router
	tracker      Tracker
	apps         store.AppConfigStore
	icons        store.IconStore
	colors       ColorCache
	limiter      Limiter
	ids          IDGenerator
	ready        func(context.Context) error
	clockPackage string
	logger       *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	s := &Server{
		tracker:      deps.Tracker,
		apps:         deps.Apps,
		icons:        deps.Icons,
		colors:       deps.Colors,
		limiter:      deps.Limiter,
		ids:          deps.IDs,
		ready:        deps.Ready,
		clockPackage: cfg.Tracker.ClockPackage,
		logger:       logger,
	}
	timeout := cfg.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())
	if deps.Stream != nil {
		r.Handle("/v1/display/stream", deps.Stream)
	}

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		r.Post("/v1/events", s.postEvent)
		r.Post("/v1/classify", s.classify)
		r.Get("/v1/sources", s.listSources)
		r.Get("/v1/display", s.getDisplay)
		r.Get("/v1/apps", s.listApps)
		r.Get("/v1/apps/{package_id}", s.getApp)
		r.Put("/v1/apps/{package_id}", s.putApp)
		r.Put("/v1/apps/{package_id}/icon", s.putIcon)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) newRequestID() string {
	if s.ids != nil {
		return s.ids.MustID()
	}
	return uuid.NewString()
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := s.newRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.String("request_id", requestID(r.Context())),
					zap.Any("error", rec),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// trackerStatus maps loop errors onto HTTP status codes.
func trackerStatus(err error) int {
	switch {
	case errors.Is(err, tracker.ErrClosed), errors.Is(err, tracker.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
