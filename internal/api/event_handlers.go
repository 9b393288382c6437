package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/classifier"
	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/metrics"
	"github.com/JakeFAU/progress-overlay/internal/tracker"
)

const maxEventBytes = 64 << 10

// postEvent handles POST /v1/events. The envelope is applied on the tracker
// loop and the outcome returned; with ?async=true it is queued and 202 is
// returned without waiting.
func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	env, ok := decodeEnvelope(w, r)
	if !ok {
		return
	}
	if err := env.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.limiter != nil && !s.limiter.Allow(env.PackageID) {
		metrics.ObserveRateLimited()
		writeError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := s.tracker.Submit(env); err != nil {
			writeError(w, trackerStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}

	out, err := s.tracker.HandleEvent(r.Context(), env)
	if err != nil {
		s.logger.Warn("handle event failed",
			zap.String("id", env.ID),
			zap.String("package_id", env.PackageID),
			zap.Error(err),
		)
		writeError(w, trackerStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// classify handles POST /v1/classify. It never touches tracker state.
func (s *Server) classify(w http.ResponseWriter, r *http.Request) {
	env, ok := decodeEnvelope(w, r)
	if !ok {
		return
	}
	res, found := classifier.Classify(env, s.clockPackage)
	writeJSON(w, http.StatusOK, toClassifyDTO(res, found))
}

// listSources handles GET /v1/sources.
func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	var srcs []tracker.Source
	err := s.tracker.Do(r.Context(), func(_ context.Context, e *tracker.Engine) {
		srcs = e.Sources()
	})
	if err != nil {
		writeError(w, trackerStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": srcs})
}

// getDisplay handles GET /v1/display.
func (s *Server) getDisplay(w http.ResponseWriter, r *http.Request) {
	var resp displayDTO
	err := s.tracker.Do(r.Context(), func(_ context.Context, e *tracker.Engine) {
		d, shown := e.Display()
		resp = displayDTO{Visible: shown, Policy: e.PolicyName()}
		if !d.At.IsZero() {
			resp.Display = &d
		}
	})
	if err != nil {
		writeError(w, trackerStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeEnvelope(w http.ResponseWriter, r *http.Request) (event.Envelope, bool) {
	var env event.Envelope
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBytes)).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return event.Envelope{}, false
	}
	return env, true
}

type displayDTO struct {
	Visible bool           `json:"visible"`
	Policy  string         `json:"policy"`
	Display *event.Display `json:"display,omitempty"`
}

type timerDTO struct {
	Running          bool    `json:"running"`
	Paused           bool    `json:"paused"`
	RemainingSeconds float64 `json:"remaining_seconds"`
	TotalSeconds     float64 `json:"total_seconds"`
}

type classifyDTO struct {
	Classified bool       `json:"classified"`
	Kind       event.Kind `json:"kind,omitempty"`
	Priority   int        `json:"priority,omitempty"`
	Percent    int        `json:"percent,omitempty"`
	Timer      *timerDTO  `json:"timer,omitempty"`
}

func toClassifyDTO(res classifier.Result, found bool) classifyDTO {
	if !found {
		return classifyDTO{}
	}
	dto := classifyDTO{
		Classified: true,
		Kind:       res.Kind,
		Priority:   res.Kind.Priority(),
		Percent:    res.Percent,
	}
	if res.Kind == event.KindCountdownTimer {
		dto.Timer = &timerDTO{
			Running:          res.Timer.Running,
			Paused:           res.Timer.Paused,
			RemainingSeconds: res.Timer.Remaining.Seconds(),
			TotalSeconds:     res.Timer.Total.Seconds(),
		}
	}
	return dto
}
