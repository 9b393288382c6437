// Package tracker runs one state machine per progress source, drives the
// extrapolation ticks of continuous kinds and forwards the arbiter's winner
// to presenters.
//
// The Engine is single-threaded: every mutation happens on the goroutine
// that calls it. Loop provides that goroutine for production use.
package tracker

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/progress-overlay/internal/arbiter"
	"github.com/JakeFAU/progress-overlay/internal/classifier"
	"github.com/JakeFAU/progress-overlay/internal/clock"
	"github.com/JakeFAU/progress-overlay/internal/event"
	"github.com/JakeFAU/progress-overlay/internal/extrapolator"
	"github.com/JakeFAU/progress-overlay/internal/palette"
	"github.com/JakeFAU/progress-overlay/internal/store"
	"github.com/JakeFAU/progress-overlay/internal/timer"
)

// Config tunes the engine.
type Config struct {
	// Scale is the shared progress scale every kind is normalized onto.
	Scale        int
	Freshness    time.Duration
	Tick         time.Duration
	RemovalGrace time.Duration
	// ClockPackage is the package whose sort keys carry countdown timers.
	ClockPackage string
	// SelfPackage is ignored so the overlay never tracks its own notices.
	SelfPackage string
	// User, when set, drops events addressed to other users.
	User          string
	ShowDownloads bool
	ShowMedia     bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Scale:         1000,
		Freshness:     10 * time.Second,
		Tick:          time.Second,
		RemovalGrace:  time.Second,
		ClockPackage:  classifier.DefaultClockPackage,
		ShowDownloads: true,
		ShowMedia:     true,
	}
}

// Publisher receives display updates. progress.Hub satisfies it.
type Publisher interface {
	Emit(event.Display)
}

// ColorResolver picks the display color for the winner.
type ColorResolver interface {
	Resolve(ctx context.Context, app store.AppConfig, hint *palette.Color) palette.Color
}

// Observer receives engine counters. It may be nil.
type Observer interface {
	ObserveEvent(kind event.Kind, action string)
	SetActiveSources(n int)
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Clock     clock.Clock
	Apps      store.AppConfigStore
	Colors    ColorResolver
	Publisher Publisher
	Observer  Observer
	Logger    *zap.Logger
	// Policy defaults to arbiter.PriorityPolicy.
	Policy arbiter.Policy
}

// Action describes what an event did.
type Action string

// Event outcomes.
const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
	ActionIgnored Action = "ignored"
)

// Outcome reports how HandleEvent treated an envelope.
type Outcome struct {
	Action Action     `json:"action"`
	Kind   event.Kind `json:"kind,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// Engine owns every Source, the timer queue and the arbiter.
type Engine struct {
	cfg      Config
	clock    clock.Clock
	apps     store.AppConfigStore
	colors   ColorResolver
	out      Publisher
	observer Observer
	logger   *zap.Logger

	sources map[string]*Source
	timers  *timer.Queue
	arbiter *arbiter.Arbiter

	last  event.Display
	shown bool
}

// New constructs an Engine. Zero durations and scale take the defaults.
func New(cfg Config, deps Deps) (*Engine, error) {
	def := DefaultConfig()
	if cfg.Scale <= 0 {
		cfg.Scale = def.Scale
	}
	if cfg.Freshness <= 0 {
		cfg.Freshness = def.Freshness
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.RemovalGrace <= 0 {
		cfg.RemovalGrace = def.RemovalGrace
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.Apps == nil {
		return nil, errors.New("app config store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		cfg:      cfg,
		clock:    deps.Clock,
		apps:     deps.Apps,
		colors:   deps.Colors,
		out:      deps.Publisher,
		observer: deps.Observer,
		logger:   logger,
		sources:  make(map[string]*Source),
		timers:   timer.New(),
		arbiter:  arbiter.New(deps.Policy),
	}, nil
}

// HandleEvent applies one envelope. Only an invalid envelope is an error;
// everything else that cannot be tracked is reported as ignored.
func (e *Engine) HandleEvent(ctx context.Context, env event.Envelope) (Outcome, error) {
	if err := env.Validate(); err != nil {
		return Outcome{}, err
	}
	out := e.handle(ctx, env)
	if e.observer != nil {
		e.observer.ObserveEvent(out.Kind, string(out.Action))
		e.observer.SetActiveSources(e.activeCount())
	}
	return out, nil
}

func (e *Engine) handle(ctx context.Context, env event.Envelope) Outcome {
	if e.cfg.SelfPackage != "" && env.PackageID == e.cfg.SelfPackage {
		return ignored("", "own package")
	}
	if e.cfg.User != "" && env.User != "" && env.User != e.cfg.User {
		return ignored("", "other user")
	}
	now := e.clock.Now()

	prev, tracked := e.sources[env.ID]
	if env.Removal {
		if !tracked || prev.State != Active {
			return ignored("", "unknown source")
		}
		e.remove(ctx, prev, now, "removal event")
		return Outcome{Action: ActionRemoved, Kind: prev.Kind}
	}
	if tracked && prev.State == Active {
		return e.apply(ctx, prev, env, now)
	}

	res, ok := classifier.Classify(env, e.cfg.ClockPackage)
	if !ok {
		return ignored("", "not a progress event")
	}
	if !e.kindEnabled(res.Kind) {
		return ignored(res.Kind, "kind disabled")
	}
	if !e.appEnabled(ctx, env.PackageID) {
		return ignored(res.Kind, "app disabled")
	}
	src := &Source{
		ID:        env.ID,
		PackageID: env.PackageID,
		Kind:      res.Kind,
		Priority:  res.Kind.Priority(),
		State:     Active,
	}
	if tracked {
		// A re-post during the grace window inherits the arbiter entry; the
		// first surfacing update cancels the pending hide.
		src.surfaced = prev.surfaced
	}
	e.sources[env.ID] = src

	out := e.apply(ctx, src, env, now)
	switch {
	case src.LastUpdate.IsZero() && src.State == Active:
		// The event never took hold.
		if tracked {
			e.sources[env.ID] = prev
		} else {
			delete(e.sources, env.ID)
		}
	case out.Action == ActionUpdated:
		out.Action = ActionCreated
	}
	return out
}

func (e *Engine) apply(ctx context.Context, src *Source, env event.Envelope, now time.Time) Outcome {
	switch src.Kind {
	case event.KindDownload:
		return e.applyDownload(ctx, src, env, now)
	case event.KindPercentage:
		return e.applyPercentage(ctx, src, env, now)
	case event.KindMedia:
		return e.applyMedia(ctx, src, env, now)
	case event.KindCountdownTimer:
		return e.applyTimer(ctx, src, env, now)
	default:
		return ignored(src.Kind, "unknown kind")
	}
}

func (e *Engine) applyDownload(ctx context.Context, src *Source, env event.Envelope, now time.Time) Outcome {
	if env.ProgressMax <= 0 {
		return ignored(src.Kind, "non-positive max")
	}
	src.Raw = min(max(env.Progress, 0), env.ProgressMax)
	src.RawMax = env.ProgressMax
	src.ColorHint = env.Color
	e.touch(src, now)
	e.submit(ctx, src, extrapolator.Normalize(src.Raw, src.RawMax, e.cfg.Scale), now)
	return e.settled(src)
}

func (e *Engine) applyPercentage(ctx context.Context, src *Source, env event.Envelope, now time.Time) Outcome {
	pct, ok := classifier.Percentage(env)
	if !ok || pct == 0 {
		e.remove(ctx, src, now, "percentage gone")
		return Outcome{Action: ActionRemoved, Kind: src.Kind}
	}
	src.Raw, src.RawMax = int64(pct), 100
	src.ColorHint = env.Color
	e.touch(src, now)
	if !src.initialSeen {
		src.initial, src.initialSeen = pct, true
	}
	if !src.changed {
		if pct == src.initial {
			return Outcome{Action: ActionUpdated, Kind: src.Kind, Reason: "awaiting change"}
		}
		src.changed = true
	}
	e.submit(ctx, src, extrapolator.Normalize(src.Raw, src.RawMax, e.cfg.Scale), now)
	return e.settled(src)
}

func (e *Engine) applyMedia(ctx context.Context, src *Source, env event.Envelope, now time.Time) Outcome {
	pb := env.Playback
	if env.MediaSession == "" || pb == nil {
		e.remove(ctx, src, now, "media session gone")
		return Outcome{Action: ActionRemoved, Kind: src.Kind}
	}
	src.ColorHint = env.Color
	if pb.ArtworkColor != nil {
		src.ColorHint = pb.ArtworkColor
	}
	switch {
	case pb.State == event.PlaybackPlaying:
		speed := pb.Speed
		if speed == 0 {
			speed = 1
		}
		run := extrapolator.Extrapolation{
			Initial:  pb.PositionMs,
			Duration: pb.DurationMs,
			Speed:    speed,
			Start:    anchor(now, pb.UpdatedAt, env.PostedAt),
		}
		stamped := !pb.UpdatedAt.IsZero() || !env.PostedAt.IsZero()
		return e.start(ctx, src, run, stamped, now)
	case pb.State.Terminal():
		e.remove(ctx, src, now, "playback "+strings.ToLower(string(pb.State)))
		return Outcome{Action: ActionRemoved, Kind: src.Kind}
	default:
		e.timers.Cancel(timer.Key{Source: src.ID, Kind: timer.Tick})
		src.Extrapolation = nil
		e.touch(src, now)
		return Outcome{Action: ActionUpdated, Kind: src.Kind, Reason: "playback " + strings.ToLower(string(pb.State))}
	}
}

func (e *Engine) applyTimer(ctx context.Context, src *Source, env event.Envelope, now time.Time) Outcome {
	ts := classifier.ParseTimerSortKey(env.SortKey)
	if !ts.Running {
		e.remove(ctx, src, now, "timer not running")
		return Outcome{Action: ActionRemoved, Kind: src.Kind}
	}
	if !ts.Complete() {
		return ignored(src.Kind, "incomplete sort key")
	}
	src.ColorHint = env.Color
	run := extrapolator.Extrapolation{
		Initial:  ts.Remaining.Milliseconds(),
		Duration: ts.Total.Milliseconds(),
		Speed:    -1,
		Start:    anchor(now, env.PostedAt),
	}
	return e.start(ctx, src, run, !env.PostedAt.IsZero(), now)
}

// start begins a run, replacing any previous one. Re-delivering the same run
// leaves the pending tick alone. Without a timestamp the run is anchored at
// receipt, so only its parameters identify a re-delivery and the running
// start is kept.
func (e *Engine) start(ctx context.Context, src *Source, run extrapolator.Extrapolation, stamped bool, now time.Time) Outcome {
	if !run.Valid() {
		return ignored(src.Kind, "invalid range")
	}
	e.touch(src, now)
	tickKey := timer.Key{Source: src.ID, Kind: timer.Tick}
	if _, ticking := e.timers.Pending(tickKey); ticking && sameRun(src.Extrapolation, run, stamped) {
		return Outcome{Action: ActionUpdated, Kind: src.Kind, Reason: "unchanged"}
	}
	src.Extrapolation = &run
	e.tick(ctx, src, now)
	return e.settled(src)
}

// tick projects the run at now, submits it and schedules the next tick.
func (e *Engine) tick(ctx context.Context, src *Source, now time.Time) {
	tickKey := timer.Key{Source: src.ID, Kind: timer.Tick}
	if src.Extrapolation == nil {
		e.timers.Cancel(tickKey)
		return
	}
	proj, ok := src.Extrapolation.Project(now, e.cfg.Tick, e.cfg.Scale)
	if !ok {
		e.timers.Cancel(tickKey)
		src.Extrapolation = nil
		e.logger.Debug("extrapolation finished", zap.String("source_id", src.ID))
		return
	}
	src.Raw = proj.Position
	src.RawMax = src.Extrapolation.Duration
	e.touch(src, now)
	e.submit(ctx, src, extrapolator.Normalize(src.Raw, src.RawMax, e.cfg.Scale), now)
	if src.State == Active && src.Extrapolation != nil {
		e.timers.Schedule(tickKey, now.Add(e.cfg.Tick))
	}
}

// touch refreshes the freshness deadline.
func (e *Engine) touch(src *Source, now time.Time) {
	src.LastUpdate = now
	src.FreshnessDeadline = now.Add(e.cfg.Freshness)
	e.timers.Schedule(timer.Key{Source: src.ID, Kind: timer.Freshness}, src.FreshnessDeadline)
}

// submit stores a normalized value and hands it to the arbiter.
func (e *Engine) submit(ctx context.Context, src *Source, progress int, now time.Time) {
	src.Progress = progress
	app := e.appConfig(ctx, src.PackageID)
	if !app.ShowProgress {
		e.drop(ctx, src, now, "app disabled")
		return
	}
	if progress == 0 {
		if src.surfaced {
			src.surfaced = false
			e.publish(ctx, now, e.arbiter.Forget(src.ID))
		}
		return
	}
	src.surfaced = true
	e.timers.Cancel(timer.Key{Source: src.ID, Kind: timer.RemovalGrace})
	d := e.arbiter.Upsert(arbiter.Entry{
		ID:        src.ID,
		PackageID: src.PackageID,
		Kind:      src.Kind,
		Priority:  src.Priority,
		Progress:  progress,
		ColorHint: src.ColorHint,
		UpdatedAt: now,
	})
	e.publish(ctx, now, d)
}

// remove stops a source and starts the grace window. Sources the arbiter
// never saw go away immediately.
func (e *Engine) remove(ctx context.Context, src *Source, now time.Time, reason string) {
	e.timers.CancelSource(src.ID)
	src.Extrapolation = nil
	e.logger.Debug("source removed", zap.String("source_id", src.ID), zap.String("reason", reason))
	if !src.surfaced {
		src.State = Removed
		delete(e.sources, src.ID)
		return
	}
	src.State = PendingRemoval
	e.timers.Schedule(timer.Key{Source: src.ID, Kind: timer.RemovalGrace}, now.Add(e.cfg.RemovalGrace))
	e.publish(ctx, now, e.arbiter.MarkRemoved(src.ID))
}

// drop removes a source without a grace window, hiding it at once if it was
// shown.
func (e *Engine) drop(ctx context.Context, src *Source, now time.Time, reason string) {
	e.timers.CancelSource(src.ID)
	src.Extrapolation = nil
	src.State = Removed
	delete(e.sources, src.ID)
	e.logger.Debug("source dropped", zap.String("source_id", src.ID), zap.String("reason", reason))
	if src.surfaced {
		src.surfaced = false
		e.publish(ctx, now, e.arbiter.Forget(src.ID))
	}
}

func (e *Engine) finalize(ctx context.Context, id string, now time.Time) {
	if src, ok := e.sources[id]; ok && src.State == PendingRemoval {
		src.State = Removed
		delete(e.sources, id)
	}
	e.publish(ctx, now, e.arbiter.Finalize(id))
}

// RunDue fires every timer due at or before the clock's current time, each
// at its own deadline. It returns the number fired.
func (e *Engine) RunDue(ctx context.Context) int {
	now := e.clock.Now()
	fired := 0
	for {
		key, at, ok := e.timers.PopDue(now)
		if !ok {
			break
		}
		fired++
		switch key.Kind {
		case timer.Tick:
			if src, ok := e.sources[key.Source]; ok && src.State == Active {
				e.tick(ctx, src, at)
			}
		case timer.Freshness:
			if src, ok := e.sources[key.Source]; ok && src.State == Active {
				e.remove(ctx, src, at, "stale")
			}
		case timer.RemovalGrace:
			e.finalize(ctx, key.Source, at)
		}
	}
	if fired > 0 && e.observer != nil {
		e.observer.SetActiveSources(e.activeCount())
	}
	return fired
}

// NextDeadline returns when RunDue next has work.
func (e *Engine) NextDeadline() (time.Time, bool) {
	return e.timers.Next()
}

// ApplyAppConfig reacts to a changed AppConfig: a disabled app loses its
// sources immediately, including ones inside the grace window, and the
// current display is re-resolved for color changes.
func (e *Engine) ApplyAppConfig(ctx context.Context, cfg store.AppConfig) {
	now := e.clock.Now()
	if !cfg.ShowProgress {
		for _, src := range e.sortedSources() {
			if src.PackageID == cfg.PackageID {
				e.drop(ctx, src, now, "app disabled")
			}
		}
	}
	e.publish(ctx, now, e.arbiter.Decision())
}

// Sources returns a copy of every tracked source ordered by id.
func (e *Engine) Sources() []Source {
	srcs := e.sortedSources()
	out := make([]Source, 0, len(srcs))
	for _, s := range srcs {
		out = append(out, s.snapshot())
	}
	return out
}

// Source returns a copy of the source with id.
func (e *Engine) Source(id string) (Source, bool) {
	s, ok := e.sources[id]
	if !ok {
		return Source{}, false
	}
	return s.snapshot(), true
}

// Display returns the display currently shown, if any.
func (e *Engine) Display() (event.Display, bool) {
	return e.last, e.shown
}

// PolicyName reports the arbitration policy in use.
func (e *Engine) PolicyName() string {
	return e.arbiter.Policy().Name()
}

func (e *Engine) publish(ctx context.Context, now time.Time, d arbiter.Decision) {
	if !d.Show {
		if !e.shown {
			return
		}
		hide := e.last
		hide.Progress = 0
		hide.Removal = true
		hide.At = now
		e.shown = false
		e.last = hide
		e.emit(hide)
		return
	}
	w := d.Winner
	color := palette.Color(0)
	if e.colors != nil {
		color = e.colors.Resolve(ctx, e.appConfig(ctx, w.PackageID), w.ColorHint)
	}
	disp := event.Display{
		ID:        w.ID,
		PackageID: w.PackageID,
		Kind:      w.Kind,
		Progress:  w.Progress,
		Priority:  w.Priority,
		Color:     color,
		At:        now,
	}
	if e.shown && e.last.SameContent(disp) {
		return
	}
	e.last = disp
	e.shown = true
	e.emit(disp)
}

func (e *Engine) emit(d event.Display) {
	if e.out != nil {
		e.out.Emit(d)
	}
}

// appConfig falls back to defaults when persistence fails so the pipeline
// never stalls on storage.
func (e *Engine) appConfig(ctx context.Context, packageID string) store.AppConfig {
	cfg, err := e.apps.GetOrCreate(ctx, packageID)
	if err != nil {
		e.logger.Warn("app config unavailable, using defaults", zap.String("package_id", packageID), zap.Error(err))
		return store.DefaultAppConfig(packageID)
	}
	return cfg
}

// appEnabled treats unknown packages, and lookup failures, as enabled.
func (e *Engine) appEnabled(ctx context.Context, packageID string) bool {
	cfg, err := e.apps.Get(ctx, packageID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return true
	case err != nil:
		e.logger.Warn("app config lookup failed", zap.String("package_id", packageID), zap.Error(err))
		return true
	}
	return cfg.ShowProgress
}

func (e *Engine) kindEnabled(k event.Kind) bool {
	switch k {
	case event.KindDownload, event.KindPercentage:
		return e.cfg.ShowDownloads
	case event.KindMedia:
		return e.cfg.ShowMedia
	default:
		return true
	}
}

func (e *Engine) settled(src *Source) Outcome {
	if src.State != Active {
		return Outcome{Action: ActionRemoved, Kind: src.Kind}
	}
	return Outcome{Action: ActionUpdated, Kind: src.Kind}
}

func (e *Engine) sortedSources() []*Source {
	out := make([]*Source, 0, len(e.sources))
	for _, s := range e.sources {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b *Source) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (e *Engine) activeCount() int {
	n := 0
	for _, s := range e.sources {
		if s.State == Active {
			n++
		}
	}
	return n
}

func ignored(k event.Kind, reason string) Outcome {
	return Outcome{Action: ActionIgnored, Kind: k, Reason: reason}
}

// anchor returns the first non-zero candidate, else now.
func anchor(now time.Time, candidates ...time.Time) time.Time {
	for _, c := range candidates {
		if !c.IsZero() {
			return c
		}
	}
	return now
}
