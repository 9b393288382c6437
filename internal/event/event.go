// Package event defines the inbound notification envelope and the outbound
// display update exchanged with presenters.
package event

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/progress-overlay/internal/palette"
)

// Kind identifies which family of progress a source reports.
type Kind string

// Supported source kinds.
const (
	KindDownload       Kind = "download"
	KindPercentage     Kind = "percentage"
	KindMedia          Kind = "media"
	KindCountdownTimer Kind = "countdown_timer"
)

// Priority returns the fixed arbitration priority of the kind. Higher wins.
func (k Kind) Priority() int {
	switch k {
	case KindDownload, KindPercentage:
		return 2
	case KindCountdownTimer:
		return 1
	default:
		return 0
	}
}

// Continuous reports whether the kind advances on its own between events.
func (k Kind) Continuous() bool {
	return k == KindMedia || k == KindCountdownTimer
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDownload, KindPercentage, KindMedia, KindCountdownTimer:
		return true
	}
	return false
}

// PlaybackState mirrors the media session states a player reports.
type PlaybackState string

// Playback states. Anything else (buffering, connecting, skipping) is treated
// as transient.
const (
	PlaybackPlaying PlaybackState = "PLAYING"
	PlaybackPaused  PlaybackState = "PAUSED"
	PlaybackStopped PlaybackState = "STOPPED"
	PlaybackNone    PlaybackState = "NONE"
	PlaybackError   PlaybackState = "ERROR"
)

// Terminal reports whether the state ends the media source.
func (s PlaybackState) Terminal() bool {
	switch s {
	case PlaybackPaused, PlaybackStopped, PlaybackNone, PlaybackError:
		return true
	}
	return false
}

// Playback is the media session snapshot attached to a media envelope.
type Playback struct {
	State      PlaybackState `json:"state"`
	PositionMs int64         `json:"position_ms"`
	DurationMs int64         `json:"duration_ms"`
	// Speed is the playback rate; 1.0 advances one millisecond per millisecond.
	Speed float64 `json:"speed"`
	// UpdatedAt is when PositionMs was sampled by the player.
	UpdatedAt    time.Time      `json:"updated_at,omitzero"`
	ArtworkColor *palette.Color `json:"artwork_color,omitempty"`
}

// Envelope is one inbound notification post or removal.
type Envelope struct {
	// ID is the stable key of the notification stream.
	ID        string `json:"id"`
	PackageID string `json:"package_id"`
	// User optionally scopes the notification to a profile.
	User          string         `json:"user,omitempty"`
	Title         string         `json:"title,omitempty"`
	Text          string         `json:"text,omitempty"`
	SubText       string         `json:"sub_text,omitempty"`
	BigText       string         `json:"big_text,omitempty"`
	TextLines     []string       `json:"text_lines,omitempty"`
	Progress      int64          `json:"progress,omitempty"`
	ProgressMax   int64          `json:"progress_max,omitempty"`
	Indeterminate bool           `json:"indeterminate,omitempty"`
	MediaSession  string         `json:"media_session,omitempty"`
	Playback      *Playback      `json:"playback,omitempty"`
	SortKey       string         `json:"sort_key,omitempty"`
	Color         *palette.Color `json:"color,omitempty"`
	Removal       bool           `json:"removal,omitempty"`
	// PostedAt is the post time reported by the source; re-deliveries share it.
	PostedAt time.Time `json:"posted_at,omitzero"`
}

// Validate performs coarse validation on inbound envelopes.
func (e Envelope) Validate() error {
	if e.ID == "" {
		return errors.New("id is required")
	}
	if e.PackageID == "" {
		return errors.New("package_id is required")
	}
	return nil
}

// Display is the single winning update forwarded to presenters. A Removal
// display asks presenters to hide the indicator.
type Display struct {
	ID        string        `json:"id"`
	PackageID string        `json:"package_id"`
	Kind      Kind          `json:"kind,omitempty"`
	Progress  int           `json:"progress"`
	Priority  int           `json:"priority"`
	Color     palette.Color `json:"color"`
	Removal   bool          `json:"removal"`
	At        time.Time     `json:"at"`
}

// Validate performs coarse validation on Display payloads.
func (d Display) Validate() error {
	if d.ID == "" {
		return errors.New("display id is required")
	}
	if d.At.IsZero() {
		return errors.New("timestamp is required")
	}
	if !d.Removal && !d.Kind.Valid() {
		return fmt.Errorf("unknown kind %q", d.Kind)
	}
	if d.Progress < 0 {
		return errors.New("progress must be >= 0")
	}
	return nil
}

// SameContent reports whether two displays would render identically.
func (d Display) SameContent(o Display) bool {
	return d.ID == o.ID &&
		d.PackageID == o.PackageID &&
		d.Kind == o.Kind &&
		d.Progress == o.Progress &&
		d.Priority == o.Priority &&
		d.Color == o.Color &&
		d.Removal == o.Removal
}
