package gesture

import (
	"fmt"
	"math"
	"time"

	"github.com/ayusman/mudra/internal/action"
)

// DebounceConfig holds the temporal parameters of the debouncer.
type DebounceConfig struct {
	// StabilityFrames is how many consecutive frames a discrete pose must
	// be seen before it fires.
	StabilityFrames int `yaml:"stability_frames"`
	// HistorySize is the capacity of the recent-kind ring.
	HistorySize int `yaml:"history_size"`
	// MovementThreshold is the vertical pinch displacement, in normalized
	// image units, that triggers a volume step.
	MovementThreshold float64 `yaml:"movement_threshold"`
	// Cooldown follows a discrete action (next track, play/pause).
	Cooldown time.Duration `yaml:"cooldown"`
	// VolumeCooldown follows a volume step.
	VolumeCooldown time.Duration `yaml:"volume_cooldown"`
	// PinchGraceFrames is how many no-gesture frames a pinch survives.
	PinchGraceFrames int `yaml:"pinch_grace_frames"`
	// MinConfidence below which candidates are treated as None.
	MinConfidence float64 `yaml:"min_confidence"`
}

// DefaultDebounceConfig returns defaults for a 30 fps stream.
func DefaultDebounceConfig() DebounceConfig {
	return DebounceConfig{
		StabilityFrames:   5,
		HistorySize:       20,
		MovementThreshold: 0.025,
		Cooldown:          800 * time.Millisecond,
		VolumeCooldown:    250 * time.Millisecond,
		PinchGraceFrames:  3,
		MinConfidence:     0.05,
	}
}

// Validate checks the configuration for values the state machine cannot
// honour.
func (c DebounceConfig) Validate() error {
	switch {
	case c.StabilityFrames < 1:
		return fmt.Errorf("stability_frames must be at least 1, got %d", c.StabilityFrames)
	case c.HistorySize < c.StabilityFrames:
		return fmt.Errorf("history_size %d must be >= stability_frames %d", c.HistorySize, c.StabilityFrames)
	case c.MovementThreshold <= 0:
		return fmt.Errorf("movement_threshold must be positive, got %v", c.MovementThreshold)
	case c.Cooldown < 0 || c.VolumeCooldown < 0:
		return fmt.Errorf("cooldowns must not be negative")
	case c.PinchGraceFrames < 0:
		return fmt.Errorf("pinch_grace_frames must not be negative, got %d", c.PinchGraceFrames)
	case c.MinConfidence < 0 || c.MinConfidence > 1:
		return fmt.Errorf("min_confidence must be in [0, 1], got %v", c.MinConfidence)
	}
	return nil
}

// discrete maps stable poses to the action they fire.
var discrete = map[Kind]action.Kind{
	TwoFinger: action.NextTrack,
	Fist:      action.PlayPause,
}

// Debouncer turns a stream of candidates into confirmed action events. It
// holds only configuration; all mutable state lives in the State passed to
// Advance, so one Debouncer can serve every session.
type Debouncer struct {
	cfg DebounceConfig
}

// NewDebouncer creates a debouncer.
func NewDebouncer(cfg DebounceConfig) *Debouncer {
	return &Debouncer{cfg: cfg}
}

// Config returns the debouncer configuration.
func (d *Debouncer) Config() DebounceConfig {
	return d.cfg
}

// NewState creates a session state sized for this debouncer.
func (d *Debouncer) NewState(sessionID string) *State {
	return NewState(sessionID, d.cfg.HistorySize)
}

// Advance feeds one candidate into the state machine at time now and returns
// the confirmed event, if any.
func (d *Debouncer) Advance(s *State, c Candidate, now time.Time) *action.Event {
	kind := c.Kind
	if c.Confidence < d.cfg.MinConfidence {
		kind = None
	}

	if s.latched != None && kind != s.latched {
		s.latched = None
	}

	if s.phase == Cooldown {
		if now.Before(s.cooldownUntil) {
			return nil
		}
		if s.resumeTracking && s.hasAnchor {
			s.phase = PinchTracking
			s.grace = 0
		} else {
			s.toIdle()
		}
		s.resumeTracking = false
	}

	s.record(kind)

	if s.phase == PinchTracking {
		switch kind {
		case Pinch:
			s.grace = 0
			return d.track(s, c, now)
		case None:
			s.grace++
			if s.grace > d.cfg.PinchGraceFrames {
				s.toIdle()
			}
			return nil
		default:
			s.toIdle()
		}
	}

	return d.idle(s, kind, c, now)
}

func (d *Debouncer) idle(s *State, kind Kind, c Candidate, now time.Time) *action.Event {
	if kind == Pinch {
		s.setAnchor(c.Position)
		s.phase = PinchTracking
		return nil
	}

	act, ok := discrete[kind]
	if !ok || s.latched == kind || !s.stable(kind, d.cfg.StabilityFrames) {
		return nil
	}

	s.latched = kind
	d.fire(s, act, now, d.cfg.Cooldown)
	return action.NewEvent(act, s.sessionID, now)
}

func (d *Debouncer) track(s *State, c Candidate, now time.Time) *action.Event {
	// Image y grows downward, so a positive displacement is upward motion.
	disp := s.anchor.Y - c.Position.Y
	mag := math.Abs(disp)
	if mag <= d.cfg.MovementThreshold {
		return nil
	}

	act := action.VolumeDown
	if disp > 0 {
		act = action.VolumeUp
	}
	s.setAnchor(c.Position)
	d.fire(s, act, now, d.cfg.VolumeCooldown)
	s.resumeTracking = true
	return action.NewEvent(act, s.sessionID, now).WithMagnitude(mag)
}

func (d *Debouncer) fire(s *State, act action.Kind, now time.Time, cooldown time.Duration) {
	s.lastAction = act
	s.lastActionAt = now
	s.phase = Cooldown
	s.cooldownUntil = now.Add(cooldown)
	s.resumeTracking = false
	s.clearHistory()
}
