// Package action defines the command identifiers the gesture service sends to
// a remote actuator, and the events that carry them.
package action

import (
	"fmt"
	"time"
)

// Kind identifies a media command.
type Kind int

const (
	// VolumeUp raises the output volume by one step.
	VolumeUp Kind = iota + 1
	// VolumeDown lowers the output volume by one step.
	VolumeDown
	// NextTrack skips to the next track.
	NextTrack
	// PlayPause toggles playback.
	PlayPause
)

var kindNames = map[Kind]string{
	VolumeUp:   "volume_up",
	VolumeDown: "volume_down",
	NextTrack:  "next_track",
	PlayPause:  "play_pause",
}

// pluginActions maps kinds to the action names understood by actuator plugins.
var pluginActions = map[Kind]string{
	VolumeUp:   "volume-up",
	VolumeDown: "volume-down",
	NextTrack:  "media-next",
	PlayPause:  "media-play-pause",
}

// Kinds returns every defined kind in declaration order.
func Kinds() []Kind {
	return []Kind{VolumeUp, VolumeDown, NextTrack, PlayPause}
}

// String returns the wire identifier of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(k))
}

// Valid reports whether k is a defined kind.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// PluginAction returns the actuator plugin action name for the kind.
func (k Kind) PluginAction() string {
	return pluginActions[k]
}

// Continuous reports whether the kind is a magnitude-driven step that may
// repeat while a gesture is held.
func (k Kind) Continuous() bool {
	return k == VolumeUp || k == VolumeDown
}

// Parse converts a wire identifier back into a Kind.
func Parse(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid action kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Event is a confirmed action produced by the debouncer. It is immutable
// once emitted.
type Event struct {
	Action    Kind
	Magnitude *float64
	SessionID string
	EmittedAt time.Time
}

// NewEvent creates an event without a magnitude.
func NewEvent(k Kind, sessionID string, at time.Time) *Event {
	return &Event{Action: k, SessionID: sessionID, EmittedAt: at}
}

// WithMagnitude returns a copy of the event carrying magnitude m.
func (e Event) WithMagnitude(m float64) *Event {
	e.Magnitude = &m
	return &e
}
