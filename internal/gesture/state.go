package gesture

import (
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/landmark"
)

// Phase is the debouncer state machine phase.
type Phase int

const (
	// Idle waits for a stable discrete pose or the start of a pinch.
	Idle Phase = iota
	// PinchTracking follows a held pinch relative to its anchor.
	PinchTracking
	// Cooldown ignores every candidate until its deadline.
	Cooldown
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PinchTracking:
		return "pinch_tracking"
	case Cooldown:
		return "cooldown"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StateView is the read-only view of session state handed to classifiers.
type StateView interface {
	Phase() Phase
	// Recent returns up to n of the most recent recorded kinds, oldest first.
	Recent(n int) []Kind
	LastAction() (action.Kind, time.Time, bool)
	Anchor() (landmark.Point3D, bool)
}

// State is the per-session debouncer state. It is owned by exactly one
// session and is not safe for concurrent use.
type State struct {
	sessionID string

	phase         Phase
	cooldownUntil time.Time
	// resumeTracking returns the machine to PinchTracking after a volume
	// step cooldown instead of Idle.
	resumeTracking bool

	history []Kind
	head    int
	count   int

	anchor    landmark.Point3D
	hasAnchor bool
	grace     int

	// latched holds the kind whose action fired; it cannot fire again until
	// a different kind is observed.
	latched Kind

	lastAction   action.Kind
	lastActionAt time.Time

	lastSeq uint64
	seenSeq bool
}

// NewState creates an Idle state with a history ring of the given capacity.
func NewState(sessionID string, historySize int) *State {
	if historySize < 1 {
		historySize = 1
	}
	return &State{
		sessionID: sessionID,
		history:   make([]Kind, historySize),
	}
}

// SessionID returns the owning session.
func (s *State) SessionID() string { return s.sessionID }

// Phase implements StateView.
func (s *State) Phase() Phase { return s.phase }

// Recent implements StateView.
func (s *State) Recent(n int) []Kind {
	if n > s.count {
		n = s.count
	}
	if n <= 0 {
		return nil
	}
	out := make([]Kind, n)
	size := len(s.history)
	start := (s.head - n + size) % size
	for i := 0; i < n; i++ {
		out[i] = s.history[(start+i)%size]
	}
	return out
}

// LastAction implements StateView.
func (s *State) LastAction() (action.Kind, time.Time, bool) {
	return s.lastAction, s.lastActionAt, s.lastAction.Valid()
}

// Anchor implements StateView.
func (s *State) Anchor() (landmark.Point3D, bool) {
	return s.anchor, s.hasAnchor
}

// LastSequence returns the last accepted sequence id.
func (s *State) LastSequence() (uint64, bool) {
	return s.lastSeq, s.seenSeq
}

// AcceptSequence records seq as processed if it is newer than every
// previously accepted frame. A stale or duplicate frame leaves the state
// untouched and returns false.
func (s *State) AcceptSequence(seq uint64) bool {
	if s.seenSeq && seq <= s.lastSeq {
		return false
	}
	s.lastSeq = seq
	s.seenSeq = true
	return true
}

func (s *State) record(k Kind) {
	s.history[s.head] = k
	s.head = (s.head + 1) % len(s.history)
	if s.count < len(s.history) {
		s.count++
	}
}

// clearHistory forgets recorded kinds so stability is re-earned after an
// action.
func (s *State) clearHistory() {
	s.head = 0
	s.count = 0
}

// stable reports whether the last n recorded kinds all equal k.
func (s *State) stable(k Kind, n int) bool {
	if n < 1 || s.count < n {
		return false
	}
	for _, r := range s.Recent(n) {
		if r != k {
			return false
		}
	}
	return true
}

func (s *State) setAnchor(p landmark.Point3D) {
	s.anchor = p
	s.hasAnchor = true
	s.grace = 0
}

func (s *State) toIdle() {
	s.phase = Idle
	s.hasAnchor = false
	s.grace = 0
}
