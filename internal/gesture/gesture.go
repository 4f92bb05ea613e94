// Package gesture turns landmark frames into candidate gestures and debounces
// candidate streams into confirmed actions.
//
// A Classifier is a pure function of one frame and a read-only view of the
// session state. All temporal continuity lives in State, which only the
// Debouncer mutates.
package gesture

import (
	"fmt"

	"github.com/ayusman/mudra/internal/landmark"
)

// Kind is the closed set of recognised hand poses. New kinds are additive.
type Kind int

const (
	// None means no actionable pose was recognised.
	None Kind = iota
	// Pinch is thumb tip touching index tip; drives volume by vertical motion.
	Pinch
	// TwoFinger is index and middle fingers extended side by side.
	TwoFinger
	// Fist is every non-thumb fingertip folded onto the palm.
	Fist
)

var kindNames = map[Kind]string{
	None:      "none",
	Pinch:     "pinch",
	TwoFinger: "two_finger",
	Fist:      "fist",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseKind converts a kind name back into a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("unknown gesture kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Candidate is one frame's classification. It is not yet a confirmed action.
type Candidate struct {
	Kind       Kind
	Confidence float64 // in [0, 1]
	SequenceID uint64
	// Position is the tracked hand point (index fingertip) used for pinch
	// displacement.
	Position landmark.Point3D
}

// NoneCandidate returns the empty candidate for a frame.
func NoneCandidate(seq uint64) Candidate {
	return Candidate{Kind: None, SequenceID: seq}
}

// Classifier maps a frame to a candidate. Implementations must be pure
// functions of their inputs and must return a None candidate with zero
// confidence for frames without a hand.
type Classifier interface {
	Classify(frame *landmark.Frame, state StateView) (Candidate, error)
}

// ClassifierError reports a classifier failure. Callers treat the frame as
// None and keep the session alive.
type ClassifierError struct {
	Classifier string
	Err        error
}

func (e *ClassifierError) Error() string {
	return fmt.Sprintf("classifier %s: %v", e.Classifier, e.Err)
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// Noop is the classifier used when no model is loaded. It never recognises
// anything.
type Noop struct{}

// Classify always returns None.
func (Noop) Classify(frame *landmark.Frame, _ StateView) (Candidate, error) {
	if frame == nil {
		return NoneCandidate(0), nil
	}
	return NoneCandidate(frame.SequenceID), nil
}
