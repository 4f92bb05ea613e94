package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/landmark"
)

// Validator is a post-classification context filter. A rejected candidate is
// replaced by None before it reaches the debouncer.
type Validator interface {
	Allow(frame *landmark.Frame, c Candidate) bool
}

// AllowAll accepts every candidate.
type AllowAll struct{}

// Allow implements Validator.
func (AllowAll) Allow(*landmark.Frame, Candidate) bool { return true }

// NosePoseIndex is the pose landmark index of the nose.
const NosePoseIndex = 0

// FaceProximity rejects candidates of the listed kinds when the wrist lies in
// the square of half-width Radius around the nose, in image coordinates. A fist near the face is
// usually eating or drinking, not a command.
type FaceProximity struct {
	Radius float64
	Kinds  []Kind
}

// NewFaceProximity creates a filter for fists within radius of the face.
func NewFaceProximity(radius float64) *FaceProximity {
	return &FaceProximity{Radius: radius, Kinds: []Kind{Fist}}
}

// Allow implements Validator. Frames without pose landmarks are allowed.
func (f *FaceProximity) Allow(frame *landmark.Frame, c Candidate) bool {
	if !frame.HasHand() || len(frame.Pose) <= NosePoseIndex {
		return true
	}

	filtered := false
	for _, k := range f.Kinds {
		if k == c.Kind {
			filtered = true
			break
		}
	}
	if !filtered {
		return true
	}

	nose := frame.Pose[NosePoseIndex]
	wrist := frame.Hand.Points[landmark.Wrist]
	return math.Abs(wrist.X-nose.X) >= f.Radius || math.Abs(wrist.Y-nose.Y) >= f.Radius
}
