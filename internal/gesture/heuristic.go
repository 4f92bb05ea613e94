package gesture

import (
	"math"

	"github.com/ayusman/mudra/internal/landmark"
)

// Thresholds configure the heuristic classifier. Distances are fractions of
// the hand-span (wrist to middle MCP) so the rules hold at any distance from
// the camera.
type Thresholds struct {
	// Fist: every non-thumb fingertip closer to the palm base than this.
	Fist float64 `yaml:"fist_threshold"`
	// Extension: a fingertip farther from the palm base than this is extended.
	Extension float64 `yaml:"extension_threshold"`
	// Pinch: thumb tip to index tip closer than this.
	Pinch float64 `yaml:"pinch_threshold"`
	// TwoFingerAngle is the maximum angle in degrees between the index and
	// middle finger directions.
	TwoFingerAngle float64 `yaml:"two_finger_angle"`
}

// DefaultThresholds returns thresholds tuned for a webcam at arm's length.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fist:           0.6,
		Extension:      1.0,
		Pinch:          0.25,
		TwoFingerAngle: 30,
	}
}

// minSpan below which a hand is treated as degenerate.
const minSpan = 1e-6

// Heuristic is the reference geometric classifier. Rules are evaluated in
// order and the first match wins: Fist, TwoFinger, Pinch.
type Heuristic struct {
	t Thresholds
}

// NewHeuristic creates a heuristic classifier.
func NewHeuristic(t Thresholds) *Heuristic {
	return &Heuristic{t: t}
}

// Thresholds returns the classifier configuration.
func (h *Heuristic) Thresholds() Thresholds {
	return h.t
}

// Classify implements Classifier.
func (h *Heuristic) Classify(frame *landmark.Frame, _ StateView) (Candidate, error) {
	if !frame.HasHand() {
		seq := uint64(0)
		if frame != nil {
			seq = frame.SequenceID
		}
		return NoneCandidate(seq), nil
	}

	hand := frame.Hand
	c := Candidate{
		Kind:       None,
		SequenceID: frame.SequenceID,
		Position:   hand.Points[landmark.IndexTip],
	}

	span := hand.Span()
	if span < minSpan {
		return c, nil
	}

	if conf, ok := h.fist(hand, span); ok {
		c.Kind, c.Confidence = Fist, conf
		return c, nil
	}
	if conf, ok := h.twoFinger(hand, span); ok {
		c.Kind, c.Confidence = TwoFinger, conf
		return c, nil
	}
	if conf, ok := h.pinch(hand, span); ok {
		c.Kind, c.Confidence = Pinch, conf
		return c, nil
	}
	return c, nil
}

func (h *Heuristic) fist(hand *landmark.Hand, span float64) (float64, bool) {
	limit := h.t.Fist * span
	base := hand.PalmBase()

	var maxDist float64
	for _, f := range landmark.Fingers {
		d := landmark.Distance(hand.Points[f[1]], base)
		if d >= limit {
			return 0, false
		}
		maxDist = math.Max(maxDist, d)
	}
	return clamp01(1 - maxDist/limit), true
}

func (h *Heuristic) twoFinger(hand *landmark.Hand, span float64) (float64, bool) {
	limit := h.t.Extension * span
	base := hand.PalmBase()

	extended := func(finger int) bool {
		return landmark.Distance(hand.Points[landmark.Fingers[finger][1]], base) > limit
	}
	if !extended(0) || !extended(1) || extended(2) || extended(3) {
		return 0, false
	}

	wrist := hand.Points[landmark.Wrist]
	var dirs [2]landmark.Point3D
	for i := 0; i < 2; i++ {
		mcp := hand.Points[landmark.Fingers[i][0]]
		dir := hand.Points[landmark.Fingers[i][1]].Sub(mcp)
		// The finger must point away from the wrist, not fold back over the palm.
		if dir.Dot(mcp.Sub(wrist)) <= 0 {
			return 0, false
		}
		dirs[i] = dir
	}

	angle := angleDeg(dirs[0], dirs[1])
	if angle > h.t.TwoFingerAngle {
		return 0, false
	}
	return clamp01(1 - angle/h.t.TwoFingerAngle), true
}

func (h *Heuristic) pinch(hand *landmark.Hand, span float64) (float64, bool) {
	limit := h.t.Pinch * span
	d := landmark.Distance(hand.Points[landmark.ThumbTip], hand.Points[landmark.IndexTip])
	if d >= limit {
		return 0, false
	}
	return clamp01(1 - d/limit), true
}

func angleDeg(a, b landmark.Point3D) float64 {
	na, nb := a.Norm(), b.Norm()
	if na == 0 || nb == 0 {
		return 180
	}
	cos := a.Dot(b) / (na * nb)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
