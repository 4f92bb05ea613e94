// Package landmark defines the hand landmark frame model shared by the wire
// codec, the gesture classifiers and the landmark sources.
package landmark

import (
	"math"
	"time"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Fingers lists the (MCP, Tip) index pairs of the four non-thumb fingers,
// ordered index, middle, ring, pinky.
var Fingers = [4][2]int{
	{IndexMCP, IndexTip},
	{MiddleMCP, MiddleTip},
	{RingMCP, RingTip},
	{PinkyMCP, PinkyTip},
}

// Point3D represents a 3D point in space with x, y, z coordinates.
// X and Y are normalized to the image bounds, Z is relative depth where more
// negative values are closer to the camera.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns p - q.
func (p Point3D) Sub(q Point3D) Point3D {
	return Point3D{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Add returns p + q.
func (p Point3D) Add(q Point3D) Point3D {
	return Point3D{X: p.X + q.X, Y: p.Y + q.Y, Z: p.Z + q.Z}
}

// Scale returns p multiplied by f.
func (p Point3D) Scale(f float64) Point3D {
	return Point3D{X: p.X * f, Y: p.Y * f, Z: p.Z * f}
}

// Dot returns the dot product of p and q.
func (p Point3D) Dot(q Point3D) float64 {
	return p.X*q.X + p.Y*q.Y + p.Z*q.Z
}

// Norm returns the length of p.
func (p Point3D) Norm() float64 {
	return math.Sqrt(p.Dot(p))
}

// IsFinite reports whether every coordinate is a finite number.
func (p Point3D) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y) && isFinite(p.Z)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Distance calculates the Euclidean distance between two 3D points.
func Distance(a, b Point3D) float64 {
	return a.Sub(b).Norm()
}

// Hand represents the 21 hand landmarks produced by the extractor.
type Hand struct {
	Points     [NumLandmarks]Point3D `json:"points"`
	Handedness string                `json:"handedness,omitempty"` // "Left" or "Right"
	Score      float64               `json:"score,omitempty"`
}

// Frame is one landmark observation. A nil Hand is the explicit no-hand
// variant; it still carries its sequence number and capture time.
type Frame struct {
	SequenceID uint64
	Timestamp  time.Time
	Hand       *Hand
	// Pose holds optional body landmarks; index 0 is the nose.
	Pose []Point3D
}

// NoHand returns a frame recording that no hand was visible.
func NoHand(seq uint64, ts time.Time) *Frame {
	return &Frame{SequenceID: seq, Timestamp: ts}
}

// HasHand reports whether the frame carries hand landmarks.
func (f *Frame) HasHand() bool {
	return f != nil && f.Hand != nil
}

// Span returns the hand-span scale reference: the distance from the wrist to
// the middle finger MCP.
func (h *Hand) Span() float64 {
	return Distance(h.Points[Wrist], h.Points[MiddleMCP])
}

// PalmBase returns the centroid of the wrist and the four non-thumb MCPs.
func (h *Hand) PalmBase() Point3D {
	sum := h.Points[Wrist]
	for _, f := range Fingers {
		sum = sum.Add(h.Points[f[0]])
	}
	return sum.Scale(1.0 / 5.0)
}

// IsFinite reports whether every landmark coordinate is finite.
func (h *Hand) IsFinite() bool {
	for _, p := range h.Points {
		if !p.IsFinite() {
			return false
		}
	}
	return true
}

// Translate returns a copy of the hand shifted by (dx, dy).
func (h *Hand) Translate(dx, dy float64) *Hand {
	out := *h
	for i := range out.Points {
		out.Points[i].X += dx
		out.Points[i].Y += dy
	}
	return &out
}

// ScaleAbout returns a copy of the hand scaled by f around its wrist, which
// simulates moving the hand towards or away from the camera.
func (h *Hand) ScaleAbout(f float64) *Hand {
	out := *h
	wrist := h.Points[Wrist]
	for i := range out.Points {
		out.Points[i] = wrist.Add(h.Points[i].Sub(wrist).Scale(f))
	}
	return &out
}

// Normalize normalizes the hand landmarks relative to wrist position and hand size.
// The normalized landmarks have the wrist at origin (0,0,0) and are scaled
// so that the distance from wrist to middle finger MCP is 1.0.
// Returns a new Hand instance with normalized points.
func (h *Hand) Normalize() *Hand {
	if h == nil {
		return nil
	}

	normalized := &Hand{
		Handedness: h.Handedness,
		Score:      h.Score,
	}

	wrist := h.Points[Wrist]
	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i] = h.Points[i].Sub(wrist)
	}

	scale := normalized.Points[MiddleMCP].Norm()

	// Avoid division by zero
	if scale < 1e-10 {
		return normalized
	}

	for i := 0; i < NumLandmarks; i++ {
		normalized.Points[i] = normalized.Points[i].Scale(1 / scale)
	}

	return normalized
}

// Average returns the point-wise mean of the given hands. Handedness is taken
// from the last hand, the score is averaged. Returns nil for an empty slice.
func Average(hands []*Hand) *Hand {
	if len(hands) == 0 {
		return nil
	}

	out := &Hand{Handedness: hands[len(hands)-1].Handedness}
	n := float64(len(hands))
	for _, h := range hands {
		for i := range out.Points {
			out.Points[i] = out.Points[i].Add(h.Points[i])
		}
		out.Score += h.Score
	}
	for i := range out.Points {
		out.Points[i] = out.Points[i].Scale(1 / n)
	}
	out.Score /= n
	return out
}
