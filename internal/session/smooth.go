package session

import "github.com/ayusman/mudra/internal/landmark"

// smoother averages the landmarks of the last window hands. A frame without
// a hand resets it so a reappearing hand is not blended with a stale one.
type smoother struct {
	window int
	hands  []*landmark.Hand
}

func newSmoother(window int) *smoother {
	if window < 1 {
		window = 1
	}
	return &smoother{window: window, hands: make([]*landmark.Hand, 0, window)}
}

// apply returns the frame to classify. The input frame is never modified.
func (s *smoother) apply(f *landmark.Frame) *landmark.Frame {
	if s.window == 1 {
		return f
	}
	if !f.HasHand() {
		s.hands = s.hands[:0]
		return f
	}

	if len(s.hands) == s.window {
		copy(s.hands, s.hands[1:])
		s.hands = s.hands[:s.window-1]
	}
	s.hands = append(s.hands, f.Hand)

	out := *f
	out.Hand = landmark.Average(s.hands)
	return &out
}
