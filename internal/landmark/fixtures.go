package landmark

// Preset hands for tests and the replay tooling. All presets are a right hand
// with the palm facing the camera, fingers pointing up (Y decreases going up).
// They share the same wrist and knuckle layout so the hand-span is 0.16.

func baseHand() Hand {
	h := Hand{
		Handedness: "Right",
		Score:      0.95,
	}

	h.Points[Wrist] = Point3D{X: 0.50, Y: 0.80, Z: 0.0}

	h.Points[IndexMCP] = Point3D{X: 0.55, Y: 0.66, Z: 0.0}
	h.Points[MiddleMCP] = Point3D{X: 0.50, Y: 0.64, Z: 0.0}
	h.Points[RingMCP] = Point3D{X: 0.45, Y: 0.66, Z: 0.0}
	h.Points[PinkyMCP] = Point3D{X: 0.41, Y: 0.69, Z: 0.0}

	return h
}

// extendFinger places the PIP, DIP and tip of a finger on a straight line
// from its MCP towards tip.
func extendFinger(h *Hand, mcp int, tip Point3D) {
	base := h.Points[mcp]
	dir := tip.Sub(base)
	h.Points[mcp+1] = base.Add(dir.Scale(0.40))
	h.Points[mcp+2] = base.Add(dir.Scale(0.70))
	h.Points[mcp+3] = tip
}

// curlFinger folds a finger so that its tip rests near the palm.
func curlFinger(h *Hand, mcp int, tip Point3D) {
	base := h.Points[mcp]
	h.Points[mcp+1] = Point3D{X: base.X, Y: base.Y - 0.03, Z: -0.04}
	h.Points[mcp+2] = Point3D{X: (base.X + tip.X) / 2, Y: base.Y - 0.01, Z: -0.04}
	h.Points[mcp+3] = tip
}

func extendThumb(h *Hand) {
	h.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.76, Z: 0.01}
	h.Points[ThumbMCP] = Point3D{X: 0.60, Y: 0.71, Z: 0.02}
	h.Points[ThumbIP] = Point3D{X: 0.65, Y: 0.66, Z: 0.02}
	h.Points[ThumbTip] = Point3D{X: 0.69, Y: 0.62, Z: 0.02}
}

func tuckThumb(h *Hand) {
	h.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.76, Z: -0.01}
	h.Points[ThumbMCP] = Point3D{X: 0.57, Y: 0.72, Z: -0.03}
	h.Points[ThumbIP] = Point3D{X: 0.53, Y: 0.70, Z: -0.05}
	h.Points[ThumbTip] = Point3D{X: 0.48, Y: 0.69, Z: -0.05}
}

// OpenPalmHand returns a hand with all fingers extended. It classifies as no
// gesture.
func OpenPalmHand() *Hand {
	h := baseHand()
	extendThumb(&h)
	extendFinger(&h, IndexMCP, Point3D{X: 0.58, Y: 0.36, Z: 0.0})
	extendFinger(&h, MiddleMCP, Point3D{X: 0.50, Y: 0.32, Z: 0.0})
	extendFinger(&h, RingMCP, Point3D{X: 0.43, Y: 0.36, Z: 0.0})
	extendFinger(&h, PinkyMCP, Point3D{X: 0.36, Y: 0.45, Z: 0.0})
	return &h
}

// FistHand returns a closed fist: every fingertip rests near the palm base
// and the thumb is tucked across the fingers.
func FistHand() *Hand {
	h := baseHand()
	tuckThumb(&h)
	curlFinger(&h, IndexMCP, Point3D{X: 0.52, Y: 0.70, Z: -0.02})
	curlFinger(&h, MiddleMCP, Point3D{X: 0.49, Y: 0.69, Z: -0.03})
	curlFinger(&h, RingMCP, Point3D{X: 0.45, Y: 0.70, Z: -0.03})
	curlFinger(&h, PinkyMCP, Point3D{X: 0.44, Y: 0.71, Z: -0.02})
	return &h
}

// TwoFingerHand returns a hand with index and middle fingers extended side by
// side and ring and pinky curled.
func TwoFingerHand() *Hand {
	h := baseHand()
	tuckThumb(&h)
	h.Points[ThumbTip] = Point3D{X: 0.47, Y: 0.68, Z: -0.04}
	extendFinger(&h, IndexMCP, Point3D{X: 0.57, Y: 0.38, Z: 0.0})
	extendFinger(&h, MiddleMCP, Point3D{X: 0.51, Y: 0.34, Z: 0.0})
	curlFinger(&h, RingMCP, Point3D{X: 0.46, Y: 0.70, Z: -0.03})
	curlFinger(&h, PinkyMCP, Point3D{X: 0.43, Y: 0.72, Z: -0.02})
	return &h
}

// PinchHand returns an "OK" pose: thumb tip touching the index tip, remaining
// fingers extended.
func PinchHand() *Hand {
	h := baseHand()
	h.Points[ThumbCMC] = Point3D{X: 0.55, Y: 0.76, Z: 0.0}
	h.Points[ThumbMCP] = Point3D{X: 0.60, Y: 0.71, Z: -0.01}
	h.Points[ThumbIP] = Point3D{X: 0.62, Y: 0.65, Z: -0.02}
	h.Points[ThumbTip] = Point3D{X: 0.61, Y: 0.59, Z: -0.02}

	h.Points[IndexPIP] = Point3D{X: 0.58, Y: 0.57, Z: -0.02}
	h.Points[IndexDIP] = Point3D{X: 0.60, Y: 0.55, Z: -0.03}
	h.Points[IndexTip] = Point3D{X: 0.60, Y: 0.58, Z: -0.02}

	extendFinger(&h, MiddleMCP, Point3D{X: 0.50, Y: 0.32, Z: 0.0})
	extendFinger(&h, RingMCP, Point3D{X: 0.43, Y: 0.36, Z: 0.0})
	extendFinger(&h, PinkyMCP, Point3D{X: 0.36, Y: 0.45, Z: 0.0})
	return &h
}

// PinchHandAt returns PinchHand translated so that the index fingertip sits at
// (x, y).
func PinchHandAt(x, y float64) *Hand {
	h := PinchHand()
	tip := h.Points[IndexTip]
	return h.Translate(x-tip.X, y-tip.Y)
}
