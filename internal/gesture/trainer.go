package gesture

import (
	"encoding/json"
	"fmt"

	"github.com/ayusman/mudra/internal/landmark"
)

// Trainer processes recorded samples into template landmarks.
type Trainer struct{}

// NewTrainer creates a new Trainer instance.
func NewTrainer() *Trainer {
	return &Trainer{}
}

// Sample is one recorded hand pose as stored by the API.
type Sample struct {
	Landmarks []landmark.Point3D `json:"landmarks"`
	Timestamp int64              `json:"timestamp"`
}

// Train normalizes each sample and averages them point-wise into template
// landmarks.
func (t *Trainer) Train(samples []json.RawMessage) ([landmark.NumLandmarks]landmark.Point3D, error) {
	var out [landmark.NumLandmarks]landmark.Point3D
	if len(samples) == 0 {
		return out, fmt.Errorf("no samples provided")
	}

	hands := make([]*landmark.Hand, 0, len(samples))
	for i, raw := range samples {
		var sample Sample
		if err := json.Unmarshal(raw, &sample); err != nil {
			return out, fmt.Errorf("failed to parse sample %d: %w", i, err)
		}
		if len(sample.Landmarks) != landmark.NumLandmarks {
			return out, fmt.Errorf("sample %d has %d landmarks, expected %d", i, len(sample.Landmarks), landmark.NumLandmarks)
		}

		h := &landmark.Hand{}
		copy(h.Points[:], sample.Landmarks)
		if !h.IsFinite() {
			return out, fmt.Errorf("sample %d has non-finite landmarks", i)
		}
		hands = append(hands, h.Normalize())
	}

	return landmark.Average(hands).Points, nil
}

// SampleFromHand encodes a hand as a stored sample.
func SampleFromHand(h *landmark.Hand, timestamp int64) (json.RawMessage, error) {
	return json.Marshal(Sample{Landmarks: h.Points[:], Timestamp: timestamp})
}
