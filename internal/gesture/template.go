package gesture

import (
	"sort"
	"sync"

	"github.com/ayusman/mudra/internal/landmark"
)

// Template is a trained hand pose. Landmarks are normalized (wrist at the
// origin, unit hand-span).
type Template struct {
	ID        string
	Name      string
	Kind      Kind
	Landmarks [landmark.NumLandmarks]landmark.Point3D
	Tolerance float64 // maximum summed distance for a match
}

// Match is a template that an input hand fell within tolerance of.
type Match struct {
	Template *Template
	Score    float64 // 1 / (1 + Distance), higher is better
	Distance float64
}

// TemplateClassifier matches hands against trained templates. Templates can
// be replaced while sessions are classifying.
type TemplateClassifier struct {
	mu        sync.RWMutex
	templates []*Template
}

// NewTemplateClassifier creates a classifier with no templates. It returns
// None until templates are added.
func NewTemplateClassifier() *TemplateClassifier {
	return &TemplateClassifier{}
}

// SetTemplate adds a template or replaces the one with the same ID.
func (m *TemplateClassifier) SetTemplate(t *Template) {
	if t == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, existing := range m.templates {
		if existing.ID == t.ID {
			m.templates[i] = t
			return
		}
	}
	m.templates = append(m.templates, t)
}

// RemoveTemplate removes a template by its ID.
func (m *TemplateClassifier) RemoveTemplate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, t := range m.templates {
		if t.ID == id {
			m.templates = append(m.templates[:i], m.templates[i+1:]...)
			return
		}
	}
}

// Len returns the number of loaded templates.
func (m *TemplateClassifier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.templates)
}

// Match returns the templates the hand is within tolerance of, best first.
func (m *TemplateClassifier) Match(hand *landmark.Hand) []Match {
	if hand == nil {
		return nil
	}
	normalized := hand.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []Match
	for _, t := range m.templates {
		distance := summedDistance(normalized.Points[:], t.Landmarks[:])
		if distance <= t.Tolerance {
			matches = append(matches, Match{
				Template: t,
				Score:    1.0 / (1.0 + distance),
				Distance: distance,
			})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	return matches
}

// Classify implements Classifier. The best matching template's kind is the
// candidate kind and its score the confidence.
func (m *TemplateClassifier) Classify(frame *landmark.Frame, _ StateView) (Candidate, error) {
	if !frame.HasHand() {
		seq := uint64(0)
		if frame != nil {
			seq = frame.SequenceID
		}
		return NoneCandidate(seq), nil
	}

	c := Candidate{
		Kind:       None,
		SequenceID: frame.SequenceID,
		Position:   frame.Hand.Points[landmark.IndexTip],
	}
	if matches := m.Match(frame.Hand); len(matches) > 0 {
		c.Kind = matches[0].Template.Kind
		c.Confidence = matches[0].Score
	}
	return c, nil
}

// summedDistance is the sum of point-wise Euclidean distances.
func summedDistance(a, b []landmark.Point3D) float64 {
	n := min(len(a), len(b))
	var total float64
	for i := 0; i < n; i++ {
		total += landmark.Distance(a[i], b[i])
	}
	return total
}
