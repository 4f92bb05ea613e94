package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/gesture"
	"github.com/ayusman/mudra/internal/store"
)

const defaultTolerance = 1.5

// TemplateHandler handles HTTP requests for template resources. When a
// classifier is set, trained templates are kept in sync with it.
type TemplateHandler struct {
	store      *store.Store
	classifier *gesture.TemplateClassifier
}

// NewTemplateHandler creates a new TemplateHandler. classifier may be nil.
func NewTemplateHandler(s *store.Store, classifier *gesture.TemplateClassifier) *TemplateHandler {
	return &TemplateHandler{store: s, classifier: classifier}
}

// ServeHTTP routes /api/templates and /api/templates/{id}.
func (h *TemplateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/templates")
	path = strings.TrimPrefix(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

type templateRequest struct {
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Tolerance float64 `json:"tolerance"`
}

type templateResponse struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Kind      string  `json:"kind"`
	Tolerance float64 `json:"tolerance"`
	Samples   int     `json:"samples"`
	Trained   bool    `json:"trained"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

type listTemplatesResponse struct {
	Templates []templateResponse `json:"templates"`
}

func toResponse(t *store.Template) templateResponse {
	return templateResponse{
		ID:        t.ID,
		Name:      t.Name,
		Kind:      t.Kind,
		Tolerance: t.Tolerance,
		Samples:   t.Samples,
		Trained:   t.Trained(),
		CreatedAt: t.CreatedAt.Format(timeFormat),
		UpdatedAt: t.UpdatedAt.Format(timeFormat),
	}
}

// parseTemplateKind accepts the recognizable gesture kinds only.
func parseTemplateKind(s string) (gesture.Kind, error) {
	k, err := gesture.ParseKind(s)
	if err != nil {
		return gesture.None, err
	}
	if k == gesture.None {
		return gesture.None, errors.New("kind none cannot be trained")
	}
	return k, nil
}

func (h *TemplateHandler) list(w http.ResponseWriter, r *http.Request) {
	templates, err := h.store.Templates().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list templates")
		return
	}

	response := listTemplatesResponse{
		Templates: make([]templateResponse, 0, len(templates)),
	}
	for _, t := range templates {
		response.Templates = append(response.Templates, toResponse(t))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *TemplateHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.store.Templates().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *TemplateHandler) create(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required")
		return
	}
	if _, err := parseTemplateKind(req.Kind); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid template kind")
		return
	}
	if req.Tolerance < 0 {
		writeError(w, http.StatusBadRequest, "Tolerance must not be negative")
		return
	}

	if _, err := h.store.Templates().GetByName(req.Name); err == nil {
		writeError(w, http.StatusConflict, "Template name already exists")
		return
	}

	tolerance := req.Tolerance
	if tolerance == 0 {
		tolerance = defaultTolerance
	}

	t := &store.Template{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Kind:      req.Kind,
		Tolerance: tolerance,
	}
	if err := h.store.Templates().Create(t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create template")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(t))
}

func (h *TemplateHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	t, err := h.store.Templates().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get template")
		return
	}

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Kind != "" {
		if _, err := parseTemplateKind(req.Kind); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid template kind")
			return
		}
		t.Kind = req.Kind
	}
	if req.Tolerance < 0 {
		writeError(w, http.StatusBadRequest, "Tolerance must not be negative")
		return
	}
	if req.Tolerance != 0 {
		t.Tolerance = req.Tolerance
	}

	if err := h.store.Templates().Update(t); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update template")
		return
	}
	h.sync(t)

	writeJSON(w, http.StatusOK, toResponse(t))
}

func (h *TemplateHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.store.Templates().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Template not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}
	if h.classifier != nil {
		h.classifier.RemoveTemplate(id)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *TemplateHandler) sync(t *store.Template) {
	syncTemplate(h.classifier, t)
}

// syncTemplate pushes a trained template into the classifier.
func syncTemplate(c *gesture.TemplateClassifier, t *store.Template) {
	if c == nil {
		return
	}
	if gt, ok := ToGestureTemplate(t); ok {
		c.SetTemplate(gt)
	}
}

// ToGestureTemplate converts a stored template into a classifier template.
// It reports false if the template is untrained or has an unknown kind.
func ToGestureTemplate(t *store.Template) (*gesture.Template, bool) {
	if !t.Trained() {
		return nil, false
	}
	kind, err := parseTemplateKind(t.Kind)
	if err != nil {
		return nil, false
	}
	gt := &gesture.Template{
		ID:        t.ID,
		Name:      t.Name,
		Kind:      kind,
		Tolerance: t.Tolerance,
	}
	copy(gt.Landmarks[:], t.Landmarks)
	return gt, true
}

// LoadTemplates loads every trained template from the store into c and
// returns how many were loaded.
func LoadTemplates(s *store.Store, c *gesture.TemplateClassifier, logger *slog.Logger) (int, error) {
	templates, err := s.Templates().List()
	if err != nil {
		return 0, err
	}
	loaded := 0
	for _, t := range templates {
		gt, ok := ToGestureTemplate(t)
		if !ok {
			if logger != nil {
				logger.Debug("skipping untrained template", "id", t.ID, "name", t.Name)
			}
			continue
		}
		c.SetTemplate(gt)
		loaded++
	}
	return loaded, nil
}
