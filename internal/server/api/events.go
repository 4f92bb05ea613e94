package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// EventHandler serves the action journal at /api/events.
type EventHandler struct {
	store *store.Store
}

// NewEventHandler creates a new EventHandler with the given store.
func NewEventHandler(s *store.Store) *EventHandler {
	return &EventHandler{store: s}
}

type listEventsResponse struct {
	Events []store.EventRecord `json:"events"`
}

// ServeHTTP handles GET /api/events?limit=N&session=ID.
func (h *EventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var (
		events []store.EventRecord
		err    error
	)
	if id := r.URL.Query().Get("session"); id != "" {
		events, err = h.store.Events().ListBySession(id)
	} else {
		limit, ok := parseLimit(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		events, err = h.store.Events().List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}

	if events == nil {
		events = []store.EventRecord{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}

// SessionHandler serves /api/sessions. Live sessions come from the registry,
// finished ones from the store.
type SessionHandler struct {
	store    *store.Store
	registry *session.Registry
}

// NewSessionHandler creates a new SessionHandler. Either argument may be nil.
func NewSessionHandler(s *store.Store, r *session.Registry) *SessionHandler {
	return &SessionHandler{store: s, registry: r}
}

type listSessionsResponse struct {
	Live   []session.Info         `json:"live"`
	Recent []*store.SessionRecord `json:"recent"`
}

type sessionDetailResponse struct {
	Session *store.SessionRecord `json:"session"`
	Events  []store.EventRecord  `json:"events"`
}

// ServeHTTP routes /api/sessions and /api/sessions/{id}.
func (h *SessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/sessions")
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		h.list(w, r)
		return
	}
	h.get(w, r, path)
}

func (h *SessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	response := listSessionsResponse{
		Live:   []session.Info{},
		Recent: []*store.SessionRecord{},
	}
	if h.registry != nil {
		response.Live = append(response.Live, h.registry.List()...)
	}
	if h.store != nil {
		recent, err := h.store.Sessions().List(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to list sessions")
			return
		}
		response.Recent = append(response.Recent, recent...)
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *SessionHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	rec, err := h.store.Sessions().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}

	events, err := h.store.Events().ListBySession(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []store.EventRecord{}
	}

	writeJSON(w, http.StatusOK, sessionDetailResponse{Session: rec, Events: events})
}
