package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

func seedSession(t *testing.T, s *store.Store, id string, at time.Time, actions ...action.Kind) {
	t.Helper()
	if err := s.Sessions().Open(&store.SessionRecord{ID: id, Remote: "test", Encoding: "json", OpenedAt: at}); err != nil {
		t.Fatal(err)
	}
	for i, a := range actions {
		if _, err := s.Events().Create(action.NewEvent(a, id, at.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEventHandler(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedSession(t, s, "s1", at, action.NextTrack, action.PlayPause)
	seedSession(t, s, "s2", at.Add(time.Hour), action.VolumeUp)
	handler := NewEventHandler(s)

	t.Run("latest first with limit", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/events?limit=2", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var response listEventsResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatal(err)
		}
		if len(response.Events) != 2 || response.Events[0].Action != "volume_up" {
			t.Errorf("events = %+v", response.Events)
		}
	})

	t.Run("by session", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/events?session=s1", nil)
		var response listEventsResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatal(err)
		}
		if len(response.Events) != 2 || response.Events[0].Action != "next_track" {
			t.Errorf("events = %+v", response.Events)
		}
	})

	t.Run("empty list is an array", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/events?session=none", nil)
		if body := rec.Body.String(); body != "{\"events\":[]}\n" {
			t.Errorf("body = %q", body)
		}
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, q := range []string{"0", "-3", "many"} {
			rec := doJSON(t, handler, http.MethodGet, "/api/events?limit="+q, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("limit=%s: expected status %d, got %d", q, http.StatusBadRequest, rec.Code)
			}
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/events", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func TestSessionHandler(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedSession(t, s, "s1", at, action.PlayPause)
	handler := NewSessionHandler(s, session.NewRegistry())

	t.Run("list", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/sessions", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var response listSessionsResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatal(err)
		}
		if len(response.Live) != 0 || len(response.Recent) != 1 || response.Recent[0].ID != "s1" {
			t.Errorf("response = %+v", response)
		}
	})

	t.Run("detail", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/sessions/s1", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var response sessionDetailResponse
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatal(err)
		}
		if response.Session.ID != "s1" || len(response.Events) != 1 {
			t.Errorf("response = %+v", response)
		}
	})

	t.Run("not found", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/sessions/missing", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}
