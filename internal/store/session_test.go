package store

import (
	"errors"
	"testing"
	"time"

	"github.com/ayusman/mudra/internal/action"
	"github.com/ayusman/mudra/internal/metrics"
)

func openSession(t *testing.T, s *Store, id string, at time.Time) {
	t.Helper()
	rec := &SessionRecord{ID: id, Remote: "127.0.0.1:5000", Encoding: "json", OpenedAt: at}
	if err := s.Sessions().Open(rec); err != nil {
		t.Fatalf("Open(%s) error = %v", id, err)
	}
}

func TestSessionRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Sessions()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	openSession(t, s, "s1", base)
	openSession(t, s, "s2", base.Add(time.Minute))

	got, err := repo.GetByID("s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.ClosedAt != nil {
		t.Error("open session should have no ClosedAt")
	}
	if !got.OpenedAt.Equal(base) {
		t.Errorf("OpenedAt = %v, want %v", got.OpenedAt, base)
	}

	counts := SessionCounts{Received: 100, Processed: 90, Dropped: 10, Actions: 3}
	if err := repo.Close("s1", base.Add(30*time.Second), counts); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	got, _ = repo.GetByID("s1")
	if got.ClosedAt == nil || got.Received != 100 || got.Dropped != 10 || got.Actions != 3 {
		t.Errorf("closed session = %+v", got)
	}

	list, err := repo.List(10)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "s2" {
		t.Errorf("List() order = %v, want s2 first", list)
	}
	if list, _ := repo.List(1); len(list) != 1 {
		t.Errorf("List(1) = %d rows", len(list))
	}

	if err := repo.Close("missing", base, counts); !errors.Is(err, ErrNotFound) {
		t.Errorf("Close(missing) error = %v", err)
	}
	if _, err := repo.GetByID("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID(missing) error = %v", err)
	}
}

func TestEventRepository(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	openSession(t, s, "s1", at)
	repo := s.Events()

	if _, err := repo.Create(action.NewEvent(action.NextTrack, "s1", at)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := repo.Create(action.NewEvent(action.VolumeUp, "s1", at.Add(time.Second)).WithMagnitude(0.04)); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	bySession, err := repo.ListBySession("s1")
	if err != nil {
		t.Fatalf("ListBySession() error = %v", err)
	}
	if len(bySession) != 2 {
		t.Fatalf("len = %d, want 2", len(bySession))
	}
	if bySession[0].Action != "next_track" || bySession[0].Magnitude != nil {
		t.Errorf("first event = %+v", bySession[0])
	}
	if bySession[1].Magnitude == nil || *bySession[1].Magnitude != 0.04 {
		t.Errorf("second event magnitude = %v", bySession[1].Magnitude)
	}

	latest, err := repo.List(1)
	if err != nil || len(latest) != 1 || latest[0].Action != "volume_up" {
		t.Errorf("List(1) = %+v, %v", latest, err)
	}

	// Events require a known session.
	if _, err := repo.Create(action.NewEvent(action.PlayPause, "ghost", at)); err == nil {
		t.Error("event for unknown session should be rejected")
	}
}

func TestJournal(t *testing.T) {
	s := newTestStore(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	openSession(t, s, "s1", at)

	m := metrics.New()
	j := NewJournal(s, 16, nil, m)
	for i := 0; i < 5; i++ {
		if !j.Record(action.NewEvent(action.PlayPause, "s1", at.Add(time.Duration(i)*time.Second))) {
			t.Fatalf("Record(%d) dropped", i)
		}
	}
	j.Close()

	events, err := s.Events().ListBySession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 5 {
		t.Errorf("journaled %d events, want 5", len(events))
	}

	t.Run("closed journal drops", func(t *testing.T) {
		if j.Record(action.NewEvent(action.PlayPause, "s1", at)) {
			t.Error("Record() after Close should report a drop")
		}
		j.Close()
	})
}
