package store

import (
	"database/sql"
	"time"

	"github.com/ayusman/mudra/internal/action"
)

// EventRecord is a journaled action.
type EventRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
	Magnitude *float64  `json:"magnitude,omitempty"`
	EmittedAt time.Time `json:"emitted_at"`
}

// EventRepository persists confirmed actions.
type EventRepository struct {
	db *sql.DB
}

// Events returns the event repository for this store.
func (s *Store) Events() *EventRepository {
	return &EventRepository{db: s.db}
}

// Create appends an event to the journal and returns its row ID.
func (r *EventRepository) Create(e *action.Event) (int64, error) {
	var magnitude sql.NullFloat64
	if e.Magnitude != nil {
		magnitude = sql.NullFloat64{Float64: *e.Magnitude, Valid: true}
	}

	result, err := r.db.Exec(
		`INSERT INTO events (session_id, action, magnitude, emitted_at) VALUES (?, ?, ?, ?)`,
		e.SessionID, e.Action.String(), magnitude, e.EmittedAt,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// List returns up to limit events, newest first.
func (r *EventRepository) List(limit int) ([]EventRecord, error) {
	return r.query(
		`SELECT id, session_id, action, magnitude, emitted_at
		 FROM events ORDER BY id DESC LIMIT ?`,
		limit,
	)
}

// ListBySession returns a session's events in emission order.
func (r *EventRepository) ListBySession(sessionID string) ([]EventRecord, error) {
	return r.query(
		`SELECT id, session_id, action, magnitude, emitted_at
		 FROM events WHERE session_id = ? ORDER BY id`,
		sessionID,
	)
}

func (r *EventRepository) query(q string, args ...any) ([]EventRecord, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var magnitude sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Action, &magnitude, &e.EmittedAt); err != nil {
			return nil, err
		}
		if magnitude.Valid {
			e.Magnitude = &magnitude.Float64
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
