package store

import (
	"database/sql"
	"errors"
	"time"
)

// SessionRecord is the persisted summary of one landmark connection.
// ClosedAt is nil while the session is live.
type SessionRecord struct {
	ID        string     `json:"id"`
	Remote    string     `json:"remote"`
	Encoding  string     `json:"encoding"`
	OpenedAt  time.Time  `json:"opened_at"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Received  uint64     `json:"received"`
	Processed uint64     `json:"processed"`
	Dropped   uint64     `json:"dropped"`
	Actions   uint64     `json:"actions"`
}

// SessionCounts are the final counters written when a session closes.
type SessionCounts struct {
	Received  uint64
	Processed uint64
	Dropped   uint64
	Actions   uint64
}

// SessionRepository persists session summaries.
type SessionRepository struct {
	db *sql.DB
}

// Sessions returns the session repository for this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{db: s.db}
}

// Open inserts a row for a newly connected session.
func (r *SessionRepository) Open(rec *SessionRecord) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions (id, remote, encoding, opened_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Remote, rec.Encoding, rec.OpenedAt,
	)
	return err
}

// Close stamps the session closed and records its final counters.
func (r *SessionRepository) Close(id string, closedAt time.Time, c SessionCounts) error {
	result, err := r.db.Exec(
		`UPDATE sessions
		 SET closed_at = ?, received = ?, processed = ?, dropped = ?, actions = ?
		 WHERE id = ?`,
		closedAt, c.Received, c.Processed, c.Dropped, c.Actions, id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

const sessionColumns = `id, remote, encoding, opened_at, closed_at, received, processed, dropped, actions`

func scanSession(row rowScanner) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var closedAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.Remote, &rec.Encoding, &rec.OpenedAt, &closedAt,
		&rec.Received, &rec.Processed, &rec.Dropped, &rec.Actions); err != nil {
		return nil, err
	}
	if closedAt.Valid {
		rec.ClosedAt = &closedAt.Time
	}
	return rec, nil
}

// GetByID retrieves a session by its ID.
func (r *SessionRepository) GetByID(id string) (*SessionRecord, error) {
	rec, err := scanSession(r.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// List returns up to limit sessions, most recently opened first.
func (r *SessionRepository) List(limit int) ([]*SessionRecord, error) {
	rows, err := r.db.Query(
		`SELECT `+sessionColumns+` FROM sessions ORDER BY opened_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}
