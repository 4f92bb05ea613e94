package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/mudra/internal/landmark"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Template represents a trained gesture template stored in the database.
// Landmarks is nil until the template has been trained.
type Template struct {
	ID        string
	Name      string
	Kind      string
	Tolerance float64
	Samples   int
	Landmarks []landmark.Point3D
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Trained reports whether the template has landmarks.
func (t *Template) Trained() bool {
	return len(t.Landmarks) == landmark.NumLandmarks
}

// TemplateRepository provides CRUD operations for templates.
type TemplateRepository struct {
	db *sql.DB
}

// Templates returns the template repository for this store.
func (s *Store) Templates() *TemplateRepository {
	return &TemplateRepository{db: s.db}
}

const templateColumns = `id, name, kind, tolerance, samples, landmarks, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	t := &Template{}
	var landmarks sql.NullString

	if err := row.Scan(&t.ID, &t.Name, &t.Kind, &t.Tolerance, &t.Samples, &landmarks, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if landmarks.Valid && landmarks.String != "" {
		if err := json.Unmarshal([]byte(landmarks.String), &t.Landmarks); err != nil {
			return nil, fmt.Errorf("template %s landmarks: %w", t.ID, err)
		}
	}
	return t, nil
}

func encodeLandmarks(points []landmark.Point3D) (sql.NullString, error) {
	if len(points) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(points)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// Create inserts a new template into the database.
func (r *TemplateRepository) Create(t *Template) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	landmarks, err := encodeLandmarks(t.Landmarks)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(
		`INSERT INTO templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Kind, t.Tolerance, t.Samples, landmarks, t.CreatedAt, t.UpdatedAt,
	)
	return err
}

// GetByID retrieves a template by its ID.
func (r *TemplateRepository) GetByID(id string) (*Template, error) {
	t, err := scanTemplate(r.db.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// GetByName retrieves a template by its name.
func (r *TemplateRepository) GetByName(name string) (*Template, error) {
	t, err := scanTemplate(r.db.QueryRow(`SELECT `+templateColumns+` FROM templates WHERE name = ?`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// List retrieves all templates, newest first.
func (r *TemplateRepository) List() ([]*Template, error) {
	rows, err := r.db.Query(`SELECT ` + templateColumns + ` FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return templates, nil
}

// Update updates an existing template's name, kind and tolerance.
func (r *TemplateRepository) Update(t *Template) error {
	t.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE templates SET name = ?, kind = ?, tolerance = ?, updated_at = ?
		 WHERE id = ?`,
		t.Name, t.Kind, t.Tolerance, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// SetLandmarks stores trained landmarks for a template.
func (r *TemplateRepository) SetLandmarks(id string, points []landmark.Point3D) error {
	landmarks, err := encodeLandmarks(points)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(
		`UPDATE templates SET landmarks = ?, updated_at = ? WHERE id = ?`,
		landmarks, time.Now(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// Delete removes a template and its samples.
func (r *TemplateRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
