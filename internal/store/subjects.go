package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
)

// CreateSubject inserts a subject and returns it with its new id.
func (db *DB) CreateSubject(ctx context.Context, name, description string) (*models.Subject, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO subjects (name, description) VALUES (?, ?)`, name, description)
	if err != nil {
		return nil, fmt.Errorf("store: create subject: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: subject id: %w", err)
	}
	return &models.Subject{ID: id, Name: name, Description: description, Resources: []models.Resource{}}, nil
}

// GetSubject returns a subject together with its resources.
func (db *DB) GetSubject(ctx context.Context, id int64) (*models.Subject, error) {
	s := models.Subject{ID: id}
	err := db.conn.QueryRowContext(ctx,
		`SELECT name, description FROM subjects WHERE id = ?`, id).Scan(&s.Name, &s.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get subject: %w", err)
	}
	s.Resources, err = db.ListResources(ctx, id)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SubjectExists reports whether a subject with the given id exists.
func (db *DB) SubjectExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM subjects WHERE id = ?`, id).Scan(&n); err != nil {
		return false, fmt.Errorf("store: subject exists: %w", err)
	}
	return n > 0, nil
}

// ListSubjects returns every subject ordered by id, each with its resources.
func (db *DB) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name, description FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list subjects: %w", err)
	}
	defer rows.Close()

	out := []models.Subject{}
	byID := make(map[int64]int)
	for rows.Next() {
		var s models.Subject
		if err := rows.Scan(&s.ID, &s.Name, &s.Description); err != nil {
			return nil, err
		}
		s.Resources = []models.Resource{}
		byID[s.ID] = len(out)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	all, err := db.queryResources(ctx, `ORDER BY id`)
	if err != nil {
		return nil, err
	}
	for _, r := range all {
		if i, ok := byID[r.SubjectID]; ok {
			out[i].Resources = append(out[i].Resources, r)
		}
	}
	return out, nil
}

// UpdateSubject replaces a subject's name and description.
func (db *DB) UpdateSubject(ctx context.Context, id int64, name, description string) (*models.Subject, error) {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE subjects SET name = ?, description = ? WHERE id = ?`, name, description, id)
	if err != nil {
		return nil, fmt.Errorf("store: update subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("subject %d: %w", id, apperr.ErrNotFound)
	}
	return db.GetSubject(ctx, id)
}

// DeleteSubject removes a subject. Resources, exams, questions, and answers
// go with it through ON DELETE CASCADE.
func (db *DB) DeleteSubject(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM subjects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete subject: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("subject %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SubjectIDs returns the ids of every stored subject.
func (db *DB) SubjectIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id FROM subjects`)
	if err != nil {
		return nil, fmt.Errorf("store: subject ids: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}
