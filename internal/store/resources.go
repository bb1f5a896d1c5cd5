package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/learnmate/internal/apperr"
	"github.com/starford/learnmate/internal/models"
)

const resourceColumns = `id, title, url, type, notes, file_path, status, error_message, subject_id, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanResource(s scanner) (models.Resource, error) {
	var r models.Resource
	var typ, status string
	err := s.Scan(&r.ID, &r.Title, &r.URL, &typ, &r.Notes, &r.FilePath, &status,
		&r.ErrorMessage, &r.SubjectID, &r.CreatedAt)
	r.Type = models.ResourceType(typ)
	r.Status = models.ResourceStatus(status)
	return r, err
}

func (db *DB) queryResources(ctx context.Context, tail string, args ...any) ([]models.Resource, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query resources: %w", err)
	}
	defer rows.Close()

	out := []models.Resource{}
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CreateResource inserts r as pending and fills in its id, status, and
// creation time.
func (db *DB) CreateResource(ctx context.Context, r *models.Resource) error {
	r.Status = models.StatusPending
	r.ErrorMessage = ""
	r.CreatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx, `
		INSERT INTO resources (title, url, type, notes, file_path, status, subject_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Title, r.URL, string(r.Type), r.Notes, r.FilePath, string(r.Status), r.SubjectID, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("store: create resource: %w", err)
	}
	r.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("store: resource id: %w", err)
	}
	return nil
}

// GetResource returns a single resource by id.
func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	r, err := scanResource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("resource %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get resource: %w", err)
	}
	return &r, nil
}

// ListResources returns the resources of one subject ordered by id.
func (db *DB) ListResources(ctx context.Context, subjectID int64) ([]models.Resource, error) {
	return db.queryResources(ctx, `WHERE subject_id = ? ORDER BY id`, subjectID)
}

// PendingResources returns every pending resource in creation order.
func (db *DB) PendingResources(ctx context.Context) ([]models.Resource, error) {
	return db.queryResources(ctx, `WHERE status = ? ORDER BY id`, string(models.StatusPending))
}

// DeleteResource removes a resource row.
func (db *DB) DeleteResource(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM resources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete resource: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resource %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// SetResourceStatus moves a resource from one status to another. The update
// only applies while the row is still in the from state; otherwise
// ErrStatusChanged is returned.
func (db *DB) SetResourceStatus(ctx context.Context, id int64, from, to models.ResourceStatus, errMsg string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE resources SET status = ?, error_message = ? WHERE id = ? AND status = ?`,
		string(to), errMsg, id, string(from))
	if err != nil {
		return fmt.Errorf("store: set resource status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrStatusChanged
	}
	return nil
}

// ResetResource moves a resource in the error state back to pending so the
// next sweep picks it up again.
func (db *DB) ResetResource(ctx context.Context, id int64) (*models.Resource, error) {
	r, err := db.GetResource(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusError {
		return nil, fmt.Errorf("resource %d is %s, only failed resources can be reset: %w",
			id, r.Status, apperr.ErrValidation)
	}
	if err := db.SetResourceStatus(ctx, id, models.StatusError, models.StatusPending, ""); err != nil {
		return nil, err
	}
	r.Status = models.StatusPending
	r.ErrorMessage = ""
	return r, nil
}

// FilePaths returns every stored file path referenced by a resource.
func (db *DB) FilePaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT file_path FROM resources WHERE file_path != ''`)
	if err != nil {
		return nil, fmt.Errorf("store: file paths: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out[p] = struct{}{}
	}
	return out, rows.Err()
}
