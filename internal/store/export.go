package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/billow/internal/model"
)

type ExportStore struct {
	db *sql.DB
}

func NewExportStore(db *sql.DB) *ExportStore {
	return &ExportStore{db: db}
}

func scanExport(scanner interface{ Scan(...any) error }) (*model.Export, error) {
	var e model.Export
	var completedAt sql.NullTime
	err := scanner.Scan(&e.ID, &e.OrganizationID, &e.Format, &e.Status,
		&e.ObjectKey, &e.SizeBytes, &e.Error, &completedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if completedAt.Valid {
		e.CompletedAt = &completedAt.Time
	}
	return &e, nil
}

const exportCols = `id, organization_id, format, status, object_key, size_bytes, error, completed_at, created_at`

func (s *ExportStore) Create(ctx context.Context, orgID, format string) (*model.Export, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO exports (id, organization_id, format, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, orgID, format, model.ExportPending, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert export: %w", err)
	}
	return s.GetByID(ctx, orgID, id)
}

func (s *ExportStore) GetByID(ctx context.Context, orgID, id string) (*model.Export, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+exportCols+` FROM exports WHERE organization_id = ? AND id = ?`, orgID, id)
	e, err := scanExport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get export: %w", err)
	}
	return e, nil
}

func (s *ExportStore) List(ctx context.Context, orgID string, limit, offset int) ([]model.Export, error) {
	return s.list(ctx,
		`WHERE organization_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		orgID, listLimit(limit), offset,
	)
}

// ListPending returns the oldest pending exports across all organizations.
func (s *ExportStore) ListPending(ctx context.Context, limit int) ([]model.Export, error) {
	return s.list(ctx,
		`WHERE status = ? ORDER BY created_at, rowid LIMIT ?`,
		model.ExportPending, listLimit(limit),
	)
}

func (s *ExportStore) list(ctx context.Context, where string, args ...any) ([]model.Export, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+exportCols+` FROM exports `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list exports: %w", err)
	}
	defer rows.Close()

	var exports []model.Export
	for rows.Next() {
		e, err := scanExport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan export: %w", err)
		}
		exports = append(exports, *e)
	}
	return exports, rows.Err()
}

func (s *ExportStore) MarkComplete(ctx context.Context, id, objectKey string, size int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE exports SET status = ?, object_key = ?, size_bytes = ?, error = '', completed_at = ? WHERE id = ?`,
		model.ExportComplete, objectKey, size, now(), id)
	if err != nil {
		return fmt.Errorf("mark export complete: %w", err)
	}
	return nil
}

func (s *ExportStore) MarkFailed(ctx context.Context, id, msg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE exports SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		model.ExportFailed, msg, now(), id)
	if err != nil {
		return fmt.Errorf("mark export failed: %w", err)
	}
	return nil
}

// Delete removes the export and reports whether it existed.
func (s *ExportStore) Delete(ctx context.Context, orgID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM exports WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return false, fmt.Errorf("delete export: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
