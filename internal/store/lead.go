package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/billow/internal/model"
)

type LeadStore struct {
	db *sql.DB
}

func NewLeadStore(db *sql.DB) *LeadStore {
	return &LeadStore{db: db}
}

func scanLead(scanner interface{ Scan(...any) error }) (*model.Lead, error) {
	var l model.Lead
	err := scanner.Scan(&l.ID, &l.OrganizationID, &l.Name, &l.Email, &l.Source, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

const leadCols = `id, organization_id, name, email, source, created_at`

func (s *LeadStore) Create(ctx context.Context, orgID, name, email, source string) (*model.Lead, error) {
	id := newID()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO leads (`+leadCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		id, orgID, name, email, source, now(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert lead: %w", err)
	}
	return s.GetByID(ctx, orgID, id)
}

func (s *LeadStore) GetByID(ctx context.Context, orgID, id string) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+leadCols+` FROM leads WHERE organization_id = ? AND id = ?`, orgID, id)
	l, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

// List returns the organization's leads, newest first.
func (s *LeadStore) List(ctx context.Context, orgID string, limit, offset int) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadCols+` FROM leads WHERE organization_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		orgID, listLimit(limit), offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		leads = append(leads, *l)
	}
	return leads, rows.Err()
}

// Delete removes the lead and reports whether it existed.
func (s *LeadStore) Delete(ctx context.Context, orgID, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM leads WHERE organization_id = ? AND id = ?`, orgID, id)
	if err != nil {
		return false, fmt.Errorf("delete lead: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
