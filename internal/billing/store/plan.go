package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

func scanPlan(scanner interface{ Scan(...any) error }) (*model.Plan, error) {
	var p model.Plan
	var features string
	var archived int
	err := scanner.Scan(
		&p.ID, &p.VendorID, &p.Slug, &p.Name, &p.Description,
		&features, &archived, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
		return nil, fmt.Errorf("decode features: %w", err)
	}
	p.Archived = archived != 0
	return &p, nil
}

const planCols = `id, vendor_id, slug, name, description, features, archived, created_at, updated_at`

var planFilters = map[string]bool{
	"id": true, "vendor_id": true, "slug": true, "name": true, "archived": true,
	"created_at": true, "updated_at": true,
}

func encodeFeatures(fs []model.Feature) (string, error) {
	if fs == nil {
		fs = []model.Feature{}
	}
	b, err := json.Marshal(fs)
	if err != nil {
		return "", fmt.Errorf("encode features: %w", err)
	}
	return string(b), nil
}

func (s *Store) CreatePlan(ctx context.Context, p model.Plan) (*model.Plan, error) {
	features, err := encodeFeatures(p.Features)
	if err != nil {
		return nil, err
	}
	id := newID()
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO plans (`+planCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.VendorID, p.Slug, p.Name, p.Description, features, boolInt(p.Archived), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert plan: %w", err)
	}
	return s.GetPlanByID(ctx, id)
}

func (s *Store) getPlan(ctx context.Context, where string, arg any) (*model.Plan, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+planCols+` FROM plans WHERE `+where, arg)
	p, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get plan: %w", err)
	}
	if p.Prices, err = s.pricesForPlan(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// GetPlanByID returns the plan with all of its prices, active or not.
func (s *Store) GetPlanByID(ctx context.Context, id string) (*model.Plan, error) {
	return s.getPlan(ctx, `id = ?`, id)
}

func (s *Store) GetPlanBySlug(ctx context.Context, slug string) (*model.Plan, error) {
	return s.getPlan(ctx, `slug = ?`, slug)
}

func (s *Store) UpdatePlan(ctx context.Context, id string, u payment.PlanUpdate) (*model.Plan, error) {
	var set setClause
	set.add("vendor_id", u.VendorID)
	set.add("name", u.Name)
	set.add("description", u.Description)
	if u.Features != nil {
		features, err := encodeFeatures(u.Features)
		if err != nil {
			return nil, err
		}
		set.set("features", features)
	}
	if u.Archived != nil {
		set.set("archived", boolInt(*u.Archived))
	}
	if err := s.update(ctx, "plans", id, set); err != nil {
		return nil, fmt.Errorf("update plan: %w", err)
	}
	return s.GetPlanByID(ctx, id)
}

func (s *Store) ListPlans(ctx context.Context, q model.ListQuery) ([]model.Plan, error) {
	tail, args, err := listSQL(q, planFilters)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+planCols+` FROM plans`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	var plans []model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}

	// Prices are loaded after the cursor is closed; the in-memory database
	// runs on a single connection.
	for i := range plans {
		if plans[i].Prices, err = s.pricesForPlan(ctx, plans[i].ID); err != nil {
			return nil, err
		}
	}
	return plans, nil
}
