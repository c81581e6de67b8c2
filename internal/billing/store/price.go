package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

func scanPrice(scanner interface{ Scan(...any) error }) (*model.Price, error) {
	var p model.Price
	var metadata string
	var active int
	err := scanner.Scan(
		&p.ID, &p.VendorID, &p.PlanID, &p.Slug, &p.Amount, &p.Currency,
		&p.Interval, &p.IntervalCount, &metadata, &active, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if p.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	p.Active = active != 0
	return &p, nil
}

const priceCols = `id, vendor_id, plan_id, slug, amount, currency, interval, interval_count, metadata, active, created_at, updated_at`

var priceFilters = map[string]bool{
	"id": true, "vendor_id": true, "plan_id": true, "slug": true, "currency": true,
	"interval": true, "active": true, "amount": true, "created_at": true, "updated_at": true,
}

func (s *Store) CreatePrice(ctx context.Context, p model.Price) (*model.Price, error) {
	metadata, err := encodeMetadata(p.Metadata)
	if err != nil {
		return nil, err
	}
	count := p.IntervalCount
	if count == 0 {
		count = 1
	}
	id := newID()
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prices (`+priceCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.VendorID, p.PlanID, p.Slug, p.Amount, p.Currency,
		p.Interval, count, metadata, boolInt(p.Active), now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert price: %w", err)
	}
	return s.GetPriceByID(ctx, id)
}

func (s *Store) getPrice(ctx context.Context, where string, arg any) (*model.Price, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+priceCols+` FROM prices WHERE `+where, arg)
	p, err := scanPrice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}
	return p, nil
}

func (s *Store) GetPriceByID(ctx context.Context, id string) (*model.Price, error) {
	return s.getPrice(ctx, `id = ?`, id)
}

func (s *Store) GetPriceByVendorID(ctx context.Context, vendorID string) (*model.Price, error) {
	return s.getPrice(ctx, `vendor_id = ?`, vendorID)
}

// UpdatePrice changes only activity and metadata; terms never change.
func (s *Store) UpdatePrice(ctx context.Context, id string, u payment.PriceUpdate) (*model.Price, error) {
	var set setClause
	if u.Active != nil {
		set.set("active", boolInt(*u.Active))
	}
	if u.Metadata != nil {
		metadata, err := encodeMetadata(u.Metadata)
		if err != nil {
			return nil, err
		}
		set.set("metadata", metadata)
	}
	if err := s.update(ctx, "prices", id, set); err != nil {
		return nil, fmt.Errorf("update price: %w", err)
	}
	return s.GetPriceByID(ctx, id)
}

func (s *Store) ListPrices(ctx context.Context, q model.ListQuery) ([]model.Price, error) {
	tail, args, err := listSQL(q, priceFilters)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	return s.queryPrices(ctx, `SELECT `+priceCols+` FROM prices`+tail, args...)
}

func (s *Store) pricesForPlan(ctx context.Context, planID string) ([]model.Price, error) {
	return s.queryPrices(ctx,
		`SELECT `+priceCols+` FROM prices WHERE plan_id = ? ORDER BY created_at, rowid`,
		planID,
	)
}

func (s *Store) queryPrices(ctx context.Context, query string, args ...any) ([]model.Price, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var prices []model.Price
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		prices = append(prices, *p)
	}
	return prices, rows.Err()
}
