package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

func scanCustomer(scanner interface{ Scan(...any) error }) (*model.Customer, error) {
	var c model.Customer
	var metadata string
	err := scanner.Scan(
		&c.ID, &c.VendorID, &c.ReferenceID, &c.Name, &c.Email,
		&metadata, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &c, nil
}

const customerCols = `id, vendor_id, reference_id, name, email, metadata, created_at, updated_at`

var customerFilters = map[string]bool{
	"id": true, "vendor_id": true, "reference_id": true, "name": true, "email": true,
	"created_at": true, "updated_at": true,
}

func (s *Store) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	metadata, err := encodeMetadata(c.Metadata)
	if err != nil {
		return nil, err
	}
	id := newID()
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO customers (`+customerCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, c.VendorID, c.ReferenceID, c.Name, c.Email, metadata, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert customer: %w", err)
	}
	return s.getCustomer(ctx, `id = ?`, id)
}

func (s *Store) getCustomer(ctx context.Context, where string, args ...any) (*model.Customer, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+customerCols+` FROM customers WHERE `+where, args...)
	c, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

// GetCustomerByID looks the customer up by local id, falling back to the
// organization reference id, and attaches the active subscription with its
// plan, price and usage.
func (s *Store) GetCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	c, err := s.findCustomer(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	if err := s.attachSubscription(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) findCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := s.getCustomer(ctx, `id = ?`, id)
	if err != nil || c != nil {
		return c, err
	}
	return s.getCustomer(ctx, `reference_id = ?`, id)
}

func (s *Store) GetCustomerByReferenceID(ctx context.Context, referenceID string) (*model.Customer, error) {
	return s.getCustomer(ctx, `reference_id = ?`, referenceID)
}

func (s *Store) GetCustomerByVendorID(ctx context.Context, vendorID string) (*model.Customer, error) {
	return s.getCustomer(ctx, `vendor_id = ?`, vendorID)
}

func (s *Store) UpdateCustomer(ctx context.Context, id string, u payment.CustomerUpdate) (*model.Customer, error) {
	var set setClause
	set.add("vendor_id", u.VendorID)
	set.add("name", u.Name)
	set.add("email", u.Email)
	if u.Metadata != nil {
		metadata, err := encodeMetadata(u.Metadata)
		if err != nil {
			return nil, err
		}
		set.add("metadata", &metadata)
	}
	if err := s.update(ctx, "customers", id, set); err != nil {
		return nil, fmt.Errorf("update customer: %w", err)
	}
	return s.getCustomer(ctx, `id = ?`, id)
}

func (s *Store) DeleteCustomer(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete customer: %w", err)
	}
	return nil
}

// ListCustomers returns bare customer rows; subscriptions are not attached.
func (s *Store) ListCustomers(ctx context.Context, q model.ListQuery) ([]model.Customer, error) {
	tail, args, err := listSQL(q, customerFilters)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+customerCols+` FROM customers`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, *c)
	}
	return customers, rows.Err()
}
