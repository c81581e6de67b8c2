package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

func scanSubscription(scanner interface{ Scan(...any) error }) (*model.Subscription, error) {
	var sub model.Subscription
	var trialDays sql.NullInt64
	var trialEndsAt, anchor sql.NullTime
	var metadata string
	var cancelAtPeriodEnd int
	err := scanner.Scan(
		&sub.ID, &sub.VendorID, &sub.CustomerID, &sub.PriceID, &sub.Quantity,
		&trialDays, &trialEndsAt, &sub.Status, &anchor, &sub.ProrationBehavior,
		&cancelAtPeriodEnd, &metadata, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if trialDays.Valid {
		sub.TrialDays = &trialDays.Int64
	}
	sub.TrialEndsAt = timePtr(trialEndsAt)
	sub.BillingCycleAnchor = timePtr(anchor)
	sub.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	if sub.Metadata, err = decodeMetadata(metadata); err != nil {
		return nil, err
	}
	return &sub, nil
}

const subscriptionCols = `id, vendor_id, customer_id, price_id, quantity, trial_days, trial_ends_at, status, billing_cycle_anchor, proration_behavior, cancel_at_period_end, metadata, created_at, updated_at`

var subscriptionFilters = map[string]bool{
	"id": true, "vendor_id": true, "customer_id": true, "price_id": true, "status": true,
	"cancel_at_period_end": true, "created_at": true, "updated_at": true,
}

func (s *Store) CreateSubscription(ctx context.Context, sub model.Subscription) (*model.Subscription, error) {
	metadata, err := encodeMetadata(sub.Metadata)
	if err != nil {
		return nil, err
	}
	quantity := sub.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	proration := sub.ProrationBehavior
	if proration == "" {
		proration = model.ProrationCreate
	}
	var trialDays sql.NullInt64
	if sub.TrialDays != nil {
		trialDays = sql.NullInt64{Int64: *sub.TrialDays, Valid: true}
	}

	id := newID()
	now := s.now()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscriptions (`+subscriptionCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, sub.VendorID, sub.CustomerID, sub.PriceID, quantity,
		trialDays, nullTime(sub.TrialEndsAt), sub.Status, nullTime(sub.BillingCycleAnchor), proration,
		boolInt(sub.CancelAtPeriodEnd), metadata, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription: %w", err)
	}
	return s.GetSubscriptionByID(ctx, id)
}

func (s *Store) getSubscription(ctx context.Context, query string, args ...any) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+subscriptionCols+` FROM subscriptions WHERE `+query, args...)
	sub, err := scanSubscription(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (s *Store) GetSubscriptionByID(ctx context.Context, id string) (*model.Subscription, error) {
	return s.getSubscription(ctx, `id = ?`, id)
}

func (s *Store) GetSubscriptionByVendorID(ctx context.Context, vendorID string) (*model.Subscription, error) {
	return s.getSubscription(ctx, `vendor_id = ?`, vendorID)
}

// GetActiveSubscription returns the newest subscription of the customer whose
// status is in the active set.
func (s *Store) GetActiveSubscription(ctx context.Context, customerID string) (*model.Subscription, error) {
	placeholders := make([]string, len(model.ActiveStatuses))
	args := []any{customerID}
	for i, st := range model.ActiveStatuses {
		placeholders[i] = "?"
		args = append(args, st)
	}
	return s.getSubscription(ctx,
		`customer_id = ? AND status IN (`+strings.Join(placeholders, ", ")+`) ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		args...,
	)
}

// UpdateSubscription applies the update as given. Status transitions are not
// checked; the vendor is the authority on lifecycle.
func (s *Store) UpdateSubscription(ctx context.Context, id string, u payment.SubscriptionUpdate) (*model.Subscription, error) {
	var set setClause
	set.add("price_id", u.PriceID)
	addField(&set, "quantity", u.Quantity)
	addField(&set, "status", u.Status)
	if u.TrialEndsAt != nil {
		set.set("trial_ends_at", u.TrialEndsAt.UTC())
	}
	addField(&set, "proration_behavior", u.ProrationBehavior)
	if u.CancelAtPeriodEnd != nil {
		set.set("cancel_at_period_end", boolInt(*u.CancelAtPeriodEnd))
	}
	if u.Metadata != nil {
		metadata, err := encodeMetadata(u.Metadata)
		if err != nil {
			return nil, err
		}
		set.set("metadata", metadata)
	}
	if err := s.update(ctx, "subscriptions", id, set); err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}
	return s.GetSubscriptionByID(ctx, id)
}

func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, q model.ListQuery) ([]model.Subscription, error) {
	tail, args, err := listSQL(q, subscriptionFilters)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+subscriptionCols+` FROM subscriptions`+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
