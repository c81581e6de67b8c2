package store

import (
	"context"
	"fmt"

	"github.com/dukerupert/billow/internal/billing/payment"
)

func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events WHERE id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return n > 0, nil
}

// MarkEventProcessed records a handled event. Marking the same id twice is a no-op.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID string, name payment.EventName) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO webhook_events (id, name, processed_at) VALUES (?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		eventID, string(name), s.now(),
	)
	if err != nil {
		return fmt.Errorf("mark webhook event: %w", err)
	}
	return nil
}
