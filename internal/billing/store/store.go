// Package store persists billing entities in SQLite and computes feature
// usage. *Store implements payment.Persistence.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/billow/internal/billing/payment"
	"github.com/dukerupert/billow/internal/billing/usage"
)

var _ payment.Persistence = (*Store)(nil)

type Store struct {
	db     *sql.DB
	usage  *usage.Registry
	logger *slog.Logger
	now    func() time.Time
}

// New returns a store over db. A nil registry counts no usage.
func New(db *sql.DB, registry *usage.Registry, logger *slog.Logger) *Store {
	if registry == nil {
		registry = usage.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		usage:  registry,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func newID() string {
	return uuid.NewString()
}

func encodeMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

func decodeMetadata(s string) (map[string]string, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
