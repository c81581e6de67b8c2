// Package usage maps metered features to the counters that measure them.
//
// A counter is resolved once, when the registry is built, so a plan that
// names a usage source the database does not have fails at startup instead
// of silently counting zero.
package usage

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
)

// Counter returns how many units an organization consumed since the given
// instant. A zero since counts everything.
type Counter func(ctx context.Context, organizationID string, since time.Time) (int64, error)

// Registry holds the counter for each metered feature slug.
type Registry struct {
	mu       sync.RWMutex
	counters map[string]Counter
}

func NewRegistry() *Registry {
	return &Registry{counters: make(map[string]Counter)}
}

// Register sets the counter for a feature, replacing any previous one.
func (r *Registry) Register(feature string, c Counter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[feature] = c
}

// Counter returns the counter registered for feature.
func (r *Registry) Counter(feature string) (Counter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.counters[feature]
	return c, ok
}

// Features lists the registered feature slugs in sorted order.
func (r *Registry) Features() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.counters))
	for f := range r.counters {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// TableCounter counts rows of table owned by the organization. The table must
// have organization_id and created_at columns.
func TableCounter(ctx context.Context, db *sql.DB, table string) (Counter, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("usage table %q is not a valid identifier", table)
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols[name] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("usage table %q does not exist", table)
	}
	if !cols["organization_id"] || !cols["created_at"] {
		return nil, fmt.Errorf("usage table %q needs organization_id and created_at columns", table)
	}

	query := `SELECT COUNT(*) FROM ` + table + ` WHERE organization_id = ? AND created_at >= ?`
	return func(ctx context.Context, organizationID string, since time.Time) (int64, error) {
		var n int64
		if err := db.QueryRowContext(ctx, query, organizationID, since.UTC()).Scan(&n); err != nil {
			return 0, fmt.Errorf("count %s: %w", table, err)
		}
		return n, nil
	}, nil
}

// FromPlans builds a registry with a table counter for every metered feature
// that declares a usage table. Features sharing a slug must agree on the table.
func FromPlans(ctx context.Context, db *sql.DB, plans [][]model.Feature) (*Registry, error) {
	r := NewRegistry()
	tables := make(map[string]string)
	for _, features := range plans {
		for _, f := range features {
			if f.Kind != model.FeatureMetered || f.Table == "" {
				continue
			}
			if prev, ok := tables[f.Slug]; ok {
				if prev != f.Table {
					return nil, fmt.Errorf("feature %q counts both %q and %q", f.Slug, prev, f.Table)
				}
				continue
			}
			c, err := TableCounter(ctx, db, f.Table)
			if err != nil {
				return nil, fmt.Errorf("feature %q: %w", f.Slug, err)
			}
			tables[f.Slug] = f.Table
			r.Register(f.Slug, c)
		}
	}
	return r, nil
}
