package usage

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/database"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertExport(t *testing.T, db *sql.DB, id, org string, at time.Time) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO exports (id, organization_id, format, created_at) VALUES (?, ?, 'csv', ?)`, id, org, at.UTC())
	if err != nil {
		t.Fatalf("insert export: %v", err)
	}
}

func TestTableCounter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	insertExport(t, db, "e1", "org-a", now.Add(-48*time.Hour))
	insertExport(t, db, "e2", "org-a", now.Add(-time.Hour))
	insertExport(t, db, "e3", "org-a", now)
	insertExport(t, db, "e4", "org-b", now)

	count, err := TableCounter(ctx, db, "exports")
	if err != nil {
		t.Fatalf("table counter: %v", err)
	}

	n, err := count(ctx, "org-a", time.Time{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Errorf("lifetime count = %d, want 3", n)
	}

	n, err = count(ctx, "org-a", now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("windowed count = %d, want 2", n)
	}

	n, _ = count(ctx, "org-c", time.Time{})
	if n != 0 {
		t.Errorf("other org count = %d, want 0", n)
	}
}

func TestTableCounterRejectsUnknownTable(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	tests := []string{"missing_table", "exports; DROP TABLE leads", "plans"}
	for _, table := range tests {
		if _, err := TableCounter(ctx, db, table); err == nil {
			t.Errorf("TableCounter(%q) succeeded, want error", table)
		}
	}
}

func TestFromPlans(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	free := []model.Feature{
		{Kind: model.FeatureMetered, Slug: "exports", Limit: model.Int64(3), Table: "exports"},
		{Kind: model.FeatureFlag, Slug: "sso"},
	}
	pro := []model.Feature{
		{Kind: model.FeatureMetered, Slug: "exports", Table: "exports"},
		{Kind: model.FeatureMetered, Slug: "leads", Table: "leads", Cycle: model.IntervalMonth},
		{Kind: model.FeatureMetered, Slug: "seats"},
	}

	r, err := FromPlans(ctx, db, [][]model.Feature{free, pro})
	if err != nil {
		t.Fatalf("from plans: %v", err)
	}
	got := r.Features()
	if len(got) != 2 || got[0] != "exports" || got[1] != "leads" {
		t.Errorf("features = %v, want [exports leads]", got)
	}
	if _, ok := r.Counter("seats"); ok {
		t.Error("seats has no table and should have no counter")
	}
}

func TestFromPlansConflictingTables(t *testing.T) {
	db := setupTestDB(t)

	_, err := FromPlans(context.Background(), db, [][]model.Feature{
		{{Kind: model.FeatureMetered, Slug: "records", Table: "leads"}},
		{{Kind: model.FeatureMetered, Slug: "records", Table: "exports"}},
	})
	if err == nil {
		t.Fatal("expected conflict error")
	}
}
