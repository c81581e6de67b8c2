package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
	"github.com/dukerupert/billow/internal/billing/usage"
	"github.com/dukerupert/billow/internal/database"
)

func setupTestDB(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	exports, err := usage.TableCounter(context.Background(), db, "exports")
	if err != nil {
		t.Fatalf("exports counter: %v", err)
	}
	registry := usage.NewRegistry()
	registry.Register("exports", exports)
	return New(db, registry, nil), db
}

func seedPlan(t *testing.T, s *Store, slug string, features []model.Feature) (*model.Plan, *model.Price) {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreatePlan(ctx, model.Plan{VendorID: "prod_" + slug, Slug: slug, Name: slug, Features: features})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	pr, err := s.CreatePrice(ctx, model.Price{
		VendorID: "price_" + slug, PlanID: p.ID, Slug: slug + "-monthly",
		Amount: 0, Currency: "usd", Interval: model.IntervalMonth, Active: true,
	})
	if err != nil {
		t.Fatalf("create price: %v", err)
	}
	return p, pr
}

func seedCustomer(t *testing.T, s *Store, ref string) *model.Customer {
	t.Helper()
	c, err := s.CreateCustomer(context.Background(), model.Customer{
		VendorID: "cus_" + ref, ReferenceID: ref, Name: "Acme", Email: "billing@acme.test",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func TestCustomerCreateAndLookup(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()

	c, err := s.CreateCustomer(ctx, model.Customer{
		VendorID: "cus_1", ReferenceID: "org-1", Name: "Acme", Email: "a@acme.test",
		Metadata: map[string]string{"tier": "gold"},
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	if c.ID == "" {
		t.Fatal("expected generated id")
	}
	if c.Metadata["tier"] != "gold" {
		t.Errorf("metadata tier = %q, want %q", c.Metadata["tier"], "gold")
	}

	for _, id := range []string{c.ID, "org-1"} {
		got, err := s.GetCustomerByID(ctx, id)
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if got == nil || got.ID != c.ID {
			t.Errorf("GetCustomerByID(%q) = %v, want %s", id, got, c.ID)
		}
	}

	byVendor, _ := s.GetCustomerByVendorID(ctx, "cus_1")
	if byVendor == nil || byVendor.ID != c.ID {
		t.Errorf("by vendor id = %v", byVendor)
	}

	missing, err := s.GetCustomerByID(ctx, "nope")
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing customer")
	}
}

func TestCustomerUpdateAndDelete(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "org-1")

	name := "Acme Corp"
	updated, err := s.UpdateCustomer(ctx, c.ID, payment.CustomerUpdate{Name: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != name {
		t.Errorf("name = %q, want %q", updated.Name, name)
	}
	if updated.Email != c.Email {
		t.Errorf("email changed to %q", updated.Email)
	}

	if err := s.DeleteCustomer(ctx, c.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, _ := s.GetCustomerByID(ctx, c.ID)
	if gone != nil {
		t.Error("customer still present after delete")
	}
}

func TestListCustomers(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()
	for _, ref := range []string{"org-1", "org-2", "org-3"} {
		seedCustomer(t, s, ref)
	}

	all, err := s.ListCustomers(ctx, model.ListQuery{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}

	page, _ := s.ListCustomers(ctx, model.ListQuery{Limit: 1, Offset: 1})
	if len(page) != 1 || page[0].ReferenceID != "org-2" {
		t.Errorf("page = %+v, want org-2", page)
	}

	desc, _ := s.ListCustomers(ctx, model.ListQuery{OrderDirection: "desc", Limit: 1})
	if len(desc) != 1 || desc[0].ReferenceID != "org-3" {
		t.Errorf("desc = %+v, want org-3", desc)
	}

	filtered, _ := s.ListCustomers(ctx, model.ListQuery{Where: map[string]any{"reference_id": "org-2"}})
	if len(filtered) != 1 {
		t.Errorf("filtered len = %d, want 1", len(filtered))
	}

	if _, err := s.ListCustomers(ctx, model.ListQuery{Where: map[string]any{"1=1; --": 1}}); err == nil {
		t.Error("expected error for unknown filter column")
	}
	if _, err := s.ListCustomers(ctx, model.ListQuery{OrderBy: "metadata"}); err == nil {
		t.Error("expected error for unknown order column")
	}
}

func TestPlanFeaturesRoundTrip(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()

	features := []model.Feature{
		{Kind: model.FeatureMetered, Slug: "exports", Name: "Exports", Enabled: true, Limit: model.Int64(3), Table: "exports", Cycle: model.IntervalMonth},
		{Kind: model.FeatureFlag, Slug: "sso", Name: "SSO", Enabled: false},
	}
	p, _ := seedPlan(t, s, "starter", features)

	got, err := s.GetPlanBySlug(ctx, "starter")
	if err != nil {
		t.Fatalf("get plan: %v", err)
	}
	if got.ID != p.ID {
		t.Errorf("id = %q, want %q", got.ID, p.ID)
	}
	f := got.Feature("exports")
	if f == nil || f.Limit == nil || *f.Limit != 3 || f.Cycle != model.IntervalMonth {
		t.Errorf("exports feature = %+v", f)
	}
	if len(got.Prices) != 1 {
		t.Fatalf("prices = %d, want 1", len(got.Prices))
	}

	archived := true
	upd, err := s.UpdatePlan(ctx, p.ID, payment.PlanUpdate{Archived: &archived})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !upd.Archived {
		t.Error("expected archived plan")
	}

	active, _ := s.ListPlans(ctx, model.ListQuery{Where: map[string]any{"archived": false}})
	if len(active) != 0 {
		t.Errorf("active plans = %d, want 0", len(active))
	}
}

func TestPriceUpdateKeepsTerms(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()
	_, pr := seedPlan(t, s, "starter", nil)

	inactive := false
	upd, err := s.UpdatePrice(ctx, pr.ID, payment.PriceUpdate{Active: &inactive, Metadata: map[string]string{"legacy": "true"}})
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if upd.Active {
		t.Error("expected inactive price")
	}
	if upd.Amount != pr.Amount || upd.Interval != pr.Interval || upd.IntervalCount != 1 {
		t.Errorf("terms changed: %+v", upd)
	}

	byVendor, _ := s.GetPriceByVendorID(ctx, "price_starter")
	if byVendor == nil || byVendor.ID != pr.ID {
		t.Errorf("by vendor = %v", byVendor)
	}
}

func TestActiveSubscriptionPicksNewestActive(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "org-1")
	_, pr := seedPlan(t, s, "starter", nil)

	first, err := s.CreateSubscription(ctx, model.Subscription{VendorID: "sub_1", CustomerID: c.ID, PriceID: pr.ID, Status: model.StatusActive})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, _ := s.CreateSubscription(ctx, model.Subscription{VendorID: "sub_2", CustomerID: c.ID, PriceID: pr.ID, Status: model.StatusTrialing})
	s.CreateSubscription(ctx, model.Subscription{VendorID: "sub_3", CustomerID: c.ID, PriceID: pr.ID, Status: model.StatusCanceled})

	got, err := s.GetActiveSubscription(ctx, c.ID)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("active = %v, want %s", got, second.ID)
	}

	canceled := model.StatusCanceled
	s.UpdateSubscription(ctx, second.ID, payment.SubscriptionUpdate{Status: &canceled})
	got, _ = s.GetActiveSubscription(ctx, c.ID)
	if got == nil || got.ID != first.ID {
		t.Errorf("after cancel active = %v, want %s", got, first.ID)
	}

	subs, _ := s.ListSubscriptions(ctx, model.ListQuery{Where: map[string]any{"status": string(model.StatusCanceled)}})
	if len(subs) != 2 {
		t.Errorf("canceled subscriptions = %d, want 2", len(subs))
	}
}

func TestSubscriptionUpdateFields(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "org-1")
	_, pr := seedPlan(t, s, "starter", nil)

	sub, _ := s.CreateSubscription(ctx, model.Subscription{VendorID: "sub_1", CustomerID: c.ID, PriceID: pr.ID, Status: model.StatusActive})
	if sub.Quantity != 1 {
		t.Errorf("default quantity = %d, want 1", sub.Quantity)
	}
	if sub.ProrationBehavior != model.ProrationCreate {
		t.Errorf("default proration = %q", sub.ProrationBehavior)
	}

	qty := int64(4)
	atEnd := true
	trialEnd := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	upd, err := s.UpdateSubscription(ctx, sub.ID, payment.SubscriptionUpdate{
		Quantity: &qty, CancelAtPeriodEnd: &atEnd, TrialEndsAt: &trialEnd,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Quantity != 4 || !upd.CancelAtPeriodEnd {
		t.Errorf("update = %+v", upd)
	}
	if upd.TrialEndsAt == nil || !upd.TrialEndsAt.Equal(trialEnd) {
		t.Errorf("trial ends at = %v, want %v", upd.TrialEndsAt, trialEnd)
	}
	if upd.Status != model.StatusActive {
		t.Errorf("status changed to %q", upd.Status)
	}

	if err := s.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, _ := s.GetSubscriptionByID(ctx, sub.ID)
	if gone != nil {
		t.Error("subscription still present")
	}
}

func TestCustomerUsageCountsExports(t *testing.T) {
	s, db := setupTestDB(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "org-1")
	_, pr := seedPlan(t, s, "starter", []model.Feature{
		{Kind: model.FeatureMetered, Slug: "exports", Enabled: true, Limit: model.Int64(3), Table: "exports"},
		{Kind: model.FeatureMetered, Slug: "seats", Enabled: true},
		{Kind: model.FeatureFlag, Slug: "sso", Enabled: true},
	})
	s.CreateSubscription(ctx, model.Subscription{VendorID: "sub_1", CustomerID: c.ID, PriceID: pr.ID, Status: model.StatusActive})

	now := time.Now().UTC()
	for _, id := range []string{"e1", "e2"} {
		if _, err := db.Exec(`INSERT INTO exports (id, organization_id, format, created_at) VALUES (?, 'org-1', 'csv', ?)`, id, now); err != nil {
			t.Fatalf("insert export: %v", err)
		}
	}
	db.Exec(`INSERT INTO exports (id, organization_id, format, created_at) VALUES ('other', 'org-2', 'csv', ?)`, now)

	n, err := s.GetCustomerUsage(ctx, c.ID, "exports")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if n != 2 {
		t.Errorf("exports usage = %d, want 2", n)
	}

	for _, feature := range []string{"seats", "sso", "missing"} {
		n, err := s.GetCustomerUsage(ctx, c.ID, feature)
		if err != nil || n != 0 {
			t.Errorf("usage(%s) = %d, %v; want 0, nil", feature, n, err)
		}
	}

	full, err := s.GetCustomerByID(ctx, "org-1")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if full.Subscription == nil {
		t.Fatal("expected materialized subscription")
	}
	if full.Subscription.Plan == nil || full.Subscription.Plan.Slug != "starter" {
		t.Errorf("plan = %v", full.Subscription.Plan)
	}
	if full.Subscription.Price == nil || full.Subscription.Price.ID != pr.ID {
		t.Errorf("price = %v", full.Subscription.Price)
	}
	if len(full.Subscription.Usage) != 2 {
		t.Fatalf("usage entries = %d, want 2 (metered features only)", len(full.Subscription.Usage))
	}
	if full.Subscription.Usage[0].Feature != "exports" || full.Subscription.Usage[0].Usage != 2 {
		t.Errorf("usage[0] = %+v", full.Subscription.Usage[0])
	}
}

func TestCustomerUsageWithoutSubscription(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()
	c := seedCustomer(t, s, "org-1")

	n, err := s.GetCustomerUsage(ctx, c.ID, "exports")
	if err != nil || n != 0 {
		t.Errorf("usage = %d, %v; want 0, nil", n, err)
	}
	n, err = s.GetCustomerUsage(ctx, "missing", "exports")
	if err != nil || n != 0 {
		t.Errorf("missing customer usage = %d, %v; want 0, nil", n, err)
	}
}

func TestWebhookEvents(t *testing.T) {
	s, _ := setupTestDB(t)
	ctx := context.Background()

	seen, err := s.IsEventProcessed(ctx, "evt_1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if seen {
		t.Error("new event reported as processed")
	}

	if err := s.MarkEventProcessed(ctx, "evt_1", payment.EventSubscriptionCreated); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := s.MarkEventProcessed(ctx, "evt_1", payment.EventSubscriptionCreated); err != nil {
		t.Fatalf("mark twice: %v", err)
	}
	seen, _ = s.IsEventProcessed(ctx, "evt_1")
	if !seen {
		t.Error("marked event not reported as processed")
	}
}
