package model

import (
	"errors"
	"testing"
	"time"
)

func TestCycleStart(t *testing.T) {
	anchor := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		cycle Interval
		now   time.Time
		want  time.Time
	}{
		{"lifetime", "", time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), time.Time{}},
		{"day same day", IntervalDay, time.Date(2026, 1, 15, 18, 0, 0, 0, time.UTC), anchor},
		{"day later", IntervalDay, time.Date(2026, 1, 20, 6, 0, 0, 0, time.UTC), time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)},
		{"week", IntervalWeek, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 1, 29, 12, 0, 0, 0, time.UTC)},
		{"month before anchor day", IntervalMonth, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)},
		{"month after anchor day", IntervalMonth, time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)},
		{"year", IntervalYear, time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC), anchor},
		{"year rolled", IntervalYear, time.Date(2028, 2, 1, 0, 0, 0, 0, time.UTC), time.Date(2028, 1, 15, 12, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CycleStart(tt.cycle, anchor, tt.now)
			if !got.Equal(tt.want) {
				t.Errorf("CycleStart = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFeatureValidate(t *testing.T) {
	tests := []struct {
		name    string
		feature Feature
		wantErr bool
	}{
		{"flag", Feature{Kind: FeatureFlag, Slug: "sso", Enabled: true}, false},
		{"metered unlimited", Feature{Kind: FeatureMetered, Slug: "leads", Enabled: true, Table: "leads"}, false},
		{"metered limited", Feature{Kind: FeatureMetered, Slug: "exports", Limit: Int64(5), Cycle: IntervalMonth}, false},
		{"missing slug", Feature{Kind: FeatureFlag}, true},
		{"unknown kind", Feature{Kind: "boolean", Slug: "x"}, true},
		{"flag with limit", Feature{Kind: FeatureFlag, Slug: "x", Limit: Int64(1)}, true},
		{"negative limit", Feature{Kind: FeatureMetered, Slug: "x", Limit: Int64(-1)}, true},
		{"bad cycle", Feature{Kind: FeatureMetered, Slug: "x", Cycle: "fortnight"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.feature.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidFeature) {
				t.Errorf("error %v does not wrap ErrInvalidFeature", err)
			}
		})
	}
}

func TestValidateFeaturesDuplicate(t *testing.T) {
	err := ValidateFeatures([]Feature{
		{Kind: FeatureFlag, Slug: "sso"},
		{Kind: FeatureFlag, Slug: "sso"},
	})
	if err == nil {
		t.Fatal("expected duplicate slug error")
	}
}

func TestFeatureUnlimited(t *testing.T) {
	if !(Feature{Kind: FeatureFlag, Slug: "sso"}).Unlimited() {
		t.Error("flag feature should be unlimited")
	}
	if !(Feature{Kind: FeatureMetered, Slug: "leads"}).Unlimited() {
		t.Error("metered feature without limit should be unlimited")
	}
	if (Feature{Kind: FeatureMetered, Slug: "leads", Limit: Int64(0)}).Unlimited() {
		t.Error("metered feature with limit 0 should be limited")
	}
}

func TestPlanPriceForPicksNewestActive(t *testing.T) {
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	p := Plan{Prices: []Price{
		{ID: "old", Interval: IntervalMonth, Active: true, CreatedAt: older},
		{ID: "new", Interval: IntervalMonth, Active: true, CreatedAt: newer},
		{ID: "archived", Interval: IntervalMonth, Active: false, CreatedAt: newer.Add(time.Hour)},
		{ID: "yearly", Interval: IntervalYear, Active: true, CreatedAt: older},
	}}

	if got := p.PriceFor(IntervalMonth); got == nil || got.ID != "new" {
		t.Errorf("PriceFor(month) = %v, want new", got)
	}
	if got := p.PriceFor(IntervalYear); got == nil || got.ID != "yearly" {
		t.Errorf("PriceFor(year) = %v, want yearly", got)
	}
	if got := p.PriceFor(IntervalWeek); got != nil {
		t.Errorf("PriceFor(week) = %v, want nil", got)
	}
}

func TestStatusIsActive(t *testing.T) {
	for _, s := range []SubscriptionStatus{StatusActive, StatusTrialing, StatusPastDue, StatusUnpaid} {
		if !s.IsActive() {
			t.Errorf("%q should be active", s)
		}
	}
	for _, s := range []SubscriptionStatus{StatusCanceled, StatusIncomplete, StatusIncompleteExpired} {
		if s.IsActive() {
			t.Errorf("%q should not be active", s)
		}
	}
}

func TestListQueryNormalize(t *testing.T) {
	q := ListQuery{Limit: 0, Offset: -3, OrderDirection: "desc"}.Normalize()
	if q.Limit != DefaultListLimit {
		t.Errorf("limit = %d, want %d", q.Limit, DefaultListLimit)
	}
	if q.Offset != 0 {
		t.Errorf("offset = %d, want 0", q.Offset)
	}
	if q.OrderDirection != "DESC" {
		t.Errorf("direction = %q, want DESC", q.OrderDirection)
	}
}

func TestCycleEnd(t *testing.T) {
	anchor := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	if got := CycleEnd("", anchor, now); !got.IsZero() {
		t.Errorf("CycleEnd(lifetime) = %v, want zero", got)
	}
	// AddDate normalizes Feb 31 to Mar 3; the window still closes on the
	// anchor's schedule rather than drifting.
	want := anchor.AddDate(0, 1, 0)
	if got := CycleEnd(IntervalMonth, anchor, now); !got.Equal(want) {
		t.Errorf("CycleEnd(month) = %v, want %v", got, want)
	}
	if got := CycleEnd(IntervalDay, anchor, now); !got.Equal(time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CycleEnd(day) = %v", got)
	}
}

func TestCycleWindowMonthEndAnchor(t *testing.T) {
	tests := []struct {
		name      string
		cycle     Interval
		anchor    time.Time
		now       time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			"jan 31 in march", IntervalMonth,
			time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
		},
		{
			"jan 31 after march 31", IntervalMonth,
			time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
			time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"feb 29 year", IntervalYear,
			time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC),
			time.Date(2029, 3, 2, 0, 0, 0, 0, time.UTC),
			time.Date(2029, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := CycleStart(tt.cycle, tt.anchor, tt.now)
			end := CycleEnd(tt.cycle, tt.anchor, tt.now)
			if !start.Equal(tt.wantStart) {
				t.Errorf("CycleStart = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Errorf("CycleEnd = %v, want %v", end, tt.wantEnd)
			}
			if got := CycleStart(tt.cycle, tt.anchor, end.Add(-time.Second)); !got.Equal(start) {
				t.Errorf("CycleStart just before end = %v, want %v", got, start)
			}
			if got := CycleStart(tt.cycle, tt.anchor, end); !got.Equal(end) {
				t.Errorf("CycleStart at end = %v, want %v", got, end)
			}
		})
	}
}
