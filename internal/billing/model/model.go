package model

import "time"

// Customer is the billing identity of one organization.
type Customer struct {
	ID          string            `json:"id"`
	VendorID    string            `json:"vendor_id"`
	ReferenceID string            `json:"reference_id"`
	Name        string            `json:"name"`
	Email       string            `json:"email"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// Subscription is populated only by reads that materialize the active subscription.
	Subscription *Subscription `json:"subscription,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

type Plan struct {
	ID          string    `json:"id"`
	VendorID    string    `json:"vendor_id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Features    []Feature `json:"features"`
	Prices      []Price   `json:"prices,omitempty"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Feature returns the feature with the given slug, or nil.
func (p *Plan) Feature(slug string) *Feature {
	for i := range p.Features {
		if p.Features[i].Slug == slug {
			return &p.Features[i]
		}
	}
	return nil
}

// PriceFor returns the newest active price billed on the given cycle, or nil.
// Among prices created at the same instant the later one in Prices wins.
func (p *Plan) PriceFor(cycle Interval) *Price {
	var found *Price
	for i := range p.Prices {
		pr := &p.Prices[i]
		if !pr.Active || pr.Interval != cycle {
			continue
		}
		if found == nil || !pr.CreatedAt.Before(found.CreatedAt) {
			found = pr
		}
	}
	return found
}

// PriceWithTerms returns the newest active price whose terms match, or nil.
func (p *Plan) PriceWithTerms(terms Price) *Price {
	var found *Price
	for i := range p.Prices {
		pr := &p.Prices[i]
		if !pr.Active || !pr.SameTerms(terms) {
			continue
		}
		if found == nil || !pr.CreatedAt.Before(found.CreatedAt) {
			found = pr
		}
	}
	return found
}

// Interval is a billing interval.
type Interval string

const (
	IntervalDay   Interval = "day"
	IntervalWeek  Interval = "week"
	IntervalMonth Interval = "month"
	IntervalYear  Interval = "year"
)

// Valid reports whether i is one of the known intervals.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

type Price struct {
	ID            string            `json:"id"`
	VendorID      string            `json:"vendor_id"`
	PlanID        string            `json:"plan_id"`
	Slug          string            `json:"slug"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Interval      Interval          `json:"interval"`
	IntervalCount int64             `json:"interval_count"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Active        bool              `json:"active"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SameTerms reports whether two prices bill the same amount on the same schedule.
// Prices are immutable at the vendor, so any difference means a new price.
func (p Price) SameTerms(o Price) bool {
	return p.Amount == o.Amount &&
		p.Currency == o.Currency &&
		p.Interval == o.Interval &&
		p.IntervalCount == o.IntervalCount
}

// Usage is the computed consumption of one metered feature.
type Usage struct {
	Feature string `json:"feature"`
	Name    string `json:"name"`
	Usage   int64  `json:"usage"`
	// Limit is nil when the feature is unlimited.
	Limit    *int64     `json:"limit"`
	Cycle    Interval   `json:"cycle,omitempty"`
	PeriodAt *time.Time `json:"period_start,omitempty"`
}
