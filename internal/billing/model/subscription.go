package model

import "time"

type SubscriptionStatus string

const (
	StatusActive            SubscriptionStatus = "active"
	StatusCanceled          SubscriptionStatus = "canceled"
	StatusIncomplete        SubscriptionStatus = "incomplete"
	StatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	StatusPastDue           SubscriptionStatus = "past_due"
	StatusUnpaid            SubscriptionStatus = "unpaid"
	StatusTrialing          SubscriptionStatus = "trialing"
)

// ActiveStatuses are the statuses under which a subscription still grants its plan.
var ActiveStatuses = []SubscriptionStatus{StatusActive, StatusTrialing, StatusPastDue, StatusUnpaid}

// IsActive reports whether the status is in the active set.
func (s SubscriptionStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

type ProrationBehavior string

const (
	ProrationCreate ProrationBehavior = "create_prorations"
	ProrationNone   ProrationBehavior = "none"
)

type Subscription struct {
	ID                 string             `json:"id"`
	VendorID           string             `json:"vendor_id"`
	CustomerID         string             `json:"customer_id"`
	PriceID            string             `json:"price_id"`
	Quantity           int64              `json:"quantity"`
	TrialDays          *int64             `json:"trial_days,omitempty"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	BillingCycleAnchor *time.Time         `json:"billing_cycle_anchor,omitempty"`
	ProrationBehavior  ProrationBehavior  `json:"proration_behavior,omitempty"`
	CancelAtPeriodEnd  bool               `json:"cancel_at_period_end"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`

	// Populated when the subscription is materialized on a customer read.
	Plan  *Plan   `json:"plan,omitempty"`
	Price *Price  `json:"price,omitempty"`
	Usage []Usage `json:"usage,omitempty"`
}

// CycleAnchor is the instant usage cycles are counted from.
func (s *Subscription) CycleAnchor() time.Time {
	if s.BillingCycleAnchor != nil {
		return *s.BillingCycleAnchor
	}
	return s.CreatedAt
}
