package payment

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/billow/internal/billing/model"
)

// activePlan resolves the customer's active subscription and its plan.
func (f *Facade) activePlan(ctx context.Context, customerID string) (*model.Customer, *model.Subscription, *model.Plan, error) {
	c, err := f.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, nil, nil, err
	}
	sub := c.Subscription
	if sub == nil {
		return nil, nil, nil, fmt.Errorf("%w: %s", ErrNoActiveSubscription, customerID)
	}
	plan := sub.Plan
	if plan == nil {
		price, err := f.store.GetPriceByID(ctx, sub.PriceID)
		if err != nil {
			return nil, nil, nil, f.storeErr("resolve plan", err)
		}
		if price == nil {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrPriceNotFound, sub.PriceID)
		}
		plan, err = f.store.GetPlanByID(ctx, price.PlanID)
		if err != nil {
			return nil, nil, nil, f.storeErr("resolve plan", err)
		}
		if plan == nil {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrPlanNotFound, price.PlanID)
		}
	}
	return c, sub, plan, nil
}

// HasQuota reports whether the customer may consume one more unit of the
// feature. A missing or disabled feature has no quota; an enabled feature
// with no limit always has quota. Lookup failures are returned.
func (f *Facade) HasQuota(ctx context.Context, customerID, feature string) (bool, error) {
	c, _, plan, err := f.activePlan(ctx, customerID)
	if err != nil {
		return false, err
	}
	feat := plan.Feature(feature)
	if feat == nil || !feat.Enabled {
		return false, nil
	}
	if feat.Unlimited() {
		return true, nil
	}
	usage, err := f.store.GetCustomerUsage(ctx, c.ID, feature)
	if err != nil {
		return false, f.storeErr("get customer usage", err)
	}
	return usage < *feat.Limit, nil
}

// CanUseFeature reports whether the customer's plan has the feature enabled.
// It never fails: any error resolving the customer or plan yields false.
// Usage against the limit is not consulted; use HasQuota for that.
func (f *Facade) CanUseFeature(ctx context.Context, customerID, feature string) bool {
	_, _, plan, err := f.activePlan(ctx, customerID)
	if err != nil {
		f.logger.Debug("feature check failed", "customer_id", customerID, "feature", feature, "error", err)
		return false
	}
	feat := plan.Feature(feature)
	return feat != nil && feat.Enabled
}

// QuotaInfo describes a feature's standing for one customer.
type QuotaInfo struct {
	Feature   string         `json:"feature"`
	Name      string         `json:"name,omitempty"`
	Plan      string         `json:"plan"`
	Enabled   bool           `json:"enabled"`
	Unlimited bool           `json:"unlimited"`
	Limit     *int64         `json:"limit"`
	Usage     int64          `json:"usage"`
	Remaining *int64         `json:"remaining"`
	Cycle     model.Interval `json:"cycle,omitempty"`
	// PeriodStart and ResetsAt bound the current usage window of a cycled
	// feature.
	PeriodStart *time.Time `json:"period_start,omitempty"`
	ResetsAt    *time.Time `json:"resets_at,omitempty"`
	HasQuota    bool       `json:"has_quota"`
}

// GetQuotaInfo returns the usage, limit and reset time of a feature. It fails
// the same way HasQuota does.
func (f *Facade) GetQuotaInfo(ctx context.Context, customerID, feature string) (*QuotaInfo, error) {
	c, sub, plan, err := f.activePlan(ctx, customerID)
	if err != nil {
		return nil, err
	}
	info := &QuotaInfo{Feature: feature, Plan: plan.Slug}
	feat := plan.Feature(feature)
	if feat == nil {
		return info, nil
	}
	info.Name = feat.Name
	info.Enabled = feat.Enabled
	info.Unlimited = feat.Unlimited()
	info.Limit = feat.Limit
	info.Cycle = feat.Cycle

	if feat.Kind == model.FeatureMetered {
		usage, err := f.store.GetCustomerUsage(ctx, c.ID, feature)
		if err != nil {
			return nil, f.storeErr("get customer usage", err)
		}
		info.Usage = usage
	}
	if feat.Cycle != "" {
		now := f.now()
		start := model.CycleStart(feat.Cycle, sub.CycleAnchor(), now)
		end := model.CycleEnd(feat.Cycle, sub.CycleAnchor(), now)
		info.PeriodStart = &start
		info.ResetsAt = &end
	}
	if !info.Unlimited {
		remaining := max(*feat.Limit-info.Usage, 0)
		info.Remaining = &remaining
	}
	info.HasQuota = feat.Enabled && (info.Unlimited || info.Usage < *feat.Limit)
	return info, nil
}

// Overview is the billing page payload: the customer with its subscription
// and usage, plus the catalog it can move to.
type Overview struct {
	Customer *model.Customer `json:"customer"`
	Plans    []model.Plan    `json:"plans"`
}

func (f *Facade) GetOverview(ctx context.Context, customerID string) (*Overview, error) {
	var ov Overview
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := f.GetCustomer(gctx, customerID)
		ov.Customer = c
		return err
	})
	g.Go(func() error {
		plans, err := f.ListPlans(gctx, model.ListQuery{
			Where:   map[string]any{"archived": false},
			OrderBy: "created_at",
			Limit:   100,
		})
		ov.Plans = plans
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ov, nil
}
