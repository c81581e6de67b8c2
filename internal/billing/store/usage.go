package store

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/billow/internal/billing/model"
)

// attachSubscription loads the customer's active subscription with its price,
// plan and per-feature usage.
func (s *Store) attachSubscription(ctx context.Context, c *model.Customer) error {
	sub, plan, err := s.activePlan(ctx, c.ID)
	if err != nil || sub == nil {
		return err
	}
	sub.Plan = plan
	if plan != nil {
		for i := range plan.Prices {
			if plan.Prices[i].ID == sub.PriceID {
				sub.Price = &plan.Prices[i]
				break
			}
		}
		if sub.Usage, err = s.planUsage(ctx, c.ReferenceID, sub, plan); err != nil {
			return err
		}
	}
	c.Subscription = sub
	return nil
}

// activePlan returns the active subscription and the plan its price belongs
// to. Either may be nil.
func (s *Store) activePlan(ctx context.Context, customerID string) (*model.Subscription, *model.Plan, error) {
	sub, err := s.GetActiveSubscription(ctx, customerID)
	if err != nil || sub == nil {
		return nil, nil, err
	}
	price, err := s.GetPriceByID(ctx, sub.PriceID)
	if err != nil || price == nil {
		return sub, nil, err
	}
	plan, err := s.GetPlanByID(ctx, price.PlanID)
	if err != nil {
		return nil, nil, err
	}
	return sub, plan, nil
}

// planUsage counts every metered feature of the plan concurrently.
func (s *Store) planUsage(ctx context.Context, organizationID string, sub *model.Subscription, plan *model.Plan) ([]model.Usage, error) {
	var metered []model.Feature
	for _, f := range plan.Features {
		if f.Kind == model.FeatureMetered {
			metered = append(metered, f)
		}
	}
	if len(metered) == 0 {
		return nil, nil
	}

	now := s.now()
	out := make([]model.Usage, len(metered))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range metered {
		g.Go(func() error {
			n, err := s.count(gctx, organizationID, sub, f, now)
			if err != nil {
				return err
			}
			u := model.Usage{
				Feature: f.Slug,
				Name:    f.Name,
				Usage:   n,
				Limit:   f.Limit,
				Cycle:   f.Cycle,
			}
			if f.Cycle != "" {
				start := model.CycleStart(f.Cycle, sub.CycleAnchor(), now)
				u.PeriodAt = &start
			}
			out[i] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) count(ctx context.Context, organizationID string, sub *model.Subscription, f model.Feature, now time.Time) (int64, error) {
	counter, ok := s.usage.Counter(f.Slug)
	if !ok {
		return 0, nil
	}
	since := model.CycleStart(f.Cycle, sub.CycleAnchor(), now)
	n, err := counter(ctx, organizationID, since)
	if err != nil {
		return 0, fmt.Errorf("count usage of %s: %w", f.Slug, err)
	}
	return n, nil
}

// GetCustomerUsage counts the customer's use of one feature in its current
// cycle. Missing customers, subscriptions, features and counters count as 0.
func (s *Store) GetCustomerUsage(ctx context.Context, customerID, feature string) (int64, error) {
	c, err := s.findCustomer(ctx, customerID)
	if err != nil || c == nil {
		return 0, err
	}
	sub, plan, err := s.activePlan(ctx, c.ID)
	if err != nil || sub == nil || plan == nil {
		return 0, err
	}
	f := plan.Feature(feature)
	if f == nil || f.Kind != model.FeatureMetered {
		return 0, nil
	}
	return s.count(ctx, c.ReferenceID, sub, *f, s.now())
}
