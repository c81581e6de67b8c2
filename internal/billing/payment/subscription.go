package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
)

type CreateSubscriptionParams struct {
	// CustomerID is the local customer id or the organization reference id.
	CustomerID string
	// Plan is the plan slug.
	Plan string
	// Cycle selects the plan price; defaults to monthly.
	Cycle              model.Interval
	Quantity           int64
	TrialDays          *int64
	BillingCycleAnchor *time.Time
	ProrationBehavior  model.ProrationBehavior
	Metadata           map[string]string
}

// CreateSubscription subscribes a customer to the plan's price for the given
// cycle. The subscription starts trialing when TrialDays is positive.
func (f *Facade) CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*model.Subscription, error) {
	c, err := f.GetCustomer(ctx, params.CustomerID)
	if err != nil {
		return nil, err
	}
	_, price, err := f.resolvePrice(ctx, params.Plan, params.Cycle)
	if err != nil {
		return nil, err
	}

	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	proration := params.ProrationBehavior
	if proration == "" {
		proration = model.ProrationCreate
	}
	var trialDays *int64
	if params.TrialDays != nil && *params.TrialDays > 0 {
		trialDays = params.TrialDays
	}

	vs, err := f.vendor.CreateSubscription(ctx, VendorSubscriptionParams{
		CustomerID:         c.VendorID,
		PriceID:            price.VendorID,
		Quantity:           quantity,
		TrialDays:          trialDays,
		BillingCycleAnchor: params.BillingCycleAnchor,
		ProrationBehavior:  proration,
		Metadata:           params.Metadata,
	})
	if err != nil {
		return nil, f.vendorErr("create subscription", err)
	}

	sub := model.Subscription{
		VendorID:           vs.ID,
		CustomerID:         c.ID,
		PriceID:            price.ID,
		Quantity:           quantity,
		TrialDays:          trialDays,
		Status:             model.StatusActive,
		BillingCycleAnchor: params.BillingCycleAnchor,
		ProrationBehavior:  proration,
		Metadata:           params.Metadata,
	}
	if trialDays != nil {
		sub.Status = model.StatusTrialing
		ends := f.now().Add(time.Duration(*trialDays) * 24 * time.Hour)
		sub.TrialEndsAt = &ends
	}

	created, err := f.store.CreateSubscription(ctx, sub)
	if err != nil {
		return nil, f.storeErr("create subscription", err)
	}
	if f.hooks.OnSubscriptionCreated != nil {
		f.hooks.OnSubscriptionCreated(ctx, *created)
	}
	return created, nil
}

// resolvePrice finds the plan by slug and its active price for the cycle.
func (f *Facade) resolvePrice(ctx context.Context, slug string, cycle model.Interval) (*model.Plan, *model.Price, error) {
	if cycle == "" {
		cycle = model.IntervalMonth
	}
	plan, err := f.GetPlan(ctx, slug)
	if err != nil {
		return nil, nil, err
	}
	price, declared := f.currentPrice(plan, cycle)
	if price == nil && declared {
		return nil, nil, fmt.Errorf("%w: declared %s price of plan %q", ErrPriceNotSynced, cycle, slug)
	}
	if price == nil {
		return nil, nil, fmt.Errorf("%w: plan %q has no %s price", ErrPriceNotFound, slug, cycle)
	}
	if price.VendorID == "" {
		return nil, nil, fmt.Errorf("%w: %s", ErrPriceNotSynced, price.ID)
	}
	return plan, price, nil
}

// currentPrice picks the price billed for new purchases on cycle. A plan in
// the declared catalog bills the active price carrying the declared terms,
// even when a newer price with other terms exists; declared reports whether
// such a declaration was found. Other plans bill their newest active price.
func (f *Facade) currentPrice(plan *model.Plan, cycle model.Interval) (price *model.Price, declared bool) {
	if def := f.cfg.Plan(plan.Slug); def != nil {
		for _, d := range def.Prices {
			if d.Interval == cycle {
				return plan.PriceWithTerms(d.terms()), true
			}
		}
	}
	return plan.PriceFor(cycle), false
}

// GetSubscription returns the subscription with the given local id.
func (f *Facade) GetSubscription(ctx context.Context, id string) (*model.Subscription, error) {
	s, err := f.store.GetSubscriptionByID(ctx, id)
	if err != nil {
		return nil, f.storeErr("get subscription", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionNotFound, id)
	}
	return s, nil
}

func (f *Facade) ListSubscriptions(ctx context.Context, q model.ListQuery) ([]model.Subscription, error) {
	subs, err := f.store.ListSubscriptions(ctx, q)
	if err != nil {
		return nil, f.storeErr("list subscriptions", err)
	}
	return subs, nil
}

type UpdateSubscriptionParams struct {
	// Plan moves the subscription to another plan's price for Cycle.
	Plan              string
	Cycle             model.Interval
	Quantity          *int64
	ProrationBehavior model.ProrationBehavior
	Metadata          map[string]string
}

func (f *Facade) UpdateSubscription(ctx context.Context, id string, params UpdateSubscriptionParams) (*model.Subscription, error) {
	s, err := f.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}

	vu := VendorSubscriptionUpdate{
		Quantity:          params.Quantity,
		ProrationBehavior: params.ProrationBehavior,
		Metadata:          params.Metadata,
	}
	u := SubscriptionUpdate{Quantity: params.Quantity, Metadata: params.Metadata}
	if params.Plan != "" {
		_, price, err := f.resolvePrice(ctx, params.Plan, params.Cycle)
		if err != nil {
			return nil, err
		}
		vu.PriceID = price.VendorID
		u.PriceID = &price.ID
	}
	if params.ProrationBehavior != "" {
		u.ProrationBehavior = &params.ProrationBehavior
	}

	if _, err := f.vendor.UpdateSubscription(ctx, s.VendorID, vu); err != nil {
		return nil, f.vendorErr("update subscription", err)
	}
	updated, err := f.store.UpdateSubscription(ctx, s.ID, u)
	if err != nil {
		return nil, f.storeErr("update subscription", err)
	}
	if f.hooks.OnSubscriptionUpdated != nil {
		f.hooks.OnSubscriptionUpdated(ctx, *updated)
	}
	return updated, nil
}

// CancelSubscription cancels at the vendor and mirrors the result: immediate
// cancellation marks the subscription canceled, otherwise it is flagged to
// end with the current period. The hook receives the re-read row.
func (f *Facade) CancelSubscription(ctx context.Context, id string, params CancelParams) (*model.Subscription, error) {
	s, err := f.GetSubscription(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := f.vendor.CancelSubscription(ctx, s.VendorID, params); err != nil {
		return nil, f.vendorErr("cancel subscription", err)
	}

	var u SubscriptionUpdate
	if params.Immediately {
		canceled := model.StatusCanceled
		u.Status = &canceled
	} else {
		atEnd := true
		u.CancelAtPeriodEnd = &atEnd
	}
	if _, err := f.store.UpdateSubscription(ctx, s.ID, u); err != nil {
		return nil, f.storeErr("cancel subscription", err)
	}

	s, err = f.GetSubscription(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	if f.hooks.OnSubscriptionCanceled != nil {
		f.hooks.OnSubscriptionCanceled(ctx, *s)
	}
	return s, nil
}

type CheckoutParams struct {
	CustomerID string
	Plan       string
	Cycle      model.Interval
	Quantity   int64
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession returns a vendor URL where the customer pays for the
// plan. Customers who already have an active subscription get a plan-change
// confirmation link for it instead; trials apply only to first subscriptions.
func (f *Facade) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (string, error) {
	c, err := f.GetCustomer(ctx, params.CustomerID)
	if err != nil {
		return "", err
	}
	_, price, err := f.resolvePrice(ctx, params.Plan, params.Cycle)
	if err != nil {
		return "", err
	}

	quantity := params.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	cp := CheckoutSessionParams{
		CustomerID: c.VendorID,
		PriceID:    price.VendorID,
		Quantity:   quantity,
		SuccessURL: params.SuccessURL,
		CancelURL:  params.CancelURL,
		Metadata:   map[string]string{"reference_id": c.ReferenceID, "plan": params.Plan},
	}
	if c.Subscription != nil {
		cp.SubscriptionID = c.Subscription.VendorID
	} else if f.cfg.Subscriptions.Trial.Enabled && f.cfg.Subscriptions.Trial.Days > 0 {
		days := f.cfg.Subscriptions.Trial.Days
		cp.TrialDays = &days
	}

	url, err := f.vendor.CreateCheckoutSession(ctx, cp)
	if err != nil {
		return "", f.vendorErr("create checkout session", err)
	}
	return url, nil
}
