// Package stripe implements payment.Vendor on top of the Stripe API.
//
// Plans are Stripe products tagged with metadata["slug"]; prices are
// recurring Stripe prices on those products. Customers carry the owning
// organization in metadata["reference_id"].
package stripe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/subscription"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

var _ payment.Vendor = (*Client)(nil)

const (
	metaSlug        = "slug"
	metaReferenceID = "reference_id"
)

type Config struct {
	SecretKey     string
	WebhookSecret string
}

type Client struct {
	cfg    Config
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	stripe.Key = cfg.SecretKey
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger}
}

func (c *Client) Name() string { return "stripe" }

func withMeta(m map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	if value != "" {
		out[key] = value
	}
	return out
}

func (c *Client) CreateCustomer(ctx context.Context, p payment.VendorCustomerParams) (*payment.VendorCustomer, error) {
	params := &stripe.CustomerParams{
		Params:   stripe.Params{Context: ctx},
		Metadata: withMeta(p.Metadata, metaReferenceID, p.ReferenceID),
	}
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	cust, err := customer.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe customer: %w", err)
	}
	return toCustomer(cust), nil
}

func (c *Client) UpdateCustomer(ctx context.Context, id string, p payment.VendorCustomerParams) (*payment.VendorCustomer, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Name:   stripe.String(p.Name),
		Email:  stripe.String(p.Email),
	}
	if p.Metadata != nil {
		params.Metadata = withMeta(p.Metadata, metaReferenceID, p.ReferenceID)
	}
	cust, err := customer.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("update stripe customer: %w", err)
	}
	return toCustomer(cust), nil
}

func (c *Client) DeleteCustomer(ctx context.Context, id string) error {
	if _, err := customer.Del(id, &stripe.CustomerParams{Params: stripe.Params{Context: ctx}}); err != nil {
		return fmt.Errorf("delete stripe customer: %w", err)
	}
	return nil
}

func (c *Client) FindCustomerByReferenceID(ctx context.Context, referenceID string) (*payment.VendorCustomer, error) {
	iter := customer.Search(&stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata[%q]:%q", metaReferenceID, referenceID),
		},
	})
	for iter.Next() {
		return toCustomer(iter.Customer()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("search stripe customers: %w", err)
	}
	return nil, nil
}

func (c *Client) CreatePlan(ctx context.Context, p payment.VendorPlanParams) (*payment.VendorPlan, error) {
	params := &stripe.ProductParams{
		Params:   stripe.Params{Context: ctx},
		Name:     stripe.String(p.Name),
		Metadata: withMeta(p.Metadata, metaSlug, p.Slug),
	}
	if p.Description != "" {
		params.Description = stripe.String(p.Description)
	}
	prod, err := product.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe product: %w", err)
	}
	return toPlan(prod), nil
}

// UpdatePlan rewrites the product's name and description and reactivates it.
func (c *Client) UpdatePlan(ctx context.Context, id string, p payment.VendorPlanParams) (*payment.VendorPlan, error) {
	params := &stripe.ProductParams{
		Params:      stripe.Params{Context: ctx},
		Name:        stripe.String(p.Name),
		Description: stripe.String(p.Description),
		Active:      stripe.Bool(true),
		Metadata:    withMeta(p.Metadata, metaSlug, p.Slug),
	}
	prod, err := product.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("update stripe product: %w", err)
	}
	return toPlan(prod), nil
}

func (c *Client) ArchivePlan(ctx context.Context, id string) error {
	_, err := product.Update(id, &stripe.ProductParams{
		Params: stripe.Params{Context: ctx},
		Active: stripe.Bool(false),
	})
	if err != nil {
		return fmt.Errorf("archive stripe product: %w", err)
	}
	return nil
}

func (c *Client) FindPlanBySlug(ctx context.Context, slug string) (*payment.VendorPlan, error) {
	iter := product.Search(&stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{
			Context: ctx,
			Query:   fmt.Sprintf("metadata[%q]:%q", metaSlug, slug),
		},
	})
	for iter.Next() {
		return toPlan(iter.Product()), nil
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("search stripe products: %w", err)
	}
	return nil, nil
}

func (c *Client) CreatePrice(ctx context.Context, p payment.VendorPriceParams) (*payment.VendorPrice, error) {
	count := p.IntervalCount
	if count == 0 {
		count = 1
	}
	params := &stripe.PriceParams{
		Params:     stripe.Params{Context: ctx},
		Product:    stripe.String(p.PlanID),
		UnitAmount: stripe.Int64(p.Amount),
		Currency:   stripe.String(p.Currency),
		Recurring: &stripe.PriceRecurringParams{
			Interval:      stripe.String(string(p.Interval)),
			IntervalCount: stripe.Int64(count),
		},
		Metadata: withMeta(p.Metadata, metaSlug, p.Slug),
	}
	if p.Slug != "" {
		params.Nickname = stripe.String(p.Slug)
	}
	pr, err := price.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe price: %w", err)
	}
	return toPrice(pr), nil
}

func (c *Client) UpdatePrice(ctx context.Context, id string, u payment.VendorPriceUpdate) (*payment.VendorPrice, error) {
	params := &stripe.PriceParams{Params: stripe.Params{Context: ctx}}
	if u.Active != nil {
		params.Active = stripe.Bool(*u.Active)
	}
	if u.Metadata != nil {
		params.Metadata = u.Metadata
	}
	pr, err := price.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("update stripe price: %w", err)
	}
	return toPrice(pr), nil
}

func (c *Client) ArchivePrice(ctx context.Context, id string) error {
	inactive := false
	_, err := c.UpdatePrice(ctx, id, payment.VendorPriceUpdate{Active: &inactive})
	return err
}

func (c *Client) FindPricesByPlanID(ctx context.Context, planID string) ([]payment.VendorPrice, error) {
	iter := price.List(&stripe.PriceListParams{
		ListParams: stripe.ListParams{Context: ctx},
		Product:    stripe.String(planID),
	})
	var out []payment.VendorPrice
	for iter.Next() {
		out = append(out, *toPrice(iter.Price()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe prices: %w", err)
	}
	return out, nil
}

func (c *Client) CreateSubscription(ctx context.Context, p payment.VendorSubscriptionParams) (*payment.VendorSubscription, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.PriceID), Quantity: stripe.Int64(p.Quantity)},
		},
		Metadata: p.Metadata,
	}
	if p.TrialDays != nil {
		params.TrialPeriodDays = stripe.Int64(*p.TrialDays)
	}
	if p.BillingCycleAnchor != nil {
		params.BillingCycleAnchor = stripe.Int64(p.BillingCycleAnchor.Unix())
	}
	if p.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(string(p.ProrationBehavior))
	}
	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}
	vs := toSubscription(sub)
	return &vs, nil
}

// UpdateSubscription swaps the price of the subscription's single item.
func (c *Client) UpdateSubscription(ctx context.Context, id string, u payment.VendorSubscriptionUpdate) (*payment.VendorSubscription, error) {
	params := &stripe.SubscriptionParams{
		Params:   stripe.Params{Context: ctx},
		Metadata: u.Metadata,
	}
	if u.ProrationBehavior != "" {
		params.ProrationBehavior = stripe.String(string(u.ProrationBehavior))
	}
	if u.PriceID != "" || u.Quantity != nil {
		itemID, err := c.subscriptionItem(ctx, id)
		if err != nil {
			return nil, err
		}
		item := &stripe.SubscriptionItemsParams{ID: stripe.String(itemID)}
		if u.PriceID != "" {
			item.Price = stripe.String(u.PriceID)
		}
		if u.Quantity != nil {
			item.Quantity = stripe.Int64(*u.Quantity)
		}
		params.Items = []*stripe.SubscriptionItemsParams{item}
	}
	sub, err := subscription.Update(id, params)
	if err != nil {
		return nil, fmt.Errorf("update stripe subscription: %w", err)
	}
	vs := toSubscription(sub)
	return &vs, nil
}

var errNoItems = errors.New("stripe subscription has no items")

func (c *Client) subscriptionItem(ctx context.Context, id string) (string, error) {
	sub, err := subscription.Get(id, &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}})
	if err != nil {
		return "", fmt.Errorf("get stripe subscription: %w", err)
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return "", fmt.Errorf("%w: %s", errNoItems, id)
	}
	return sub.Items.Data[0].ID, nil
}

func (c *Client) CancelSubscription(ctx context.Context, id string, p payment.CancelParams) error {
	if !p.Immediately {
		params := &stripe.SubscriptionParams{
			Params:            stripe.Params{Context: ctx},
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		if p.ProrationBehavior != "" {
			params.ProrationBehavior = stripe.String(string(p.ProrationBehavior))
		}
		if _, err := subscription.Update(id, params); err != nil {
			return fmt.Errorf("cancel stripe subscription at period end: %w", err)
		}
		return nil
	}
	params := &stripe.SubscriptionCancelParams{Params: stripe.Params{Context: ctx}}
	if p.ProrationBehavior == model.ProrationCreate {
		params.Prorate = stripe.Bool(true)
	}
	if _, err := subscription.Cancel(id, params); err != nil {
		return fmt.Errorf("cancel stripe subscription: %w", err)
	}
	return nil
}

func (c *Client) CreateBillingPortal(ctx context.Context, customerID, returnURL string) (string, error) {
	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

// CreateCheckoutSession opens a subscription checkout. When the customer
// already has a subscription, it instead opens a portal flow that confirms
// switching that subscription to the new price.
func (c *Client) CreateCheckoutSession(ctx context.Context, p payment.CheckoutSessionParams) (string, error) {
	if p.SubscriptionID != "" {
		return c.planChangeSession(ctx, p)
	}

	params := &stripe.CheckoutSessionParams{
		Params:   stripe.Params{Context: ctx},
		Customer: stripe.String(p.CustomerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(p.Quantity),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(p.SuccessURL),
		CancelURL:           stripe.String(p.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: p.Metadata,
		},
		Metadata: p.Metadata,
	}
	if ref := p.Metadata[metaReferenceID]; ref != "" {
		params.ClientReferenceID = stripe.String(ref)
	}
	if p.TrialDays != nil {
		params.SubscriptionData.TrialPeriodDays = stripe.Int64(*p.TrialDays)
	}
	sess, err := checksession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) planChangeSession(ctx context.Context, p payment.CheckoutSessionParams) (string, error) {
	itemID, err := c.subscriptionItem(ctx, p.SubscriptionID)
	if err != nil {
		return "", err
	}
	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(p.CustomerID),
		ReturnURL: stripe.String(p.CancelURL),
		FlowData: &stripe.BillingPortalSessionFlowDataParams{
			Type: stripe.String("subscription_update_confirm"),
			SubscriptionUpdateConfirm: &stripe.BillingPortalSessionFlowDataSubscriptionUpdateConfirmParams{
				Subscription: stripe.String(p.SubscriptionID),
				Items: []*stripe.BillingPortalSessionFlowDataSubscriptionUpdateConfirmItemParams{
					{
						ID:       stripe.String(itemID),
						Price:    stripe.String(p.PriceID),
						Quantity: stripe.Int64(p.Quantity),
					},
				},
			},
			AfterCompletion: &stripe.BillingPortalSessionFlowDataAfterCompletionParams{
				Type: stripe.String("redirect"),
				Redirect: &stripe.BillingPortalSessionFlowDataAfterCompletionRedirectParams{
					ReturnURL: stripe.String(p.SuccessURL),
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create plan change session: %w", err)
	}
	return sess.URL, nil
}

func toCustomer(c *stripe.Customer) *payment.VendorCustomer {
	return &payment.VendorCustomer{
		ID:          c.ID,
		ReferenceID: c.Metadata[metaReferenceID],
		Name:        c.Name,
		Email:       c.Email,
		Metadata:    c.Metadata,
	}
}

func toPlan(p *stripe.Product) *payment.VendorPlan {
	return &payment.VendorPlan{
		ID:          p.ID,
		Slug:        p.Metadata[metaSlug],
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
	}
}

func toPrice(p *stripe.Price) *payment.VendorPrice {
	vp := &payment.VendorPrice{
		ID:       p.ID,
		Slug:     p.Metadata[metaSlug],
		Amount:   p.UnitAmount,
		Currency: string(p.Currency),
		Active:   p.Active,
		Metadata: p.Metadata,
	}
	if p.Product != nil {
		vp.PlanID = p.Product.ID
	}
	if p.Recurring != nil {
		vp.Interval = model.Interval(p.Recurring.Interval)
		vp.IntervalCount = p.Recurring.IntervalCount
	}
	return vp
}

func toSubscription(s *stripe.Subscription) payment.VendorSubscription {
	vs := payment.VendorSubscription{
		ID:                s.ID,
		Status:            model.SubscriptionStatus(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		vs.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		vs.Quantity = item.Quantity
		if item.Price != nil {
			vs.PriceID = item.Price.ID
		}
	}
	if s.TrialEnd > 0 {
		t := time.Unix(s.TrialEnd, 0).UTC()
		vs.TrialEndsAt = &t
	}
	return vs
}
