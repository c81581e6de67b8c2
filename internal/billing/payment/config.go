package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/billow/internal/billing/model"
)

// Config controls subscription provisioning and declares the plan catalog
// that Sync reconciles against.
type Config struct {
	Subscriptions SubscriptionConfig
	Plans         []PlanDefinition
}

type SubscriptionConfig struct {
	Enabled bool
	// DefaultPlan is the slug of the plan new customers start on. Empty
	// disables starter provisioning.
	DefaultPlan string
	Trial       TrialConfig
}

type TrialConfig struct {
	Enabled bool
	Days    int64
}

// PlanDefinition is a plan declared in configuration.
type PlanDefinition struct {
	Slug        string            `yaml:"slug"`
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Features    []model.Feature   `yaml:"features"`
	Prices      []PriceDefinition `yaml:"prices"`
}

type PriceDefinition struct {
	Slug          string            `yaml:"slug"`
	Amount        int64             `yaml:"amount"`
	Currency      string            `yaml:"currency"`
	Interval      model.Interval    `yaml:"interval"`
	IntervalCount int64             `yaml:"interval_count"`
	Metadata      map[string]string `yaml:"metadata"`
}

func (d PriceDefinition) terms() model.Price {
	count := d.IntervalCount
	if count == 0 {
		count = 1
	}
	return model.Price{
		Amount:        d.Amount,
		Currency:      strings.ToLower(d.Currency),
		Interval:      d.Interval,
		IntervalCount: count,
	}
}

// Validate checks the declared catalog for internal consistency.
func (c Config) Validate() error {
	slugs := make(map[string]bool, len(c.Plans))
	for _, p := range c.Plans {
		if p.Slug == "" {
			return fmt.Errorf("plan %q has no slug", p.Name)
		}
		if slugs[p.Slug] {
			return fmt.Errorf("duplicate plan slug %q", p.Slug)
		}
		slugs[p.Slug] = true
		if err := model.ValidateFeatures(p.Features); err != nil {
			return fmt.Errorf("plan %q: %w", p.Slug, err)
		}
		for _, pr := range p.Prices {
			if !pr.Interval.Valid() {
				return fmt.Errorf("plan %q: price %q has unknown interval %q", p.Slug, pr.Slug, pr.Interval)
			}
			if pr.Amount < 0 {
				return fmt.Errorf("plan %q: price %q has negative amount", p.Slug, pr.Slug)
			}
			if pr.Currency == "" {
				return fmt.Errorf("plan %q: price %q has no currency", p.Slug, pr.Slug)
			}
		}
	}
	if c.Subscriptions.Enabled && c.Subscriptions.DefaultPlan != "" && len(c.Plans) > 0 && !slugs[c.Subscriptions.DefaultPlan] {
		return fmt.Errorf("default plan %q is not declared", c.Subscriptions.DefaultPlan)
	}
	return nil
}

// Plan returns the declared plan with the given slug, or nil.
func (c Config) Plan(slug string) *PlanDefinition {
	for i := range c.Plans {
		if c.Plans[i].Slug == slug {
			return &c.Plans[i]
		}
	}
	return nil
}

// FeatureSlugs lists every feature slug declared across all plans, in
// declaration order.
func (c Config) FeatureSlugs() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range c.Plans {
		for _, f := range p.Features {
			if !seen[f.Slug] {
				seen[f.Slug] = true
				out = append(out, f.Slug)
			}
		}
	}
	return out
}

// Hooks are lifecycle callbacks fired after an operation has been mirrored
// into persistence. Nil hooks are skipped.
type Hooks struct {
	OnCustomerCreated      func(ctx context.Context, c model.Customer)
	OnCustomerUpdated      func(ctx context.Context, c model.Customer)
	OnCustomerDeleted      func(ctx context.Context, c model.Customer)
	OnSubscriptionCreated  func(ctx context.Context, s model.Subscription)
	OnSubscriptionUpdated  func(ctx context.Context, s model.Subscription)
	OnSubscriptionCanceled func(ctx context.Context, s model.Subscription)
	// OnWebhookReceived fires for every modeled webhook event after its
	// mutation, and for signature failures.
	OnWebhookReceived func(ctx context.Context, e Event)
}

// Merge returns hooks that call h's callback and then o's for each event.
func (h Hooks) Merge(o Hooks) Hooks {
	return Hooks{
		OnCustomerCreated:      chain(h.OnCustomerCreated, o.OnCustomerCreated),
		OnCustomerUpdated:      chain(h.OnCustomerUpdated, o.OnCustomerUpdated),
		OnCustomerDeleted:      chain(h.OnCustomerDeleted, o.OnCustomerDeleted),
		OnSubscriptionCreated:  chain(h.OnSubscriptionCreated, o.OnSubscriptionCreated),
		OnSubscriptionUpdated:  chain(h.OnSubscriptionUpdated, o.OnSubscriptionUpdated),
		OnSubscriptionCanceled: chain(h.OnSubscriptionCanceled, o.OnSubscriptionCanceled),
		OnWebhookReceived:      chain(h.OnWebhookReceived, o.OnWebhookReceived),
	}
}

func chain[T any](a, b func(context.Context, T)) func(context.Context, T) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, v T) {
		a(ctx, v)
		b(ctx, v)
	}
}
