package email

import (
	"context"
	"log/slog"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

// CustomerLookup loads a customer with its active subscription materialized.
type CustomerLookup func(ctx context.Context, id string) (*model.Customer, error)

// Notifier sends lifecycle notices to customers from payment hooks.
type Notifier struct {
	client    *Client
	customers CustomerLookup
	logger    *slog.Logger
}

func NewNotifier(client *Client, customers CustomerLookup, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, customers: customers, logger: logger}
}

// Hooks returns the payment hooks that trigger notices. An unconfigured
// client yields empty hooks.
func (n *Notifier) Hooks() payment.Hooks {
	if !n.client.Configured() {
		return payment.Hooks{}
	}
	return payment.Hooks{
		OnSubscriptionCreated:  n.subscriptionCreated,
		OnSubscriptionCanceled: n.subscriptionCanceled,
	}
}

func (n *Notifier) subscriptionCreated(ctx context.Context, sub model.Subscription) {
	cust, planName := n.recipient(ctx, sub)
	if cust == nil {
		return
	}
	if err := n.client.SendSubscriptionStarted(ctx, cust.Email, planName, sub.TrialEndsAt); err != nil {
		n.logger.Error("send subscription started email", "customer_id", cust.ID, "error", err)
	}
}

func (n *Notifier) subscriptionCanceled(ctx context.Context, sub model.Subscription) {
	cust, planName := n.recipient(ctx, sub)
	if cust == nil {
		return
	}
	atPeriodEnd := sub.Status != model.StatusCanceled && sub.CancelAtPeriodEnd
	if err := n.client.SendSubscriptionCanceled(ctx, cust.Email, planName, atPeriodEnd); err != nil {
		n.logger.Error("send subscription canceled email", "customer_id", cust.ID, "error", err)
	}
}

func (n *Notifier) recipient(ctx context.Context, sub model.Subscription) (*model.Customer, string) {
	cust, err := n.customers(ctx, sub.CustomerID)
	if err != nil {
		n.logger.Error("load customer for notice", "customer_id", sub.CustomerID, "error", err)
		return nil, ""
	}
	if cust == nil || cust.Email == "" {
		return nil, ""
	}
	planName := "Billow"
	switch {
	case sub.Plan != nil:
		planName = sub.Plan.Name
	case cust.Subscription != nil && cust.Subscription.Plan != nil:
		planName = cust.Subscription.Plan.Name
	}
	return cust, planName
}
