package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
	tenant "github.com/dukerupert/billow/internal/model"
)

// Subscriptions is the subset of the push store the notifier needs.
type Subscriptions interface {
	ListByOrganization(ctx context.Context, orgID string) ([]tenant.PushSubscription, error)
	Unsubscribe(ctx context.Context, orgID, endpoint string) (bool, error)
}

// OrganizationLookup resolves the organization that owns a local customer id.
type OrganizationLookup func(ctx context.Context, customerID string) (string, error)

// Notifier pushes subscription lifecycle notices to an organization's devices.
type Notifier struct {
	svc    *Service
	subs   Subscriptions
	orgOf  OrganizationLookup
	logger *slog.Logger
}

func NewNotifier(svc *Service, subs Subscriptions, orgOf OrganizationLookup, logger *slog.Logger) *Notifier {
	return &Notifier{svc: svc, subs: subs, orgOf: orgOf, logger: logger}
}

// Hooks returns the payment hooks that send notices. Without VAPID keys the
// hooks are empty.
func (n *Notifier) Hooks() payment.Hooks {
	if !n.svc.cfg.Configured() {
		return payment.Hooks{}
	}
	return payment.Hooks{
		OnSubscriptionCreated: func(ctx context.Context, s model.Subscription) {
			n.notify(ctx, s, Payload{Title: "Subscription started", Body: planLabel(s) + " is now active.", Tag: "subscription"})
		},
		OnSubscriptionUpdated: func(ctx context.Context, s model.Subscription) {
			if s.Status != model.StatusPastDue {
				return
			}
			n.notify(ctx, s, Payload{Title: "Payment failed", Body: "Update your payment method to keep " + planLabel(s) + ".", Tag: "payment"})
		},
		OnSubscriptionCanceled: func(ctx context.Context, s model.Subscription) {
			n.notify(ctx, s, Payload{Title: "Subscription canceled", Body: planLabel(s) + " has been canceled.", Tag: "subscription"})
		},
	}
}

func planLabel(s model.Subscription) string {
	if s.Plan != nil && s.Plan.Name != "" {
		return "Your " + s.Plan.Name + " plan"
	}
	return "Your subscription"
}

func (n *Notifier) notify(ctx context.Context, s model.Subscription, payload Payload) {
	orgID, err := n.orgOf(ctx, s.CustomerID)
	if err != nil || orgID == "" {
		n.logger.Warn("resolve organization for push", "customer_id", s.CustomerID, "error", err)
		return
	}
	if err := n.Broadcast(ctx, orgID, payload); err != nil {
		n.logger.Error("push notice", "organization_id", orgID, "error", err)
	}
}

// Broadcast sends payload to every device of the organization. Expired
// endpoints are removed; other failures are joined into the returned error.
func (n *Notifier) Broadcast(ctx context.Context, orgID string, payload Payload) error {
	subs, err := n.subs.ListByOrganization(ctx, orgID)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		err := n.svc.Send(ctx, sub, payload)
		switch {
		case err == nil:
		case errors.Is(err, ErrExpired):
			if _, err := n.subs.Unsubscribe(ctx, "", sub.Endpoint); err != nil {
				errs = append(errs, err)
			}
			n.logger.Info("removed expired push subscription", "organization_id", orgID, "subscription_id", sub.ID)
		default:
			errs = append(errs, fmt.Errorf("subscription %s: %w", sub.ID, err))
		}
	}
	return errors.Join(errs...)
}
