package websocket

import (
	"context"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

// OrganizationLookup resolves the organization that owns a local customer id.
type OrganizationLookup func(ctx context.Context, customerID string) (string, error)

// Hooks returns payment hooks that broadcast billing changes on hub.
func Hooks(hub *Hub, orgOf OrganizationLookup) payment.Hooks {
	subscription := func(action string) func(context.Context, model.Subscription) {
		return func(ctx context.Context, s model.Subscription) {
			org, err := orgOf(ctx, s.CustomerID)
			if err != nil {
				hub.logger.Warn("resolve organization for broadcast", "customer_id", s.CustomerID, "error", err)
			}
			hub.Broadcast(NewMessage("subscription", action, s.ID, org, map[string]any{
				"status":               s.Status,
				"price_id":             s.PriceID,
				"cancel_at_period_end": s.CancelAtPeriodEnd,
			}))
		}
	}
	customer := func(action string) func(context.Context, model.Customer) {
		return func(_ context.Context, c model.Customer) {
			hub.Broadcast(NewMessage("customer", action, c.ID, c.ReferenceID, nil))
		}
	}

	return payment.Hooks{
		OnCustomerCreated:      customer("created"),
		OnCustomerUpdated:      customer("updated"),
		OnCustomerDeleted:      customer("deleted"),
		OnSubscriptionCreated:  subscription("created"),
		OnSubscriptionUpdated:  subscription("updated"),
		OnSubscriptionCanceled: subscription("canceled"),
		OnWebhookReceived: func(_ context.Context, e payment.Event) {
			meta := e.Meta()
			hub.Broadcast(NewMessage("webhook", "received", meta.ID, "", map[string]any{
				"event":       e.Name(),
				"vendor_type": meta.VendorType,
			}))
		},
	}
}
