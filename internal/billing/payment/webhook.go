package payment

import (
	"context"
	"net/http"

	"github.com/dukerupert/billow/internal/billing/model"
)

const (
	WebhookProcessed = "processed"
	WebhookSuccess   = "success"
)

// WebhookResult is the acknowledgement returned to the vendor.
type WebhookResult struct {
	Status  string    `json:"status"`
	Message string    `json:"message"`
	Event   EventName `json:"event,omitempty"`
}

// HandleWebhook verifies a delivery through the vendor, applies the event to
// persistence and fires the matching hooks. Unmodeled events, duplicates and
// signature failures are acknowledged without mutating anything. A failed
// mutation is returned as an error so the vendor retries the delivery.
func (f *Facade) HandleWebhook(ctx context.Context, payload []byte, header http.Header) (*WebhookResult, error) {
	event, err := f.vendor.Handle(ctx, payload, header)
	if err != nil {
		return nil, f.vendorErr("handle webhook", err)
	}
	if event == nil {
		return &WebhookResult{Status: WebhookSuccess, Message: "event not handled"}, nil
	}

	if e, ok := event.(VerificationFailedEvent); ok {
		f.logger.Error("webhook signature verification failed", "vendor", f.vendor.Name(), "error", e.Err)
		f.fireWebhook(ctx, event)
		return &WebhookResult{Status: WebhookSuccess, Message: "signature verification failed", Event: EventError}, nil
	}

	meta := event.Meta()
	if meta.ID != "" {
		seen, err := f.store.IsEventProcessed(ctx, meta.ID)
		if err != nil {
			return nil, f.storeErr("handle webhook", err)
		}
		if seen {
			f.logger.Info("duplicate webhook event", "event_id", meta.ID, "event", event.Name())
			return &WebhookResult{Status: WebhookSuccess, Message: "duplicate event", Event: event.Name()}, nil
		}
	}

	switch e := event.(type) {
	case SubscriptionCreatedEvent:
		err = f.ingestSubscription(ctx, e.Subscription)
	case SubscriptionUpdatedEvent:
		err = f.ingestSubscription(ctx, e.Subscription)
	case SubscriptionCanceledEvent:
		err = f.ingestCancellation(ctx, e.Subscription)
	case CustomerUpdatedEvent:
		err = f.ingestCustomer(ctx, e.Customer)
	default:
		return &WebhookResult{Status: WebhookSuccess, Message: "event not handled"}, nil
	}
	if err != nil {
		return nil, err
	}

	if meta.ID != "" {
		if err := f.store.MarkEventProcessed(ctx, meta.ID, event.Name()); err != nil {
			return nil, f.storeErr("handle webhook", err)
		}
	}
	f.logger.Info("webhook processed", "event_id", meta.ID, "event", event.Name(), "vendor_type", meta.VendorType)
	f.fireWebhook(ctx, event)
	return &WebhookResult{Status: WebhookProcessed, Message: "webhook processed", Event: event.Name()}, nil
}

func (f *Facade) fireWebhook(ctx context.Context, e Event) {
	if f.hooks.OnWebhookReceived != nil {
		f.hooks.OnWebhookReceived(ctx, e)
	}
}

// ingestSubscription upserts a vendor subscription. Deliveries for customers
// or prices this system does not know are skipped.
func (f *Facade) ingestSubscription(ctx context.Context, vs VendorSubscription) error {
	existing, err := f.store.GetSubscriptionByVendorID(ctx, vs.ID)
	if err != nil {
		return f.storeErr("sync subscription", err)
	}

	price, err := f.store.GetPriceByVendorID(ctx, vs.PriceID)
	if err != nil {
		return f.storeErr("sync subscription", err)
	}

	if existing != nil {
		u := SubscriptionUpdate{
			TrialEndsAt:       vs.TrialEndsAt,
			CancelAtPeriodEnd: &vs.CancelAtPeriodEnd,
			Metadata:          vs.Metadata,
		}
		if vs.Status != "" {
			u.Status = &vs.Status
		}
		if vs.Quantity > 0 {
			u.Quantity = &vs.Quantity
		}
		if price != nil {
			u.PriceID = &price.ID
		}
		updated, err := f.store.UpdateSubscription(ctx, existing.ID, u)
		if err != nil {
			return f.storeErr("update subscription", err)
		}
		if f.hooks.OnSubscriptionUpdated != nil {
			f.hooks.OnSubscriptionUpdated(ctx, *updated)
		}
		return nil
	}

	c, err := f.store.GetCustomerByVendorID(ctx, vs.CustomerID)
	if err != nil {
		return f.storeErr("create subscription", err)
	}
	if c == nil {
		f.logger.Warn("webhook for unknown customer", "vendor_customer_id", vs.CustomerID, "vendor_subscription_id", vs.ID)
		return nil
	}
	if price == nil {
		f.logger.Warn("webhook for unknown price", "vendor_price_id", vs.PriceID, "vendor_subscription_id", vs.ID)
		return nil
	}

	quantity := vs.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	created, err := f.store.CreateSubscription(ctx, model.Subscription{
		VendorID:          vs.ID,
		CustomerID:        c.ID,
		PriceID:           price.ID,
		Quantity:          quantity,
		TrialEndsAt:       vs.TrialEndsAt,
		Status:            vs.Status,
		ProrationBehavior: model.ProrationCreate,
		CancelAtPeriodEnd: vs.CancelAtPeriodEnd,
		Metadata:          vs.Metadata,
	})
	if err != nil {
		return f.storeErr("create subscription", err)
	}
	if f.hooks.OnSubscriptionCreated != nil {
		f.hooks.OnSubscriptionCreated(ctx, *created)
	}
	return nil
}

func (f *Facade) ingestCancellation(ctx context.Context, vs VendorSubscription) error {
	existing, err := f.store.GetSubscriptionByVendorID(ctx, vs.ID)
	if err != nil {
		return f.storeErr("cancel subscription", err)
	}
	if existing == nil {
		f.logger.Warn("cancellation for unknown subscription", "vendor_subscription_id", vs.ID)
		return nil
	}
	canceled := model.StatusCanceled
	updated, err := f.store.UpdateSubscription(ctx, existing.ID, SubscriptionUpdate{Status: &canceled})
	if err != nil {
		return f.storeErr("cancel subscription", err)
	}
	if f.hooks.OnSubscriptionCanceled != nil {
		f.hooks.OnSubscriptionCanceled(ctx, *updated)
	}
	return nil
}

func (f *Facade) ingestCustomer(ctx context.Context, vc VendorCustomer) error {
	c, err := f.store.GetCustomerByVendorID(ctx, vc.ID)
	if err != nil {
		return f.storeErr("update customer", err)
	}
	if c == nil {
		f.logger.Warn("webhook for unknown customer", "vendor_customer_id", vc.ID)
		return nil
	}
	updated, err := f.store.UpdateCustomer(ctx, c.ID, CustomerUpdate{
		Name:     &vc.Name,
		Email:    &vc.Email,
		Metadata: vc.Metadata,
	})
	if err != nil {
		return f.storeErr("update customer", err)
	}
	if f.hooks.OnCustomerUpdated != nil {
		f.hooks.OnCustomerUpdated(ctx, *updated)
	}
	return nil
}
