package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/billow/internal/billing/payment"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// Handle verifies a webhook delivery and translates it into a payment.Event.
// Event types outside the subscription and customer lifecycle yield nil.
func (c *Client) Handle(_ context.Context, payload []byte, header http.Header) (payment.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, header.Get(SignatureHeader), c.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		c.logger.Warn("stripe webhook signature verification failed", "error", err)
		return payment.VerificationFailedEvent{Err: err}, nil
	}

	meta := payment.EventMeta{ID: event.ID, VendorType: string(event.Type)}
	if event.Data == nil {
		return nil, nil
	}

	switch event.Type {
	case "customer.subscription.created":
		sub, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return payment.SubscriptionCreatedEvent{EventMeta: meta, Subscription: sub}, nil

	case "customer.subscription.updated":
		sub, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return payment.SubscriptionUpdatedEvent{EventMeta: meta, Subscription: sub}, nil

	case "customer.subscription.deleted":
		sub, err := decodeSubscription(event.Data.Raw)
		if err != nil {
			return nil, err
		}
		return payment.SubscriptionCanceledEvent{EventMeta: meta, Subscription: sub}, nil

	case "customer.updated":
		var cust stripe.Customer
		if err := json.Unmarshal(event.Data.Raw, &cust); err != nil {
			return nil, fmt.Errorf("parse customer: %w", err)
		}
		return payment.CustomerUpdatedEvent{EventMeta: meta, Customer: *toCustomer(&cust)}, nil

	default:
		c.logger.Debug("unhandled stripe event", "type", event.Type, "id", event.ID)
		return nil, nil
	}
}

func decodeSubscription(raw json.RawMessage) (payment.VendorSubscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(raw, &sub); err != nil {
		return payment.VendorSubscription{}, fmt.Errorf("parse subscription: %w", err)
	}
	return toSubscription(&sub), nil
}
