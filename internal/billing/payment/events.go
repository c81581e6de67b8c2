package payment

// EventName is the vendor-agnostic name of a webhook event.
type EventName string

const (
	EventSubscriptionCreated  EventName = "subscription.created"
	EventSubscriptionUpdated  EventName = "subscription.updated"
	EventSubscriptionCanceled EventName = "subscription.canceled"
	EventCustomerUpdated      EventName = "customer.updated"
	EventError                EventName = "error"
)

// Event is a normalized webhook event. The set of implementations is closed:
// only the types in this file satisfy it.
type Event interface {
	Name() EventName
	Meta() EventMeta
	sealed()
}

// EventMeta identifies the delivery an event came from.
type EventMeta struct {
	// ID is the vendor's event id, used to drop duplicate deliveries.
	ID string `json:"id,omitempty"`
	// VendorType is the vendor's own event type string.
	VendorType string `json:"vendor_type,omitempty"`
}

func (m EventMeta) Meta() EventMeta { return m }
func (EventMeta) sealed()           {}

type SubscriptionCreatedEvent struct {
	EventMeta
	Subscription VendorSubscription `json:"subscription"`
}

func (SubscriptionCreatedEvent) Name() EventName { return EventSubscriptionCreated }

type SubscriptionUpdatedEvent struct {
	EventMeta
	Subscription VendorSubscription `json:"subscription"`
}

func (SubscriptionUpdatedEvent) Name() EventName { return EventSubscriptionUpdated }

type SubscriptionCanceledEvent struct {
	EventMeta
	Subscription VendorSubscription `json:"subscription"`
}

func (SubscriptionCanceledEvent) Name() EventName { return EventSubscriptionCanceled }

type CustomerUpdatedEvent struct {
	EventMeta
	Customer VendorCustomer `json:"customer"`
}

func (CustomerUpdatedEvent) Name() EventName { return EventCustomerUpdated }

// VerificationFailedEvent reports a delivery whose signature did not verify.
type VerificationFailedEvent struct {
	EventMeta
	Err error `json:"-"`
}

func (VerificationFailedEvent) Name() EventName { return EventError }
