package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
)

// Vendor is the contract every payment vendor integration satisfies.
// Methods return vendor-side views of the entities; the facade mirrors them
// into Persistence.
type Vendor interface {
	// Name identifies the vendor in logs and metrics ("stripe").
	Name() string

	CreateCustomer(ctx context.Context, params VendorCustomerParams) (*VendorCustomer, error)
	UpdateCustomer(ctx context.Context, vendorID string, params VendorCustomerParams) (*VendorCustomer, error)
	DeleteCustomer(ctx context.Context, vendorID string) error
	// FindCustomerByReferenceID searches the vendor for a customer tagged with
	// the organization id. It returns nil when none exists.
	FindCustomerByReferenceID(ctx context.Context, referenceID string) (*VendorCustomer, error)

	CreatePlan(ctx context.Context, params VendorPlanParams) (*VendorPlan, error)
	UpdatePlan(ctx context.Context, vendorID string, params VendorPlanParams) (*VendorPlan, error)
	ArchivePlan(ctx context.Context, vendorID string) error
	// FindPlanBySlug returns nil when the vendor has no plan tagged with slug.
	FindPlanBySlug(ctx context.Context, slug string) (*VendorPlan, error)

	CreatePrice(ctx context.Context, params VendorPriceParams) (*VendorPrice, error)
	UpdatePrice(ctx context.Context, vendorID string, params VendorPriceUpdate) (*VendorPrice, error)
	ArchivePrice(ctx context.Context, vendorID string) error
	FindPricesByPlanID(ctx context.Context, vendorPlanID string) ([]VendorPrice, error)

	CreateSubscription(ctx context.Context, params VendorSubscriptionParams) (*VendorSubscription, error)
	UpdateSubscription(ctx context.Context, vendorID string, params VendorSubscriptionUpdate) (*VendorSubscription, error)
	CancelSubscription(ctx context.Context, vendorID string, params CancelParams) error

	CreateBillingPortal(ctx context.Context, vendorCustomerID, returnURL string) (string, error)
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (string, error)

	// Handle verifies and parses a webhook delivery. It returns a nil Event for
	// event types the system does not model, and a VerificationFailedEvent
	// (not an error) when the signature does not verify.
	Handle(ctx context.Context, payload []byte, header http.Header) (Event, error)
}

// Persistence stores normalized billing entities independent of the vendor.
// Single-entity reads return (nil, nil) when the entity does not exist.
type Persistence interface {
	CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	// GetCustomerByID accepts a local id or an organization reference id and
	// materializes the active subscription with its plan, price and usage.
	GetCustomerByID(ctx context.Context, id string) (*model.Customer, error)
	GetCustomerByReferenceID(ctx context.Context, referenceID string) (*model.Customer, error)
	GetCustomerByVendorID(ctx context.Context, vendorID string) (*model.Customer, error)
	UpdateCustomer(ctx context.Context, id string, u CustomerUpdate) (*model.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	ListCustomers(ctx context.Context, q model.ListQuery) ([]model.Customer, error)

	CreatePlan(ctx context.Context, p model.Plan) (*model.Plan, error)
	GetPlanByID(ctx context.Context, id string) (*model.Plan, error)
	GetPlanBySlug(ctx context.Context, slug string) (*model.Plan, error)
	UpdatePlan(ctx context.Context, id string, u PlanUpdate) (*model.Plan, error)
	ListPlans(ctx context.Context, q model.ListQuery) ([]model.Plan, error)

	CreatePrice(ctx context.Context, p model.Price) (*model.Price, error)
	GetPriceByID(ctx context.Context, id string) (*model.Price, error)
	GetPriceByVendorID(ctx context.Context, vendorID string) (*model.Price, error)
	UpdatePrice(ctx context.Context, id string, u PriceUpdate) (*model.Price, error)
	ListPrices(ctx context.Context, q model.ListQuery) ([]model.Price, error)

	CreateSubscription(ctx context.Context, s model.Subscription) (*model.Subscription, error)
	GetSubscriptionByID(ctx context.Context, id string) (*model.Subscription, error)
	GetSubscriptionByVendorID(ctx context.Context, vendorID string) (*model.Subscription, error)
	GetActiveSubscription(ctx context.Context, customerID string) (*model.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, u SubscriptionUpdate) (*model.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) error
	ListSubscriptions(ctx context.Context, q model.ListQuery) ([]model.Subscription, error)

	// GetCustomerUsage returns the customer's usage of a feature in the
	// current cycle. It returns 0 rather than an error when there is no active
	// subscription, no such feature, or no usage source for it.
	GetCustomerUsage(ctx context.Context, customerID, feature string) (int64, error)

	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID string, name EventName) error
}

// Vendor-facing DTOs.

type VendorCustomer struct {
	ID          string
	ReferenceID string
	Name        string
	Email       string
	Metadata    map[string]string
}

type VendorCustomerParams struct {
	ReferenceID string
	Name        string
	Email       string
	Metadata    map[string]string
}

type VendorPlan struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Active      bool
}

type VendorPlanParams struct {
	Slug        string
	Name        string
	Description string
	Metadata    map[string]string
}

type VendorPrice struct {
	ID            string
	PlanID        string
	Slug          string
	Amount        int64
	Currency      string
	Interval      model.Interval
	IntervalCount int64
	Active        bool
	Metadata      map[string]string
}

type VendorPriceParams struct {
	PlanID        string
	Slug          string
	Amount        int64
	Currency      string
	Interval      model.Interval
	IntervalCount int64
	Metadata      map[string]string
}

type VendorPriceUpdate struct {
	Active   *bool
	Metadata map[string]string
}

type VendorSubscription struct {
	ID                string
	CustomerID        string
	PriceID           string
	Quantity          int64
	Status            model.SubscriptionStatus
	TrialEndsAt       *time.Time
	CancelAtPeriodEnd bool
	Metadata          map[string]string
}

type VendorSubscriptionParams struct {
	CustomerID         string
	PriceID            string
	Quantity           int64
	TrialDays          *int64
	BillingCycleAnchor *time.Time
	ProrationBehavior  model.ProrationBehavior
	Metadata           map[string]string
}

type VendorSubscriptionUpdate struct {
	PriceID           string
	Quantity          *int64
	ProrationBehavior model.ProrationBehavior
	Metadata          map[string]string
}

// CancelParams selects immediate or end-of-period cancellation.
type CancelParams struct {
	Immediately       bool
	ProrationBehavior model.ProrationBehavior
}

type CheckoutSessionParams struct {
	CustomerID string
	PriceID    string
	// SubscriptionID is the vendor id of an existing subscription. When set,
	// the vendor returns a plan-change confirmation link instead of a new
	// checkout page.
	SubscriptionID string
	Quantity       int64
	TrialDays      *int64
	SuccessURL     string
	CancelURL      string
	Metadata       map[string]string
}

// Persistence mutation shapes. Nil fields are left unchanged.

type CustomerUpdate struct {
	VendorID *string
	Name     *string
	Email    *string
	Metadata map[string]string
}

type PlanUpdate struct {
	VendorID    *string
	Name        *string
	Description *string
	Features    []model.Feature
	Archived    *bool
}

type PriceUpdate struct {
	Active   *bool
	Metadata map[string]string
}

type SubscriptionUpdate struct {
	PriceID           *string
	Quantity          *int64
	Status            *model.SubscriptionStatus
	TrialEndsAt       *time.Time
	ProrationBehavior *model.ProrationBehavior
	CancelAtPeriodEnd *bool
	Metadata          map[string]string
}
