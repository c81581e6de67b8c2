// Package paymenttest provides an in-memory payment.Vendor for tests.
package paymenttest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

var _ payment.Vendor = (*Vendor)(nil)

var ErrNotFound = errors.New("vendor: no such object")

// Vendor is a test double that keeps vendor objects in memory and records
// every call by method name.
type Vendor struct {
	mu sync.Mutex

	Customers     map[string]payment.VendorCustomer
	Plans         map[string]payment.VendorPlan
	Prices        map[string]payment.VendorPrice
	Subscriptions map[string]payment.VendorSubscription
	Calls         []string

	// LastCheckout holds the parameters of the most recent checkout session.
	LastCheckout *payment.CheckoutSessionParams

	// Event is returned by Handle. A nil Event means the delivery is not modeled.
	Event payment.Event

	// Error fields allow tests to inject failures.
	CreateCustomerErr     error
	CreatePlanErr         error
	CreatePriceErr        error
	CreateSubscriptionErr error
	CancelSubscriptionErr error
	HandleErr             error

	seq int
}

func NewVendor() *Vendor {
	return &Vendor{
		Customers:     make(map[string]payment.VendorCustomer),
		Plans:         make(map[string]payment.VendorPlan),
		Prices:        make(map[string]payment.VendorPrice),
		Subscriptions: make(map[string]payment.VendorSubscription),
	}
}

func (v *Vendor) Name() string { return "fake" }

func (v *Vendor) record(call string) {
	v.Calls = append(v.Calls, call)
}

func (v *Vendor) id(prefix string) string {
	v.seq++
	return fmt.Sprintf("%s_%d", prefix, v.seq)
}

// CallCount returns how many times the named method was called.
func (v *Vendor) CallCount(name string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.Calls {
		if c == name {
			n++
		}
	}
	return n
}

func (v *Vendor) CreateCustomer(_ context.Context, p payment.VendorCustomerParams) (*payment.VendorCustomer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CreateCustomer")
	if v.CreateCustomerErr != nil {
		return nil, v.CreateCustomerErr
	}
	c := payment.VendorCustomer{ID: v.id("cus"), ReferenceID: p.ReferenceID, Name: p.Name, Email: p.Email, Metadata: p.Metadata}
	v.Customers[c.ID] = c
	return &c, nil
}

func (v *Vendor) UpdateCustomer(_ context.Context, id string, p payment.VendorCustomerParams) (*payment.VendorCustomer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("UpdateCustomer")
	c, ok := v.Customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	c.Name, c.Email = p.Name, p.Email
	if p.Metadata != nil {
		c.Metadata = p.Metadata
	}
	v.Customers[id] = c
	return &c, nil
}

func (v *Vendor) DeleteCustomer(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("DeleteCustomer")
	if _, ok := v.Customers[id]; !ok {
		return ErrNotFound
	}
	delete(v.Customers, id)
	return nil
}

func (v *Vendor) FindCustomerByReferenceID(_ context.Context, ref string) (*payment.VendorCustomer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("FindCustomerByReferenceID")
	for _, c := range v.Customers {
		if c.ReferenceID == ref {
			return &c, nil
		}
	}
	return nil, nil
}

func (v *Vendor) CreatePlan(_ context.Context, p payment.VendorPlanParams) (*payment.VendorPlan, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CreatePlan")
	if v.CreatePlanErr != nil {
		return nil, v.CreatePlanErr
	}
	plan := payment.VendorPlan{ID: v.id("prod"), Slug: p.Slug, Name: p.Name, Description: p.Description, Active: true}
	v.Plans[plan.ID] = plan
	return &plan, nil
}

func (v *Vendor) UpdatePlan(_ context.Context, id string, p payment.VendorPlanParams) (*payment.VendorPlan, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("UpdatePlan")
	plan, ok := v.Plans[id]
	if !ok {
		return nil, ErrNotFound
	}
	plan.Name, plan.Description, plan.Active = p.Name, p.Description, true
	v.Plans[id] = plan
	return &plan, nil
}

func (v *Vendor) ArchivePlan(_ context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("ArchivePlan")
	plan, ok := v.Plans[id]
	if !ok {
		return ErrNotFound
	}
	plan.Active = false
	v.Plans[id] = plan
	return nil
}

func (v *Vendor) FindPlanBySlug(_ context.Context, slug string) (*payment.VendorPlan, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("FindPlanBySlug")
	for _, p := range v.Plans {
		if p.Slug == slug {
			return &p, nil
		}
	}
	return nil, nil
}

func (v *Vendor) CreatePrice(_ context.Context, p payment.VendorPriceParams) (*payment.VendorPrice, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CreatePrice")
	if v.CreatePriceErr != nil {
		return nil, v.CreatePriceErr
	}
	if _, ok := v.Plans[p.PlanID]; !ok {
		return nil, ErrNotFound
	}
	price := payment.VendorPrice{
		ID: v.id("price"), PlanID: p.PlanID, Slug: p.Slug, Amount: p.Amount, Currency: p.Currency,
		Interval: p.Interval, IntervalCount: p.IntervalCount, Active: true, Metadata: p.Metadata,
	}
	v.Prices[price.ID] = price
	return &price, nil
}

func (v *Vendor) UpdatePrice(_ context.Context, id string, u payment.VendorPriceUpdate) (*payment.VendorPrice, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("UpdatePrice")
	price, ok := v.Prices[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.Active != nil {
		price.Active = *u.Active
	}
	if u.Metadata != nil {
		price.Metadata = u.Metadata
	}
	v.Prices[id] = price
	return &price, nil
}

func (v *Vendor) ArchivePrice(ctx context.Context, id string) error {
	inactive := false
	_, err := v.UpdatePrice(ctx, id, payment.VendorPriceUpdate{Active: &inactive})
	return err
}

func (v *Vendor) FindPricesByPlanID(_ context.Context, planID string) ([]payment.VendorPrice, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("FindPricesByPlanID")
	var out []payment.VendorPrice
	for _, p := range v.Prices {
		if p.PlanID == planID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (v *Vendor) CreateSubscription(_ context.Context, p payment.VendorSubscriptionParams) (*payment.VendorSubscription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CreateSubscription")
	if v.CreateSubscriptionErr != nil {
		return nil, v.CreateSubscriptionErr
	}
	if _, ok := v.Customers[p.CustomerID]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := v.Prices[p.PriceID]; !ok {
		return nil, ErrNotFound
	}
	sub := payment.VendorSubscription{
		ID: v.id("sub"), CustomerID: p.CustomerID, PriceID: p.PriceID,
		Quantity: p.Quantity, Status: model.StatusActive, Metadata: p.Metadata,
	}
	if p.TrialDays != nil && *p.TrialDays > 0 {
		sub.Status = model.StatusTrialing
		ends := time.Now().AddDate(0, 0, int(*p.TrialDays))
		sub.TrialEndsAt = &ends
	}
	v.Subscriptions[sub.ID] = sub
	return &sub, nil
}

func (v *Vendor) UpdateSubscription(_ context.Context, id string, u payment.VendorSubscriptionUpdate) (*payment.VendorSubscription, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("UpdateSubscription")
	sub, ok := v.Subscriptions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if u.PriceID != "" {
		sub.PriceID = u.PriceID
	}
	if u.Quantity != nil {
		sub.Quantity = *u.Quantity
	}
	v.Subscriptions[id] = sub
	return &sub, nil
}

func (v *Vendor) CancelSubscription(_ context.Context, id string, p payment.CancelParams) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CancelSubscription")
	if v.CancelSubscriptionErr != nil {
		return v.CancelSubscriptionErr
	}
	sub, ok := v.Subscriptions[id]
	if !ok {
		return ErrNotFound
	}
	if p.Immediately {
		sub.Status = model.StatusCanceled
	} else {
		sub.CancelAtPeriodEnd = true
	}
	v.Subscriptions[id] = sub
	return nil
}

func (v *Vendor) CreateBillingPortal(_ context.Context, customerID, returnURL string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CreateBillingPortal")
	if _, ok := v.Customers[customerID]; !ok {
		return "", ErrNotFound
	}
	return "https://billing.example.test/portal/" + customerID + "?return=" + returnURL, nil
}

func (v *Vendor) CreateCheckoutSession(_ context.Context, p payment.CheckoutSessionParams) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("CreateCheckoutSession")
	v.LastCheckout = &p
	if p.SubscriptionID != "" {
		return "https://billing.example.test/update/" + p.SubscriptionID, nil
	}
	return "https://billing.example.test/checkout/" + p.PriceID, nil
}

func (v *Vendor) Handle(_ context.Context, _ []byte, _ http.Header) (payment.Event, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.record("Handle")
	if v.HandleErr != nil {
		return nil, v.HandleErr
	}
	return v.Event, nil
}
