package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/billow/internal/billing/metrics"
	"github.com/dukerupert/billow/internal/billing/model"
)

// Facade orchestrates one vendor and one persistence adapter. Mutations go
// to the vendor first, are mirrored into persistence using the vendor's ids,
// and then fire the matching lifecycle hook.
//
// A process builds exactly one Facade in its composition root and passes it
// to whatever serves HTTP.
type Facade struct {
	vendor Vendor
	store  Persistence
	cfg    Config
	hooks  Hooks
	logger *slog.Logger
	now    func() time.Time
}

func New(vendor Vendor, store Persistence, cfg Config, hooks Hooks, logger *slog.Logger) *Facade {
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		vendor: vendor,
		store:  store,
		cfg:    cfg,
		hooks:  hooks,
		logger: logger,
		now:    time.Now,
	}
}

// Config returns the configuration the facade was built with.
func (f *Facade) Config() Config {
	return f.cfg
}

func (f *Facade) vendorErr(op string, err error) error {
	f.logger.Error("vendor call failed", "vendor", f.vendor.Name(), "operation", op, "error", err)
	metrics.OperationErrors.WithLabelValues(op, "vendor").Inc()
	return fmt.Errorf("failed to %s: %w", op, err)
}

func (f *Facade) storeErr(op string, err error) error {
	f.logger.Error("persistence call failed", "operation", op, "error", err)
	metrics.OperationErrors.WithLabelValues(op, "store").Inc()
	return fmt.Errorf("failed to %s: %w", op, err)
}

type CreateCustomerParams struct {
	// ReferenceID is the owning organization's id.
	ReferenceID string
	Name        string
	Email       string
	Metadata    map[string]string
}

// CreateCustomer creates the customer at the vendor, mirrors it locally and,
// when subscriptions are enabled with a default plan, starts the customer on
// that plan. OnCustomerCreated fires once everything has succeeded.
func (f *Facade) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*model.Customer, error) {
	provision := f.cfg.Subscriptions.Enabled && f.cfg.Subscriptions.DefaultPlan != ""
	if provision {
		if err := f.checkDefaultPlan(ctx); err != nil {
			return nil, err
		}
	}

	vc, err := f.vendorCustomer(ctx, params)
	if err != nil {
		return nil, err
	}

	c, err := f.store.CreateCustomer(ctx, model.Customer{
		VendorID:    vc.ID,
		ReferenceID: params.ReferenceID,
		Name:        params.Name,
		Email:       params.Email,
		Metadata:    params.Metadata,
	})
	if err != nil {
		return nil, f.storeErr("create customer", err)
	}

	if provision {
		sp := CreateSubscriptionParams{
			CustomerID: c.ID,
			Plan:       f.cfg.Subscriptions.DefaultPlan,
			Cycle:      model.IntervalMonth,
		}
		if f.cfg.Subscriptions.Trial.Enabled && f.cfg.Subscriptions.Trial.Days > 0 {
			days := f.cfg.Subscriptions.Trial.Days
			sp.TrialDays = &days
		}
		if _, err := f.CreateSubscription(ctx, sp); err != nil {
			return nil, err
		}
	}

	full, err := f.store.GetCustomerByID(ctx, c.ID)
	if err != nil {
		return nil, f.storeErr("create customer", err)
	}
	if full == nil {
		full = c
	}

	if f.hooks.OnCustomerCreated != nil {
		f.hooks.OnCustomerCreated(ctx, *full)
	}
	return full, nil
}

// vendorCustomer adopts the vendor customer already tagged with the
// organization, left behind when an earlier attempt failed after the vendor
// call, and creates one otherwise.
func (f *Facade) vendorCustomer(ctx context.Context, params CreateCustomerParams) (*VendorCustomer, error) {
	if params.ReferenceID != "" {
		existing, err := f.vendor.FindCustomerByReferenceID(ctx, params.ReferenceID)
		if err != nil {
			return nil, f.vendorErr("create customer", err)
		}
		if existing != nil {
			f.logger.Info("adopting existing vendor customer", "reference_id", params.ReferenceID, "vendor_id", existing.ID)
			return existing, nil
		}
	}

	vc, err := f.vendor.CreateCustomer(ctx, VendorCustomerParams{
		ReferenceID: params.ReferenceID,
		Name:        params.Name,
		Email:       params.Email,
		Metadata:    params.Metadata,
	})
	if err != nil {
		return nil, f.vendorErr("create customer", err)
	}
	return vc, nil
}

// checkDefaultPlan enforces that a signup without a trial is never charged.
func (f *Facade) checkDefaultPlan(ctx context.Context) error {
	slug := f.cfg.Subscriptions.DefaultPlan
	var monthly *int64

	plan, err := f.store.GetPlanBySlug(ctx, slug)
	if err != nil {
		return f.storeErr("create customer", err)
	}
	if plan != nil {
		if pr, _ := f.currentPrice(plan, model.IntervalMonth); pr != nil {
			monthly = &pr.Amount
		}
	} else if def := f.cfg.Plan(slug); def != nil {
		for _, pr := range def.Prices {
			if pr.Interval == model.IntervalMonth {
				amount := pr.Amount
				monthly = &amount
				break
			}
		}
	} else {
		return fmt.Errorf("%w: default plan %q", ErrPlanNotFound, slug)
	}

	if monthly == nil {
		return fmt.Errorf("%w: default plan %q has no monthly price", ErrPriceNotFound, slug)
	}
	if *monthly > 0 && !f.cfg.Subscriptions.Trial.Enabled {
		return fmt.Errorf("%w: plan %q costs %d per month", ErrDefaultPlanNotFree, slug, *monthly)
	}
	return nil
}

// GetCustomer returns the customer with its active subscription and usage.
// id may be the local id or the organization reference id.
func (f *Facade) GetCustomer(ctx context.Context, id string) (*model.Customer, error) {
	c, err := f.store.GetCustomerByID(ctx, id)
	if err != nil {
		return nil, f.storeErr("get customer", err)
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}
	return c, nil
}

func (f *Facade) ListCustomers(ctx context.Context, q model.ListQuery) ([]model.Customer, error) {
	cs, err := f.store.ListCustomers(ctx, q)
	if err != nil {
		return nil, f.storeErr("list customers", err)
	}
	return cs, nil
}

type UpdateCustomerParams struct {
	Name     *string
	Email    *string
	Metadata map[string]string
}

func (f *Facade) UpdateCustomer(ctx context.Context, id string, params UpdateCustomerParams) (*model.Customer, error) {
	c, err := f.GetCustomer(ctx, id)
	if err != nil {
		return nil, err
	}

	vp := VendorCustomerParams{ReferenceID: c.ReferenceID, Name: c.Name, Email: c.Email, Metadata: params.Metadata}
	if params.Name != nil {
		vp.Name = *params.Name
	}
	if params.Email != nil {
		vp.Email = *params.Email
	}
	if _, err := f.vendor.UpdateCustomer(ctx, c.VendorID, vp); err != nil {
		return nil, f.vendorErr("update customer", err)
	}

	updated, err := f.store.UpdateCustomer(ctx, c.ID, CustomerUpdate{
		Name:     params.Name,
		Email:    params.Email,
		Metadata: params.Metadata,
	})
	if err != nil {
		return nil, f.storeErr("update customer", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, id)
	}

	if f.hooks.OnCustomerUpdated != nil {
		f.hooks.OnCustomerUpdated(ctx, *updated)
	}
	return updated, nil
}

// DeleteCustomer removes the customer from the vendor and then locally.
func (f *Facade) DeleteCustomer(ctx context.Context, id string) error {
	c, err := f.GetCustomer(ctx, id)
	if err != nil {
		return err
	}
	if err := f.vendor.DeleteCustomer(ctx, c.VendorID); err != nil {
		return f.vendorErr("delete customer", err)
	}
	if err := f.store.DeleteCustomer(ctx, c.ID); err != nil {
		return f.storeErr("delete customer", err)
	}
	if f.hooks.OnCustomerDeleted != nil {
		f.hooks.OnCustomerDeleted(ctx, *c)
	}
	return nil
}

type CreatePlanParams struct {
	Slug        string
	Name        string
	Description string
	Features    []model.Feature
}

func (f *Facade) CreatePlan(ctx context.Context, params CreatePlanParams) (*model.Plan, error) {
	if err := model.ValidateFeatures(params.Features); err != nil {
		return nil, err
	}
	vp, err := f.vendor.CreatePlan(ctx, VendorPlanParams{
		Slug:        params.Slug,
		Name:        params.Name,
		Description: params.Description,
	})
	if err != nil {
		return nil, f.vendorErr("create plan", err)
	}
	p, err := f.store.CreatePlan(ctx, model.Plan{
		VendorID:    vp.ID,
		Slug:        params.Slug,
		Name:        params.Name,
		Description: params.Description,
		Features:    params.Features,
	})
	if err != nil {
		return nil, f.storeErr("create plan", err)
	}
	return p, nil
}

// GetPlan looks a plan up by slug.
func (f *Facade) GetPlan(ctx context.Context, slug string) (*model.Plan, error) {
	p, err := f.store.GetPlanBySlug(ctx, slug)
	if err != nil {
		return nil, f.storeErr("get plan", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPlanNotFound, slug)
	}
	return p, nil
}

func (f *Facade) ListPlans(ctx context.Context, q model.ListQuery) ([]model.Plan, error) {
	ps, err := f.store.ListPlans(ctx, q)
	if err != nil {
		return nil, f.storeErr("list plans", err)
	}
	return ps, nil
}

type UpdatePlanParams struct {
	Name        *string
	Description *string
	Features    []model.Feature
}

func (f *Facade) UpdatePlan(ctx context.Context, slug string, params UpdatePlanParams) (*model.Plan, error) {
	p, err := f.GetPlan(ctx, slug)
	if err != nil {
		return nil, err
	}
	if params.Features != nil {
		if err := model.ValidateFeatures(params.Features); err != nil {
			return nil, err
		}
	}

	vp := VendorPlanParams{Slug: p.Slug, Name: p.Name, Description: p.Description}
	if params.Name != nil {
		vp.Name = *params.Name
	}
	if params.Description != nil {
		vp.Description = *params.Description
	}
	if _, err := f.vendor.UpdatePlan(ctx, p.VendorID, vp); err != nil {
		return nil, f.vendorErr("update plan", err)
	}

	updated, err := f.store.UpdatePlan(ctx, p.ID, PlanUpdate{
		Name:        params.Name,
		Description: params.Description,
		Features:    params.Features,
	})
	if err != nil {
		return nil, f.storeErr("update plan", err)
	}
	return updated, nil
}

// ArchivePlan deactivates the plan on both sides. Nothing is deleted.
func (f *Facade) ArchivePlan(ctx context.Context, slug string) error {
	p, err := f.GetPlan(ctx, slug)
	if err != nil {
		return err
	}
	if err := f.vendor.ArchivePlan(ctx, p.VendorID); err != nil {
		return f.vendorErr("archive plan", err)
	}
	archived := true
	if _, err := f.store.UpdatePlan(ctx, p.ID, PlanUpdate{Archived: &archived}); err != nil {
		return f.storeErr("archive plan", err)
	}
	return nil
}

// CreatePrice adds a price to the plan with the given slug.
func (f *Facade) CreatePrice(ctx context.Context, planSlug string, def PriceDefinition) (*model.Price, error) {
	p, err := f.GetPlan(ctx, planSlug)
	if err != nil {
		return nil, err
	}
	return f.createPrice(ctx, p, def)
}

func (f *Facade) createPrice(ctx context.Context, p *model.Plan, def PriceDefinition) (*model.Price, error) {
	terms := def.terms()
	vp, err := f.vendor.CreatePrice(ctx, VendorPriceParams{
		PlanID:        p.VendorID,
		Slug:          def.Slug,
		Amount:        terms.Amount,
		Currency:      terms.Currency,
		Interval:      terms.Interval,
		IntervalCount: terms.IntervalCount,
		Metadata:      def.Metadata,
	})
	if err != nil {
		return nil, f.vendorErr("create price", err)
	}
	return f.mirrorPrice(ctx, p, def.Slug, *vp)
}

func (f *Facade) mirrorPrice(ctx context.Context, p *model.Plan, slug string, vp VendorPrice) (*model.Price, error) {
	pr, err := f.store.CreatePrice(ctx, model.Price{
		VendorID:      vp.ID,
		PlanID:        p.ID,
		Slug:          slug,
		Amount:        vp.Amount,
		Currency:      vp.Currency,
		Interval:      vp.Interval,
		IntervalCount: vp.IntervalCount,
		Metadata:      vp.Metadata,
		Active:        true,
	})
	if err != nil {
		return nil, f.storeErr("create price", err)
	}
	return pr, nil
}

// UpdatePrice toggles activity or replaces metadata. Amount and schedule are
// immutable once issued.
func (f *Facade) UpdatePrice(ctx context.Context, id string, u PriceUpdate) (*model.Price, error) {
	pr, err := f.store.GetPriceByID(ctx, id)
	if err != nil {
		return nil, f.storeErr("update price", err)
	}
	if pr == nil {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotFound, id)
	}
	if _, err := f.vendor.UpdatePrice(ctx, pr.VendorID, VendorPriceUpdate{Active: u.Active, Metadata: u.Metadata}); err != nil {
		return nil, f.vendorErr("update price", err)
	}
	updated, err := f.store.UpdatePrice(ctx, pr.ID, u)
	if err != nil {
		return nil, f.storeErr("update price", err)
	}
	return updated, nil
}

func (f *Facade) ArchivePrice(ctx context.Context, id string) error {
	pr, err := f.store.GetPriceByID(ctx, id)
	if err != nil {
		return f.storeErr("archive price", err)
	}
	if pr == nil {
		return fmt.Errorf("%w: %s", ErrPriceNotFound, id)
	}
	if err := f.vendor.ArchivePrice(ctx, pr.VendorID); err != nil {
		return f.vendorErr("archive price", err)
	}
	inactive := false
	if _, err := f.store.UpdatePrice(ctx, pr.ID, PriceUpdate{Active: &inactive}); err != nil {
		return f.storeErr("archive price", err)
	}
	return nil
}

// CreateBillingPortal returns a vendor portal URL for the customer.
func (f *Facade) CreateBillingPortal(ctx context.Context, customerID, returnURL string) (string, error) {
	c, err := f.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	url, err := f.vendor.CreateBillingPortal(ctx, c.VendorID, returnURL)
	if err != nil {
		return "", f.vendorErr("create billing portal", err)
	}
	return url, nil
}
