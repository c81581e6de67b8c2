package payment

import (
	"context"
	"reflect"

	"github.com/dukerupert/billow/internal/billing/metrics"
	"github.com/dukerupert/billow/internal/billing/model"
)

// SyncReport counts what a Sync run changed.
type SyncReport struct {
	PlansCreated    int `json:"plans_created"`
	PlansUpdated    int `json:"plans_updated"`
	PlansUnchanged  int `json:"plans_unchanged"`
	PricesCreated   int `json:"prices_created"`
	PricesUnchanged int `json:"prices_unchanged"`
}

// Changed reports whether the run touched the vendor or persistence.
func (r SyncReport) Changed() bool {
	return r.PlansCreated+r.PlansUpdated+r.PricesCreated > 0
}

// Sync reconciles the declared plan catalog with the vendor and persistence.
// Plans are matched by slug and updated in place. Prices are immutable, so a
// declared price whose terms differ from every active price produces a new
// price; existing prices are left alone for current subscribers. Running Sync
// twice in a row makes no changes the second time.
func (f *Facade) Sync(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{}
	for _, def := range f.cfg.Plans {
		plan, vendorPrices, err := f.syncPlan(ctx, def, report)
		if err != nil {
			return report, err
		}
		if err := f.syncPrices(ctx, plan, def.Prices, vendorPrices, report); err != nil {
			return report, err
		}
	}

	metrics.SyncChanges.WithLabelValues("plan_created").Add(float64(report.PlansCreated))
	metrics.SyncChanges.WithLabelValues("plan_updated").Add(float64(report.PlansUpdated))
	metrics.SyncChanges.WithLabelValues("price_created").Add(float64(report.PricesCreated))
	f.logger.Info("plan sync complete",
		"plans_created", report.PlansCreated,
		"plans_updated", report.PlansUpdated,
		"prices_created", report.PricesCreated,
	)
	return report, nil
}

// syncPlan makes sure the plan exists on both sides with the declared
// attributes. When the vendor already has the plan but persistence does not,
// the vendor plan is adopted and its prices are returned for matching.
func (f *Facade) syncPlan(ctx context.Context, def PlanDefinition, report *SyncReport) (*model.Plan, []VendorPrice, error) {
	params := VendorPlanParams{Slug: def.Slug, Name: def.Name, Description: def.Description}

	existing, err := f.store.GetPlanBySlug(ctx, def.Slug)
	if err != nil {
		return nil, nil, f.storeErr("sync plan", err)
	}

	if existing != nil {
		if existing.Name == def.Name &&
			existing.Description == def.Description &&
			!existing.Archived &&
			sameFeatures(existing.Features, def.Features) {
			report.PlansUnchanged++
			return existing, nil, nil
		}
		if _, err := f.vendor.UpdatePlan(ctx, existing.VendorID, params); err != nil {
			return nil, nil, f.vendorErr("sync plan", err)
		}
		unarchived := false
		updated, err := f.store.UpdatePlan(ctx, existing.ID, PlanUpdate{
			Name:        &def.Name,
			Description: &def.Description,
			Features:    nonNil(def.Features),
			Archived:    &unarchived,
		})
		if err != nil {
			return nil, nil, f.storeErr("sync plan", err)
		}
		f.logger.Info("plan updated", "slug", def.Slug)
		report.PlansUpdated++
		return updated, nil, nil
	}

	var vendorPrices []VendorPrice
	vp, err := f.vendor.FindPlanBySlug(ctx, def.Slug)
	if err != nil {
		return nil, nil, f.vendorErr("sync plan", err)
	}
	if vp == nil {
		vp, err = f.vendor.CreatePlan(ctx, params)
		if err != nil {
			return nil, nil, f.vendorErr("sync plan", err)
		}
	} else {
		if vp.Name != def.Name || vp.Description != def.Description || !vp.Active {
			if vp, err = f.vendor.UpdatePlan(ctx, vp.ID, params); err != nil {
				return nil, nil, f.vendorErr("sync plan", err)
			}
		}
		vendorPrices, err = f.vendor.FindPricesByPlanID(ctx, vp.ID)
		if err != nil {
			return nil, nil, f.vendorErr("sync plan", err)
		}
	}

	created, err := f.store.CreatePlan(ctx, model.Plan{
		VendorID:    vp.ID,
		Slug:        def.Slug,
		Name:        def.Name,
		Description: def.Description,
		Features:    def.Features,
	})
	if err != nil {
		return nil, nil, f.storeErr("sync plan", err)
	}
	f.logger.Info("plan created", "slug", def.Slug, "vendor_id", vp.ID)
	report.PlansCreated++
	return created, vendorPrices, nil
}

func (f *Facade) syncPrices(ctx context.Context, plan *model.Plan, defs []PriceDefinition, vendorPrices []VendorPrice, report *SyncReport) error {
	local := plan.Prices
	for _, def := range defs {
		terms := def.terms()

		if matchActive(local, terms) {
			report.PricesUnchanged++
			continue
		}

		var pr *model.Price
		var err error
		if vp := matchVendor(vendorPrices, terms); vp != nil {
			pr, err = f.mirrorPrice(ctx, plan, def.Slug, *vp)
		} else {
			pr, err = f.createPrice(ctx, plan, def)
		}
		if err != nil {
			return err
		}
		f.logger.Info("price created", "plan", plan.Slug, "slug", def.Slug, "amount", terms.Amount, "interval", terms.Interval)
		local = append(local, *pr)
		report.PricesCreated++
	}
	return nil
}

func matchActive(prices []model.Price, terms model.Price) bool {
	for _, p := range prices {
		if p.Active && p.SameTerms(terms) {
			return true
		}
	}
	return false
}

func matchVendor(prices []VendorPrice, terms model.Price) *VendorPrice {
	for i, vp := range prices {
		candidate := model.Price{
			Amount:        vp.Amount,
			Currency:      vp.Currency,
			Interval:      vp.Interval,
			IntervalCount: vp.IntervalCount,
		}
		if vp.Active && candidate.SameTerms(terms) {
			return &prices[i]
		}
	}
	return nil
}

func sameFeatures(a, b []model.Feature) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func nonNil(fs []model.Feature) []model.Feature {
	if fs == nil {
		return []model.Feature{}
	}
	return fs
}
