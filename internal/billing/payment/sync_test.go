package payment_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

func TestSyncIsIdempotent(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	assert.Equal(t, 2, e.vendor.CallCount("CreatePlan"))
	assert.Equal(t, 3, e.vendor.CallCount("CreatePrice"))

	report, err := e.facade.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
	assert.Equal(t, 2, report.PlansUnchanged)
	assert.Equal(t, 3, report.PricesUnchanged)

	assert.Equal(t, 2, e.vendor.CallCount("CreatePlan"))
	assert.Equal(t, 3, e.vendor.CallCount("CreatePrice"))
	assert.Zero(t, e.vendor.CallCount("UpdatePlan"))
}

func TestSyncCreatesPriceWhenTermsChange(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	before, err := e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	oldMonthly := before.PriceFor(model.IntervalMonth)
	require.NotNil(t, oldMonthly)

	plans := catalog()
	plans[1].Prices[0].Amount = 3900
	report, err := e.facadeWith(payment.Config{Plans: plans}).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PricesCreated)
	assert.Equal(t, 2, report.PricesUnchanged)
	assert.Equal(t, 2, report.PlansUnchanged)

	after, err := e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	assert.Len(t, after.Prices, 3)
	assert.Equal(t, int64(3900), after.PriceFor(model.IntervalMonth).Amount)

	old, err := e.store.GetPriceByID(ctx, oldMonthly.ID)
	require.NoError(t, err)
	assert.True(t, old.Active, "existing prices stay untouched")
	assert.Equal(t, int64(2900), old.Amount)

	report, err = e.facadeWith(payment.Config{Plans: plans}).Sync(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed())
}

func TestSyncRevertedPriceIsBilledAgain(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	before, err := e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	original := before.PriceFor(model.IntervalMonth)
	require.NotNil(t, original)

	raised := catalog()
	raised[1].Prices[0].Amount = 3900
	_, err = e.facadeWith(payment.Config{Plans: raised}).Sync(ctx)
	require.NoError(t, err)

	reverted := e.facadeWith(payment.Config{Plans: catalog()})
	report, err := reverted.Sync(ctx)
	require.NoError(t, err)
	assert.False(t, report.Changed(), "the original price row is reused")

	c, err := reverted.CreateCustomer(ctx, payment.CreateCustomerParams{ReferenceID: "org-1"})
	require.NoError(t, err)
	_, err = reverted.CreateCheckoutSession(ctx, payment.CheckoutParams{CustomerID: c.ID, Plan: "pro"})
	require.NoError(t, err)
	require.NotNil(t, e.vendor.LastCheckout)
	assert.Equal(t, original.VendorID, e.vendor.LastCheckout.PriceID)

	sub, err := reverted.CreateSubscription(ctx, payment.CreateSubscriptionParams{CustomerID: c.ID, Plan: "pro"})
	require.NoError(t, err)
	assert.Equal(t, original.ID, sub.PriceID)

	after, err := e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	assert.Len(t, after.Prices, 3, "the 3900 price is left in place")
}

func TestDeclaredPriceMissingIsNotSynced(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	c, err := e.facade.CreateCustomer(ctx, payment.CreateCustomerParams{ReferenceID: "org-1"})
	require.NoError(t, err)

	raised := catalog()
	raised[1].Prices[0].Amount = 3900
	_, err = e.facadeWith(payment.Config{Plans: raised}).CreateCheckoutSession(ctx,
		payment.CheckoutParams{CustomerID: c.ID, Plan: "pro"})
	require.ErrorIs(t, err, payment.ErrPriceNotSynced)
}

func TestSyncUpdatesPlanAttributes(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	plans := catalog()
	plans[0].Name = "Hobby"
	plans[0].Features[0].Limit = model.Int64(5)

	report, err := e.facadeWith(payment.Config{Plans: plans}).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PlansUpdated)
	assert.Equal(t, 1, report.PlansUnchanged)

	p, err := e.facade.GetPlan(ctx, "free")
	require.NoError(t, err)
	assert.Equal(t, "Hobby", p.Name)
	assert.Equal(t, int64(5), *p.Feature("exports").Limit)
	assert.Equal(t, "Hobby", e.vendor.Plans[p.VendorID].Name)
}

func TestSyncAdoptsExistingVendorPlan(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	vp, err := e.vendor.CreatePlan(ctx, payment.VendorPlanParams{Slug: "team", Name: "Team"})
	require.NoError(t, err)
	vprice, err := e.vendor.CreatePrice(ctx, payment.VendorPriceParams{
		PlanID: vp.ID, Amount: 9900, Currency: "usd", Interval: model.IntervalMonth, IntervalCount: 1,
	})
	require.NoError(t, err)
	createdPlans := e.vendor.CallCount("CreatePlan")
	createdPrices := e.vendor.CallCount("CreatePrice")

	plans := append(catalog(), payment.PlanDefinition{
		Slug: "team",
		Name: "Team",
		Prices: []payment.PriceDefinition{
			{Slug: "team-monthly", Amount: 9900, Currency: "usd", Interval: model.IntervalMonth},
		},
	})
	report, err := e.facadeWith(payment.Config{Plans: plans}).Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PlansCreated)
	assert.Equal(t, 1, report.PricesCreated)

	assert.Equal(t, createdPlans, e.vendor.CallCount("CreatePlan"), "vendor plan adopted")
	assert.Equal(t, createdPrices, e.vendor.CallCount("CreatePrice"), "vendor price adopted")

	team, err := e.facade.GetPlan(ctx, "team")
	require.NoError(t, err)
	assert.Equal(t, vp.ID, team.VendorID)
	require.Len(t, team.Prices, 1)
	assert.Equal(t, vprice.ID, team.Prices[0].VendorID)
}

func TestSyncVendorFailure(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	e.vendor.CreatePriceErr = assert.AnError

	plans := catalog()
	plans[0].Prices = append(plans[0].Prices, payment.PriceDefinition{Slug: "free-yearly", Currency: "usd", Interval: model.IntervalYear})
	_, err := e.facadeWith(payment.Config{Plans: plans}).Sync(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "failed to create price")
}

func TestArchivePlanAndPrice(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})
	ctx := context.Background()

	p, err := e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	yearly := p.PriceFor(model.IntervalYear)
	require.NotNil(t, yearly)

	require.NoError(t, e.facade.ArchivePrice(ctx, yearly.ID))
	p, err = e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	assert.Nil(t, p.PriceFor(model.IntervalYear))
	assert.False(t, e.vendor.Prices[yearly.VendorID].Active)

	require.NoError(t, e.facade.ArchivePlan(ctx, "pro"))
	p, err = e.facade.GetPlan(ctx, "pro")
	require.NoError(t, err)
	assert.True(t, p.Archived)
	assert.False(t, e.vendor.Plans[p.VendorID].Active)

	// Sync restores a declared plan that was archived.
	report, err := e.facade.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PlansUpdated)
	assert.Equal(t, 1, report.PricesCreated, "archived yearly price is replaced")
}

func TestCreatePlanValidatesFeatures(t *testing.T) {
	e := setup(t, payment.SubscriptionConfig{})

	_, err := e.facade.CreatePlan(context.Background(), payment.CreatePlanParams{
		Slug:     "bad",
		Name:     "Bad",
		Features: []model.Feature{{Kind: model.FeatureFlag, Slug: "sso", Limit: model.Int64(1)}},
	})
	require.ErrorIs(t, err, model.ErrInvalidFeature)
	assert.Equal(t, 2, e.vendor.CallCount("CreatePlan"))
}
