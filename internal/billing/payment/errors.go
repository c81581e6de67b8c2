package payment

import "errors"

var (
	ErrCustomerNotFound     = errors.New("CUSTOMER_NOT_FOUND: customer not found")
	ErrPlanNotFound         = errors.New("PLAN_NOT_FOUND: plan not found")
	ErrPriceNotFound        = errors.New("PRICE_NOT_FOUND: price not found")
	ErrSubscriptionNotFound = errors.New("SUBSCRIPTION_NOT_FOUND: subscription not found")
	ErrNoActiveSubscription = errors.New("NO_ACTIVE_SUBSCRIPTION: customer has no active subscription")
	// ErrDefaultPlanNotFree is returned by CreateCustomer when trials are off
	// and the default plan would charge a new signup.
	ErrDefaultPlanNotFree = errors.New("default plan must be free when trials are disabled")
	ErrPriceNotSynced     = errors.New("price has no vendor id; run sync")
)
