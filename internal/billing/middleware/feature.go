package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/billow/internal/auth"
	"github.com/dukerupert/billow/internal/billing/metrics"
	"github.com/dukerupert/billow/internal/billing/payment"
)

// FeatureGate answers entitlement questions for a customer.
type FeatureGate interface {
	CanUseFeature(ctx context.Context, customerID, feature string) bool
	HasQuota(ctx context.Context, customerID, feature string) (bool, error)
}

// RequireFeature rejects requests whose organization's plan lacks the feature
// or has used up its quota. The organization id doubles as the customer
// reference, so it must be set by an earlier auth middleware.
func RequireFeature(gate FeatureGate, feature string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := auth.OrganizationID(r.Context())
			if orgID == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}

			if !gate.CanUseFeature(r.Context(), orgID, feature) {
				deny(w, feature, "feature_not_available", "your plan does not include "+feature)
				return
			}

			ok, err := gate.HasQuota(r.Context(), orgID, feature)
			switch {
			case errors.Is(err, payment.ErrNoActiveSubscription), errors.Is(err, payment.ErrCustomerNotFound):
				deny(w, feature, "no_active_subscription", "an active subscription is required")
				return
			case err != nil:
				logger.Error("quota check failed", "organization_id", orgID, "feature", feature, "error", err)
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to check quota"})
				return
			case !ok:
				deny(w, feature, "quota_exceeded", "quota exhausted for "+feature)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, feature, code, msg string) {
	metrics.QuotaDenials.WithLabelValues(feature).Inc()
	writeJSON(w, http.StatusPaymentRequired, map[string]string{
		"error":   msg,
		"code":    code,
		"feature": feature,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
