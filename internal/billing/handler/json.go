package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/billow/internal/billing/payment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps facade errors to HTTP statuses. Unrecognized errors are
// logged and reported as 500 without detail.
func writeError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, payment.ErrCustomerNotFound),
		errors.Is(err, payment.ErrPlanNotFound),
		errors.Is(err, payment.ErrPriceNotFound),
		errors.Is(err, payment.ErrSubscriptionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, payment.ErrNoActiveSubscription):
		status = http.StatusConflict
	case errors.Is(err, payment.ErrPriceNotSynced):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.Error(op, "error", err)
		writeJSON(w, status, map[string]string{"error": "failed to " + op})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
