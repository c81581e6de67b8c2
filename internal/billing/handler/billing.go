package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dukerupert/billow/internal/auth"
	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
)

// BillingHandler serves an organization's own billing endpoints. The
// organization id from the API key is used as the customer id.
type BillingHandler struct {
	billing *payment.Facade
	baseURL string
	logger  *slog.Logger
}

func NewBillingHandler(f *payment.Facade, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{billing: f, baseURL: baseURL, logger: logger}
}

// Checkout returns a URL where the organization pays for a plan.
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Plan       string         `json:"plan"`
		Cycle      model.Interval `json:"cycle"`
		Quantity   int64          `json:"quantity"`
		SuccessURL string         `json:"success_url"`
		CancelURL  string         `json:"cancel_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Plan == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "plan is required"})
		return
	}
	if req.Cycle == "" {
		req.Cycle = model.IntervalMonth
	}
	if !req.Cycle.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cycle must be day, week, month or year"})
		return
	}
	if req.SuccessURL == "" {
		req.SuccessURL = h.baseURL + "/billing?checkout=success"
	}
	if req.CancelURL == "" {
		req.CancelURL = h.baseURL + "/billing?checkout=canceled"
	}

	url, err := h.billing.CreateCheckoutSession(r.Context(), payment.CheckoutParams{
		CustomerID: auth.OrganizationID(r.Context()),
		Plan:       req.Plan,
		Cycle:      req.Cycle,
		Quantity:   req.Quantity,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		writeError(w, h.logger, "create checkout session", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Portal returns a vendor-hosted billing portal URL.
func (h *BillingHandler) Portal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReturnURL string `json:"return_url"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}
	if req.ReturnURL == "" {
		req.ReturnURL = h.baseURL + "/billing"
	}

	url, err := h.billing.CreateBillingPortal(r.Context(), auth.OrganizationID(r.Context()), req.ReturnURL)
	if err != nil {
		writeError(w, h.logger, "create billing portal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *BillingHandler) Customer(w http.ResponseWriter, r *http.Request) {
	c, err := h.billing.GetCustomer(r.Context(), auth.OrganizationID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *BillingHandler) Quota(w http.ResponseWriter, r *http.Request) {
	info, err := h.billing.GetQuotaInfo(r.Context(), auth.OrganizationID(r.Context()), r.PathValue("feature"))
	if err != nil {
		writeError(w, h.logger, "get quota", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *BillingHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.billing.GetOverview(r.Context(), auth.OrganizationID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "get overview", err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// Cancel cancels the active subscription at period end, or right away when
// immediately is set.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Immediately bool `json:"immediately"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
			return
		}
	}

	c, err := h.billing.GetCustomer(r.Context(), auth.OrganizationID(r.Context()))
	if err != nil {
		writeError(w, h.logger, "cancel subscription", err)
		return
	}
	if c.Subscription == nil {
		writeError(w, h.logger, "cancel subscription", payment.ErrNoActiveSubscription)
		return
	}

	sub, err := h.billing.CancelSubscription(r.Context(), c.Subscription.ID, payment.CancelParams{Immediately: req.Immediately})
	if err != nil {
		writeError(w, h.logger, "cancel subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
