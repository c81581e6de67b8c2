package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
	"github.com/dukerupert/billow/internal/store"
)

// AdminHandler provisions organizations and manages the plan catalog.
type AdminHandler struct {
	billing *payment.Facade
	keys    *store.APIKeyStore
	logger  *slog.Logger
}

func NewAdminHandler(f *payment.Facade, ks *store.APIKeyStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{billing: f, keys: ks, logger: logger}
}

// CreateOrganization creates the billing customer for a new organization and
// issues its first API key. The plaintext key appears only in this response.
func (h *AdminHandler) CreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "a valid email is required"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c, err := h.billing.CreateCustomer(r.Context(), payment.CreateCustomerParams{
		ReferenceID: req.ID,
		Name:        req.Name,
		Email:       req.Email,
	})
	if err != nil {
		writeError(w, h.logger, "create organization", err)
		return
	}

	key, plaintext, err := h.keys.Create(r.Context(), req.ID, "default")
	if err != nil {
		h.logger.Error("create first api key", "organization_id", req.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "organization created but api key failed"})
		return
	}

	h.logger.Info("organization provisioned", "organization_id", req.ID, "customer_id", c.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"organization_id": req.ID,
		"customer":        c,
		"api_key":         map[string]any{"id": key.ID, "key": plaintext},
	})
}

// Sync reconciles the declared plan catalog with the vendor and the database.
func (h *AdminHandler) Sync(w http.ResponseWriter, r *http.Request) {
	report, err := h.billing.Sync(r.Context())
	if err != nil {
		writeError(w, h.logger, "sync plans", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) Plans(w http.ResponseWriter, r *http.Request) {
	q := listQuery(r)
	if r.URL.Query().Get("archived") != "true" {
		q.Where = map[string]any{"archived": false}
	}
	plans, err := h.billing.ListPlans(r.Context(), q)
	if err != nil {
		writeError(w, h.logger, "list plans", err)
		return
	}
	if plans == nil {
		plans = []model.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

func (h *AdminHandler) Customers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.billing.ListCustomers(r.Context(), listQuery(r))
	if err != nil {
		writeError(w, h.logger, "list customers", err)
		return
	}
	if customers == nil {
		customers = []model.Customer{}
	}
	writeJSON(w, http.StatusOK, customers)
}

func (h *AdminHandler) Customer(w http.ResponseWriter, r *http.Request) {
	c, err := h.billing.GetCustomer(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, h.logger, "get customer", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func listQuery(r *http.Request) model.ListQuery {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return model.ListQuery{
		OrderBy:        "created_at",
		OrderDirection: "desc",
		Limit:          limit,
		Offset:         offset,
	}
}
