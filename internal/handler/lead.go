package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/dukerupert/billow/internal/auth"
	"github.com/dukerupert/billow/internal/model"
	"github.com/dukerupert/billow/internal/store"
)

type LeadHandler struct {
	leads  *store.LeadStore
	logger *slog.Logger
}

func NewLeadHandler(ls *store.LeadStore, logger *slog.Logger) *LeadHandler {
	return &LeadHandler{leads: ls, logger: logger}
}

type leadRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Source string `json:"source"`
}

func (h *LeadHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			writeError(w, http.StatusBadRequest, "invalid email")
			return
		}
	}

	orgID := auth.OrganizationID(r.Context())
	lead, err := h.leads.Create(r.Context(), orgID, req.Name, req.Email, strings.TrimSpace(req.Source))
	if err != nil {
		h.logger.Error("create lead", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create lead")
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	leads, err := h.leads.List(r.Context(), auth.OrganizationID(r.Context()), limit, offset)
	if err != nil {
		h.logger.Error("list leads", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list leads")
		return
	}
	if leads == nil {
		leads = []model.Lead{}
	}
	writeJSON(w, http.StatusOK, leads)
}

func (h *LeadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.leads.Delete(r.Context(), auth.OrganizationID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.logger.Error("delete lead", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete lead")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
