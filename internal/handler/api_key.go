package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/billow/internal/auth"
	"github.com/dukerupert/billow/internal/model"
	"github.com/dukerupert/billow/internal/store"
)

type APIKeyHandler struct {
	keys   *store.APIKeyStore
	logger *slog.Logger
}

func NewAPIKeyHandler(ks *store.APIKeyStore, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{keys: ks, logger: logger}
}

// createdKey is the one response that carries the plaintext key.
type createdKey struct {
	*model.APIKey
	Key string `json:"key"`
}

func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	orgID := auth.OrganizationID(r.Context())
	key, plaintext, err := h.keys.Create(r.Context(), orgID, req.Name)
	if err != nil {
		h.logger.Error("create api key", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create api key")
		return
	}
	writeJSON(w, http.StatusCreated, createdKey{APIKey: key, Key: plaintext})
}

func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), auth.OrganizationID(r.Context()))
	if err != nil {
		h.logger.Error("list api keys", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list api keys")
		return
	}
	if keys == nil {
		keys = []model.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// Delete revokes a key. A key cannot revoke itself.
func (h *APIKeyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == auth.APIKeyID(r.Context()) {
		writeError(w, http.StatusConflict, "cannot revoke the key used for this request")
		return
	}
	deleted, err := h.keys.Delete(r.Context(), auth.OrganizationID(r.Context()), id)
	if err != nil {
		h.logger.Error("delete api key", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete api key")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "api key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
