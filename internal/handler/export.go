package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"

	"github.com/dukerupert/billow/internal/auth"
	"github.com/dukerupert/billow/internal/model"
	"github.com/dukerupert/billow/internal/store"
)

// ExportFiles reads and removes rendered export files.
type ExportFiles interface {
	Open(ctx context.Context, exp model.Export) (io.ReadCloser, error)
	Remove(ctx context.Context, exp model.Export) error
}

type ExportHandler struct {
	exports *store.ExportStore
	files   ExportFiles
	logger  *slog.Logger
}

func NewExportHandler(es *store.ExportStore, files ExportFiles, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{exports: es, files: files, logger: logger}
}

func (h *ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Format string `json:"format"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Format == "" {
		req.Format = "csv"
	}
	if !slices.Contains(model.ExportFormats, req.Format) {
		writeError(w, http.StatusBadRequest, "format must be csv or json")
		return
	}

	orgID := auth.OrganizationID(r.Context())
	exp, err := h.exports.Create(r.Context(), orgID, req.Format)
	if err != nil {
		h.logger.Error("create export", "organization_id", orgID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create export")
		return
	}
	writeJSON(w, http.StatusAccepted, exp)
}

func (h *ExportHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	exports, err := h.exports.List(r.Context(), auth.OrganizationID(r.Context()), limit, offset)
	if err != nil {
		h.logger.Error("list exports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list exports")
		return
	}
	if exports == nil {
		exports = []model.Export{}
	}
	writeJSON(w, http.StatusOK, exports)
}

func (h *ExportHandler) Get(w http.ResponseWriter, r *http.Request) {
	exp, err := h.exports.GetByID(r.Context(), auth.OrganizationID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get export")
		return
	}
	if exp == nil {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

// Download streams a completed export file.
func (h *ExportHandler) Download(w http.ResponseWriter, r *http.Request) {
	exp, err := h.exports.GetByID(r.Context(), auth.OrganizationID(r.Context()), r.PathValue("id"))
	if err != nil {
		h.logger.Error("get export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get export")
		return
	}
	if exp == nil {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	if exp.Status != model.ExportComplete {
		writeError(w, http.StatusConflict, "export is "+exp.Status)
		return
	}

	body, err := h.files.Open(r.Context(), *exp)
	if err != nil {
		h.logger.Error("open export file", "export_id", exp.ID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to read export")
		return
	}
	defer body.Close()

	contentType := "text/csv"
	if exp.Format == "json" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leads-%s.%s"`, exp.ID, exp.Format))
	if _, err := io.Copy(w, body); err != nil {
		h.logger.Warn("stream export", "export_id", exp.ID, "error", err)
	}
}

func (h *ExportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID := auth.OrganizationID(r.Context())
	exp, err := h.exports.GetByID(r.Context(), orgID, r.PathValue("id"))
	if err != nil {
		h.logger.Error("get export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete export")
		return
	}
	if exp == nil {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	if err := h.files.Remove(r.Context(), *exp); err != nil {
		h.logger.Warn("remove export file", "export_id", exp.ID, "error", err)
	}
	if _, err := h.exports.Delete(r.Context(), orgID, exp.ID); err != nil {
		h.logger.Error("delete export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete export")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
