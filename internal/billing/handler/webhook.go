package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/billow/internal/billing/metrics"
	"github.com/dukerupert/billow/internal/billing/payment"
)

const maxWebhookBytes = 65536

type WebhookHandler struct {
	billing *payment.Facade
	logger  *slog.Logger
}

func NewWebhookHandler(f *payment.Facade, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{billing: f, logger: logger}
}

// HandleWebhook acknowledges every verified or rejected delivery with 200 and
// answers 500 only when applying the event failed, so the vendor retries it.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	event, status := "unknown", "error"
	defer func() {
		metrics.WebhookRequestsTotal.WithLabelValues(event, status).Inc()
		metrics.WebhookDuration.WithLabelValues(event).Observe(time.Since(start).Seconds())
	}()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		status = "bad_request"
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "read body"})
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), body, r.Header)
	if err != nil {
		h.logger.Error("webhook processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "message": "webhook processing failed"})
		return
	}

	if result.Event != "" {
		event = string(result.Event)
	}
	status = result.Status
	writeJSON(w, http.StatusOK, result)
}
