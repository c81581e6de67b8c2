// Package server wires the billing facade, the tenant resources and their
// HTTP routes together.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/billow/internal/billing/handler"
	"github.com/dukerupert/billow/internal/billing/middleware"
	"github.com/dukerupert/billow/internal/billing/model"
	"github.com/dukerupert/billow/internal/billing/payment"
	billingstore "github.com/dukerupert/billow/internal/billing/store"
	"github.com/dukerupert/billow/internal/billing/usage"
	"github.com/dukerupert/billow/internal/config"
	"github.com/dukerupert/billow/internal/email"
	"github.com/dukerupert/billow/internal/export"
	tenant "github.com/dukerupert/billow/internal/handler"
	sharedmw "github.com/dukerupert/billow/internal/middleware"
	"github.com/dukerupert/billow/internal/push"
	"github.com/dukerupert/billow/internal/store"
	"github.com/dukerupert/billow/internal/websocket"
)

// Metered features guarding resource creation.
const (
	FeatureLeads   = "leads"
	FeatureExports = "exports"
	FeatureAPIKeys = "api-keys"
)

type Server struct {
	db          *sql.DB
	cfg         *config.Config
	logger      *slog.Logger
	facade      *payment.Facade
	keyStore    *store.APIKeyStore
	hub         *websocket.Hub
	usage       *usage.Registry
	exports     *export.Worker
	rateLimiter *sharedmw.RateLimiter

	webhookH *handler.WebhookHandler
	billingH *handler.BillingHandler
	adminH   *handler.AdminHandler
	leadH    *tenant.LeadHandler
	exportH  *tenant.ExportHandler
	apiKeyH  *tenant.APIKeyHandler
	pushH    *tenant.PushHandler
}

// New builds the server around vendor. The database must already be migrated
// since usage counters inspect the metered tables.
func New(ctx context.Context, db *sql.DB, cfg *config.Config, vendor payment.Vendor, logger *slog.Logger) (*Server, error) {
	var features [][]model.Feature
	for _, p := range cfg.Billing.Plans {
		features = append(features, p.Features)
	}
	registry, err := usage.FromPlans(ctx, db, features)
	if err != nil {
		return nil, fmt.Errorf("build usage registry: %w", err)
	}
	logger.Info("usage counters registered", "features", registry.Features())

	billingStore := billingstore.New(db, registry, logger.With("component", "billing_store"))
	leadStore := store.NewLeadStore(db)
	exportStore := store.NewExportStore(db)
	keyStore := store.NewAPIKeyStore(db)
	pushStore := store.NewPushStore(db)

	orgOf := func(ctx context.Context, customerID string) (string, error) {
		c, err := billingStore.GetCustomerByID(ctx, customerID)
		if err != nil || c == nil {
			return "", err
		}
		return c.ReferenceID, nil
	}

	hub := websocket.NewHub(logger.With("component", "events"))
	emailClient := email.NewClient(cfg.PostmarkToken, cfg.FromEmail, cfg.BaseURL)
	notifier := email.NewNotifier(emailClient, billingStore.GetCustomerByID, logger.With("component", "email"))
	pusher := push.NewNotifier(push.NewService(cfg.Push), pushStore, orgOf, logger.With("component", "push"))

	hooks := websocket.Hooks(hub, orgOf).
		Merge(notifier.Hooks()).
		Merge(pusher.Hooks())
	facade := payment.New(vendor, billingStore, cfg.Billing, hooks, logger.With("component", "billing"))

	exportWorker := export.NewWorker(cfg.Exports, exportStore, leadStore, logger.With("component", "exports"))

	return &Server{
		db:          db,
		cfg:         cfg,
		logger:      logger,
		facade:      facade,
		keyStore:    keyStore,
		hub:         hub,
		usage:       registry,
		exports:     exportWorker,
		rateLimiter: sharedmw.NewRateLimiter(),
		webhookH:    handler.NewWebhookHandler(facade, logger.With("component", "webhook")),
		billingH:    handler.NewBillingHandler(facade, cfg.BaseURL, logger.With("component", "billing_api")),
		adminH:      handler.NewAdminHandler(facade, keyStore, logger.With("component", "admin")),
		leadH:       tenant.NewLeadHandler(leadStore, logger.With("component", "leads")),
		exportH:     tenant.NewExportHandler(exportStore, exportWorker, logger.With("component", "exports")),
		apiKeyH:     tenant.NewAPIKeyHandler(keyStore, logger.With("component", "api_keys")),
		pushH:       tenant.NewPushHandler(pushStore, cfg.Push.VAPIDPublicKey, logger.With("component", "push")),
	}, nil
}

// Facade returns the billing facade for commands that run outside HTTP.
func (s *Server) Facade() *payment.Facade {
	return s.facade
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *sharedmw.RateLimiter {
	return s.rateLimiter
}

// ExportWorker returns the background export processor.
func (s *Server) ExportWorker() *export.Worker {
	return s.exports
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Vendor webhook (public, signature verified by the vendor adapter)
	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleWebhook)
	mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)

	// Organization routes
	api := func(h http.HandlerFunc) http.Handler {
		rl := sharedmw.RateLimit(s.rateLimiter, sharedmw.ByOrganization, 120, time.Minute)
		return sharedmw.RequireAPIKey(s.keyStore)(rl(h))
	}
	gated := func(feature string, h http.HandlerFunc) http.Handler {
		return api(middleware.RequireFeature(s.facade, feature, s.logger.With("component", "feature_gate"))(h).ServeHTTP)
	}

	mux.Handle("POST /api/billing/checkout", api(s.billingH.Checkout))
	mux.Handle("POST /api/billing/portal", api(s.billingH.Portal))
	mux.Handle("GET /api/billing/customer", api(s.billingH.Customer))
	mux.Handle("GET /api/billing/overview", api(s.billingH.Overview))
	mux.Handle("GET /api/billing/quota/{feature}", api(s.billingH.Quota))
	mux.Handle("POST /api/billing/subscription/cancel", api(s.billingH.Cancel))

	mux.Handle("POST /api/leads", gated(FeatureLeads, s.leadH.Create))
	mux.Handle("GET /api/leads", api(s.leadH.List))
	mux.Handle("DELETE /api/leads/{id}", api(s.leadH.Delete))

	mux.Handle("POST /api/exports", gated(FeatureExports, s.exportH.Create))
	mux.Handle("GET /api/exports", api(s.exportH.List))
	mux.Handle("GET /api/exports/{id}", api(s.exportH.Get))
	mux.Handle("GET /api/exports/{id}/download", api(s.exportH.Download))
	mux.Handle("DELETE /api/exports/{id}", api(s.exportH.Delete))

	mux.Handle("POST /api/keys", gated(FeatureAPIKeys, s.apiKeyH.Create))
	mux.Handle("GET /api/keys", api(s.apiKeyH.List))
	mux.Handle("DELETE /api/keys/{id}", api(s.apiKeyH.Delete))

	mux.Handle("POST /api/push/subscriptions", api(s.pushH.Subscribe))
	mux.Handle("DELETE /api/push/subscriptions", api(s.pushH.Unsubscribe))

	// Admin routes
	admin := sharedmw.RequireAdminToken(s.cfg.AdminToken)
	mux.Handle("POST /admin/organizations", admin(http.HandlerFunc(s.adminH.CreateOrganization)))
	mux.Handle("POST /admin/billing/sync", admin(http.HandlerFunc(s.adminH.Sync)))
	mux.Handle("GET /admin/billing/plans", admin(http.HandlerFunc(s.adminH.Plans)))
	mux.Handle("GET /admin/billing/customers", admin(http.HandlerFunc(s.adminH.Customers)))
	mux.Handle("GET /admin/billing/customers/{id}", admin(http.HandlerFunc(s.adminH.Customer)))
	mux.Handle("GET /api/billing/events/stream", admin(websocket.HandleWebSocket(s.hub, s.logger.With("component", "events"))))

	return sharedmw.RequestLogger(s.logger)(mux)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check: database unreachable", "error", err)
		status, code = "degraded", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":          status,
		"ws_clients":      s.hub.ClientCount(),
		"exports_enabled": s.exports.Enabled(),
		"metered":         s.usage.Features(),
	})
}
