package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/billow/internal/billing/server"
	billingstripe "github.com/dukerupert/billow/internal/billing/stripe"
	"github.com/dukerupert/billow/internal/config"
	"github.com/dukerupert/billow/internal/database"
	"github.com/dukerupert/billow/internal/logging"
)

func serveCmd() *cobra.Command {
	var syncOnStart bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the billing HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), syncOnStart)
		},
	}
	cmd.Flags().BoolVar(&syncOnStart, "sync", true, "reconcile the plan catalog with Stripe before serving")
	return cmd
}

func runServe(ctx context.Context, syncOnStart bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequireStripe(); err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	vendor := billingstripe.NewClient(cfg.Stripe, logger.With("component", "stripe"))
	srv, err := server.New(ctx, db, cfg, vendor, logger)
	if err != nil {
		return err
	}

	if syncOnStart {
		report, err := srv.Facade().Sync(ctx)
		if err != nil {
			return fmt.Errorf("sync plans: %w", err)
		}
		logger.Info("plan catalog synced", "changed", report.Changed(),
			"plans_created", report.PlansCreated, "prices_created", report.PricesCreated)
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	srv.ExportWorker().Start(ctx)
	defer srv.ExportWorker().Stop()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("billow starting", "addr", cfg.Addr(), "version", version)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
