package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/billow/internal/billing/server"
	billingstripe "github.com/dukerupert/billow/internal/billing/stripe"
	"github.com/dukerupert/billow/internal/config"
	"github.com/dukerupert/billow/internal/database"
	"github.com/dukerupert/billow/internal/logging"
	"github.com/dukerupert/billow/internal/push"
)

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the declared plan catalog with Stripe and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
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
			srv, err := server.New(cmd.Context(), db, cfg, vendor, logger)
			if err != nil {
				return err
			}
			report, err := srv.Facade().Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync plans: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plans:  %d created, %d updated, %d unchanged\n",
				report.PlansCreated, report.PlansUpdated, report.PlansUnchanged)
			fmt.Fprintf(out, "prices: %d created, %d unchanged\n",
				report.PricesCreated, report.PricesUnchanged)
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			v, err := database.Version(db)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s at schema version %d\n", cfg.DBPath, v)
			return nil
		},
	}
}

func vapidCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vapid",
		Short: "Generate a VAPID key pair for push notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := push.GenerateVAPIDKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "BILLOW_VAPID_PUBLIC_KEY=%s\n", pub)
			fmt.Fprintf(out, "BILLOW_VAPID_PRIVATE_KEY=%s\n", priv)
			return nil
		},
	}
}
