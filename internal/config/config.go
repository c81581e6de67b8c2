// Package config loads service configuration from the environment and the
// declared plan catalog from YAML.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dukerupert/billow/internal/billing/payment"
	billingstripe "github.com/dukerupert/billow/internal/billing/stripe"
	"github.com/dukerupert/billow/internal/export"
	"github.com/dukerupert/billow/internal/push"
)

type Config struct {
	Port          int
	DBPath        string
	BaseURL       string
	LogLevel      string
	LogFormat     string
	AdminToken    string
	PlansFile     string
	PostmarkToken string
	FromEmail     string

	Stripe  billingstripe.Config
	Billing payment.Config
	Exports export.S3Config
	Push    push.Config
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load reads configuration from environment variables. A .env file is
// loaded if present but not required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := envOrDefaultInt("BILLOW_PORT", 8090)
	if err != nil {
		return nil, err
	}
	subsEnabled, err := envOrDefaultBool("BILLOW_SUBSCRIPTIONS_ENABLED", true)
	if err != nil {
		return nil, err
	}
	trialEnabled, err := envOrDefaultBool("BILLOW_TRIAL_ENABLED", false)
	if err != nil {
		return nil, err
	}
	trialDays, err := envOrDefaultInt("BILLOW_TRIAL_DAYS", 14)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          port,
		DBPath:        envOrDefault("BILLOW_DB_PATH", "billow.db"),
		BaseURL:       envOrDefault("BILLOW_BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		LogLevel:      envOrDefault("BILLOW_LOG_LEVEL", "info"),
		LogFormat:     envOrDefault("BILLOW_LOG_FORMAT", "text"),
		AdminToken:    strings.TrimSpace(os.Getenv("BILLOW_ADMIN_TOKEN")),
		PlansFile:     strings.TrimSpace(os.Getenv("BILLOW_PLANS_FILE")),
		PostmarkToken: strings.TrimSpace(os.Getenv("BILLOW_POSTMARK_TOKEN")),
		FromEmail:     envOrDefault("BILLOW_FROM_EMAIL", "billing@billow.local"),
		Stripe: billingstripe.Config{
			SecretKey:     strings.TrimSpace(os.Getenv("STRIPE_SECRET_KEY")),
			WebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		},
		Exports: export.S3Config{
			Endpoint:  strings.TrimSpace(os.Getenv("BILLOW_S3_ENDPOINT")),
			Bucket:    strings.TrimSpace(os.Getenv("BILLOW_S3_BUCKET")),
			Region:    envOrDefault("BILLOW_S3_REGION", "us-east-1"),
			AccessKey: strings.TrimSpace(os.Getenv("BILLOW_S3_ACCESS_KEY")),
			SecretKey: strings.TrimSpace(os.Getenv("BILLOW_S3_SECRET_KEY")),
		},
		Push: push.Config{
			VAPIDPublicKey:  strings.TrimSpace(os.Getenv("BILLOW_VAPID_PUBLIC_KEY")),
			VAPIDPrivateKey: strings.TrimSpace(os.Getenv("BILLOW_VAPID_PRIVATE_KEY")),
			Subscriber:      "mailto:" + envOrDefault("BILLOW_FROM_EMAIL", "billing@billow.local"),
		},
		Billing: payment.Config{
			Subscriptions: payment.SubscriptionConfig{
				Enabled:     subsEnabled,
				DefaultPlan: envOrDefault("BILLOW_DEFAULT_PLAN", "free"),
				Trial: payment.TrialConfig{
					Enabled: trialEnabled,
					Days:    int64(trialDays),
				},
			},
		},
	}

	if cfg.PlansFile != "" {
		plans, err := LoadPlans(cfg.PlansFile)
		if err != nil {
			return nil, err
		}
		cfg.Billing.Plans = plans
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("BILLOW_PORT must be between 1 and 65535, got %d", c.Port)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("BILLOW_BASE_URL must be a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("BILLOW_BASE_URL must use http or https scheme")
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		return fmt.Errorf("BILLOW_VAPID_PUBLIC_KEY and BILLOW_VAPID_PRIVATE_KEY must be set together")
	}
	if c.Billing.Subscriptions.Trial.Enabled && c.Billing.Subscriptions.Trial.Days <= 0 {
		return fmt.Errorf("BILLOW_TRIAL_DAYS must be greater than 0 when trials are enabled")
	}
	return c.Billing.Validate()
}

// RequireStripe reports the Stripe settings that commands talking to the
// vendor cannot run without.
func (c *Config) RequireStripe() error {
	var missing []string
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.Stripe.WebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

type catalogFile struct {
	Plans []payment.PlanDefinition `yaml:"plans"`
}

// LoadPlans reads the plan catalog at path. Plans, prices and features
// without a slug get one derived from their name.
func LoadPlans(path string) ([]payment.PlanDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	return ParsePlans(data)
}

func ParsePlans(data []byte) ([]payment.PlanDefinition, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	for i := range f.Plans {
		p := &f.Plans[i]
		if p.Slug == "" {
			p.Slug = slug.Make(p.Name)
		}
		for j := range p.Features {
			if p.Features[j].Slug == "" {
				p.Features[j].Slug = slug.Make(p.Features[j].Name)
			}
		}
		for j := range p.Prices {
			pr := &p.Prices[j]
			if pr.Slug == "" {
				pr.Slug = slug.Make(p.Slug + " " + string(pr.Interval))
			}
			if pr.Currency == "" {
				pr.Currency = "usd"
			}
		}
	}
	return f.Plans, nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envOrDefaultBool(key string, fallback bool) (bool, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("%s must be a boolean: %w", key, err)
		}
		return b, nil
	}
	return fallback, nil
}
