package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Identity tokens
	JWTSecret string
	JWTTTL    time.Duration

	// SMTP Configuration
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
	SMTPFromName string

	// Application base URL (for email links and checkout redirects)
	BaseURL string
	// UpgradeURL is surfaced to clients in 403 entitlement responses.
	UpgradeURL string

	// Trial policy
	TrialDuration         time.Duration
	TrialDailyAIChatLimit int
	TrialIPWindow         time.Duration
	TrialIPMaxStarts      int

	// Quota accounting
	QuotaTimezone  *time.Location // Day boundaries for daily_* quotas
	QuotaRetention time.Duration  // How long expired daily rows are kept

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string
	LocalStorageURL  string

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string

	// StorageSigningKey signs local download links. Defaults to JWTSecret.
	StorageSigningKey string
	// ExportLinkTTL is how long a vocabulary export link stays valid.
	ExportLinkTTL time.Duration

	// Worker Configuration
	WorkerEnabled      bool
	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerJobTimeout   time.Duration

	// Maintenance scheduler
	SchedulerEnabled bool

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Optional Redis for the plan cache. Empty disables caching.
	RedisURL     string
	PlanCacheTTL time.Duration

	// Admin access control
	AdminEmails []string

	// TrustedProxies lists the reverse proxies (CIDR or address) whose
	// X-Forwarded-For headers are believed. Empty trusts none.
	TrustedProxies []string

	// Stripe Billing Configuration
	// In development, billing handlers return 503 if these are empty.
	// Price ids live on the subscription_plans rows.
	StripeSecretKey     string
	StripeWebhookSecret string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTTTL:    getEnvDuration("JWT_TTL", 7*24*time.Hour),

		// SMTP defaults for Mailhog (development)
		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnvInt("SMTP_PORT", 1025),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@toeicprep.app"),
		SMTPFromName: getEnv("SMTP_FROM_NAME", "TOEIC Prep"),

		BaseURL:    getEnv("BASE_URL", "http://localhost:8080"),
		UpgradeURL: getEnv("UPGRADE_URL", "/pricing"),

		TrialDuration:         getEnvDuration("TRIAL_DURATION", 72*time.Hour),
		TrialDailyAIChatLimit: getEnvInt("TRIAL_DAILY_AI_CHAT_LIMIT", 20),
		TrialIPWindow:         getEnvDuration("TRIAL_IP_WINDOW", 7*24*time.Hour),
		TrialIPMaxStarts:      getEnvInt("TRIAL_IP_MAX_STARTS", 3),

		QuotaRetention: getEnvDuration("QUOTA_RETENTION", 30*24*time.Hour),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),

		StorageSigningKey: getEnv("STORAGE_SIGNING_KEY", ""),
		ExportLinkTTL:     getEnvDuration("EXPORT_LINK_TTL", 24*time.Hour),

		WorkerEnabled:      getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 5*time.Minute),

		SchedulerEnabled: getEnvBool("SCHEDULER_ENABLED", true),

		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		RedisURL:     getEnv("REDIS_URL", ""),
		PlanCacheTTL: getEnvDuration("PLAN_CACHE_TTL", 10*time.Minute),

		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Parse admin emails from comma-separated environment variable
	adminEmailsStr := getEnv("ADMIN_EMAILS", "")
	if adminEmailsStr != "" {
		emails := strings.Split(adminEmailsStr, ",")
		for _, email := range emails {
			trimmed := strings.TrimSpace(strings.ToLower(email))
			if trimmed != "" {
				cfg.AdminEmails = append(cfg.AdminEmails, trimmed)
			}
		}
	}

	for _, proxy := range strings.Split(getEnv("TRUSTED_PROXIES", ""), ",") {
		if trimmed := strings.TrimSpace(proxy); trimmed != "" {
			cfg.TrustedProxies = append(cfg.TrustedProxies, trimmed)
		}
	}

	loc, err := time.LoadLocation(getEnv("QUOTA_TIMEZONE", "Local"))
	if err != nil {
		return nil, fmt.Errorf("QUOTA_TIMEZONE: %w", err)
	}
	cfg.QuotaTimezone = loc

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "development-only-secret"
	}
	if cfg.StorageSigningKey == "" {
		cfg.StorageSigningKey = cfg.JWTSecret
	}

	if cfg.TrialDailyAIChatLimit <= 0 {
		return nil, fmt.Errorf("TRIAL_DAILY_AI_CHAT_LIMIT must be positive, got: %d", cfg.TrialDailyAIChatLimit)
	}
	if cfg.TrialIPMaxStarts <= 0 {
		return nil, fmt.Errorf("TRIAL_IP_MAX_STARTS must be positive, got: %d", cfg.TrialIPMaxStarts)
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "anthropic" {
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	} else if cfg.AIProvider != "mock" {
		return nil, fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", cfg.AIProvider)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
