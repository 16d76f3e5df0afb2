package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/toeicprep/internal"
	"github.com/DukeRupert/toeicprep/internal/ai"
	"github.com/DukeRupert/toeicprep/internal/ai/anthropic"
	"github.com/DukeRupert/toeicprep/internal/ai/mock"
	"github.com/DukeRupert/toeicprep/internal/auth"
	"github.com/DukeRupert/toeicprep/internal/billing"
	"github.com/DukeRupert/toeicprep/internal/cache"
	"github.com/DukeRupert/toeicprep/internal/email"
	"github.com/DukeRupert/toeicprep/internal/handler"
	"github.com/DukeRupert/toeicprep/internal/jobs"
	"github.com/DukeRupert/toeicprep/internal/metrics"
	"github.com/DukeRupert/toeicprep/internal/middleware"
	"github.com/DukeRupert/toeicprep/internal/repository"
	"github.com/DukeRupert/toeicprep/internal/scheduler"
	"github.com/DukeRupert/toeicprep/internal/service"
	"github.com/DukeRupert/toeicprep/internal/storage"
	"github.com/DukeRupert/toeicprep/internal/worker"
)

func run() error {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sqlx.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(ctx, db.DB, logger); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	store := repository.NewStore(db)

	// ==========================================================================
	// Infrastructure
	// ==========================================================================

	var planCache service.PlanCache
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer rdb.Close()
		planCache = cache.NewPlanCache(rdb, cfg.PlanCacheTTL, logger)
		logger.Info("Plan cache enabled", "ttl", cfg.PlanCacheTTL)
	}

	fileStore, err := storage.New(storage.Config{
		Provider: cfg.StorageProvider,
		Local: storage.LocalConfig{
			BasePath:   cfg.LocalStoragePath,
			BaseURL:    cfg.LocalStorageURL,
			SigningKey: cfg.StorageSigningKey,
		},
		R2: storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	emailService, err := email.NewSMTPEmailService(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	}, cfg.BaseURL, logger)
	if err != nil {
		return fmt.Errorf("email initialization failed: %w", err)
	}

	var generator ai.Generator
	switch cfg.AIProvider {
	case "anthropic":
		generator, err = anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
		if err != nil {
			return fmt.Errorf("ai provider initialization failed: %w", err)
		}
	default:
		logger.Warn("Using mock AI provider")
		generator = mock.New(logger)
	}

	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	} else {
		logger.Warn("Stripe is not configured, billing routes will return 503")
	}

	// ==========================================================================
	// Services
	// ==========================================================================

	trialCfg := service.DefaultTrialConfig()
	trialCfg.Duration = cfg.TrialDuration
	trialCfg.DailyAIChatLimit = cfg.TrialDailyAIChatLimit
	trialCfg.IPWindow = cfg.TrialIPWindow
	trialCfg.IPMaxStarts = cfg.TrialIPMaxStarts
	trialCfg.Location = cfg.QuotaTimezone

	userService := service.NewUserService(store, auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL), logger)
	trialService := service.NewTrialService(store, trialCfg, logger)
	subscriptionService := service.NewSubscriptionService(store, trialService, planCache, logger)
	quotaService := service.NewQuotaService(store, subscriptionService, trialService, cfg.QuotaTimezone, logger)
	vocabularyService := service.NewVocabularyService(store, subscriptionService, cfg.QuotaTimezone, cfg.UpgradeURL, logger)
	practiceService := service.NewPracticeService(generator, logger)
	adminService := service.NewAdminService(store, subscriptionService, trialService, cfg.AdminEmails, cfg.QuotaTimezone, logger)

	// ==========================================================================
	// Background work
	// ==========================================================================

	wrk, err := worker.New(store, worker.Config{
		Concurrency:       cfg.WorkerConcurrency,
		PollInterval:      cfg.WorkerPollInterval,
		JobTimeout:        cfg.WorkerJobTimeout,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 10 * time.Minute,
	}, logger)
	if err != nil {
		return fmt.Errorf("worker initialization failed: %w", err)
	}
	wrk.Register(jobs.NewExportVocabularyHandler(userService, vocabularyService, fileStore, emailService, cfg.ExportLinkTTL, logger))
	wrk.Register(jobs.NewSendTrialEmailHandler(userService, emailService, logger))

	if cfg.WorkerEnabled {
		wrk.Start(ctx)
		defer wrk.Stop()
	}

	if cfg.SchedulerEnabled {
		maintenance := scheduler.New(store, wrk, scheduler.Config{QuotaRetention: cfg.QuotaRetention}, logger)
		if err := maintenance.Start(ctx); err != nil {
			return fmt.Errorf("scheduler start failed: %w", err)
		}
		defer maintenance.Stop()
	}

	// ==========================================================================
	// Middleware
	// ==========================================================================

	isSecure := cfg.Env != "development"
	proxies, err := handler.NewProxyResolver(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	authMw := middleware.NewAuthMiddleware(userService, adminService, logger)
	featureGate := middleware.NewFeatureGate(subscriptionService, quotaService, cfg.UpgradeURL, logger)
	authLimiter := middleware.NewAuthRateLimiter(ctx, logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	if cfg.MetricsUsername == "" && cfg.MetricsPassword == "" {
		logger.Warn("Metrics endpoint is unprotected")
	}

	requireUser := middleware.Stack(authMw.WithUser, authMw.RequireUser)
	requireAdmin := middleware.Stack(authMw.WithUser, authMw.RequireUser, authMw.RequireAdmin)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	if local, ok := fileStore.(*storage.LocalStorage); ok {
		mux.Handle("GET /files/", http.StripPrefix("/files/", local.Handler()))
	}

	handler.NewAuthHandler(userService, authLimiter, logger).RegisterRoutes(mux, requireUser)
	handler.NewTrialHandler(trialService, store, logger).RegisterRoutes(mux, requireUser, authLimiter.LimitTrial)
	handler.NewSubscriptionHandler(subscriptionService, quotaService, logger).RegisterRoutes(mux, requireUser)
	handler.NewVocabularyHandler(vocabularyService, store, logger).RegisterRoutes(mux, requireUser, featureGate.Require)
	handler.NewPracticeHandler(practiceService, logger).RegisterRoutes(mux, requireUser, featureGate.Require)
	handler.NewBillingHandler(billingService, userService, subscriptionService, cfg.BaseURL, logger).RegisterRoutes(mux, requireUser)
	handler.NewWebhookHandler(billingService, userService, subscriptionService, logger).RegisterRoutes(mux)
	handler.NewAdminHandler(adminService, logger).RegisterRoutes(mux, requireAdmin)

	root := middleware.Stack(
		proxies.Middleware,
		metrics.Middleware,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}
	stop()

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
