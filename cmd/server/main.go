// Package main is the entry point for the settlement service.
// It initializes all dependencies, sets up the HTTP server and the
// background sweeper, and shuts both down on SIGINT/SIGTERM.
package main

import (
	"context"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"settlr/internal/config"
	"settlr/internal/handlers"
	"settlr/internal/metrics"
	"settlr/internal/middleware"
	"settlr/internal/models"
	"settlr/internal/repositories"
	"settlr/internal/repositories/cache"
	"settlr/internal/repositories/memory"
	"settlr/internal/routes"
	"settlr/internal/services/deposit"
	"settlr/internal/services/ledger"
	"settlr/internal/services/notification"
	"settlr/internal/services/provider"
	"settlr/internal/services/status"
	"settlr/internal/services/sweeper"
	"settlr/internal/services/withdrawal"
	"settlr/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	zlog, err := newLogger()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.SandboxMode {
		zlog.Warn("sandbox mode: webhook signatures are not enforced")
	}

	repo, db := openStorage(cfg, zlog)
	defer func() {
		if err := repositories.Close(db); err != nil {
			zlog.Warn("failed to close database connection", zap.Error(err))
		}
	}()

	healthChecks := map[string]handlers.HealthCheck{}
	if db != nil {
		healthChecks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}

	var cacheSvc *cache.CacheService
	var tokens provider.TokenCache = provider.NewMemoryTokenCache(cfg.TokenRefreshSkew)
	if cfg.Redis.Enabled {
		cacheSvc = cache.NewCacheService(cache.NewRedisClient(cfg.Redis))
		if err := cacheSvc.HealthCheck(ctx); err != nil {
			zlog.Warn("redis unavailable, continuing with process-local caches", zap.Error(err))
			cacheSvc.Close() //nolint:errcheck
			cacheSvc = nil
		} else {
			tokens = provider.NewSharedTokenCache(cacheSvc, cfg.TokenRefreshSkew, zlog)
			healthChecks["redis"] = cacheSvc.HealthCheck
			defer func() {
				if err := cacheSvc.Close(); err != nil {
					zlog.Warn("failed to close redis connection", zap.Error(err))
				}
			}()
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewPrometheusCollector(reg)

	registry := buildProviders(cfg, tokens, zlog, collector)
	notifier := notification.NewService(zlog)
	ledgerSvc := ledger.NewService(repo, zlog, collector)

	proofs, err := deposit.NewFileProofStore(cfg.ProofDir)
	if err != nil {
		zlog.Fatal("failed to prepare proof storage", zap.String("dir", cfg.ProofDir), zap.Error(err))
	}

	depositSvc := deposit.NewService(repo, ledgerSvc, registry, proofs, notifier, deposit.Config{
		MinAmount:   cfg.Limits.MinDeposit,
		MaxAmount:   cfg.Limits.MaxDeposit,
		CallbackURL: strings.TrimRight(cfg.PublicBaseURL, "/") + "/api/deposits/callback",
	}, zlog, collector)

	withdrawalProvider, ok := models.ParseProvider(cfg.WithdrawalProvider)
	if !ok {
		zlog.Fatal("unknown withdrawal provider", zap.String("provider", cfg.WithdrawalProvider))
	}
	withdrawalSvc := withdrawal.NewService(repo, ledgerSvc, registry, notifier, withdrawal.Config{
		MinAmount:         cfg.Limits.MinWithdrawal,
		MaxAmount:         cfg.Limits.MaxWithdrawal,
		Fee:               cfg.Fees.WithdrawalFlat,
		Provider:          withdrawalProvider,
		SandboxAutoSettle: cfg.SandboxMode && cfg.SandboxAutoSettle,
	}, zlog, collector)

	var statusCache status.Cache
	if cacheSvc != nil {
		statusCache = cacheSvc
	}
	statusSvc := status.NewService(repo, statusCache, cfg.StatusCacheTTL, zlog)

	sweep := sweeper.New(withdrawalSvc, depositSvc, sweeper.Config{
		Interval:  cfg.SweepInterval,
		Threshold: cfg.SweepThreshold,
		BatchSize: cfg.SweepBatchSize,
	}, zlog)
	sweepDone := sweep.Start(ctx)

	app := fiber.New(fiber.Config{
		AppName:      "settlr",
		BodyLimit:    4 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		ErrorHandler: response.ErrorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins: config.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173"),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,HEAD,PUT,DELETE,PATCH",
	}))
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	routes.SetupRoutes(app, routes.Handlers{
		Auth:            middleware.NewAuthMiddleware(cfg.JWTSecret, repo, zlog),
		Deposits:        handlers.NewDepositHandler(depositSvc, zlog),
		Withdrawals:     handlers.NewWithdrawalHandler(withdrawalSvc, statusSvc, zlog),
		Settlements:     handlers.NewSettlementHandler(statusSvc),
		Webhooks:        handlers.NewWebhookHandler(registry, depositSvc, withdrawalSvc, zlog, collector),
		Admin:           handlers.NewAdminHandler(depositSvc, sweep, ledgerSvc, zlog),
		Users:           handlers.NewUserHandler(repo, zlog),
		Health:          handlers.NewHealthHandler(healthChecks),
		Metrics:         promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		InitiationLimit: cfg.InitiationRateLimit,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			zlog.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()
	zlog.Info("settlr started", zap.String("port", cfg.Port), zap.String("storage", cfg.StorageDriver))

	<-ctx.Done()
	zlog.Info("shutting down")

	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil {
		zlog.Warn("http shutdown incomplete", zap.Error(err))
	}
	select {
	case <-sweepDone:
	case <-time.After(30 * time.Second):
		zlog.Warn("sweeper did not stop in time")
	}
}

func newLogger() (*zap.Logger, error) {
	if config.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func openStorage(cfg *config.Config, zlog *zap.Logger) (repositories.SettlementRepository, *gorm.DB) {
	if cfg.StorageDriver == "memory" {
		zlog.Warn("using in-memory storage; balances are lost on restart")
		return memory.NewStore(), nil
	}
	db, err := repositories.InitDB(cfg.DB)
	if err != nil {
		zlog.Fatal("failed to initialize database", zap.Error(err))
	}
	zlog.Info("connected to database", zap.String("host", cfg.DB.Host), zap.String("name", cfg.DB.Name))
	return repositories.NewSettlementRepository(db), db
}

// buildProviders registers every adapter that has credentials configured.
func buildProviders(cfg *config.Config, tokens provider.TokenCache, zlog *zap.Logger, collector metrics.Collector) *provider.Registry {
	var adapters []provider.Provider

	if cfg.Manual.AccountNumber != "" {
		adapters = append(adapters, provider.NewManual(provider.ManualConfig{
			BankName:      cfg.Manual.BankName,
			AccountNumber: cfg.Manual.AccountNumber,
			AccountName:   cfg.Manual.AccountName,
			FlatFee:       cfg.Fees.ManualFlat,
		}))
	}
	if cfg.Paystack.SecretKey != "" {
		adapters = append(adapters, provider.NewPaystack(provider.PaystackConfig{
			BaseURL:       cfg.Paystack.BaseURL,
			SecretKey:     cfg.Paystack.SecretKey,
			WebhookSecret: cfg.Paystack.WebhookSecret,
			FeePercent:    cfg.Fees.GatewayPercent,
			Timeout:       cfg.ProviderTimeout,
			Sandbox:       cfg.SandboxMode,
		}, zlog, collector))
	}
	if cfg.Monnify.APIKey != "" {
		adapters = append(adapters, provider.NewMonnify(provider.MonnifyConfig{
			BaseURL:             cfg.Monnify.BaseURL,
			APIKey:              cfg.Monnify.APIKey,
			SecretKey:           cfg.Monnify.SecretKey,
			ContractCode:        cfg.Monnify.ContractCode,
			SourceAccountNumber: cfg.Monnify.SourceAccountNumber,
			RedirectURL:         cfg.Monnify.RedirectURL,
			FeePercent:          cfg.Fees.GatewayPercent,
			Timeout:             cfg.ProviderTimeout,
			Sandbox:             cfg.SandboxMode,
		}, tokens, zlog, collector))
	}

	names := make([]string, 0, len(adapters))
	for _, a := range adapters {
		names = append(names, string(a.Name()))
	}
	zlog.Info("payment providers registered", zap.Strings("providers", names))
	return provider.NewRegistry(adapters...)
}
