// Package main is the entry point for the lotledger API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotledger/internal/domain/auth"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/policy"
	"lotledger/internal/domain/production"
	"lotledger/internal/domain/transfer"
	v1 "lotledger/internal/infrastructure/http/v1"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/auth_repo"
	"lotledger/internal/infrastructure/storage/postgres/batch_repo"
	"lotledger/internal/infrastructure/storage/postgres/ledger_repo"
	"lotledger/internal/infrastructure/storage/postgres/production_repo"
	"lotledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Development: getEnv("APP_ENV", "development") == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	log.Info("starting lotledger server")

	// --- Database ---
	dsn := mustEnv("DATABASE_URL")
	poolCfg := postgres.DefaultPoolConfig(dsn)
	if maxConns := getEnvInt("DB_MAX_CONNS", 0); maxConns > 0 {
		poolCfg.MaxConns = int32(maxConns)
	}

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	txManager := postgres.NewTxManager(pool)

	// --- Repositories ---
	batchRepo := batch_repo.NewBatchRepo(txManager)
	ledgerRepo := ledger_repo.NewLedgerRepo(txManager)
	productionRepo := production_repo.NewProductionRepo(txManager)
	userRepo := auth_repo.NewUserRepo(txManager)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to initialize audit service", "error", err)
	}

	// --- Domain services ---
	ledgerService := ledger.NewService(ledgerRepo)
	batchService := batches.NewService(batchRepo, ledgerService, txManager).WithAuditor(auditService)

	consumeCfg := consumption.DefaultConfig()
	if order := consumption.Order(getEnv("CONSUMPTION_ORDER", "")); order.IsValid() {
		consumeCfg.Order = order
	}
	consumer := consumption.NewEngine(batchRepo, ledgerService, txManager, consumeCfg)

	costingService := costing.NewService(batchRepo, ledgerService, txManager, auditService)
	transferEngine := transfer.NewEngine(consumer, batchRepo, ledgerService, txManager)

	stockRule, err := policy.NewStockRule(getEnv("LOW_STOCK_RULE", policy.DefaultLowStockRule))
	if err != nil {
		log.Fatalw("invalid low stock rule", "error", err)
	}
	productionService := production.NewService(productionRepo, batchService, batchRepo, consumer, txManager, stockRule)

	// --- Auth ---
	jwtSecret := getEnv("JWT_SECRET", "your-secret-key-change-in-production")
	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(jwtSecret))
	authService := auth.NewService(userRepo, jwtService)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Pool:         pool,
		Logger:       log,
		JWTValidator: jwtService,
		Services: v1.Services{
			Auth:       authService,
			Batches:    batchService,
			Costing:    costingService,
			Consumer:   consumer,
			Transfer:   transferEngine,
			Ledger:     ledgerService,
			Production: productionService,
		},
	})

	// --- HTTP server ---
	port := getEnv("APP_PORT", "8080")
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		fmt.Printf("required environment variable %s not set\n", key)
		os.Exit(1)
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
