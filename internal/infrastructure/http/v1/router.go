// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/domain/auth"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/production"
	"lotledger/internal/domain/transfer"
	"lotledger/internal/infrastructure/http/v1/handlers"
	"lotledger/internal/infrastructure/http/v1/middleware"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/pkg/logger"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Auth       *auth.Service
	Batches    *batches.Service
	Costing    *costing.Service
	Consumer   *consumption.Engine
	Transfer   *transfer.Engine
	Ledger     *ledger.Service
	Production *production.Service
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Pool is the database connection pool (health checks); may be nil
	// when running on the in-memory store.
	Pool *postgres.Pool

	// Logger for request logging.
	Logger *logger.Logger

	// JWTValidator for token validation.
	JWTValidator middleware.JWTValidator

	// Services holds the wired domain layer.
	Services Services
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints (no auth)
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	v1 := router.Group("/api/v1")
	{
		// Auth: login is public, account management requires a token
		authHandler := handlers.NewAuthHandler(baseHandler, cfg.Services.Auth)
		publicAuth := v1.Group("/auth")
		protectedAuth := v1.Group("/auth")
		protectedAuth.Use(middleware.Auth(cfg.JWTValidator))
		protectedAuth.Use(middleware.RequireRole(string(auth.RoleAdmin)))
		authHandler.RegisterRoutes(publicAuth, protectedAuth)

		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTValidator))

		mutating := middleware.RequireRole(string(auth.RoleAdmin), string(auth.RoleOperator))

		// Batch store
		batchHandler := handlers.NewBatchHandler(baseHandler, cfg.Services.Batches, cfg.Services.Costing)
		batchGroup := protected.Group("/batches")
		batchGroup.POST("", mutating, batchHandler.Restock)
		batchGroup.GET("/:id", batchHandler.Get)
		batchGroup.POST("/:id/damage", mutating, batchHandler.Damage)
		batchGroup.PUT("/:id/cost", mutating, batchHandler.CorrectCost)

		// Stock operations
		stockHandler := handlers.NewStockHandler(baseHandler,
			cfg.Services.Consumer, cfg.Services.Transfer,
			cfg.Services.Batches, cfg.Services.Costing, cfg.Services.Ledger)
		stockGroup := protected.Group("/stock")
		stockGroup.POST("/consume", mutating, stockHandler.Consume)
		stockGroup.POST("/transfer", mutating, stockHandler.Transfer)
		stockGroup.GET("/availability/:ownerKind/:ownerId", stockHandler.Availability)
		stockGroup.GET("/latest-cost/:ownerKind/:ownerId", stockHandler.LatestCost)
		stockGroup.GET("/batches/:ownerKind/:ownerId", stockHandler.ListBatches)
		stockGroup.GET("/history", stockHandler.History)

		// Production orders
		productionHandler := handlers.NewProductionHandler(baseHandler, cfg.Services.Production)
		productionGroup := protected.Group("/productions")
		productionGroup.POST("", mutating, productionHandler.Create)
		productionGroup.GET("", productionHandler.List)
		productionGroup.GET("/:id", productionHandler.Get)
		productionGroup.GET("/:id/articles/:articleId/allocation", productionHandler.Allocation)
		productionGroup.GET("/:id/articles/:articleId/stock-validation", productionHandler.ValidateStock)
		productionGroup.POST("/:id/publish", mutating, productionHandler.Publish)
	}

	return router
}
