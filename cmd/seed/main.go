// Package main provides a CLI tool for seeding the database with initial data.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/auth"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/policy"
	"lotledger/internal/domain/production"
	"lotledger/internal/infrastructure/storage/postgres"
	"lotledger/internal/infrastructure/storage/postgres/auth_repo"
	"lotledger/internal/infrastructure/storage/postgres/batch_repo"
	"lotledger/internal/infrastructure/storage/postgres/ledger_repo"
	"lotledger/internal/infrastructure/storage/postgres/production_repo"
	"lotledger/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolCfg := postgres.DefaultPoolConfig(dbURL)
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)

	batchRepo := batch_repo.NewBatchRepo(txManager)
	ledgerRepo := ledger_repo.NewLedgerRepo(txManager)
	productionRepo := production_repo.NewProductionRepo(txManager)
	userRepo := auth_repo.NewUserRepo(txManager)

	ledgerService := ledger.NewService(ledgerRepo)
	batchService := batches.NewService(batchRepo, ledgerService, txManager)
	consumer := consumption.NewEngine(batchRepo, ledgerService, txManager, consumption.DefaultConfig())
	productionService := production.NewService(productionRepo, batchService, batchRepo, consumer, txManager, policy.DefaultStockRule())

	jwtService := auth.NewJWTService(auth.DefaultJWTConfig(getEnv("JWT_SECRET", "your-secret-key-change-in-production")))
	authService := auth.NewService(userRepo, jwtService)

	if _, err := seedAdminUser(ctx, authService, userRepo, log); err != nil {
		log.Fatalw("failed to seed admin user", "error", err)
	}

	if os.Getenv("SEED_DEMO_DATA") == "true" {
		if err := seedDemoData(ctx, batchService, productionService, log); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

func seedAdminUser(ctx context.Context, authService *auth.Service, userRepo auth.Repository, log *logger.Logger) (*auth.User, error) {
	adminEmail := getEnv("ADMIN_EMAIL", "admin@lotledger.io")
	adminPassword := getEnv("ADMIN_PASSWORD", "Admin123!")

	user, err := authService.Register(ctx, adminEmail, adminPassword, []auth.Role{auth.RoleAdmin})
	if err != nil {
		if apperror.IsCode(err, apperror.CodeConflict) {
			existing, getErr := userRepo.GetByEmail(ctx, adminEmail)
			if getErr != nil {
				return nil, fmt.Errorf("fetch existing admin: %w", getErr)
			}
			log.Infow("admin user already exists", "email", adminEmail, "user_id", existing.ID)
			return existing, nil
		}
		return nil, fmt.Errorf("register admin: %w", err)
	}

	log.Infow("admin user created",
		"email", adminEmail,
		"user_id", user.ID,
	)

	return user, nil
}

// seedDemoData creates a warehouse with a few material batches and a draft
// production order referencing them, enough to exercise allocation, stock
// validation and publication end to end.
func seedDemoData(ctx context.Context, batchService *batches.Service, productionService *production.Service, log *logger.Logger) error {
	log.Info("seeding demo data...")

	warehouse := entity.NewLocationRef(entity.LocationKindWarehouse, id.New())

	type materialSeed struct {
		name     string
		quantity float64
		unitCost string
	}

	materials := []materialSeed{
		{"oak board", 120, "14.50"},
		{"steel bracket", 400, "2.35"},
		{"varnish", 30, "21.00"},
	}

	materialIDs := make(map[string]id.ID, len(materials))

	for _, m := range materials {
		materialID := id.New()
		materialIDs[m.name] = materialID

		batchID, err := batchService.Restock(ctx, batches.RestockInput{
			Owner:         entity.NewOwnerRef(entity.OwnerKindMaterial, materialID),
			Location:      warehouse,
			Quantity:      types.NewQuantityFromFloat64(m.quantity),
			UnitCost:      types.MustMoney(m.unitCost),
			Reason:        entity.ReasonRestock,
			IsOwnPurchase: true,
		})
		if err != nil {
			return fmt.Errorf("restock %s: %w", m.name, err)
		}

		log.Infow("material batch created",
			"material", m.name,
			"material_id", materialID,
			"batch_id", batchID,
		)
	}

	order := production.NewProduction("demo workbench run", warehouse, time.Now().UTC())
	order.Materials = []production.Material{
		{MaterialID: materialIDs["oak board"], Quantity: types.NewQuantityFromFloat64(40), UnitCost: types.MustMoney("14.50"), UnitDecimals: 0},
		{MaterialID: materialIDs["steel bracket"], Quantity: types.NewQuantityFromFloat64(80), UnitCost: types.MustMoney("2.35"), UnitDecimals: 0},
		{MaterialID: materialIDs["varnish"], Quantity: types.NewQuantityFromFloat64(5), UnitCost: types.MustMoney("21.00"), UnitDecimals: 2},
	}
	order.Articles = []production.Article{
		{ID: id.New(), Name: "workbench standard", Quantity: types.NewQuantityFromFloat64(8), Status: production.ArticleStatusDraft},
		{ID: id.New(), Name: "workbench compact", Quantity: types.NewQuantityFromFloat64(2), Status: production.ArticleStatusDraft},
	}
	order.Charges = []production.Charge{
		{ID: id.New(), Name: "assembly labor", Amount: types.MustMoney("160.00")},
		{ID: id.New(), Name: "delivery", Amount: types.MustMoney("45.00")},
	}

	if err := productionService.Create(ctx, order); err != nil {
		return fmt.Errorf("create demo production: %w", err)
	}

	log.Infow("demo production created",
		"production_id", order.ID,
		"location_id", warehouse.ID,
	)

	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
