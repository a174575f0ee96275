package batches

import (
	"context"
	"fmt"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/audit"
	"lotledger/internal/domain/ledger"
	"lotledger/pkg/logger"
)

// defaultMaxRetries bounds optimistic-lock retries for single-batch mutations.
const defaultMaxRetries = 5

// Service provides batch store operations: restock, damage write-off and
// read queries. Consumption and cost correction live in their own engines.
type Service struct {
	repo       Repository
	ledger     *ledger.Service
	txManager  tx.Manager
	auditor    audit.Recorder
	maxRetries int
	now        func() time.Time
}

// NewService creates a new batch store service.
func NewService(repo Repository, ledgerSvc *ledger.Service, txManager tx.Manager) *Service {
	return &Service{
		repo:       repo,
		ledger:     ledgerSvc,
		txManager:  txManager,
		auditor:    audit.NopRecorder{},
		maxRetries: defaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithAuditor sets the audit recorder for damage write-offs.
func (s *Service) WithAuditor(auditor audit.Recorder) *Service {
	if auditor != nil {
		s.auditor = auditor
	}
	return s
}

// WithNow overrides the clock (tests).
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// RestockInput describes a stock addition. A restock always creates a
// new batch; existing batches never grow.
type RestockInput struct {
	Owner         entity.OwnerRef
	Location      entity.LocationRef
	Quantity      types.Quantity
	UnitCost      types.Money
	Reason        entity.ChangeReason // creation, restock or manual_adjustment; defaults to restock
	SupplierRef   *string
	IsOwnPurchase bool
	IsCredit      bool
}

func (in *RestockInput) validate() error {
	if !in.Owner.Kind.IsValid() {
		return apperror.NewValidation("unknown owner kind").WithDetail("ownerKind", string(in.Owner.Kind))
	}
	if id.IsNil(in.Owner.ID) {
		return apperror.NewValidation("owner id is required")
	}
	if !in.Location.Kind.IsValid() {
		return apperror.NewValidation("unknown location kind").WithDetail("locationKind", string(in.Location.Kind))
	}
	if id.IsNil(in.Location.ID) {
		return apperror.NewValidation("location id is required")
	}
	if !in.Quantity.IsPositive() {
		return apperror.NewValidation("quantity must be positive").WithDetail("quantity", in.Quantity.String())
	}
	if in.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost must not be negative").WithDetail("unitCost", in.UnitCost.String())
	}
	switch in.Reason {
	case "", entity.ReasonRestock, entity.ReasonCreation, entity.ReasonManualAdjustment:
	default:
		return apperror.NewValidation("reason not allowed for restock").WithDetail("reason", string(in.Reason))
	}
	return nil
}

// Restock creates a new batch and appends the matching positive ledger entry.
func (s *Service) Restock(ctx context.Context, in RestockInput) (id.ID, error) {
	if err := in.validate(); err != nil {
		return id.Nil(), err
	}

	reason := in.Reason
	if reason == "" {
		reason = entity.ReasonRestock
	}

	now := s.now()
	batch := entity.NewStockBatch(in.Owner, in.Location, in.Quantity, in.UnitCost, now)
	batch.SupplierRef = in.SupplierRef
	batch.IsOwnPurchase = in.IsOwnPurchase
	batch.IsCredit = in.IsCredit

	change := entity.NewStockChange(in.Owner, in.Location, in.Quantity, reason, now)
	cost := in.UnitCost
	change.LegacyUnitCost = &cost
	change.SupplierRef = in.SupplierRef
	change.IsOwnPurchase = &in.IsOwnPurchase
	change.IsCredit = &in.IsCredit

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, batch); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		return s.ledger.Append(ctx, change)
	})
	if err != nil {
		return id.Nil(), err
	}

	logger.Info(ctx, "batch restocked",
		"batch_id", batch.ID,
		"owner_id", in.Owner.ID,
		"location", in.Location.String(),
		"quantity", in.Quantity.String(),
		"unit_cost", in.UnitCost.String(),
	)

	return batch.ID, nil
}

// MarkDamaged writes off qty from a batch as damaged and records the
// damage in the ledger. Retries on optimistic-lock conflicts.
func (s *Service) MarkDamaged(ctx context.Context, batchID id.ID, qty types.Quantity) (*entity.StockChange, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("damage quantity must be positive")
	}

	var change *entity.StockChange
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		batch, err := s.repo.GetByID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		if batch.Status == entity.BatchStatusDamaged {
			return nil, apperror.NewConflict("batch is already frozen by damage").WithDetail("batch_id", batchID)
		}
		if qty > batch.RemainingQuantity {
			return nil, apperror.NewInsufficientBatchQuantity(batchID.String(), qty.Float64(), batch.RemainingQuantity.Float64())
		}

		err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			updated, err := s.repo.MarkDamaged(ctx, batchID, qty, batch.Version)
			if err != nil {
				return err
			}

			change = entity.NewStockChange(batch.Owner(), batch.Location(), qty.Neg(), entity.ReasonDamage, s.now())
			change.Consumptions = []entity.BatchConsumption{{
				BatchID:               batch.ID,
				UnitCostAtConsumption: batch.UnitCost,
				ConsumedQuantity:      qty,
				RemainingAfter:        updated.RemainingQuantity,
			}}
			legacy := batch.UnitCost
			change.LegacyUnitCost = &legacy
			return s.ledger.Append(ctx, change)
		})
		if err == nil {
			s.recordDamageAudit(ctx, batch, qty)
			logger.Info(ctx, "batch damage recorded", "batch_id", batchID, "quantity", qty.String())
			return change, nil
		}
		if !apperror.IsConcurrentModification(err) {
			return nil, err
		}
	}

	return nil, apperror.NewConcurrentModification("stock_batch", batchID)
}

func (s *Service) recordDamageAudit(ctx context.Context, batch *entity.StockBatch, qty types.Quantity) {
	changes, err := audit.Snapshot(
		map[string]string{"remainingQuantity": batch.RemainingQuantity.String()},
		map[string]string{"remainingQuantity": (batch.RemainingQuantity - qty).String()},
	)
	if err != nil {
		logger.Error(ctx, "audit snapshot failed", "batch_id", batch.ID, "error", err)
		return
	}
	// Audit failure must not fail the write-off itself.
	if err := s.auditor.Record(ctx, audit.Entry{
		EntityType: "stock_batch",
		EntityID:   batch.ID,
		Action:     audit.ActionDamage,
		Changes:    changes,
	}); err != nil {
		logger.Error(ctx, "audit record failed", "batch_id", batch.ID, "error", err)
	}
}

// GetByID retrieves a single batch.
func (s *Service) GetByID(ctx context.Context, batchID id.ID) (*entity.StockBatch, error) {
	return s.repo.GetByID(ctx, batchID)
}

// ListByOwner returns an owner's batches, optionally per location.
func (s *Service) ListByOwner(ctx context.Context, owner entity.OwnerRef, location *entity.LocationRef) ([]entity.StockBatch, error) {
	return s.repo.ListByOwner(ctx, owner, location)
}

// AvailableQuantity returns the consumable stock for an owner at a location.
func (s *Service) AvailableQuantity(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) (types.Quantity, error) {
	return s.repo.AvailableQuantity(ctx, owner, location)
}
