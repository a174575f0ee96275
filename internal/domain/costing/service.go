// Package costing provides cost correction and latest-cost queries.
package costing

import (
	"context"
	"sort"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/audit"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/ledger"
	"lotledger/pkg/logger"
)

const defaultMaxRetries = 5

// Service rewrites batch unit costs without breaking audit history and
// answers the "current cost" display query.
type Service struct {
	repo       batches.Repository
	ledger     *ledger.Service
	txManager  tx.Manager
	auditor    audit.Recorder
	maxRetries int
	now        func() time.Time
}

// NewService creates a costing service.
func NewService(repo batches.Repository, ledgerSvc *ledger.Service, txManager tx.Manager, auditor audit.Recorder) *Service {
	if auditor == nil {
		auditor = audit.NopRecorder{}
	}
	return &Service{
		repo:       repo,
		ledger:     ledgerSvc,
		txManager:  txManager,
		auditor:    auditor,
		maxRetries: defaultMaxRetries,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock (tests).
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// CorrectCost sets a batch's unit cost to newCost, leaving quantity
// untouched, and appends a zero-delta cost_correction ledger entry
// carrying the new cost for audit. The corrected batch becomes the
// freshest price for display (its updatedAt is bumped).
func (s *Service) CorrectCost(ctx context.Context, batchID id.ID, newCost types.Money) (*entity.StockChange, error) {
	if newCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost must not be negative").WithDetail("unitCost", newCost.String())
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		batch, err := s.repo.GetByID(ctx, batchID)
		if err != nil {
			return nil, err
		}
		previousCost := batch.UnitCost

		var change *entity.StockChange
		err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
			updated, err := s.repo.SetCost(ctx, batchID, newCost, batch.Version)
			if err != nil {
				return err
			}

			change = entity.NewStockChange(batch.Owner(), batch.Location(), 0, entity.ReasonCostCorrection, s.now())
			change.Consumptions = []entity.BatchConsumption{{
				BatchID:               batch.ID,
				UnitCostAtConsumption: newCost,
				ConsumedQuantity:      0,
				RemainingAfter:        updated.RemainingQuantity,
			}}
			cost := newCost
			change.LegacyUnitCost = &cost
			return s.ledger.Append(ctx, change)
		})
		if err == nil {
			s.recordAudit(ctx, batchID, previousCost, newCost)
			logger.Info(ctx, "batch cost corrected",
				"batch_id", batchID,
				"previous_cost", previousCost.String(),
				"new_cost", newCost.String(),
			)
			return change, nil
		}
		if !apperror.IsConcurrentModification(err) {
			return nil, err
		}
	}

	return nil, apperror.NewConcurrentModification("stock_batch", batchID)
}

func (s *Service) recordAudit(ctx context.Context, batchID id.ID, before, after types.Money) {
	changes, err := audit.Snapshot(
		map[string]string{"unitCost": before.String()},
		map[string]string{"unitCost": after.String()},
	)
	if err != nil {
		logger.Error(ctx, "audit snapshot failed", "batch_id", batchID, "error", err)
		return
	}
	// Audit failure must not fail the correction itself.
	if err := s.auditor.Record(ctx, audit.Entry{
		EntityType: "stock_batch",
		EntityID:   batchID,
		Action:     audit.ActionCostCorrection,
		Changes:    changes,
	}); err != nil {
		logger.Error(ctx, "audit record failed", "batch_id", batchID, "error", err)
	}
}

// LatestUnitCost returns the owner's current display cost: the cost of
// the batch with the greatest updatedAt, tie-broken by createdAt
// descending. A correction to an older batch therefore immediately
// becomes the price users see, even when a newer batch exists.
//
// Active batches are preferred; when none remain, the most recently
// updated batch of any status keeps answering, and nil means the owner
// has no batches at all.
func (s *Service) LatestUnitCost(ctx context.Context, owner entity.OwnerRef, location *entity.LocationRef) (*types.Money, error) {
	all, err := s.repo.ListByOwner(ctx, owner, location)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}

	active := make([]entity.StockBatch, 0, len(all))
	for _, b := range all {
		if b.IsConsumable() {
			active = append(active, b)
		}
	}

	pool := active
	if len(pool) == 0 {
		pool = all
	}

	sort.SliceStable(pool, func(i, j int) bool {
		if !pool[i].UpdatedAt.Equal(pool[j].UpdatedAt) {
			return pool[i].UpdatedAt.After(pool[j].UpdatedAt)
		}
		return pool[i].CreatedAt.After(pool[j].CreatedAt)
	})

	cost := pool[0].UnitCost
	return &cost, nil
}
