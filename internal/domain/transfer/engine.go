// Package transfer moves stock between locations. A transfer consumes
// source batches and creates one destination batch carrying the
// weighted-average cost of what was consumed: transfers preserve the
// cost basis, they never invent a new cost.
package transfer

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/ledger"
	"lotledger/pkg/logger"
)

// Engine executes location transfers.
type Engine struct {
	consumer  *consumption.Engine
	batches   batches.Repository
	ledger    *ledger.Service
	txManager tx.Manager
	now       func() time.Time
}

// NewEngine creates a transfer engine.
func NewEngine(consumer *consumption.Engine, batchRepo batches.Repository, ledgerSvc *ledger.Service, txManager tx.Manager) *Engine {
	return &Engine{
		consumer:  consumer,
		batches:   batchRepo,
		ledger:    ledgerSvc,
		txManager: txManager,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock (tests).
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Transfer moves qty of the owner's stock from one location to another.
// Both legs commit together or not at all.
func (e *Engine) Transfer(ctx context.Context, owner entity.OwnerRef, qty types.Quantity, from, to entity.LocationRef) (*entity.StockChange, error) {
	if from.Equal(to) {
		return nil, apperror.NewInvalidTransfer("source and destination are the same location").
			WithDetail("location", from.String())
	}
	if !from.Kind.IsValid() || !to.Kind.IsValid() {
		return nil, apperror.NewValidation("unknown location kind")
	}
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("transfer quantity must be positive").WithDetail("quantity", qty.String())
	}

	var outbound *entity.StockChange
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := e.now()
		// The inbound entry is built first so the outbound leg can
		// reference its id; both legs cross-reference each other.
		inbound := entity.NewStockChange(owner, to, qty, entity.ReasonAdjustment, now)

		change, err := e.consumer.ConsumeForTransfer(ctx, owner, from, qty, inbound.ID)
		if err != nil {
			return err
		}
		outbound = change

		unitCost := types.ZeroMoney()
		if change.LegacyUnitCost != nil {
			unitCost = *change.LegacyUnitCost
		}

		destBatch := entity.NewStockBatch(owner, to, qty, unitCost, now)
		if err := e.batches.Create(ctx, destBatch); err != nil {
			return err
		}

		cost := unitCost
		inbound.LegacyUnitCost = &cost
		inbound.TransferRef = &change.ID
		return e.ledger.Append(ctx, inbound)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock transferred",
		"owner_id", owner.ID,
		"from", from.String(),
		"to", to.String(),
		"quantity", qty.String(),
	)
	return outbound, nil
}
