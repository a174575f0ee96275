// Package consumption provides the batch consumption engine: it
// decrements available stock for an owner at a location by depleting
// batches in policy order, producing a ledger entry with per-batch
// attribution.
package consumption

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/ledger"
	"lotledger/pkg/logger"
)

// Engine consumes stock batches.
//
// Each attempt runs in its own atomic scope: a transaction at the top
// level, a savepoint when a caller (transfer, publish) already holds a
// transaction. Batch decrements commit in selection order,
// conditionally on each batch's version, and the ledger entry is
// written only after all decrements succeed. A lost race rolls back
// exactly that attempt's decrements and the selection is re-derived
// from current state; after MaxRetries the caller sees
// CONCURRENT_MODIFICATION.
type Engine struct {
	batches   batches.Repository
	ledger    *ledger.Service
	txManager tx.Manager
	cfg       Config
	now       func() time.Time
}

// NewEngine creates a consumption engine.
func NewEngine(batchRepo batches.Repository, ledgerSvc *ledger.Service, txManager tx.Manager, cfg Config) *Engine {
	if !cfg.Order.IsValid() {
		cfg.Order = OrderFIFO
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.MinorUnitDecimals <= 0 {
		cfg.MinorUnitDecimals = DefaultConfig().MinorUnitDecimals
	}
	return &Engine{
		batches:   batchRepo,
		ledger:    ledgerSvc,
		txManager: txManager,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock (tests).
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Consume removes qty of the owner's stock at the given location.
// All-or-nothing: if the active batches hold less than qty, nothing is
// committed and INSUFFICIENT_STOCK is returned.
func (e *Engine) Consume(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef, qty types.Quantity, reason entity.ChangeReason) (*entity.StockChange, error) {
	return e.consume(ctx, owner, location, qty, reason, nil)
}

// ConsumeForTransfer consumes the outbound leg of a location transfer.
// The resulting ledger entry carries inboundID as its transfer
// reference so the two legs cross-reference each other.
func (e *Engine) ConsumeForTransfer(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef, qty types.Quantity, inboundID id.ID) (*entity.StockChange, error) {
	return e.consume(ctx, owner, location, qty, entity.ReasonAdjustment, &inboundID)
}

func (e *Engine) consume(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef, qty types.Quantity, reason entity.ChangeReason, transferRef *id.ID) (*entity.StockChange, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("consumption quantity must be positive").WithDetail("quantity", qty.String())
	}
	switch reason {
	case entity.ReasonSale, entity.ReasonAdjustment, entity.ReasonManualAdjustment:
	default:
		return nil, apperror.NewValidation("reason not allowed for consumption").WithDetail("reason", string(reason))
	}

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		change, err := e.tryConsume(ctx, owner, location, qty, reason, transferRef)
		if err == nil {
			logger.Info(ctx, "stock consumed",
				"owner_id", owner.ID,
				"location", location.String(),
				"quantity", qty.String(),
				"reason", reason,
				"batches_touched", len(change.Consumptions),
				"attempt", attempt+1,
			)
			return change, nil
		}
		if !apperror.IsConcurrentModification(err) {
			return nil, err
		}
		logger.Warn(ctx, "consumption attempt lost optimistic lock, retrying",
			"owner_id", owner.ID,
			"attempt", attempt+1,
		)
	}

	return nil, apperror.NewConcurrentModification("stock_batch", owner.ID).
		WithDetail("retries", e.cfg.MaxRetries)
}

// tryConsume performs one attempt: snapshot, sufficiency check, ordered
// conditional decrements, ledger append. All writes share one atomic
// scope so a failed attempt leaves no partial consumption, even when a
// caller's transaction is already open.
func (e *Engine) tryConsume(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef, qty types.Quantity, reason entity.ChangeReason, transferRef *id.ID) (*entity.StockChange, error) {
	eligible, err := e.batches.ListActive(ctx, owner, location)
	if err != nil {
		return nil, err
	}
	e.applyOrder(eligible)

	var available types.Quantity
	for _, b := range eligible {
		available += b.RemainingQuantity
	}
	if available < qty {
		return nil, apperror.NewInsufficientStock(owner.ID.String(), qty.Float64(), available.Float64())
	}

	plan := selectBatches(eligible, qty)

	var change *entity.StockChange
	err = e.txManager.RunAtomic(ctx, func(ctx context.Context) error {
		consumptions := make([]entity.BatchConsumption, 0, len(plan))
		for _, step := range plan {
			updated, err := e.batches.Decrement(ctx, step.batch.ID, step.take, step.batch.Version)
			if err != nil {
				return err
			}
			consumptions = append(consumptions, entity.BatchConsumption{
				BatchID:               step.batch.ID,
				UnitCostAtConsumption: step.batch.UnitCost,
				ConsumedQuantity:      step.take,
				RemainingAfter:        updated.RemainingQuantity,
			})
		}

		change = entity.NewStockChange(owner, location, qty.Neg(), reason, e.now())
		change.Consumptions = consumptions
		change.TransferRef = transferRef
		legacy := weightedAverageCost(consumptions, e.cfg.MinorUnitDecimals)
		change.LegacyUnitCost = &legacy
		return e.ledger.Append(ctx, change)
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

// applyOrder arranges eligible batches per the selection policy. The
// repository already returns created_at ascending with id tie-break,
// so FIFO is the identity and LIFO is the reverse.
func (e *Engine) applyOrder(eligible []entity.StockBatch) {
	if e.cfg.Order != OrderLIFO {
		return
	}
	for i, j := 0, len(eligible)-1; i < j; i, j = i+1, j-1 {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	}
}

// planStep is one batch selected for consumption and how much to take.
type planStep struct {
	batch entity.StockBatch
	take  types.Quantity
}

// selectBatches walks eligible batches in order, taking
// min(remaining, stillNeeded) from each until the need is covered.
// Callers guarantee total availability >= qty.
func selectBatches(eligible []entity.StockBatch, qty types.Quantity) []planStep {
	plan := make([]planStep, 0, 2)
	stillNeeded := qty
	for _, b := range eligible {
		if stillNeeded.IsZero() {
			break
		}
		take := b.RemainingQuantity.Min(stillNeeded)
		plan = append(plan, planStep{batch: b, take: take})
		stillNeeded -= take
	}
	return plan
}

// weightedAverageCost computes the single-scalar cost across the batches
// touched, rounded to the currency minor unit.
func weightedAverageCost(consumptions []entity.BatchConsumption, minorUnitDecimals int32) types.Money {
	total := decimal.Zero
	var totalQty types.Quantity
	for _, c := range consumptions {
		total = total.Add(c.UnitCostAtConsumption.Mul(c.ConsumedQuantity.Decimal()))
		totalQty += c.ConsumedQuantity
	}
	if totalQty.IsZero() {
		return decimal.Zero
	}
	return total.Div(totalQty.Decimal()).Round(minorUnitDecimals)
}
