// Package batch_repo provides the PostgreSQL implementation of the
// stock batch store.
package batch_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/infrastructure/storage/postgres"
)

const batchesTable = "stock_batches"

var batchColumns = []string{
	"id", "owner_kind", "owner_id", "location_kind", "location_id",
	"unit_cost", "initial_quantity", "remaining_quantity", "status",
	"supplier_ref", "is_own_purchase", "is_credit",
	"version", "created_at", "updated_at",
}

var _ batches.Repository = (*BatchRepo)(nil)

// BatchRepo implements batches.Repository.
//
// All quantity mutations are conditional UPDATEs guarded by version and
// remaining quantity; zero rows affected is classified by re-reading
// the row.
type BatchRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
	now       func() time.Time
}

// NewBatchRepo creates a new batch repository.
func NewBatchRepo(txManager *postgres.TxManager) *BatchRepo {
	return &BatchRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new batch.
func (r *BatchRepo) Create(ctx context.Context, batch *entity.StockBatch) error {
	q := r.builder.Insert(batchesTable).
		Columns(batchColumns...).
		Values(
			batch.ID, batch.OwnerKind, batch.OwnerID, batch.LocationKind, batch.LocationID,
			batch.UnitCost, batch.InitialQuantity, batch.RemainingQuantity, batch.Status,
			batch.SupplierRef, batch.IsOwnPurchase, batch.IsCredit,
			batch.Version, batch.CreatedAt, batch.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	return nil
}

// GetByID retrieves a batch by id.
func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*entity.StockBatch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{"id": batchID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var batch entity.StockBatch
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &batch, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewBatchNotFound(batchID)
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	return &batch, nil
}

// ListActive returns consumable batches in creation order. The id
// tie-break keeps selection deterministic for batches created in the
// same instant.
func (r *BatchRepo) ListActive(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) ([]entity.StockBatch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"owner_kind":    owner.Kind,
			"owner_id":      owner.ID,
			"location_kind": location.Kind,
			"location_id":   location.ID,
			"status":        entity.BatchStatusActive,
		}).
		Where(squirrel.Gt{"remaining_quantity": 0}).
		OrderBy("created_at ASC", "id ASC")

	return r.selectBatches(ctx, q)
}

// ListByOwner returns all batches for an owner regardless of status.
func (r *BatchRepo) ListByOwner(ctx context.Context, owner entity.OwnerRef, location *entity.LocationRef) ([]entity.StockBatch, error) {
	q := r.builder.Select(batchColumns...).
		From(batchesTable).
		Where(squirrel.Eq{
			"owner_kind": owner.Kind,
			"owner_id":   owner.ID,
		}).
		OrderBy("created_at ASC", "id ASC")

	if location != nil {
		q = q.Where(squirrel.Eq{
			"location_kind": location.Kind,
			"location_id":   location.ID,
		})
	}

	return r.selectBatches(ctx, q)
}

func (r *BatchRepo) selectBatches(ctx context.Context, q squirrel.SelectBuilder) ([]entity.StockBatch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var result []entity.StockBatch
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &result, sql, args...); err != nil {
		return nil, fmt.Errorf("select batches: %w", err)
	}

	return result, nil
}

// Decrement reduces remaining quantity conditionally on version.
func (r *BatchRepo) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("decrement quantity must be positive")
	}

	q := r.builder.Update(batchesTable).
		Set("remaining_quantity", squirrel.Expr("remaining_quantity - ?", qty)).
		Set("status", squirrel.Expr("CASE WHEN remaining_quantity - ? = 0 THEN ? ELSE status END", qty, entity.BatchStatusDepleted)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{
			"id":      batchID,
			"version": expectedVersion,
			"status":  entity.BatchStatusActive,
		}).
		Where(squirrel.GtOrEq{"remaining_quantity": qty}).
		Suffix("RETURNING " + columnList())

	return r.execConditionalUpdate(ctx, q, batchID, expectedVersion, &qty)
}

// SetCost rewrites unit cost conditionally on version.
func (r *BatchRepo) SetCost(ctx context.Context, batchID id.ID, cost types.Money, expectedVersion int) (*entity.StockBatch, error) {
	if cost.IsNegative() {
		return nil, apperror.NewValidation("unit cost must not be negative")
	}

	q := r.builder.Update(batchesTable).
		Set("unit_cost", cost).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{
			"id":      batchID,
			"version": expectedVersion,
		}).
		Suffix("RETURNING " + columnList())

	return r.execConditionalUpdate(ctx, q, batchID, expectedVersion, nil)
}

// MarkDamaged writes off qty as damaged conditionally on version.
func (r *BatchRepo) MarkDamaged(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("damage quantity must be positive")
	}

	q := r.builder.Update(batchesTable).
		Set("remaining_quantity", squirrel.Expr("remaining_quantity - ?", qty)).
		Set("status", squirrel.Expr("CASE WHEN remaining_quantity - ? = 0 THEN ? ELSE status END", qty, entity.BatchStatusDamaged)).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", r.now()).
		Where(squirrel.Eq{
			"id":      batchID,
			"version": expectedVersion,
			"status":  entity.BatchStatusActive,
		}).
		Where(squirrel.GtOrEq{"remaining_quantity": qty}).
		Suffix("RETURNING " + columnList())

	return r.execConditionalUpdate(ctx, q, batchID, expectedVersion, &qty)
}

// AvailableQuantity sums remaining quantity of consumable batches.
func (r *BatchRepo) AvailableQuantity(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) (types.Quantity, error) {
	q := r.builder.Select("COALESCE(SUM(remaining_quantity), 0)").
		From(batchesTable).
		Where(squirrel.Eq{
			"owner_kind":    owner.Kind,
			"owner_id":      owner.ID,
			"location_kind": location.Kind,
			"location_id":   location.ID,
			"status":        entity.BatchStatusActive,
		}).
		Where(squirrel.Gt{"remaining_quantity": 0})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build select: %w", err)
	}

	var total int64
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum available quantity: %w", err)
	}

	return types.NewQuantityFromInt64Scaled(total), nil
}

// execConditionalUpdate runs a guarded UPDATE ... RETURNING and
// classifies the zero-rows case by re-reading the batch: missing row,
// stale version or a quantity guard failure all surface as distinct
// errors.
func (r *BatchRepo) execConditionalUpdate(ctx context.Context, q squirrel.UpdateBuilder, batchID id.ID, expectedVersion int, qty *types.Quantity) (*entity.StockBatch, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var batch entity.StockBatch
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &batch, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyUpdateMiss(ctx, batchID, expectedVersion, qty)
		}
		return nil, fmt.Errorf("update batch: %w", err)
	}

	return &batch, nil
}

func (r *BatchRepo) classifyUpdateMiss(ctx context.Context, batchID id.ID, expectedVersion int, qty *types.Quantity) error {
	current, err := r.GetByID(ctx, batchID)
	if err != nil {
		return err
	}
	if current.Version != expectedVersion {
		return apperror.NewConcurrentModification("stock_batch", batchID)
	}
	if qty != nil {
		if current.Status != entity.BatchStatusActive {
			return apperror.NewConflict("batch is not active").
				WithDetail("batchId", batchID.String()).
				WithDetail("status", string(current.Status))
		}
		if current.RemainingQuantity < *qty {
			return apperror.NewInsufficientBatchQuantity(batchID.String(), qty.Float64(), current.RemainingQuantity.Float64())
		}
	}
	return apperror.NewConcurrentModification("stock_batch", batchID)
}

func columnList() string {
	return strings.Join(batchColumns, ", ")
}
