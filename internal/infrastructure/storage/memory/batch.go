package memory

import (
	"context"
	"sort"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
)

var _ batches.Repository = (*BatchRepo)(nil)

// BatchRepo is the in-memory batch store. It enforces the same
// version-guarded mutation contract as the Postgres implementation.
type BatchRepo struct {
	store *Store
}

func (r *BatchRepo) Create(ctx context.Context, batch *entity.StockBatch) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, exists := r.store.batches[batch.ID]; exists {
		return apperror.NewConflict("batch already exists").WithDetail("batchId", batch.ID.String())
	}
	r.store.batches[batch.ID] = cloneBatch(batch)
	return nil
}

func (r *BatchRepo) GetByID(ctx context.Context, batchID id.ID) (*entity.StockBatch, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	batch, ok := r.store.batches[batchID]
	if !ok {
		return nil, apperror.NewBatchNotFound(batchID)
	}
	return cloneBatch(batch), nil
}

func (r *BatchRepo) ListActive(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) ([]entity.StockBatch, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var result []entity.StockBatch
	for _, b := range r.store.batches {
		if b.Owner().Equal(owner) && b.Location().Equal(location) && b.IsConsumable() {
			result = append(result, *cloneBatch(b))
		}
	}
	sortBatches(result)
	return result, nil
}

func (r *BatchRepo) ListByOwner(ctx context.Context, owner entity.OwnerRef, location *entity.LocationRef) ([]entity.StockBatch, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var result []entity.StockBatch
	for _, b := range r.store.batches {
		if !b.Owner().Equal(owner) {
			continue
		}
		if location != nil && !b.Location().Equal(*location) {
			continue
		}
		result = append(result, *cloneBatch(b))
	}
	sortBatches(result)
	return result, nil
}

func (r *BatchRepo) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	return r.mutate(ctx, batchID, qty, expectedVersion, func(b *entity.StockBatch, now time.Time) {
		b.Consume(qty, now)
	})
}

func (r *BatchRepo) SetCost(ctx context.Context, batchID id.ID, cost types.Money, expectedVersion int) (*entity.StockBatch, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	batch, ok := r.store.batches[batchID]
	if !ok {
		return nil, apperror.NewBatchNotFound(batchID)
	}
	if batch.Version != expectedVersion {
		return nil, apperror.NewConcurrentModification("stock_batch", batchID)
	}

	batch.SetCost(cost, time.Now().UTC())
	return cloneBatch(batch), nil
}

func (r *BatchRepo) MarkDamaged(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	return r.mutate(ctx, batchID, qty, expectedVersion, func(b *entity.StockBatch, now time.Time) {
		b.MarkDamaged(qty, now)
	})
}

func (r *BatchRepo) AvailableQuantity(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) (types.Quantity, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var total types.Quantity
	for _, b := range r.store.batches {
		if b.Owner().Equal(owner) && b.Location().Equal(location) && b.IsConsumable() {
			total += b.RemainingQuantity
		}
	}
	return total, nil
}

// mutate applies a quantity-reducing mutation under the version and
// remaining-quantity guards.
func (r *BatchRepo) mutate(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int, apply func(*entity.StockBatch, time.Time)) (*entity.StockBatch, error) {
	if !qty.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive")
	}

	unlock := r.store.lock(ctx)
	defer unlock()

	batch, ok := r.store.batches[batchID]
	if !ok {
		return nil, apperror.NewBatchNotFound(batchID)
	}
	if batch.Version != expectedVersion {
		return nil, apperror.NewConcurrentModification("stock_batch", batchID)
	}
	if batch.Status != entity.BatchStatusActive {
		return nil, apperror.NewConflict("batch is not active").
			WithDetail("batchId", batchID.String()).
			WithDetail("status", string(batch.Status))
	}
	if batch.RemainingQuantity < qty {
		return nil, apperror.NewInsufficientBatchQuantity(batchID.String(), qty.Float64(), batch.RemainingQuantity.Float64())
	}

	apply(batch, time.Now().UTC())
	return cloneBatch(batch), nil
}

func sortBatches(list []entity.StockBatch) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID.String() < list[j].ID.String()
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
