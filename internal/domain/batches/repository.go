// Package batches provides the stock batch store.
package batches

import (
	"context"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// Repository defines persistence operations for stock batches.
//
// Every mutation takes the caller's last-seen version and commits
// conditionally on it (optimistic concurrency). A lost race returns
// CONCURRENT_MODIFICATION; callers re-read and retry.
type Repository interface {
	// Create inserts a new batch.
	Create(ctx context.Context, batch *entity.StockBatch) error

	// GetByID retrieves a batch, returning BATCH_NOT_FOUND for stale references.
	GetByID(ctx context.Context, batchID id.ID) (*entity.StockBatch, error)

	// ListActive returns consumable batches (status active, remaining > 0)
	// for an owner at a location, ordered by created_at ascending then id
	// ascending for deterministic selection.
	ListActive(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) ([]entity.StockBatch, error)

	// ListByOwner returns all batches for an owner, optionally filtered
	// by location, regardless of status.
	ListByOwner(ctx context.Context, owner entity.OwnerRef, location *entity.LocationRef) ([]entity.StockBatch, error)

	// Decrement reduces remaining quantity, conditionally on version.
	// Fails with INSUFFICIENT_BATCH_QUANTITY if qty exceeds remaining,
	// CONCURRENT_MODIFICATION on a version mismatch. Flips status to
	// depleted when remaining reaches zero. Returns the updated batch.
	Decrement(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error)

	// SetCost rewrites unit cost, conditionally on version.
	// Does not touch remaining quantity.
	SetCost(ctx context.Context, batchID id.ID, cost types.Money, expectedVersion int) (*entity.StockBatch, error)

	// MarkDamaged writes off qty as damaged, conditionally on version,
	// freezing the batch (status damaged) once fully consumed by damage.
	MarkDamaged(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error)

	// AvailableQuantity sums remaining quantity of consumable batches.
	AvailableQuantity(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) (types.Quantity, error)
}
