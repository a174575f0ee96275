package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

func seedBatch(t *testing.T, repo *BatchRepo, qty float64) *entity.StockBatch {
	t.Helper()
	owner := entity.NewOwnerRef(entity.OwnerKindMaterial, id.New())
	location := entity.NewLocationRef(entity.LocationKindWarehouse, id.New())
	batch := entity.NewStockBatch(owner, location, types.NewQuantityFromFloat64(qty), types.MustMoney("10.00"), time.Now().UTC())
	require.NoError(t, repo.Create(context.Background(), batch))
	return batch
}

func TestBatchRepo_VersionGuard(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	ctx := context.Background()

	batch := seedBatch(t, repo, 10)

	updated, err := repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(4), batch.Version)
	require.NoError(t, err)
	assert.Equal(t, batch.Version+1, updated.Version)
	assert.Equal(t, types.NewQuantityFromFloat64(6), updated.RemainingQuantity)

	// A second writer using the original version loses.
	_, err = repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(1), batch.Version)
	assert.True(t, apperror.IsConcurrentModification(err))
}

func TestBatchRepo_MutationGuards(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	ctx := context.Background()

	batch := seedBatch(t, repo, 5)

	_, err := repo.Decrement(ctx, id.New(), types.NewQuantityFromFloat64(1), 1)
	assert.True(t, apperror.IsCode(err, apperror.CodeBatchNotFound))

	_, err = repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(6), batch.Version)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientBatchQuantity))

	// Damage the whole batch, then no further mutation is allowed.
	damaged, err := repo.MarkDamaged(ctx, batch.ID, types.NewQuantityFromFloat64(5), batch.Version)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusDamaged, damaged.Status)

	_, err = repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(1), damaged.Version)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestBatchRepo_DecrementToZeroDepletes(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	ctx := context.Background()

	batch := seedBatch(t, repo, 3)

	updated, err := repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(3), batch.Version)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusDepleted, updated.Status)

	// Depleted batches fall out of the consumable views.
	active, err := repo.ListActive(ctx, batch.Owner(), batch.Location())
	require.NoError(t, err)
	assert.Empty(t, active)

	available, err := repo.AvailableQuantity(ctx, batch.Owner(), batch.Location())
	require.NoError(t, err)
	assert.True(t, available.IsZero())
}

func TestBatchRepo_ReadsReturnCopies(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	ctx := context.Background()

	batch := seedBatch(t, repo, 10)

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	got.RemainingQuantity = 0

	again, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), again.RemainingQuantity)
}

func TestTxManager_RollbackRestoresSnapshot(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	manager := NewTxManager(store)
	ctx := context.Background()

	batch := seedBatch(t, repo, 10)
	boom := errors.New("boom")

	err := manager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(7), batch.Version); err != nil {
			return err
		}
		extra := entity.NewStockBatch(batch.Owner(), batch.Location(), types.NewQuantityFromFloat64(1), types.MustMoney("1.00"), time.Now().UTC())
		if err := repo.Create(ctx, extra); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Both writes were rolled back.
	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), got.RemainingQuantity)
	assert.Equal(t, batch.Version, got.Version)

	all, err := repo.ListByOwner(ctx, batch.Owner(), nil)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestTxManager_CommitKeepsWrites(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	manager := NewTxManager(store)
	ctx := context.Background()

	batch := seedBatch(t, repo, 10)

	err := manager.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(7), batch.Version)
		return err
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(3), got.RemainingQuantity)
}

func TestTxManager_NestedCallsShareTheUnit(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	manager := NewTxManager(store)
	ctx := context.Background()

	batch := seedBatch(t, repo, 10)
	boom := errors.New("inner failure")

	// The inner RunInTransaction joins the outer unit instead of
	// deadlocking on the store lock; its failure rolls back everything.
	err := manager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.Decrement(ctx, batch.ID, types.NewQuantityFromFloat64(2), batch.Version); err != nil {
			return err
		}
		return manager.RunInTransaction(ctx, func(ctx context.Context) error {
			return boom
		})
	})
	require.ErrorIs(t, err, boom)

	got, err := repo.GetByID(ctx, batch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), got.RemainingQuantity)
}

func TestTxManager_AtomicScopeRollsBackOnlyItsWrites(t *testing.T) {
	store := NewStore()
	repo := store.Batches()
	manager := NewTxManager(store)
	ctx := context.Background()

	first := seedBatch(t, repo, 10)
	second := seedBatch(t, repo, 10)
	boom := errors.New("inner failure")

	// A failing RunAtomic inside an open transaction reverts its own
	// writes but leaves the outer unit's earlier writes in place.
	err := manager.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := repo.Decrement(ctx, first.ID, types.NewQuantityFromFloat64(2), first.Version); err != nil {
			return err
		}
		innerErr := manager.RunAtomic(ctx, func(ctx context.Context) error {
			if _, err := repo.Decrement(ctx, second.ID, types.NewQuantityFromFloat64(5), second.Version); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, innerErr, boom)
		return nil
	})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(8), got.RemainingQuantity)

	got, err = repo.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), got.RemainingQuantity)
	assert.Equal(t, second.Version, got.Version)
}

func TestLedgerRepo_RejectsDuplicateEntries(t *testing.T) {
	store := NewStore()
	repo := store.Ledger()
	ctx := context.Background()

	owner := entity.NewOwnerRef(entity.OwnerKindProduct, id.New())
	location := entity.NewLocationRef(entity.LocationKindShop, id.New())
	change := entity.NewStockChange(owner, location, types.NewQuantityFromFloat64(1), entity.ReasonRestock, time.Now().UTC())

	require.NoError(t, repo.Append(ctx, change))
	err := repo.Append(ctx, change)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}
