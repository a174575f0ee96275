package batches_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/storage/memory"
)

type batchFixture struct {
	store    *memory.Store
	ledger   *ledger.Service
	service  *batches.Service
	owner    entity.OwnerRef
	location entity.LocationRef
}

func newBatchFixture(t *testing.T) *batchFixture {
	t.Helper()
	store := memory.NewStore()
	ledgerSvc := ledger.NewService(store.Ledger())
	svc := batches.NewService(store.Batches(), ledgerSvc, memory.NewTxManager(store))
	return &batchFixture{
		store:    store,
		ledger:   ledgerSvc,
		service:  svc,
		owner:    entity.NewOwnerRef(entity.OwnerKindMaterial, id.New()),
		location: entity.NewLocationRef(entity.LocationKindWarehouse, id.New()),
	}
}

func TestRestock_CreatesBatchAndLedgerEntry(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	supplier := "SUP-42"
	batchID, err := f.service.Restock(ctx, batches.RestockInput{
		Owner:         f.owner,
		Location:      f.location,
		Quantity:      types.NewQuantityFromFloat64(12.5),
		UnitCost:      types.MustMoney("4.80"),
		SupplierRef:   &supplier,
		IsOwnPurchase: true,
	})
	require.NoError(t, err)

	batch, err := f.service.GetByID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(12.5), batch.InitialQuantity)
	assert.Equal(t, types.NewQuantityFromFloat64(12.5), batch.RemainingQuantity)
	assert.Equal(t, entity.BatchStatusActive, batch.Status)
	assert.Equal(t, 1, batch.Version)
	require.NotNil(t, batch.SupplierRef)
	assert.Equal(t, supplier, *batch.SupplierRef)
	assert.True(t, batch.IsOwnPurchase)

	history, err := f.ledger.History(ctx, ledger.Filter{Owner: &f.owner})
	require.NoError(t, err)
	require.Len(t, history, 1)
	entry := history[0]
	assert.Equal(t, entity.ReasonRestock, entry.Reason)
	assert.Equal(t, types.NewQuantityFromFloat64(12.5), entry.Delta)
	assert.Empty(t, entry.Consumptions)
	require.NotNil(t, entry.LegacyUnitCost)
	assert.True(t, entry.LegacyUnitCost.Equal(types.MustMoney("4.80")))
}

func TestRestock_Validation(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   batches.RestockInput
	}{
		{"bad owner kind", batches.RestockInput{
			Owner:    entity.OwnerRef{Kind: "widget", ID: id.New()},
			Location: f.location, Quantity: types.NewQuantityFromInt(1), UnitCost: types.MustMoney("1"),
		}},
		{"zero quantity", batches.RestockInput{
			Owner: f.owner, Location: f.location, Quantity: 0, UnitCost: types.MustMoney("1"),
		}},
		{"negative cost", batches.RestockInput{
			Owner: f.owner, Location: f.location, Quantity: types.NewQuantityFromInt(1), UnitCost: types.MustMoney("-1"),
		}},
		{"consumption reason", batches.RestockInput{
			Owner: f.owner, Location: f.location, Quantity: types.NewQuantityFromInt(1),
			UnitCost: types.MustMoney("1"), Reason: entity.ReasonSale,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.Restock(ctx, tt.in)
			assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
		})
	}
}

func TestMarkDamaged_PartialThenFull(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	batchID, err := f.service.Restock(ctx, batches.RestockInput{
		Owner: f.owner, Location: f.location,
		Quantity: types.NewQuantityFromInt(10), UnitCost: types.MustMoney("3.00"),
	})
	require.NoError(t, err)

	change, err := f.service.MarkDamaged(ctx, batchID, types.NewQuantityFromInt(4))
	require.NoError(t, err)
	assert.Equal(t, entity.ReasonDamage, change.Reason)
	assert.Equal(t, types.NewQuantityFromInt(-4), change.Delta)
	require.Len(t, change.Consumptions, 1)
	assert.Equal(t, types.NewQuantityFromInt(6), change.Consumptions[0].RemainingAfter)

	// Partial damage keeps the batch consumable.
	batch, err := f.service.GetByID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusActive, batch.Status)

	// Damaging the rest freezes it for good.
	_, err = f.service.MarkDamaged(ctx, batchID, types.NewQuantityFromInt(6))
	require.NoError(t, err)

	batch, err = f.service.GetByID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusDamaged, batch.Status)

	_, err = f.service.MarkDamaged(ctx, batchID, types.NewQuantityFromInt(1))
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestMarkDamaged_ExceedsRemaining(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	batchID, err := f.service.Restock(ctx, batches.RestockInput{
		Owner: f.owner, Location: f.location,
		Quantity: types.NewQuantityFromInt(2), UnitCost: types.MustMoney("3.00"),
	})
	require.NoError(t, err)

	_, err = f.service.MarkDamaged(ctx, batchID, types.NewQuantityFromInt(3))
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientBatchQuantity))
}

func TestAvailableQuantity_SumsConsumableOnly(t *testing.T) {
	f := newBatchFixture(t)
	ctx := context.Background()

	first, err := f.service.Restock(ctx, batches.RestockInput{
		Owner: f.owner, Location: f.location,
		Quantity: types.NewQuantityFromInt(5), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)
	_, err = f.service.Restock(ctx, batches.RestockInput{
		Owner: f.owner, Location: f.location,
		Quantity: types.NewQuantityFromInt(3), UnitCost: types.MustMoney("1.00"),
	})
	require.NoError(t, err)

	_, err = f.service.MarkDamaged(ctx, first, types.NewQuantityFromInt(5))
	require.NoError(t, err)

	available, err := f.service.AvailableQuantity(ctx, f.owner, f.location)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(3), available)
}
