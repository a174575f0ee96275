package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/storage/memory"
)

type transferFixture struct {
	store     *memory.Store
	batches   *memory.BatchRepo
	ledger    *ledger.Service
	engine    *Engine
	owner     entity.OwnerRef
	warehouse entity.LocationRef
	shop      entity.LocationRef
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	store := memory.NewStore()
	batchRepo := store.Batches()
	ledgerSvc := ledger.NewService(store.Ledger())
	txManager := memory.NewTxManager(store)
	consumer := consumption.NewEngine(batchRepo, ledgerSvc, txManager, consumption.DefaultConfig())
	return &transferFixture{
		store:     store,
		batches:   batchRepo,
		ledger:    ledgerSvc,
		engine:    NewEngine(consumer, batchRepo, ledgerSvc, txManager),
		owner:     entity.NewOwnerRef(entity.OwnerKindProduct, id.New()),
		warehouse: entity.NewLocationRef(entity.LocationKindWarehouse, id.New()),
		shop:      entity.NewLocationRef(entity.LocationKindShop, id.New()),
	}
}

func (f *transferFixture) addBatch(t *testing.T, loc entity.LocationRef, qty float64, unitCost string, createdAt time.Time) id.ID {
	t.Helper()
	batch := entity.NewStockBatch(f.owner, loc, types.NewQuantityFromFloat64(qty), types.MustMoney(unitCost), createdAt)
	require.NoError(t, f.batches.Create(context.Background(), batch))
	return batch.ID
}

func TestTransfer_PreservesCostBasisAndConservation(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	f.addBatch(t, f.warehouse, 5, "10.00", base)
	f.addBatch(t, f.warehouse, 5, "14.00", base.Add(time.Hour))

	outbound, err := f.engine.Transfer(ctx, f.owner, types.NewQuantityFromFloat64(7), f.warehouse, f.shop)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(-7), outbound.Delta)

	// Source keeps 3, destination holds 7. Total stock is unchanged.
	sourceLeft, err := f.batches.AvailableQuantity(ctx, f.owner, f.warehouse)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(3), sourceLeft)

	destHeld, err := f.batches.AvailableQuantity(ctx, f.owner, f.shop)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(7), destHeld)

	// The destination batch carries the weighted-average source cost:
	// (5*10 + 2*14) / 7 = 11.14.
	destBatches, err := f.batches.ListActive(ctx, f.owner, f.shop)
	require.NoError(t, err)
	require.Len(t, destBatches, 1)
	assert.True(t, destBatches[0].UnitCost.Equal(types.MustMoney("11.14")),
		"got %s", destBatches[0].UnitCost.String())
	assert.Equal(t, types.NewQuantityFromFloat64(7), destBatches[0].InitialQuantity)

	// The inbound leg references the outbound leg.
	inboundLoc := f.shop
	history, err := f.ledger.History(ctx, ledger.Filter{Owner: &f.owner, Location: &inboundLoc})
	require.NoError(t, err)
	require.Len(t, history, 1)
	inbound := history[0]
	assert.Equal(t, types.NewQuantityFromFloat64(7), inbound.Delta)
	require.NotNil(t, inbound.TransferRef)
	assert.Equal(t, outbound.ID, *inbound.TransferRef)

	// And the outbound leg references the inbound leg back.
	require.NotNil(t, outbound.TransferRef)
	assert.Equal(t, inbound.ID, *outbound.TransferRef)
}

// flakyBatchRepo injects a single optimistic-lock failure on the n-th
// decrement, simulating a competing writer slipping in mid-attempt.
type flakyBatchRepo struct {
	*memory.BatchRepo
	decrements int
	failOn     int
}

func (r *flakyBatchRepo) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	r.decrements++
	if r.decrements == r.failOn {
		return nil, apperror.NewConcurrentModification("stock_batch", batchID)
	}
	return r.BatchRepo.Decrement(ctx, batchID, qty, expectedVersion)
}

func TestTransfer_LostRaceMidAttemptKeepsConservation(t *testing.T) {
	store := memory.NewStore()
	repo := &flakyBatchRepo{BatchRepo: store.Batches(), failOn: 2}
	ledgerSvc := ledger.NewService(store.Ledger())
	txManager := memory.NewTxManager(store)
	consumer := consumption.NewEngine(repo, ledgerSvc, txManager, consumption.DefaultConfig())
	engine := NewEngine(consumer, repo, ledgerSvc, txManager)

	owner := entity.NewOwnerRef(entity.OwnerKindProduct, id.New())
	warehouse := entity.NewLocationRef(entity.LocationKindWarehouse, id.New())
	shop := entity.NewLocationRef(entity.LocationKindShop, id.New())

	ctx := context.Background()
	base := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	b1 := entity.NewStockBatch(owner, warehouse, types.NewQuantityFromFloat64(5), types.MustMoney("10.00"), base)
	require.NoError(t, repo.Create(ctx, b1))
	b2 := entity.NewStockBatch(owner, warehouse, types.NewQuantityFromFloat64(10), types.MustMoney("12.00"), base.Add(time.Hour))
	require.NoError(t, repo.Create(ctx, b2))

	outbound, err := engine.Transfer(ctx, owner, types.NewQuantityFromFloat64(7), warehouse, shop)
	require.NoError(t, err)

	// The first attempt decremented the first batch before losing the
	// race on the second. That decrement must not survive into the
	// retry: total stock stays 15, with 8 at the source and 7 at the
	// destination.
	sourceLeft, err := repo.AvailableQuantity(ctx, owner, warehouse)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(8), sourceLeft)

	destHeld, err := repo.AvailableQuantity(ctx, owner, shop)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(7), destHeld)

	// Every consumed unit is attributed on the outbound leg.
	assert.Equal(t, outbound.Delta.Abs(), outbound.ConsumedTotal())

	history, err := ledgerSvc.History(ctx, ledger.Filter{Owner: &owner})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestTransfer_SameLocationRejected(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	f.addBatch(t, f.warehouse, 5, "10.00", time.Now().UTC())

	_, err := f.engine.Transfer(ctx, f.owner, types.NewQuantityFromFloat64(1), f.warehouse, f.warehouse)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInvalidTransfer))

	// Nothing was consumed and no ledger entry was written.
	left, err := f.batches.AvailableQuantity(ctx, f.owner, f.warehouse)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(5), left)

	history, err := f.ledger.History(ctx, ledger.Filter{Owner: &f.owner})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransfer_InsufficientSourceRollsBackBothLegs(t *testing.T) {
	f := newTransferFixture(t)
	ctx := context.Background()

	f.addBatch(t, f.warehouse, 2, "10.00", time.Now().UTC())

	_, err := f.engine.Transfer(ctx, f.owner, types.NewQuantityFromFloat64(5), f.warehouse, f.shop)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	destHeld, err := f.batches.AvailableQuantity(ctx, f.owner, f.shop)
	require.NoError(t, err)
	assert.True(t, destHeld.IsZero())

	history, err := f.ledger.History(ctx, ledger.Filter{Owner: &f.owner})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestTransfer_RejectsNonPositiveQuantity(t *testing.T) {
	f := newTransferFixture(t)

	_, err := f.engine.Transfer(context.Background(), f.owner, 0, f.warehouse, f.shop)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
