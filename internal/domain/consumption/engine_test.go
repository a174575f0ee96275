package consumption_test

import (
	"context"
	"sync"
	"sync/atomic"
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

type engineFixture struct {
	store    *memory.Store
	batches  *memory.BatchRepo
	ledger   *ledger.Service
	engine   *consumption.Engine
	owner    entity.OwnerRef
	location entity.LocationRef
}

func newEngineFixture(t *testing.T, cfg consumption.Config) *engineFixture {
	t.Helper()
	store := memory.NewStore()
	batchRepo := store.Batches()
	ledgerSvc := ledger.NewService(store.Ledger())
	engine := consumption.NewEngine(batchRepo, ledgerSvc, memory.NewTxManager(store), cfg)
	return &engineFixture{
		store:    store,
		batches:  batchRepo,
		ledger:   ledgerSvc,
		engine:   engine,
		owner:    entity.NewOwnerRef(entity.OwnerKindMaterial, id.New()),
		location: entity.NewLocationRef(entity.LocationKindWarehouse, id.New()),
	}
}

// addBatch seeds one batch directly, with an explicit creation time so
// selection order is controlled by the test.
func (f *engineFixture) addBatch(t *testing.T, qty float64, unitCost string, createdAt time.Time) id.ID {
	t.Helper()
	batch := entity.NewStockBatch(f.owner, f.location, types.NewQuantityFromFloat64(qty), types.MustMoney(unitCost), createdAt)
	require.NoError(t, f.batches.Create(context.Background(), batch))
	return batch.ID
}

func TestConsume_FIFOSelection(t *testing.T) {
	f := newEngineFixture(t, consumption.DefaultConfig())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b1 := f.addBatch(t, 5, "10.00", base)
	b2 := f.addBatch(t, 10, "12.00", base.Add(time.Hour))

	change, err := f.engine.Consume(ctx, f.owner, f.location, types.NewQuantityFromFloat64(7), entity.ReasonSale)
	require.NoError(t, err)

	require.Len(t, change.Consumptions, 2)
	assert.Equal(t, b1, change.Consumptions[0].BatchID)
	assert.Equal(t, types.NewQuantityFromFloat64(5), change.Consumptions[0].ConsumedQuantity)
	assert.Equal(t, b2, change.Consumptions[1].BatchID)
	assert.Equal(t, types.NewQuantityFromFloat64(2), change.Consumptions[1].ConsumedQuantity)

	assert.Equal(t, types.NewQuantityFromFloat64(-7), change.Delta)
	assert.Equal(t, change.Delta.Abs(), change.ConsumedTotal())

	first, err := f.batches.GetByID(ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusDepleted, first.Status)
	assert.True(t, first.RemainingQuantity.IsZero())

	second, err := f.batches.GetByID(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, entity.BatchStatusActive, second.Status)
	assert.Equal(t, types.NewQuantityFromFloat64(8), second.RemainingQuantity)
}

func TestConsume_LIFOSelection(t *testing.T) {
	cfg := consumption.DefaultConfig()
	cfg.Order = consumption.OrderLIFO
	f := newEngineFixture(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.addBatch(t, 5, "10.00", base)
	b2 := f.addBatch(t, 10, "12.00", base.Add(time.Hour))

	change, err := f.engine.Consume(ctx, f.owner, f.location, types.NewQuantityFromFloat64(3), entity.ReasonSale)
	require.NoError(t, err)

	require.Len(t, change.Consumptions, 1)
	assert.Equal(t, b2, change.Consumptions[0].BatchID)
}

func TestConsume_InsufficientStockLeavesNothingBehind(t *testing.T) {
	f := newEngineFixture(t, consumption.DefaultConfig())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b1 := f.addBatch(t, 5, "10.00", base)
	b2 := f.addBatch(t, 2, "12.00", base.Add(time.Hour))

	_, err := f.engine.Consume(ctx, f.owner, f.location, types.NewQuantityFromFloat64(8), entity.ReasonSale)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	first, err := f.batches.GetByID(ctx, b1)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(5), first.RemainingQuantity)

	second, err := f.batches.GetByID(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(2), second.RemainingQuantity)

	history, err := f.ledger.History(ctx, ledger.Filter{Owner: &f.owner})
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConsume_WeightedAverageLegacyCost(t *testing.T) {
	f := newEngineFixture(t, consumption.DefaultConfig())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f.addBatch(t, 5, "10.00", base)
	f.addBatch(t, 10, "12.00", base.Add(time.Hour))

	// (5*10 + 2*12) / 7 = 74/7 = 10.5714... rounds to 10.57
	change, err := f.engine.Consume(ctx, f.owner, f.location, types.NewQuantityFromFloat64(7), entity.ReasonSale)
	require.NoError(t, err)

	require.NotNil(t, change.LegacyUnitCost)
	assert.True(t, change.LegacyUnitCost.Equal(types.MustMoney("10.57")),
		"got %s", change.LegacyUnitCost.String())
}

func TestConsume_ExactDepletionSkipsRemainingBatches(t *testing.T) {
	f := newEngineFixture(t, consumption.DefaultConfig())
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	b1 := f.addBatch(t, 5, "10.00", base)
	b2 := f.addBatch(t, 5, "12.00", base.Add(time.Hour))

	change, err := f.engine.Consume(ctx, f.owner, f.location, types.NewQuantityFromFloat64(5), entity.ReasonSale)
	require.NoError(t, err)

	require.Len(t, change.Consumptions, 1)
	assert.Equal(t, b1, change.Consumptions[0].BatchID)

	second, err := f.batches.GetByID(ctx, b2)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(5), second.RemainingQuantity)
}

func TestConsume_RejectsInvalidInput(t *testing.T) {
	f := newEngineFixture(t, consumption.DefaultConfig())
	ctx := context.Background()

	_, err := f.engine.Consume(ctx, f.owner, f.location, 0, entity.ReasonSale)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.engine.Consume(ctx, f.owner, f.location, types.NewQuantityFromFloat64(1), entity.ReasonRestock)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

// conflictingBatchRepo wraps the real repository so every Decrement
// loses its optimistic lock, forcing the retry loop to exhaust.
type conflictingBatchRepo struct {
	*memory.BatchRepo
	attempts int
}

func (r *conflictingBatchRepo) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	r.attempts++
	return nil, apperror.NewConcurrentModification("stock_batch", batchID)
}

func TestConsume_RetryExhaustion(t *testing.T) {
	store := memory.NewStore()
	owner := entity.NewOwnerRef(entity.OwnerKindMaterial, id.New())
	location := entity.NewLocationRef(entity.LocationKindWarehouse, id.New())

	batch := entity.NewStockBatch(owner, location, types.NewQuantityFromFloat64(10), types.MustMoney("10.00"), time.Now().UTC())
	require.NoError(t, store.Batches().Create(context.Background(), batch))

	repo := &conflictingBatchRepo{BatchRepo: store.Batches()}
	cfg := consumption.DefaultConfig()
	cfg.MaxRetries = 3
	engine := consumption.NewEngine(repo, ledger.NewService(store.Ledger()), memory.NewTxManager(store), cfg)

	_, err := engine.Consume(context.Background(), owner, location, types.NewQuantityFromFloat64(1), entity.ReasonSale)
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))
	assert.Equal(t, 3, repo.attempts)
}

// rendezvousBatchRepo pairs the first two ListActive calls so two
// racing consumers plan against the same snapshot before either one
// decrements. Retries skip the barrier.
type rendezvousBatchRepo struct {
	*memory.BatchRepo
	planned *sync.WaitGroup
	seats   int32
}

func (r *rendezvousBatchRepo) ListActive(ctx context.Context, owner entity.OwnerRef, location entity.LocationRef) ([]entity.StockBatch, error) {
	list, err := r.BatchRepo.ListActive(ctx, owner, location)
	if err == nil && atomic.AddInt32(&r.seats, 1) <= 2 {
		r.planned.Done()
		r.planned.Wait()
	}
	return list, err
}

func TestConsume_RacingConsumersDoNotOversell(t *testing.T) {
	store := memory.NewStore()
	owner := entity.NewOwnerRef(entity.OwnerKindMaterial, id.New())
	location := entity.NewLocationRef(entity.LocationKindWarehouse, id.New())

	batch := entity.NewStockBatch(owner, location, types.NewQuantityFromFloat64(10), types.MustMoney("10.00"), time.Now().UTC())
	require.NoError(t, store.Batches().Create(context.Background(), batch))

	var planned sync.WaitGroup
	planned.Add(2)
	repo := &rendezvousBatchRepo{BatchRepo: store.Batches(), planned: &planned}
	ledgerSvc := ledger.NewService(store.Ledger())
	engine := consumption.NewEngine(repo, ledgerSvc, memory.NewTxManager(store), consumption.DefaultConfig())

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := engine.Consume(context.Background(), owner, location, types.NewQuantityFromFloat64(6), entity.ReasonSale)
			results <- err
		}()
	}

	// Exactly one consumer wins. The loser's version guard fires, its
	// retry re-derives the selection and finds only 4 units left.
	var wins, insufficient int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case apperror.IsInsufficientStock(err):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, insufficient)

	// No lost update, no overselling: 10 - 6 = 4 remain and the ledger
	// holds a single fully attributed entry.
	left, err := repo.AvailableQuantity(context.Background(), owner, location)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(4), left)

	history, err := ledgerSvc.History(context.Background(), ledger.Filter{Owner: &owner})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.NewQuantityFromFloat64(-6), history[0].Delta)
	assert.Equal(t, history[0].Delta.Abs(), history[0].ConsumedTotal())
}
