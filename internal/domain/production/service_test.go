package production_test

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
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/policy"
	"lotledger/internal/domain/production"
	"lotledger/internal/infrastructure/storage/memory"
)

type productionFixture struct {
	store    *memory.Store
	batches  *memory.BatchRepo
	batchSvc *batches.Service
	service  *production.Service
	location entity.LocationRef
}

func newProductionFixture(t *testing.T) *productionFixture {
	t.Helper()
	store := memory.NewStore()
	batchRepo := store.Batches()
	ledgerSvc := ledger.NewService(store.Ledger())
	txManager := memory.NewTxManager(store)
	batchSvc := batches.NewService(batchRepo, ledgerSvc, txManager)
	consumer := consumption.NewEngine(batchRepo, ledgerSvc, txManager, consumption.DefaultConfig())
	svc := production.NewService(store.Productions(), batchSvc, batchRepo, consumer, txManager, policy.DefaultStockRule())
	return &productionFixture{
		store:    store,
		batches:  batchRepo,
		batchSvc: batchSvc,
		service:  svc,
		location: entity.NewLocationRef(entity.LocationKindWarehouse, id.New()),
	}
}

func (f *productionFixture) stockMaterial(t *testing.T, materialID id.ID, qty float64, unitCost string) {
	t.Helper()
	owner := entity.NewOwnerRef(entity.OwnerKindMaterial, materialID)
	batch := entity.NewStockBatch(owner, f.location, types.NewQuantityFromFloat64(qty), types.MustMoney(unitCost), time.Now().UTC())
	require.NoError(t, f.batches.Create(context.Background(), batch))
}

// newOrder creates and persists a one-article order requiring 10 units
// of one material at 5.00 per unit.
func (f *productionFixture) newOrder(t *testing.T, materialID id.ID, articleQty int64) (*production.Production, production.Article) {
	t.Helper()
	p := production.NewProduction("bench run", f.location, time.Now().UTC())
	p.Materials = []production.Material{
		{MaterialID: materialID, Quantity: types.NewQuantityFromInt(10), UnitCost: types.MustMoney("5.00"), UnitDecimals: 0},
	}
	article := production.Article{ID: id.New(), Name: "bench", Quantity: types.NewQuantityFromInt(articleQty), Status: production.ArticleStatusDraft}
	p.Articles = []production.Article{article}
	require.NoError(t, f.service.Create(context.Background(), p))
	return p, article
}

func TestValidateArticleStock_Statuses(t *testing.T) {
	tests := []struct {
		name         string
		available    float64
		wantStatus   production.StockStatus
		wantValid    bool
		wantShortage types.Quantity
	}{
		{"shortage", 5, production.StockStatusOutOfStock, false, types.NewQuantityFromInt(5)},
		{"inside buffer", 11.9, production.StockStatusLowStock, true, 0},
		{"buffer boundary", 12, production.StockStatusSufficient, true, 0},
		{"well stocked", 40, production.StockStatusSufficient, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProductionFixture(t)
			materialID := id.New()
			f.stockMaterial(t, materialID, tt.available, "5.00")
			p, article := f.newOrder(t, materialID, 1)

			validation, err := f.service.ValidateArticleStock(context.Background(), p.ID, article.ID)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValid, validation.IsValid)
			require.Len(t, validation.Checks, 1)
			check := validation.Checks[0]
			assert.Equal(t, materialID, check.MaterialID)
			assert.Equal(t, types.NewQuantityFromInt(10), check.Required)
			assert.Equal(t, tt.wantStatus, check.Status)
			assert.Equal(t, tt.wantShortage, check.Shortage)
		})
	}
}

func TestPublishArticles_HappyPath(t *testing.T) {
	f := newProductionFixture(t)
	ctx := context.Background()

	materialID := id.New()
	f.stockMaterial(t, materialID, 40, "5.00")
	p, article := f.newOrder(t, materialID, 2)

	results, err := f.service.PublishArticles(ctx, p.ID, []production.PublishRequest{{ArticleID: article.ID}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	result := results[0]
	require.NoError(t, result.Err)

	// Cost price is the full material line: 10 * 5.00 = 50.00, spread
	// over 2 produced units.
	assert.True(t, result.CostPrice.Equal(types.MustMoney("50.00")), "got %s", result.CostPrice.String())
	assert.True(t, result.UnitCost.Equal(types.MustMoney("25.00")), "got %s", result.UnitCost.String())

	// Materials were consumed from stock.
	materialOwner := entity.NewOwnerRef(entity.OwnerKindMaterial, materialID)
	left, err := f.batches.AvailableQuantity(ctx, materialOwner, f.location)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(30), left)

	// The finished product landed as a new batch at the order's location.
	productBatch, err := f.batches.GetByID(ctx, result.BatchID)
	require.NoError(t, err)
	assert.Equal(t, entity.OwnerKindProduct, productBatch.OwnerKind)
	assert.Equal(t, article.ID, productBatch.OwnerID)
	assert.Equal(t, types.NewQuantityFromInt(2), productBatch.RemainingQuantity)
	assert.True(t, productBatch.UnitCost.Equal(types.MustMoney("25.00")))

	// The article flipped to published and the order version advanced.
	reloaded, err := f.service.Get(ctx, p.ID)
	require.NoError(t, err)
	published, err := reloaded.Article(article.ID)
	require.NoError(t, err)
	assert.Equal(t, production.ArticleStatusPublished, published.Status)
	assert.Equal(t, p.Version+1, reloaded.Version)
}

func TestPublishArticles_AlreadyPublished(t *testing.T) {
	f := newProductionFixture(t)
	ctx := context.Background()

	materialID := id.New()
	f.stockMaterial(t, materialID, 40, "5.00")
	p, article := f.newOrder(t, materialID, 2)

	results, err := f.service.PublishArticles(ctx, p.ID, []production.PublishRequest{{ArticleID: article.ID}})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	results, err = f.service.PublishArticles(ctx, p.ID, []production.PublishRequest{{ArticleID: article.ID}})
	require.NoError(t, err)
	require.Error(t, results[0].Err)
	assert.True(t, apperror.IsCode(results[0].Err, apperror.CodeConflict))
}

func TestPublishArticles_OutOfStockLeavesStockUntouched(t *testing.T) {
	f := newProductionFixture(t)
	ctx := context.Background()

	materialID := id.New()
	f.stockMaterial(t, materialID, 4, "5.00")
	p, article := f.newOrder(t, materialID, 2)

	results, err := f.service.PublishArticles(ctx, p.ID, []production.PublishRequest{{ArticleID: article.ID}})
	require.NoError(t, err)
	require.Error(t, results[0].Err)
	assert.True(t, apperror.IsCode(results[0].Err, apperror.CodeArticleOutOfStock))

	materialOwner := entity.NewOwnerRef(entity.OwnerKindMaterial, materialID)
	left, err := f.batches.AvailableQuantity(ctx, materialOwner, f.location)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromInt(4), left)

	reloaded, err := f.service.Get(ctx, p.ID)
	require.NoError(t, err)
	stillDraft, err := reloaded.Article(article.ID)
	require.NoError(t, err)
	assert.Equal(t, production.ArticleStatusDraft, stillDraft.Status)
}

func TestPublishArticles_FailuresAreIndependent(t *testing.T) {
	f := newProductionFixture(t)
	ctx := context.Background()

	cheap := id.New()
	scarce := id.New()
	f.stockMaterial(t, cheap, 100, "1.00")
	f.stockMaterial(t, scarce, 1, "8.00")

	p := production.NewProduction("mixed run", f.location, time.Now().UTC())
	ok := production.Article{
		ID: id.New(), Name: "ok", Quantity: types.NewQuantityFromInt(1), Status: production.ArticleStatusDraft,
		Materials: []production.Material{
			{MaterialID: cheap, Quantity: types.NewQuantityFromInt(5), UnitCost: types.MustMoney("1.00"), UnitDecimals: 0},
		},
	}
	starved := production.Article{
		ID: id.New(), Name: "starved", Quantity: types.NewQuantityFromInt(1), Status: production.ArticleStatusDraft,
		Materials: []production.Material{
			{MaterialID: scarce, Quantity: types.NewQuantityFromInt(3), UnitCost: types.MustMoney("8.00"), UnitDecimals: 0},
		},
	}
	p.Articles = []production.Article{ok, starved}
	require.NoError(t, f.service.Create(ctx, p))

	results, err := f.service.PublishArticles(ctx, p.ID, []production.PublishRequest{
		{ArticleID: ok.ID},
		{ArticleID: starved.ID},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.NoError(t, results[0].Err)
	require.Error(t, results[1].Err)
	assert.True(t, apperror.IsCode(results[1].Err, apperror.CodeArticleOutOfStock))

	// The successful article's side effects survived the other's failure.
	reloaded, err := f.service.Get(ctx, p.ID)
	require.NoError(t, err)
	first, err := reloaded.Article(ok.ID)
	require.NoError(t, err)
	assert.Equal(t, production.ArticleStatusPublished, first.Status)
}

func TestPublishArticles_ChargesIncludedInCostPrice(t *testing.T) {
	f := newProductionFixture(t)
	ctx := context.Background()

	materialID := id.New()
	f.stockMaterial(t, materialID, 40, "5.00")

	p := production.NewProduction("charged run", f.location, time.Now().UTC())
	p.Materials = []production.Material{
		{MaterialID: materialID, Quantity: types.NewQuantityFromInt(10), UnitCost: types.MustMoney("5.00"), UnitDecimals: 0},
	}
	article := production.Article{ID: id.New(), Name: "bench", Quantity: types.NewQuantityFromInt(2), Status: production.ArticleStatusDraft}
	labor := production.Charge{ID: id.New(), Name: "labor", Amount: types.MustMoney("30.00")}
	p.Articles = []production.Article{article}
	p.Charges = []production.Charge{labor}
	require.NoError(t, f.service.Create(ctx, p))

	results, err := f.service.PublishArticles(ctx, p.ID, []production.PublishRequest{
		{ArticleID: article.ID, ChargeIDs: []id.ID{labor.ID}},
	})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	// 10 * 5.00 materials + 30.00 labor = 80.00, unit cost 40.00.
	assert.True(t, results[0].CostPrice.Equal(types.MustMoney("80.00")), "got %s", results[0].CostPrice.String())
	assert.True(t, results[0].UnitCost.Equal(types.MustMoney("40.00")))
}

// lostRaceBatchRepo fails the n-th decrement once with an optimistic
// lock error, simulating a competing writer mid-consumption.
type lostRaceBatchRepo struct {
	*memory.BatchRepo
	decrements int
	failOn     int
}

func (r *lostRaceBatchRepo) Decrement(ctx context.Context, batchID id.ID, qty types.Quantity, expectedVersion int) (*entity.StockBatch, error) {
	r.decrements++
	if r.decrements == r.failOn {
		return nil, apperror.NewConcurrentModification("stock_batch", batchID)
	}
	return r.BatchRepo.Decrement(ctx, batchID, qty, expectedVersion)
}

func TestPublishArticles_LostRaceRetryKeepsConservation(t *testing.T) {
	store := memory.NewStore()
	repo := &lostRaceBatchRepo{BatchRepo: store.Batches(), failOn: 2}
	ledgerSvc := ledger.NewService(store.Ledger())
	txManager := memory.NewTxManager(store)
	batchSvc := batches.NewService(repo, ledgerSvc, txManager)
	consumer := consumption.NewEngine(repo, ledgerSvc, txManager, consumption.DefaultConfig())
	svc := production.NewService(store.Productions(), batchSvc, repo, consumer, txManager, policy.DefaultStockRule())

	ctx := context.Background()
	location := entity.NewLocationRef(entity.LocationKindWarehouse, id.New())
	materialID := id.New()
	owner := entity.NewOwnerRef(entity.OwnerKindMaterial, materialID)
	base := time.Now().UTC()
	for i := 0; i < 2; i++ {
		b := entity.NewStockBatch(owner, location, types.NewQuantityFromFloat64(6), types.MustMoney("5.00"), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, b))
	}

	p := production.NewProduction("bench run", location, base)
	p.Materials = []production.Material{
		{MaterialID: materialID, Quantity: types.NewQuantityFromInt(10), UnitCost: types.MustMoney("5.00"), UnitDecimals: 0},
	}
	article := production.Article{ID: id.New(), Name: "bench", Quantity: types.NewQuantityFromInt(2), Status: production.ArticleStatusDraft}
	p.Articles = []production.Article{article}
	require.NoError(t, svc.Create(ctx, p))

	results, err := svc.PublishArticles(ctx, p.ID, []production.PublishRequest{{ArticleID: article.ID}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)

	// Publishing needs 10 of the 12 stocked units. The attempt that
	// lost its race had already drained the first batch; that drain
	// must not survive into the retry, so exactly 2 units remain.
	left, err := repo.AvailableQuantity(ctx, owner, location)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(2), left)
}

func TestPublishArticles_EmptyRequest(t *testing.T) {
	f := newProductionFixture(t)

	_, err := f.service.PublishArticles(context.Background(), id.New(), nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestCreate_Validation(t *testing.T) {
	f := newProductionFixture(t)

	p := production.NewProduction("", f.location, time.Now().UTC())
	err := f.service.Create(context.Background(), p)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}
