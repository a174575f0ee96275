package ledger

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
)

type recordingRepo struct {
	entries    []entity.StockChange
	lastFilter Filter
}

func (r *recordingRepo) Append(ctx context.Context, change *entity.StockChange) error {
	r.entries = append(r.entries, *change)
	return nil
}

func (r *recordingRepo) List(ctx context.Context, filter Filter) ([]entity.StockChange, error) {
	r.lastFilter = filter
	return r.entries, nil
}

func testChange(delta types.Quantity, reason entity.ChangeReason) *entity.StockChange {
	owner := entity.NewOwnerRef(entity.OwnerKindProduct, id.New())
	location := entity.NewLocationRef(entity.LocationKindShop, id.New())
	return entity.NewStockChange(owner, location, delta, reason, time.Now().UTC())
}

func TestAppend_RequiresFullAttribution(t *testing.T) {
	repo := &recordingRepo{}
	svc := NewService(repo)
	ctx := context.Background()

	// A removal whose trail does not cover the delta is rejected.
	change := testChange(types.NewQuantityFromInt(-7), entity.ReasonSale)
	change.Consumptions = []entity.BatchConsumption{
		{BatchID: id.New(), ConsumedQuantity: types.NewQuantityFromInt(5)},
	}
	err := svc.Append(ctx, change)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	assert.Empty(t, repo.entries)

	// Fully attributed removals pass.
	change.Consumptions = append(change.Consumptions, entity.BatchConsumption{
		BatchID: id.New(), ConsumedQuantity: types.NewQuantityFromInt(2),
	})
	require.NoError(t, svc.Append(ctx, change))
	assert.Len(t, repo.entries, 1)

	// Pure additions carry no trail at all.
	require.NoError(t, svc.Append(ctx, testChange(types.NewQuantityFromInt(3), entity.ReasonRestock)))
}

func TestAppend_RejectsMalformedEntries(t *testing.T) {
	svc := NewService(&recordingRepo{})
	ctx := context.Background()

	missing := testChange(types.NewQuantityFromInt(1), entity.ReasonRestock)
	missing.ID = id.Nil()
	assert.True(t, apperror.IsCode(svc.Append(ctx, missing), apperror.CodeValidation))

	bogus := testChange(types.NewQuantityFromInt(1), "evaporation")
	assert.True(t, apperror.IsCode(svc.Append(ctx, bogus), apperror.CodeValidation))
}

func TestHistory_DefaultsLimit(t *testing.T) {
	repo := &recordingRepo{}
	svc := NewService(repo)

	_, err := svc.History(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 100, repo.lastFilter.Limit)

	_, err = svc.History(context.Background(), Filter{Limit: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, repo.lastFilter.Limit)
}
