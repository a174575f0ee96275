package memory

import (
	"context"
	"sort"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/domain/ledger"
)

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo is the in-memory valuation ledger. Append-only.
type LedgerRepo struct {
	store *Store
}

func (r *LedgerRepo) Append(ctx context.Context, change *entity.StockChange) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	for _, existing := range r.store.changes {
		if existing.ID == change.ID {
			return apperror.NewConflict("ledger entry already exists").
				WithDetail("changeId", change.ID.String())
		}
	}
	r.store.changes = append(r.store.changes, cloneChange(*change))
	return nil
}

func (r *LedgerRepo) List(ctx context.Context, filter ledger.Filter) ([]entity.StockChange, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	var result []entity.StockChange
	for _, ch := range r.store.changes {
		if filter.Owner != nil && !ch.Owner().Equal(*filter.Owner) {
			continue
		}
		if filter.Location != nil && !ch.Location().Equal(*filter.Location) {
			continue
		}
		if filter.Reason != nil && ch.Reason != *filter.Reason {
			continue
		}
		if filter.FromDate != nil && ch.CreatedAt.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && ch.CreatedAt.After(*filter.ToDate) {
			continue
		}
		result = append(result, cloneChange(ch))
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() < result[j].ID.String()
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}
