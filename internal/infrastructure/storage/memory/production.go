package memory

import (
	"context"
	"sort"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/production"
)

var _ production.Repository = (*ProductionRepo)(nil)

// ProductionRepo is the in-memory production order store.
type ProductionRepo struct {
	store *Store
}

func (r *ProductionRepo) Create(ctx context.Context, p *production.Production) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	if _, exists := r.store.productions[p.ID]; exists {
		return apperror.NewConflict("production already exists").WithDetail("productionId", p.ID.String())
	}
	r.store.productions[p.ID] = cloneProduction(p)
	return nil
}

func (r *ProductionRepo) GetByID(ctx context.Context, productionID id.ID) (*production.Production, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	p, ok := r.store.productions[productionID]
	if !ok {
		return nil, apperror.NewNotFound("production", productionID)
	}
	return cloneProduction(p), nil
}

func (r *ProductionRepo) Update(ctx context.Context, p *production.Production, expectedVersion int) error {
	unlock := r.store.lock(ctx)
	defer unlock()

	existing, ok := r.store.productions[p.ID]
	if !ok {
		return apperror.NewNotFound("production", p.ID)
	}
	if existing.Version != expectedVersion {
		return apperror.NewConcurrentModification("production", p.ID)
	}

	r.store.productions[p.ID] = cloneProduction(p)
	return nil
}

func (r *ProductionRepo) List(ctx context.Context, limit, offset int) ([]*production.Production, error) {
	unlock := r.store.lock(ctx)
	defer unlock()

	result := make([]*production.Production, 0, len(r.store.productions))
	for _, p := range r.store.productions {
		result = append(result, cloneProduction(p))
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(result) {
			return nil, nil
		}
		result = result[offset:]
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}
