package production

import (
	"context"

	"lotledger/internal/core/id"
)

// Repository persists production orders. Update is guarded by the
// version the entity was loaded with; a stale write must return a
// CONCURRENT_MODIFICATION error.
type Repository interface {
	Create(ctx context.Context, p *Production) error
	GetByID(ctx context.Context, productionID id.ID) (*Production, error)
	Update(ctx context.Context, p *Production, expectedVersion int) error
	List(ctx context.Context, limit, offset int) ([]*Production, error)
}
