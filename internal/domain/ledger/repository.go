// Package ledger provides the append-only stock valuation ledger.
package ledger

import (
	"context"
	"time"

	"lotledger/internal/core/entity"
)

// Repository defines operations for the valuation ledger.
// Entries are immutable: appended once, never updated or deleted.
type Repository interface {
	// Append inserts a new ledger entry.
	Append(ctx context.Context, change *entity.StockChange) error

	// List returns entries matching the filter, ordered by created_at
	// ascending then id ascending (ledger order).
	List(ctx context.Context, filter Filter) ([]entity.StockChange, error)
}

// Filter narrows ledger queries.
type Filter struct {
	Owner    *entity.OwnerRef
	Location *entity.LocationRef
	Reason   *entity.ChangeReason
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
