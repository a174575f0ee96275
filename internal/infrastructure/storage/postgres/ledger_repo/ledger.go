// Package ledger_repo provides the PostgreSQL implementation of the
// valuation ledger. Entries are insert-only; there is no update path.
package ledger_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/infrastructure/storage/postgres"
)

const changesTable = "stock_changes"

var changeColumns = []string{
	"id", "owner_kind", "owner_id", "location_kind", "location_id",
	"delta", "reason", "consumptions", "legacy_unit_cost",
	"supplier_ref", "is_own_purchase", "is_credit", "transfer_ref",
	"created_at",
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// changeRow is the scan target; consumptions live in a JSONB column.
type changeRow struct {
	ID             id.ID               `db:"id"`
	OwnerKind      entity.OwnerKind    `db:"owner_kind"`
	OwnerID        id.ID               `db:"owner_id"`
	LocationKind   entity.LocationKind `db:"location_kind"`
	LocationID     id.ID               `db:"location_id"`
	Delta          types.Quantity      `db:"delta"`
	Reason         entity.ChangeReason `db:"reason"`
	Consumptions   []byte              `db:"consumptions"`
	LegacyUnitCost *types.Money        `db:"legacy_unit_cost"`
	SupplierRef    *string             `db:"supplier_ref"`
	IsOwnPurchase  *bool               `db:"is_own_purchase"`
	IsCredit       *bool               `db:"is_credit"`
	TransferRef    *id.ID              `db:"transfer_ref"`
	CreatedAt      time.Time           `db:"created_at"`
}

// Append inserts a new ledger entry.
func (r *LedgerRepo) Append(ctx context.Context, change *entity.StockChange) error {
	consumptions, err := json.Marshal(change.Consumptions)
	if err != nil {
		return fmt.Errorf("marshal consumptions: %w", err)
	}

	q := r.builder.Insert(changesTable).
		Columns(changeColumns...).
		Values(
			change.ID, change.OwnerKind, change.OwnerID, change.LocationKind, change.LocationID,
			change.Delta, change.Reason, consumptions, change.LegacyUnitCost,
			change.SupplierRef, change.IsOwnPurchase, change.IsCredit, change.TransferRef,
			change.CreatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert stock change: %w", err)
	}

	return nil
}

// List returns entries in ledger order.
func (r *LedgerRepo) List(ctx context.Context, filter ledger.Filter) ([]entity.StockChange, error) {
	q := r.builder.Select(changeColumns...).
		From(changesTable).
		OrderBy("created_at ASC", "id ASC")

	if filter.Owner != nil {
		q = q.Where(squirrel.Eq{
			"owner_kind": filter.Owner.Kind,
			"owner_id":   filter.Owner.ID,
		})
	}
	if filter.Location != nil {
		q = q.Where(squirrel.Eq{
			"location_kind": filter.Location.Kind,
			"location_id":   filter.Location.ID,
		})
	}
	if filter.Reason != nil {
		q = q.Where(squirrel.Eq{"reason": *filter.Reason})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []changeRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock changes: %w", err)
	}

	changes := make([]entity.StockChange, 0, len(rows))
	for _, row := range rows {
		change, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}

	return changes, nil
}

func (row changeRow) toEntity() (entity.StockChange, error) {
	change := entity.StockChange{
		ID:             row.ID,
		OwnerKind:      row.OwnerKind,
		OwnerID:        row.OwnerID,
		LocationKind:   row.LocationKind,
		LocationID:     row.LocationID,
		Delta:          row.Delta,
		Reason:         row.Reason,
		LegacyUnitCost: row.LegacyUnitCost,
		SupplierRef:    row.SupplierRef,
		IsOwnPurchase:  row.IsOwnPurchase,
		IsCredit:       row.IsCredit,
		TransferRef:    row.TransferRef,
		CreatedAt:      row.CreatedAt,
	}
	if len(row.Consumptions) > 0 {
		if err := json.Unmarshal(row.Consumptions, &change.Consumptions); err != nil {
			return entity.StockChange{}, fmt.Errorf("unmarshal consumptions: %w", err)
		}
	}
	return change, nil
}
