// Package production_repo provides the PostgreSQL implementation of the
// production order store. Line collections are stored as JSONB; orders
// are small enough that relational line tables would buy nothing.
package production_repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/domain/production"
	"lotledger/internal/infrastructure/storage/postgres"
)

const productionsTable = "productions"

var productionColumns = []string{
	"id", "name", "location_kind", "location_id",
	"materials", "articles", "charges",
	"version", "created_at", "updated_at",
}

var _ production.Repository = (*ProductionRepo)(nil)

// ProductionRepo implements production.Repository.
type ProductionRepo struct {
	txManager *postgres.TxManager
	builder   squirrel.StatementBuilderType
}

// NewProductionRepo creates a new production repository.
func NewProductionRepo(txManager *postgres.TxManager) *ProductionRepo {
	return &ProductionRepo{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

type productionRow struct {
	ID           id.ID               `db:"id"`
	Name         string              `db:"name"`
	LocationKind entity.LocationKind `db:"location_kind"`
	LocationID   id.ID               `db:"location_id"`
	Materials    []byte              `db:"materials"`
	Articles     []byte              `db:"articles"`
	Charges      []byte              `db:"charges"`
	Version      int                 `db:"version"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

// Create inserts a new production order.
func (r *ProductionRepo) Create(ctx context.Context, p *production.Production) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}

	q := r.builder.Insert(productionsTable).
		Columns(productionColumns...).
		Values(
			row.ID, row.Name, row.LocationKind, row.LocationID,
			row.Materials, row.Articles, row.Charges,
			row.Version, row.CreatedAt, row.UpdatedAt,
		)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert production: %w", err)
	}

	return nil
}

// GetByID retrieves a production order.
func (r *ProductionRepo) GetByID(ctx context.Context, productionID id.ID) (*production.Production, error) {
	q := r.builder.Select(productionColumns...).
		From(productionsTable).
		Where(squirrel.Eq{"id": productionID})

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var row productionRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NewNotFound("production", productionID)
		}
		return nil, fmt.Errorf("get production: %w", err)
	}

	return fromRow(row)
}

// Update rewrites a production order, conditionally on version.
func (r *ProductionRepo) Update(ctx context.Context, p *production.Production, expectedVersion int) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}

	q := r.builder.Update(productionsTable).
		Set("name", row.Name).
		Set("materials", row.Materials).
		Set("articles", row.Articles).
		Set("charges", row.Charges).
		Set("version", row.Version).
		Set("updated_at", row.UpdatedAt).
		Where(squirrel.Eq{
			"id":      row.ID,
			"version": expectedVersion,
		})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	result, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update production: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("production", p.ID)
	}

	return nil
}

// List pages through production orders, newest first.
func (r *ProductionRepo) List(ctx context.Context, limit, offset int) ([]*production.Production, error) {
	q := r.builder.Select(productionColumns...).
		From(productionsTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))

	if offset > 0 {
		q = q.Offset(uint64(offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []productionRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select productions: %w", err)
	}

	result := make([]*production.Production, 0, len(rows))
	for _, row := range rows {
		p, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}

	return result, nil
}

func toRow(p *production.Production) (productionRow, error) {
	materials, err := json.Marshal(p.Materials)
	if err != nil {
		return productionRow{}, fmt.Errorf("marshal materials: %w", err)
	}
	articles, err := json.Marshal(p.Articles)
	if err != nil {
		return productionRow{}, fmt.Errorf("marshal articles: %w", err)
	}
	charges, err := json.Marshal(p.Charges)
	if err != nil {
		return productionRow{}, fmt.Errorf("marshal charges: %w", err)
	}

	return productionRow{
		ID:           p.ID,
		Name:         p.Name,
		LocationKind: p.Location.Kind,
		LocationID:   p.Location.ID,
		Materials:    materials,
		Articles:     articles,
		Charges:      charges,
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}, nil
}

func fromRow(row productionRow) (*production.Production, error) {
	p := &production.Production{
		ID:   row.ID,
		Name: row.Name,
		Location: entity.LocationRef{
			Kind: row.LocationKind,
			ID:   row.LocationID,
		},
		Version:   row.Version,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}

	if len(row.Materials) > 0 {
		if err := json.Unmarshal(row.Materials, &p.Materials); err != nil {
			return nil, fmt.Errorf("unmarshal materials: %w", err)
		}
	}
	if len(row.Articles) > 0 {
		if err := json.Unmarshal(row.Articles, &p.Articles); err != nil {
			return nil, fmt.Errorf("unmarshal articles: %w", err)
		}
	}
	if len(row.Charges) > 0 {
		if err := json.Unmarshal(row.Charges, &p.Charges); err != nil {
			return nil, fmt.Errorf("unmarshal charges: %w", err)
		}
	}

	return p, nil
}
