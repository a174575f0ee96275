package ledger

import (
	"context"
	"fmt"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/pkg/logger"
)

// Service appends to and reads the valuation ledger.
type Service struct {
	repo Repository
}

// NewService creates a new ledger service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Append validates and writes one ledger entry. Called by the engines
// within their transactions, after batch mutations have committed.
func (s *Service) Append(ctx context.Context, change *entity.StockChange) error {
	if id.IsNil(change.ID) {
		return apperror.NewValidation("ledger entry id is required")
	}
	if !change.Reason.IsValid() {
		return apperror.NewValidation("unknown change reason").WithDetail("reason", string(change.Reason))
	}
	// A negative delta must be fully attributed to the batches it drew from.
	if change.Delta.IsNegative() && change.ConsumedTotal() != change.Delta.Abs() {
		return apperror.NewValidation("consumption trail does not cover delta").
			WithDetail("delta", change.Delta.String()).
			WithDetail("attributed", change.ConsumedTotal().String())
	}

	if err := s.repo.Append(ctx, change); err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	logger.Debug(ctx, "ledger entry appended",
		"change_id", change.ID,
		"owner_id", change.OwnerID,
		"reason", change.Reason,
		"delta", change.Delta.String(),
	)
	return nil
}

// History returns ledger entries matching the filter.
func (s *Service) History(ctx context.Context, filter Filter) ([]entity.StockChange, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	return s.repo.List(ctx, filter)
}
