package production

import (
	"context"
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/tx"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/policy"
	"lotledger/pkg/logger"
)

// StockStatus classifies material availability against an allocated
// requirement.
type StockStatus string

const (
	StockStatusSufficient StockStatus = "sufficient"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

// MaterialStockCheck is the availability verdict for one material line.
// Shortage is zero unless the status is out_of_stock.
type MaterialStockCheck struct {
	MaterialID id.ID          `json:"materialId"`
	Required   types.Quantity `json:"required"`
	Available  types.Quantity `json:"available"`
	Status     StockStatus    `json:"status"`
	Shortage   types.Quantity `json:"shortage,omitempty"`
}

// ArticleStockValidation aggregates the per-material checks of one
// article. IsValid means every material at least covers its requirement;
// low_stock lines do not block publication.
type ArticleStockValidation struct {
	ArticleID id.ID                `json:"articleId"`
	IsValid   bool                 `json:"isValid"`
	Checks    []MaterialStockCheck `json:"checks"`
}

// PublishRequest names an article to publish and the charge lines to
// fold into its cost price.
type PublishRequest struct {
	ArticleID id.ID   `json:"articleId"`
	ChargeIDs []id.ID `json:"chargeIds,omitempty"`
}

// PublishResult reports the outcome of one article's publication.
// Failures are carried per article; one article failing does not undo
// the others.
type PublishResult struct {
	ArticleID id.ID       `json:"articleId"`
	BatchID   id.ID       `json:"batchId,omitempty"`
	CostPrice types.Money `json:"costPrice"`
	UnitCost  types.Money `json:"unitCost"`
	Err       error       `json:"-"`
}

// Service manages production orders and turns draft articles into
// product stock.
type Service struct {
	repo      Repository
	batchSvc  *batches.Service
	batchRepo batches.Repository
	consumer  *consumption.Engine
	txManager tx.Manager
	rule      *policy.StockRule
	now       func() time.Time
}

// NewService creates a production service. A nil rule falls back to the
// default low-stock buffer.
func NewService(
	repo Repository,
	batchSvc *batches.Service,
	batchRepo batches.Repository,
	consumer *consumption.Engine,
	txManager tx.Manager,
	rule *policy.StockRule,
) *Service {
	if rule == nil {
		rule = policy.DefaultStockRule()
	}
	return &Service{
		repo:      repo,
		batchSvc:  batchSvc,
		batchRepo: batchRepo,
		consumer:  consumer,
		txManager: txManager,
		rule:      rule,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithNow overrides the clock (tests).
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates and persists a new production order.
func (s *Service) Create(ctx context.Context, p *Production) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, p)
}

// Get loads a production order.
func (s *Service) Get(ctx context.Context, productionID id.ID) (*Production, error) {
	return s.repo.GetByID(ctx, productionID)
}

// List pages through production orders.
func (s *Service) List(ctx context.Context, limit, offset int) ([]*Production, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// Allocate returns the material requirements of one article.
func (s *Service) Allocate(ctx context.Context, productionID, articleID id.ID) ([]MaterialRequirement, error) {
	p, err := s.repo.GetByID(ctx, productionID)
	if err != nil {
		return nil, err
	}
	return AllocateArticleMaterials(p, articleID)
}

// ValidateArticleStock checks every allocated material of an article
// against current batch availability at the production's location.
func (s *Service) ValidateArticleStock(ctx context.Context, productionID, articleID id.ID) (*ArticleStockValidation, error) {
	p, err := s.repo.GetByID(ctx, productionID)
	if err != nil {
		return nil, err
	}
	return s.validateArticleStock(ctx, p, articleID)
}

func (s *Service) validateArticleStock(ctx context.Context, p *Production, articleID id.ID) (*ArticleStockValidation, error) {
	reqs, err := AllocateArticleMaterials(p, articleID)
	if err != nil {
		return nil, err
	}

	result := &ArticleStockValidation{
		ArticleID: articleID,
		IsValid:   true,
		Checks:    make([]MaterialStockCheck, 0, len(reqs)),
	}
	for _, req := range reqs {
		owner := entity.OwnerRef{Kind: entity.OwnerKindMaterial, ID: req.MaterialID}
		available, err := s.batchRepo.AvailableQuantity(ctx, owner, p.Location)
		if err != nil {
			return nil, err
		}

		check := MaterialStockCheck{
			MaterialID: req.MaterialID,
			Required:   req.Quantity,
			Available:  available,
			Status:     StockStatusSufficient,
		}
		switch {
		case available < req.Quantity:
			check.Status = StockStatusOutOfStock
			check.Shortage = req.Quantity - available
			result.IsValid = false
		default:
			low, err := s.rule.IsLowStock(available.Float64(), req.Quantity.Float64())
			if err != nil {
				return nil, apperror.NewInternal(err)
			}
			if low {
				check.Status = StockStatusLowStock
			}
		}
		result.Checks = append(result.Checks, check)
	}
	return result, nil
}

// PublishArticles publishes the requested articles one by one. Each
// article is its own atomic unit: material consumption, product batch
// creation and the status flip either all land or all roll back. A
// failed article is reported in its result and does not affect the
// others.
func (s *Service) PublishArticles(ctx context.Context, productionID id.ID, requests []PublishRequest) ([]PublishResult, error) {
	if len(requests) == 0 {
		return nil, apperror.NewValidation("no articles requested for publication")
	}

	results := make([]PublishResult, 0, len(requests))
	for _, req := range requests {
		result := s.publishArticle(ctx, productionID, req)
		if result.Err != nil {
			logger.Warn(ctx, "article publication failed",
				"production_id", productionID.String(),
				"article_id", req.ArticleID.String(),
				"error", result.Err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) publishArticle(ctx context.Context, productionID id.ID, req PublishRequest) PublishResult {
	result := PublishResult{ArticleID: req.ArticleID, CostPrice: types.ZeroMoney(), UnitCost: types.ZeroMoney()}

	// The order is re-read per article so that a stock mutation made by
	// an earlier article in the same request is visible here.
	p, err := s.repo.GetByID(ctx, productionID)
	if err != nil {
		result.Err = err
		return result
	}

	article, err := p.Article(req.ArticleID)
	if err != nil {
		result.Err = err
		return result
	}
	if article.Status == ArticleStatusPublished {
		result.Err = apperror.NewConflict("article is already published").
			WithDetail("articleId", req.ArticleID.String())
		return result
	}

	validation, err := s.validateArticleStock(ctx, p, req.ArticleID)
	if err != nil {
		result.Err = err
		return result
	}
	if !validation.IsValid {
		appErr := apperror.NewArticleOutOfStock(req.ArticleID.String())
		for _, check := range validation.Checks {
			if check.Status == StockStatusOutOfStock {
				appErr = appErr.WithDetail(check.MaterialID.String(), map[string]any{
					"required":  check.Required.Float64(),
					"available": check.Available.Float64(),
					"shortage":  check.Shortage.Float64(),
				})
			}
		}
		result.Err = appErr
		return result
	}

	costPrice, reqs, err := ArticleCostPrice(p, req.ArticleID, req.ChargeIDs)
	if err != nil {
		result.Err = err
		return result
	}
	unitCost := costPrice.Div(article.Quantity.Decimal()).Round(types.DefaultMinorUnitDecimals)

	err = s.txManager.RunInTransaction(ctx, func(txCtx context.Context) error {
		for _, matReq := range reqs {
			if !matReq.Quantity.IsPositive() {
				continue
			}
			owner := entity.OwnerRef{Kind: entity.OwnerKindMaterial, ID: matReq.MaterialID}
			if _, err := s.consumer.Consume(txCtx, owner, p.Location, matReq.Quantity, entity.ReasonAdjustment); err != nil {
				return err
			}
		}

		batchID, err := s.batchSvc.Restock(txCtx, batches.RestockInput{
			Owner:    entity.OwnerRef{Kind: entity.OwnerKindProduct, ID: article.ID},
			Location: p.Location,
			Quantity: article.Quantity,
			UnitCost: unitCost,
			Reason:   entity.ReasonCreation,
		})
		if err != nil {
			return err
		}
		result.BatchID = batchID

		article.Status = ArticleStatusPublished
		expected := p.Version
		p.Touch(s.now())
		return s.repo.Update(txCtx, p, expected)
	})
	if err != nil {
		result.Err = err
		return result
	}

	result.CostPrice = costPrice
	result.UnitCost = unitCost
	return result
}
