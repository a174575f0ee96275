package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/domain/production"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// ProductionHandler provides production order endpoints.
type ProductionHandler struct {
	*BaseHandler
	service *production.Service
}

// NewProductionHandler creates a new production handler.
func NewProductionHandler(base *BaseHandler, service *production.Service) *ProductionHandler {
	return &ProductionHandler{BaseHandler: base, service: service}
}

// Create handles POST /productions.
func (h *ProductionHandler) Create(c *gin.Context) {
	var req dto.CreateProductionRequest
	if !h.BindJSON(c, &req) {
		return
	}

	p, err := req.ToEntity(time.Now().UTC())
	if err != nil {
		h.Error(c, err)
		return
	}

	if err := h.service.Create(c.Request.Context(), p); err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, p.ID)
}

// List handles GET /productions.
func (h *ProductionHandler) List(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 50)
	offset := h.ParseIntQuery(c, "offset", 0)

	list, err := h.service.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.ProductionResponse, 0, len(list))
	for _, p := range list {
		items = append(items, dto.FromProduction(p))
	}
	h.OK(c, dto.ListResponse{Items: items, Limit: limit, Offset: offset})
}

// Get handles GET /productions/:id.
func (h *ProductionHandler) Get(c *gin.Context) {
	productionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	p, err := h.service.Get(c.Request.Context(), productionID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromProduction(p))
}

// Allocation handles GET /productions/:id/articles/:articleId/allocation.
func (h *ProductionHandler) Allocation(c *gin.Context) {
	productionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	articleID, ok := h.ParseID(c, "articleId")
	if !ok {
		return
	}

	reqs, err := h.service.Allocate(c.Request.Context(), productionID, articleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromRequirements(reqs))
}

// ValidateStock handles GET /productions/:id/articles/:articleId/stock-validation.
func (h *ProductionHandler) ValidateStock(c *gin.Context) {
	productionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	articleID, ok := h.ParseID(c, "articleId")
	if !ok {
		return
	}

	validation, err := h.service.ValidateArticleStock(c.Request.Context(), productionID, articleID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromValidation(validation))
}

// Publish handles POST /productions/:id/publish. Results are reported
// per article; partial failure returns 200 with error entries.
func (h *ProductionHandler) Publish(c *gin.Context) {
	productionID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.PublishRequest
	if !h.BindJSON(c, &req) {
		return
	}

	requests, err := req.ToDomain()
	if err != nil {
		h.Error(c, err)
		return
	}

	results, err := h.service.PublishArticles(c.Request.Context(), productionID, requests)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.PublishResultResponse, 0, len(results))
	for _, res := range results {
		item := dto.PublishResultResponse{
			ArticleID: res.ArticleID.String(),
			Published: res.Err == nil,
			CostPrice: res.CostPrice,
			UnitCost:  res.UnitCost,
		}
		if res.Err == nil {
			item.BatchID = res.BatchID.String()
		} else if appErr, ok := apperror.AsAppError(res.Err); ok {
			item.Error = &dto.ErrorResponse{
				Code:    appErr.Code,
				Message: appErr.Message,
				Details: appErr.Details,
			}
		} else {
			item.Error = &dto.ErrorResponse{
				Code:    apperror.CodeInternal,
				Message: "Internal server error",
			}
		}
		items = append(items, item)
	}

	h.OK(c, items)
}
