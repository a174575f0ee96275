package handlers

import (
	"github.com/gin-gonic/gin"

	"lotledger/internal/core/entity"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/costing"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// BatchHandler provides batch endpoints: restock, damage write-off and
// cost correction.
type BatchHandler struct {
	*BaseHandler
	batches *batches.Service
	costing *costing.Service
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(base *BaseHandler, batchSvc *batches.Service, costingSvc *costing.Service) *BatchHandler {
	return &BatchHandler{BaseHandler: base, batches: batchSvc, costing: costingSvc}
}

// Restock handles POST /batches.
func (h *BatchHandler) Restock(c *gin.Context) {
	var req dto.RestockRequest
	if !h.BindJSON(c, &req) {
		return
	}

	owner, err := req.Owner.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	location, err := req.Location.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	batchID, err := h.batches.Restock(c.Request.Context(), batches.RestockInput{
		Owner:         owner,
		Location:      location,
		Quantity:      types.NewQuantityFromFloat64(req.Quantity),
		UnitCost:      req.UnitCost,
		Reason:        entity.ChangeReason(req.Reason),
		SupplierRef:   req.SupplierRef,
		IsOwnPurchase: req.IsOwnPurchase,
		IsCredit:      req.IsCredit,
	})
	if err != nil {
		h.Error(c, err)
		return
	}

	h.Created(c, batchID)
}

// Get handles GET /batches/:id.
func (h *BatchHandler) Get(c *gin.Context) {
	batchID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	batch, err := h.batches.GetByID(c.Request.Context(), batchID)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromBatch(batch))
}

// Damage handles POST /batches/:id/damage.
func (h *BatchHandler) Damage(c *gin.Context) {
	batchID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.DamageRequest
	if !h.BindJSON(c, &req) {
		return
	}

	change, err := h.batches.MarkDamaged(c.Request.Context(), batchID, types.NewQuantityFromFloat64(req.Quantity))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStockChange(change))
}

// CorrectCost handles PUT /batches/:id/cost.
func (h *BatchHandler) CorrectCost(c *gin.Context) {
	batchID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}

	var req dto.CorrectCostRequest
	if !h.BindJSON(c, &req) {
		return
	}

	change, err := h.costing.CorrectCost(c.Request.Context(), batchID, req.UnitCost)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStockChange(change))
}
