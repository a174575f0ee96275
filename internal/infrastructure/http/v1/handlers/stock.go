package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/batches"
	"lotledger/internal/domain/consumption"
	"lotledger/internal/domain/costing"
	"lotledger/internal/domain/ledger"
	"lotledger/internal/domain/transfer"
	"lotledger/internal/infrastructure/http/v1/dto"
)

// StockHandler provides stock operations: consumption, transfer,
// availability, latest cost and ledger history.
type StockHandler struct {
	*BaseHandler
	consumer *consumption.Engine
	transfer *transfer.Engine
	batches  *batches.Service
	costing  *costing.Service
	ledger   *ledger.Service
}

// NewStockHandler creates a new stock handler.
func NewStockHandler(
	base *BaseHandler,
	consumer *consumption.Engine,
	transferEngine *transfer.Engine,
	batchSvc *batches.Service,
	costingSvc *costing.Service,
	ledgerSvc *ledger.Service,
) *StockHandler {
	return &StockHandler{
		BaseHandler: base,
		consumer:    consumer,
		transfer:    transferEngine,
		batches:     batchSvc,
		costing:     costingSvc,
		ledger:      ledgerSvc,
	}
}

// Consume handles POST /stock/consume.
func (h *StockHandler) Consume(c *gin.Context) {
	var req dto.ConsumeRequest
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

	change, err := h.consumer.Consume(c.Request.Context(), owner, location,
		types.NewQuantityFromFloat64(req.Quantity), entity.ChangeReason(req.Reason))
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStockChange(change))
}

// Transfer handles POST /stock/transfer.
func (h *StockHandler) Transfer(c *gin.Context) {
	var req dto.TransferRequest
	if !h.BindJSON(c, &req) {
		return
	}

	owner, err := req.Owner.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	from, err := req.From.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}
	to, err := req.To.ToEntity()
	if err != nil {
		h.Error(c, err)
		return
	}

	change, err := h.transfer.Transfer(c.Request.Context(), owner,
		types.NewQuantityFromFloat64(req.Quantity), from, to)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.FromStockChange(change))
}

// Availability handles GET /stock/availability/:ownerKind/:ownerId.
func (h *StockHandler) Availability(c *gin.Context) {
	owner, location, ok := h.parseOwnerAndLocation(c, true)
	if !ok {
		return
	}

	available, err := h.batches.AvailableQuantity(c.Request.Context(), owner, *location)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.AvailabilityResponse{Available: available.Float64()})
}

// LatestCost handles GET /stock/latest-cost/:ownerKind/:ownerId.
func (h *StockHandler) LatestCost(c *gin.Context) {
	owner, location, ok := h.parseOwnerAndLocation(c, false)
	if !ok {
		return
	}

	cost, err := h.costing.LatestUnitCost(c.Request.Context(), owner, location)
	if err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, dto.LatestCostResponse{UnitCost: cost})
}

// ListBatches handles GET /stock/batches/:ownerKind/:ownerId.
func (h *StockHandler) ListBatches(c *gin.Context) {
	owner, location, ok := h.parseOwnerAndLocation(c, false)
	if !ok {
		return
	}

	list, err := h.batches.ListByOwner(c.Request.Context(), owner, location)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.BatchResponse, 0, len(list))
	for i := range list {
		items = append(items, dto.FromBatch(&list[i]))
	}
	h.OK(c, dto.ListResponse{Items: items})
}

// History handles GET /stock/history.
func (h *StockHandler) History(c *gin.Context) {
	var query dto.HistoryQuery
	if !h.BindQuery(c, &query) {
		return
	}

	filter, err := historyFilter(query)
	if err != nil {
		h.Error(c, err)
		return
	}

	changes, err := h.ledger.History(c.Request.Context(), filter)
	if err != nil {
		h.Error(c, err)
		return
	}

	items := make([]dto.StockChangeResponse, 0, len(changes))
	for i := range changes {
		items = append(items, dto.FromStockChange(&changes[i]))
	}
	h.OK(c, dto.ListResponse{Items: items, Limit: filter.Limit, Offset: filter.Offset})
}

// parseOwnerAndLocation extracts the owner from path params and the
// optional location from query params. requireLocation makes the
// location mandatory.
func (h *StockHandler) parseOwnerAndLocation(c *gin.Context, requireLocation bool) (entity.OwnerRef, *entity.LocationRef, bool) {
	ownerKind := entity.OwnerKind(c.Param("ownerKind"))
	if !ownerKind.IsValid() {
		h.Error(c, apperror.NewValidation("invalid owner kind").WithDetail("ownerKind", c.Param("ownerKind")))
		return entity.OwnerRef{}, nil, false
	}
	ownerID, err := id.Parse(c.Param("ownerId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid owner id").WithDetail("ownerId", c.Param("ownerId")))
		return entity.OwnerRef{}, nil, false
	}
	owner := entity.OwnerRef{Kind: ownerKind, ID: ownerID}

	locationKind := c.Query("locationKind")
	locationID := c.Query("locationId")
	if locationKind == "" && locationID == "" {
		if requireLocation {
			h.Error(c, apperror.NewValidation("locationKind and locationId query parameters are required"))
			return entity.OwnerRef{}, nil, false
		}
		return owner, nil, true
	}

	kind := entity.LocationKind(locationKind)
	if !kind.IsValid() {
		h.Error(c, apperror.NewValidation("invalid location kind").WithDetail("locationKind", locationKind))
		return entity.OwnerRef{}, nil, false
	}
	locID, err := id.Parse(locationID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid location id").WithDetail("locationId", locationID))
		return entity.OwnerRef{}, nil, false
	}

	return owner, &entity.LocationRef{Kind: kind, ID: locID}, true
}

func historyFilter(query dto.HistoryQuery) (ledger.Filter, error) {
	filter := ledger.Filter{
		Limit:  query.Limit,
		Offset: query.Offset,
	}

	if query.OwnerKind != "" || query.OwnerID != "" {
		kind := entity.OwnerKind(query.OwnerKind)
		if !kind.IsValid() {
			return filter, apperror.NewValidation("invalid owner kind").WithDetail("ownerKind", query.OwnerKind)
		}
		ownerID, err := id.Parse(query.OwnerID)
		if err != nil {
			return filter, apperror.NewValidation("invalid owner id").WithDetail("ownerId", query.OwnerID)
		}
		filter.Owner = &entity.OwnerRef{Kind: kind, ID: ownerID}
	}

	if query.LocationKind != "" || query.LocationID != "" {
		kind := entity.LocationKind(query.LocationKind)
		if !kind.IsValid() {
			return filter, apperror.NewValidation("invalid location kind").WithDetail("locationKind", query.LocationKind)
		}
		locationID, err := id.Parse(query.LocationID)
		if err != nil {
			return filter, apperror.NewValidation("invalid location id").WithDetail("locationId", query.LocationID)
		}
		filter.Location = &entity.LocationRef{Kind: kind, ID: locationID}
	}

	if query.Reason != "" {
		reason := entity.ChangeReason(query.Reason)
		if !reason.IsValid() {
			return filter, apperror.NewValidation("invalid reason").WithDetail("reason", query.Reason)
		}
		filter.Reason = &reason
	}

	if query.From != "" {
		from, err := time.Parse(time.RFC3339, query.From)
		if err != nil {
			return filter, apperror.NewValidation("invalid from date").WithDetail("from", query.From)
		}
		filter.FromDate = &from
	}
	if query.To != "" {
		to, err := time.Parse(time.RFC3339, query.To)
		if err != nil {
			return filter, apperror.NewValidation("invalid to date").WithDetail("to", query.To)
		}
		filter.ToDate = &to
	}

	return filter, nil
}
