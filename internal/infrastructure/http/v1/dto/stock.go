package dto

import (
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// OwnerRefRequest identifies a stock owner in requests.
type OwnerRefRequest struct {
	Kind string `json:"kind" binding:"required,oneof=product material"`
	ID   string `json:"id" binding:"required,uuid"`
}

// ToEntity converts the request to a domain owner reference.
func (r OwnerRefRequest) ToEntity() (entity.OwnerRef, error) {
	ownerID, err := id.Parse(r.ID)
	if err != nil {
		return entity.OwnerRef{}, apperror.NewValidation("invalid owner id").WithDetail("id", r.ID)
	}
	return entity.OwnerRef{Kind: entity.OwnerKind(r.Kind), ID: ownerID}, nil
}

// LocationRefRequest identifies a stock location in requests.
type LocationRefRequest struct {
	Kind string `json:"kind" binding:"required,oneof=shop warehouse"`
	ID   string `json:"id" binding:"required,uuid"`
}

// ToEntity converts the request to a domain location reference.
func (r LocationRefRequest) ToEntity() (entity.LocationRef, error) {
	locationID, err := id.Parse(r.ID)
	if err != nil {
		return entity.LocationRef{}, apperror.NewValidation("invalid location id").WithDetail("id", r.ID)
	}
	return entity.LocationRef{Kind: entity.LocationKind(r.Kind), ID: locationID}, nil
}

// RestockRequest creates a new batch.
type RestockRequest struct {
	Owner         OwnerRefRequest    `json:"owner" binding:"required"`
	Location      LocationRefRequest `json:"location" binding:"required"`
	Quantity      float64            `json:"quantity" binding:"required,gt=0"`
	UnitCost      types.Money        `json:"unitCost"`
	Reason        string             `json:"reason"`
	SupplierRef   *string            `json:"supplierRef"`
	IsOwnPurchase bool               `json:"isOwnPurchase"`
	IsCredit      bool               `json:"isCredit"`
}

// ConsumeRequest consumes stock for an owner at a location.
type ConsumeRequest struct {
	Owner    OwnerRefRequest    `json:"owner" binding:"required"`
	Location LocationRefRequest `json:"location" binding:"required"`
	Quantity float64            `json:"quantity" binding:"required,gt=0"`
	Reason   string             `json:"reason" binding:"required"`
}

// TransferRequest moves stock between locations.
type TransferRequest struct {
	Owner    OwnerRefRequest    `json:"owner" binding:"required"`
	From     LocationRefRequest `json:"from" binding:"required"`
	To       LocationRefRequest `json:"to" binding:"required"`
	Quantity float64            `json:"quantity" binding:"required,gt=0"`
}

// DamageRequest writes off part of a batch as damaged.
type DamageRequest struct {
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

// CorrectCostRequest rewrites a batch's unit cost.
type CorrectCostRequest struct {
	UnitCost types.Money `json:"unitCost" binding:"required"`
}

// LatestCostQuery narrows the latest-cost lookup to a location.
type LatestCostQuery struct {
	LocationKind string `form:"locationKind"`
	LocationID   string `form:"locationId"`
}

// HistoryQuery filters ledger history.
type HistoryQuery struct {
	OwnerKind    string `form:"ownerKind"`
	OwnerID      string `form:"ownerId"`
	LocationKind string `form:"locationKind"`
	LocationID   string `form:"locationId"`
	Reason       string `form:"reason"`
	From         string `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To           string `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit        int    `form:"limit"`
	Offset       int    `form:"offset"`
}

// BatchResponse represents a stock batch in API responses.
type BatchResponse struct {
	ID                string      `json:"id"`
	OwnerKind         string      `json:"ownerKind"`
	OwnerID           string      `json:"ownerId"`
	LocationKind      string      `json:"locationKind"`
	LocationID        string      `json:"locationId"`
	UnitCost          types.Money `json:"unitCost"`
	InitialQuantity   float64     `json:"initialQuantity"`
	RemainingQuantity float64     `json:"remainingQuantity"`
	Status            string      `json:"status"`
	SupplierRef       *string     `json:"supplierRef,omitempty"`
	IsOwnPurchase     bool        `json:"isOwnPurchase"`
	IsCredit          bool        `json:"isCredit"`
	Version           int         `json:"version"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

// FromBatch converts a batch to its response DTO.
func FromBatch(b *entity.StockBatch) BatchResponse {
	return BatchResponse{
		ID:                b.ID.String(),
		OwnerKind:         string(b.OwnerKind),
		OwnerID:           b.OwnerID.String(),
		LocationKind:      string(b.LocationKind),
		LocationID:        b.LocationID.String(),
		UnitCost:          b.UnitCost,
		InitialQuantity:   b.InitialQuantity.Float64(),
		RemainingQuantity: b.RemainingQuantity.Float64(),
		Status:            string(b.Status),
		SupplierRef:       b.SupplierRef,
		IsOwnPurchase:     b.IsOwnPurchase,
		IsCredit:          b.IsCredit,
		Version:           b.Version,
		CreatedAt:         b.CreatedAt,
		UpdatedAt:         b.UpdatedAt,
	}
}

// ConsumptionResponse is one batch's share of a stock change.
type ConsumptionResponse struct {
	BatchID               string      `json:"batchId"`
	UnitCostAtConsumption types.Money `json:"unitCostAtConsumption"`
	ConsumedQuantity      float64     `json:"consumedQuantity"`
	RemainingAfter        float64     `json:"remainingQuantityAfter"`
}

// StockChangeResponse represents a ledger entry in API responses.
type StockChangeResponse struct {
	ID             string                `json:"id"`
	OwnerKind      string                `json:"ownerKind"`
	OwnerID        string                `json:"ownerId"`
	LocationKind   string                `json:"locationKind"`
	LocationID     string                `json:"locationId"`
	Delta          float64               `json:"delta"`
	Reason         string                `json:"reason"`
	Consumptions   []ConsumptionResponse `json:"batchConsumptions,omitempty"`
	LegacyUnitCost *types.Money          `json:"legacyUnitCost,omitempty"`
	SupplierRef    *string               `json:"supplierRef,omitempty"`
	TransferRef    *string               `json:"transferRef,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// FromStockChange converts a ledger entry to its response DTO.
func FromStockChange(ch *entity.StockChange) StockChangeResponse {
	resp := StockChangeResponse{
		ID:             ch.ID.String(),
		OwnerKind:      string(ch.OwnerKind),
		OwnerID:        ch.OwnerID.String(),
		LocationKind:   string(ch.LocationKind),
		LocationID:     ch.LocationID.String(),
		Delta:          ch.Delta.Float64(),
		Reason:         string(ch.Reason),
		LegacyUnitCost: ch.LegacyUnitCost,
		SupplierRef:    ch.SupplierRef,
		CreatedAt:      ch.CreatedAt,
	}
	if ch.TransferRef != nil {
		ref := ch.TransferRef.String()
		resp.TransferRef = &ref
	}
	for _, c := range ch.Consumptions {
		resp.Consumptions = append(resp.Consumptions, ConsumptionResponse{
			BatchID:               c.BatchID.String(),
			UnitCostAtConsumption: c.UnitCostAtConsumption,
			ConsumedQuantity:      c.ConsumedQuantity.Float64(),
			RemainingAfter:        c.RemainingAfter.Float64(),
		})
	}
	return resp
}

// LatestCostResponse is the latest-cost lookup result. UnitCost is null
// when the owner has no batches at all.
type LatestCostResponse struct {
	UnitCost *types.Money `json:"unitCost"`
}

// AvailabilityResponse is the current sellable quantity.
type AvailabilityResponse struct {
	Available float64 `json:"available"`
}
