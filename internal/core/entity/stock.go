// Package entity provides core domain entities for the batch valuation engine.
package entity

import (
	"time"

	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// OwnerKind identifies what kind of item a batch holds stock for.
type OwnerKind string

const (
	OwnerKindProduct  OwnerKind = "product"
	OwnerKindMaterial OwnerKind = "material"
)

// IsValid reports whether the kind is a known variant.
func (k OwnerKind) IsValid() bool {
	return k == OwnerKindProduct || k == OwnerKindMaterial
}

func (k OwnerKind) String() string { return string(k) }

// LocationKind identifies the type of a stock location.
type LocationKind string

const (
	LocationKindShop      LocationKind = "shop"
	LocationKindWarehouse LocationKind = "warehouse"
)

func (k LocationKind) IsValid() bool {
	return k == LocationKindShop || k == LocationKindWarehouse
}

func (k LocationKind) String() string { return string(k) }

// OwnerRef identifies the product or material whose stock a batch represents.
type OwnerRef struct {
	Kind OwnerKind `json:"ownerKind"`
	ID   id.ID     `json:"ownerId"`
}

// NewOwnerRef creates an owner reference.
func NewOwnerRef(kind OwnerKind, ownerID id.ID) OwnerRef {
	return OwnerRef{Kind: kind, ID: ownerID}
}

func (o OwnerRef) Equal(other OwnerRef) bool {
	return o.Kind == other.Kind && o.ID == other.ID
}

// LocationRef identifies a shop or warehouse. Stock is partitioned per location.
type LocationRef struct {
	Kind LocationKind `json:"locationKind"`
	ID   id.ID        `json:"locationId"`
}

// NewLocationRef creates a location reference.
func NewLocationRef(kind LocationKind, locationID id.ID) LocationRef {
	return LocationRef{Kind: kind, ID: locationID}
}

func (l LocationRef) Equal(other LocationRef) bool {
	return l.Kind == other.Kind && l.ID == other.ID
}

func (l LocationRef) String() string {
	return string(l.Kind) + ":" + l.ID.String()
}

// BatchStatus is the lifecycle state of a stock batch.
type BatchStatus string

const (
	// BatchStatusActive - batch has quantity available for consumption
	BatchStatusActive BatchStatus = "active"
	// BatchStatusDepleted - remaining quantity reached zero
	BatchStatusDepleted BatchStatus = "depleted"
	// BatchStatusDamaged - frozen by a damage adjustment; never consumed again
	BatchStatusDamaged BatchStatus = "damaged"
)

func (s BatchStatus) IsValid() bool {
	return s == BatchStatusActive || s == BatchStatusDepleted || s == BatchStatusDamaged
}

// ChangeReason is the cause of a stock mutation.
type ChangeReason string

const (
	ReasonCreation         ChangeReason = "creation"
	ReasonRestock          ChangeReason = "restock"
	ReasonSale             ChangeReason = "sale"
	ReasonAdjustment       ChangeReason = "adjustment"
	ReasonManualAdjustment ChangeReason = "manual_adjustment"
	ReasonDamage           ChangeReason = "damage"
	ReasonCostCorrection   ChangeReason = "cost_correction"
)

// AllChangeReasons returns every known reason variant.
func AllChangeReasons() []ChangeReason {
	return []ChangeReason{
		ReasonCreation, ReasonRestock, ReasonSale, ReasonAdjustment,
		ReasonManualAdjustment, ReasonDamage, ReasonCostCorrection,
	}
}

func (r ChangeReason) IsValid() bool {
	for _, known := range AllChangeReasons() {
		if r == known {
			return true
		}
	}
	return false
}

// StockBatch is one delivery/creation event of stock at one location, at
// one unit cost. Batches are immutable in quantity except for decrement:
// remaining quantity only ever goes down; a restock creates a new batch.
type StockBatch struct {
	ID id.ID `db:"id" json:"id"`

	OwnerKind OwnerKind `db:"owner_kind" json:"ownerKind"`
	OwnerID   id.ID     `db:"owner_id" json:"ownerId"`

	LocationKind LocationKind `db:"location_kind" json:"locationKind"`
	LocationID   id.ID        `db:"location_id" json:"locationId"`

	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	InitialQuantity   types.Quantity `db:"initial_quantity" json:"initialQuantity"`
	RemainingQuantity types.Quantity `db:"remaining_quantity" json:"remainingQuantity"`

	Status BatchStatus `db:"status" json:"status"`

	SupplierRef   *string `db:"supplier_ref" json:"supplierRef,omitempty"`
	IsOwnPurchase bool    `db:"is_own_purchase" json:"isOwnPurchase"`
	IsCredit      bool    `db:"is_credit" json:"isCredit"`

	// Version for optimistic locking (incremented on each mutation)
	Version int `db:"version" json:"version"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	// UpdatedAt changes only on cost correction or consumption
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// NewStockBatch creates an active batch holding its full initial quantity.
func NewStockBatch(owner OwnerRef, location LocationRef, quantity types.Quantity, unitCost types.Money, now time.Time) *StockBatch {
	return &StockBatch{
		ID:                id.New(),
		OwnerKind:         owner.Kind,
		OwnerID:           owner.ID,
		LocationKind:      location.Kind,
		LocationID:        location.ID,
		UnitCost:          unitCost,
		InitialQuantity:   quantity,
		RemainingQuantity: quantity,
		Status:            BatchStatusActive,
		Version:           1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Owner returns the batch's owner reference.
func (b *StockBatch) Owner() OwnerRef {
	return OwnerRef{Kind: b.OwnerKind, ID: b.OwnerID}
}

// Location returns the batch's location reference.
func (b *StockBatch) Location() LocationRef {
	return LocationRef{Kind: b.LocationKind, ID: b.LocationID}
}

// IsConsumable reports whether the batch can still yield stock.
func (b *StockBatch) IsConsumable() bool {
	return b.Status == BatchStatusActive && b.RemainingQuantity.IsPositive()
}

// Consume decrements the remaining quantity and flips status to depleted
// at zero. qty must not exceed RemainingQuantity; callers enforce that
// via the repository's InsufficientBatchQuantity guard.
func (b *StockBatch) Consume(qty types.Quantity, now time.Time) {
	b.RemainingQuantity -= qty
	if b.RemainingQuantity.IsZero() {
		b.Status = BatchStatusDepleted
	}
	b.UpdatedAt = now
	b.Version++
}

// MarkDamaged writes off qty as damaged and freezes the batch once its
// remaining quantity is exhausted by damage.
func (b *StockBatch) MarkDamaged(qty types.Quantity, now time.Time) {
	b.RemainingQuantity -= qty
	if b.RemainingQuantity.IsZero() {
		b.Status = BatchStatusDamaged
	}
	b.UpdatedAt = now
	b.Version++
}

// SetCost rewrites the unit cost without touching quantity.
func (b *StockBatch) SetCost(cost types.Money, now time.Time) {
	b.UnitCost = cost
	b.UpdatedAt = now
	b.Version++
}

// BatchConsumption records how much one batch contributed to a stock
// change, at what cost, and what was left afterwards.
type BatchConsumption struct {
	BatchID               id.ID          `json:"batchId"`
	UnitCostAtConsumption types.Money    `json:"unitCostAtConsumption"`
	ConsumedQuantity      types.Quantity `json:"consumedQuantity"`
	RemainingAfter        types.Quantity `json:"remainingQuantityAfter"`
}

// StockChange is an append-only ledger entry: one record per mutating
// operation. CreatedAt defines ledger order; entries are never updated.
type StockChange struct {
	ID id.ID `db:"id" json:"id"`

	OwnerKind OwnerKind `db:"owner_kind" json:"ownerKind"`
	OwnerID   id.ID     `db:"owner_id" json:"ownerId"`

	LocationKind LocationKind `db:"location_kind" json:"locationKind"`
	LocationID   id.ID        `db:"location_id" json:"locationId"`

	// Delta is signed: positive = stock added, negative = stock removed
	Delta types.Quantity `db:"delta" json:"delta"`

	Reason ChangeReason `db:"reason" json:"reason"`

	// Consumptions is the ordered per-batch attribution trail.
	// Empty for pure additions; sum of ConsumedQuantity equals |Delta|.
	Consumptions []BatchConsumption `db:"consumptions" json:"batchConsumptions"`

	// LegacyUnitCost is the single-scalar compatibility cost: the
	// weighted average across batches touched, rounded to the minor unit.
	LegacyUnitCost *types.Money `db:"legacy_unit_cost" json:"legacyUnitCost,omitempty"`

	SupplierRef   *string `db:"supplier_ref" json:"supplierRef,omitempty"`
	IsOwnPurchase *bool   `db:"is_own_purchase" json:"isOwnPurchase,omitempty"`
	IsCredit      *bool   `db:"is_credit" json:"isCredit,omitempty"`

	// TransferRef links the two legs of a location transfer.
	TransferRef *id.ID `db:"transfer_ref" json:"transferRef,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// NewStockChange creates a ledger entry for the given owner and location.
func NewStockChange(owner OwnerRef, location LocationRef, delta types.Quantity, reason ChangeReason, now time.Time) *StockChange {
	return &StockChange{
		ID:           id.New(),
		OwnerKind:    owner.Kind,
		OwnerID:      owner.ID,
		LocationKind: location.Kind,
		LocationID:   location.ID,
		Delta:        delta,
		Reason:       reason,
		CreatedAt:    now,
	}
}

// Owner returns the change's owner reference.
func (c *StockChange) Owner() OwnerRef {
	return OwnerRef{Kind: c.OwnerKind, ID: c.OwnerID}
}

// Location returns the change's location reference.
func (c *StockChange) Location() LocationRef {
	return LocationRef{Kind: c.LocationKind, ID: c.LocationID}
}

// ConsumedTotal sums the attribution trail.
func (c *StockChange) ConsumedTotal() types.Quantity {
	var total types.Quantity
	for _, bc := range c.Consumptions {
		total += bc.ConsumedQuantity
	}
	return total
}
