// Package production manages production orders: material lines shared by
// a set of articles, per-article material allocation, stock validation
// against batch availability and publication of finished articles into
// the batch store.
package production

import (
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/entity"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// ArticleStatus tracks an article through its lifecycle.
type ArticleStatus string

const (
	ArticleStatusDraft     ArticleStatus = "draft"
	ArticleStatusPublished ArticleStatus = "published"
)

// Material is one material line. Quantity is the amount required for the
// whole production run; per-article shares are derived by allocation.
// UnitDecimals bounds rounding of the allocated share (0 for pieces,
// up to 4 for weighed goods).
type Material struct {
	MaterialID   id.ID          `json:"materialId" db:"material_id"`
	Quantity     types.Quantity `json:"quantity" db:"quantity"`
	UnitCost     types.Money    `json:"unitCost" db:"unit_cost"`
	UnitDecimals int32          `json:"unitDecimals" db:"unit_decimals"`
}

// Charge is an extra cost line (labor, delivery) that can be attributed
// to articles at publication time.
type Charge struct {
	ID     id.ID       `json:"id" db:"id"`
	Name   string      `json:"name" db:"name"`
	Amount types.Money `json:"amount" db:"amount"`
}

// Article is a finished good produced by the run. Materials, when set,
// overrides proportional allocation with an explicit per-article recipe.
type Article struct {
	ID        id.ID          `json:"id" db:"id"`
	Name      string         `json:"name" db:"name"`
	Quantity  types.Quantity `json:"quantity" db:"quantity"`
	Status    ArticleStatus  `json:"status" db:"status"`
	Materials []Material     `json:"materials,omitempty" db:"materials"`
}

// Production is a production order. Location is where materials are
// consumed from and where published articles land.
type Production struct {
	ID        id.ID              `json:"id" db:"id"`
	Name      string             `json:"name" db:"name"`
	Location  entity.LocationRef `json:"location" db:"-"`
	Materials []Material         `json:"materials" db:"materials"`
	Articles  []Article          `json:"articles" db:"articles"`
	Charges   []Charge           `json:"charges,omitempty" db:"charges"`
	Version   int                `json:"version" db:"version"`
	CreatedAt time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time          `json:"updatedAt" db:"updated_at"`
}

// NewProduction builds a draft production order.
func NewProduction(name string, location entity.LocationRef, now time.Time) *Production {
	return &Production{
		ID:        id.New(),
		Name:      name,
		Location:  location,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks structural consistency before persisting.
func (p *Production) Validate() error {
	if p.Name == "" {
		return apperror.NewValidation("production name is required")
	}
	if !p.Location.Kind.IsValid() {
		return apperror.NewValidation("invalid production location kind")
	}
	if id.IsNil(p.Location.ID) {
		return apperror.NewValidation("production location id is required")
	}
	for _, m := range p.Materials {
		if err := validateMaterial(m); err != nil {
			return err
		}
	}
	for i := range p.Articles {
		a := &p.Articles[i]
		if !a.Quantity.IsPositive() {
			return apperror.NewValidation("article quantity must be positive").
				WithDetail("articleId", a.ID.String())
		}
		if a.Status == "" {
			a.Status = ArticleStatusDraft
		}
		for _, m := range a.Materials {
			if err := validateMaterial(m); err != nil {
				return err
			}
		}
	}
	return nil
}

func validateMaterial(m Material) error {
	if id.IsNil(m.MaterialID) {
		return apperror.NewValidation("material id is required")
	}
	if !m.Quantity.IsPositive() {
		return apperror.NewValidation("material quantity must be positive").
			WithDetail("materialId", m.MaterialID.String())
	}
	if m.UnitCost.IsNegative() {
		return apperror.NewValidation("material unit cost must not be negative").
			WithDetail("materialId", m.MaterialID.String())
	}
	if m.UnitDecimals < 0 || m.UnitDecimals > 4 {
		return apperror.NewValidation("material unit decimals must be between 0 and 4").
			WithDetail("materialId", m.MaterialID.String())
	}
	return nil
}

// TotalArticlesQuantity sums the declared output quantities.
func (p *Production) TotalArticlesQuantity() types.Quantity {
	var total types.Quantity
	for _, a := range p.Articles {
		total += a.Quantity
	}
	return total
}

// Article returns the article with the given id.
func (p *Production) Article(articleID id.ID) (*Article, error) {
	for i := range p.Articles {
		if p.Articles[i].ID == articleID {
			return &p.Articles[i], nil
		}
	}
	return nil, apperror.NewNotFound("article", articleID)
}

// ChargesByIDs resolves charge lines; every id must exist.
func (p *Production) ChargesByIDs(chargeIDs []id.ID) ([]Charge, error) {
	selected := make([]Charge, 0, len(chargeIDs))
	for _, cid := range chargeIDs {
		found := false
		for _, c := range p.Charges {
			if c.ID == cid {
				selected = append(selected, c)
				found = true
				break
			}
		}
		if !found {
			return nil, apperror.NewNotFound("production_charge", cid)
		}
	}
	return selected, nil
}

// Touch bumps version and update time after a mutation.
func (p *Production) Touch(now time.Time) {
	p.Version++
	p.UpdatedAt = now
}
