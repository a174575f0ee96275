package dto

import (
	"time"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
	"lotledger/internal/domain/production"
)

// MaterialRequest is one material line in a production request.
type MaterialRequest struct {
	MaterialID   string      `json:"materialId" binding:"required,uuid"`
	Quantity     float64     `json:"quantity" binding:"required,gt=0"`
	UnitCost     types.Money `json:"unitCost"`
	UnitDecimals int32       `json:"unitDecimals" binding:"min=0,max=4"`
}

func (r MaterialRequest) toEntity() (production.Material, error) {
	materialID, err := id.Parse(r.MaterialID)
	if err != nil {
		return production.Material{}, apperror.NewValidation("invalid material id").WithDetail("id", r.MaterialID)
	}
	return production.Material{
		MaterialID:   materialID,
		Quantity:     types.NewQuantityFromFloat64(r.Quantity),
		UnitCost:     r.UnitCost,
		UnitDecimals: r.UnitDecimals,
	}, nil
}

// ArticleRequest is one article line in a production request.
type ArticleRequest struct {
	Name      string            `json:"name" binding:"required"`
	Quantity  float64           `json:"quantity" binding:"required,gt=0"`
	Materials []MaterialRequest `json:"materials"`
}

// ChargeRequest is one extra cost line in a production request.
type ChargeRequest struct {
	Name   string      `json:"name" binding:"required"`
	Amount types.Money `json:"amount"`
}

// CreateProductionRequest creates a production order.
type CreateProductionRequest struct {
	Name      string             `json:"name" binding:"required"`
	Location  LocationRefRequest `json:"location" binding:"required"`
	Materials []MaterialRequest  `json:"materials"`
	Articles  []ArticleRequest   `json:"articles" binding:"required,min=1"`
	Charges   []ChargeRequest    `json:"charges"`
}

// ToEntity converts the request to a domain production order.
func (r CreateProductionRequest) ToEntity(now time.Time) (*production.Production, error) {
	location, err := r.Location.ToEntity()
	if err != nil {
		return nil, err
	}

	p := production.NewProduction(r.Name, location, now)

	for _, m := range r.Materials {
		material, err := m.toEntity()
		if err != nil {
			return nil, err
		}
		p.Materials = append(p.Materials, material)
	}

	for _, a := range r.Articles {
		article := production.Article{
			ID:       id.New(),
			Name:     a.Name,
			Quantity: types.NewQuantityFromFloat64(a.Quantity),
			Status:   production.ArticleStatusDraft,
		}
		for _, m := range a.Materials {
			material, err := m.toEntity()
			if err != nil {
				return nil, err
			}
			article.Materials = append(article.Materials, material)
		}
		p.Articles = append(p.Articles, article)
	}

	for _, c := range r.Charges {
		p.Charges = append(p.Charges, production.Charge{
			ID:     id.New(),
			Name:   c.Name,
			Amount: c.Amount,
		})
	}

	return p, nil
}

// MaterialResponse is one material line in responses.
type MaterialResponse struct {
	MaterialID   string      `json:"materialId"`
	Quantity     float64     `json:"quantity"`
	UnitCost     types.Money `json:"unitCost"`
	UnitDecimals int32       `json:"unitDecimals"`
}

// ArticleResponse is one article line in responses.
type ArticleResponse struct {
	ID        string             `json:"id"`
	Name      string             `json:"name"`
	Quantity  float64            `json:"quantity"`
	Status    string             `json:"status"`
	Materials []MaterialResponse `json:"materials,omitempty"`
}

// ChargeResponse is one extra cost line in responses.
type ChargeResponse struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Amount types.Money `json:"amount"`
}

// ProductionResponse represents a production order in API responses.
type ProductionResponse struct {
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	LocationKind string             `json:"locationKind"`
	LocationID   string             `json:"locationId"`
	Materials    []MaterialResponse `json:"materials"`
	Articles     []ArticleResponse  `json:"articles"`
	Charges      []ChargeResponse   `json:"charges,omitempty"`
	Version      int                `json:"version"`
	CreatedAt    time.Time          `json:"createdAt"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// FromProduction converts a production order to its response DTO.
func FromProduction(p *production.Production) ProductionResponse {
	resp := ProductionResponse{
		ID:           p.ID.String(),
		Name:         p.Name,
		LocationKind: string(p.Location.Kind),
		LocationID:   p.Location.ID.String(),
		Materials:    fromMaterials(p.Materials),
		Version:      p.Version,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
	for _, a := range p.Articles {
		resp.Articles = append(resp.Articles, ArticleResponse{
			ID:        a.ID.String(),
			Name:      a.Name,
			Quantity:  a.Quantity.Float64(),
			Status:    string(a.Status),
			Materials: fromMaterials(a.Materials),
		})
	}
	for _, c := range p.Charges {
		resp.Charges = append(resp.Charges, ChargeResponse{
			ID:     c.ID.String(),
			Name:   c.Name,
			Amount: c.Amount,
		})
	}
	return resp
}

func fromMaterials(materials []production.Material) []MaterialResponse {
	result := make([]MaterialResponse, 0, len(materials))
	for _, m := range materials {
		result = append(result, MaterialResponse{
			MaterialID:   m.MaterialID.String(),
			Quantity:     m.Quantity.Float64(),
			UnitCost:     m.UnitCost,
			UnitDecimals: m.UnitDecimals,
		})
	}
	return result
}

// RequirementResponse is an article's allocated share of one material.
type RequirementResponse struct {
	MaterialID string      `json:"materialId"`
	Quantity   float64     `json:"quantity"`
	UnitCost   types.Money `json:"unitCost"`
	LineCost   types.Money `json:"lineCost"`
}

// FromRequirements converts allocation results.
func FromRequirements(reqs []production.MaterialRequirement) []RequirementResponse {
	result := make([]RequirementResponse, 0, len(reqs))
	for _, r := range reqs {
		result = append(result, RequirementResponse{
			MaterialID: r.MaterialID.String(),
			Quantity:   r.Quantity.Float64(),
			UnitCost:   r.UnitCost,
			LineCost:   r.LineCost,
		})
	}
	return result
}

// StockCheckResponse is the availability verdict for one material.
type StockCheckResponse struct {
	MaterialID string  `json:"materialId"`
	Required   float64 `json:"required"`
	Available  float64 `json:"available"`
	Status     string  `json:"status"`
	Shortage   float64 `json:"shortage,omitempty"`
}

// ValidationResponse aggregates per-material checks for an article.
type ValidationResponse struct {
	ArticleID string               `json:"articleId"`
	IsValid   bool                 `json:"isValid"`
	Checks    []StockCheckResponse `json:"checks"`
}

// FromValidation converts a stock validation result.
func FromValidation(v *production.ArticleStockValidation) ValidationResponse {
	resp := ValidationResponse{
		ArticleID: v.ArticleID.String(),
		IsValid:   v.IsValid,
	}
	for _, c := range v.Checks {
		resp.Checks = append(resp.Checks, StockCheckResponse{
			MaterialID: c.MaterialID.String(),
			Required:   c.Required.Float64(),
			Available:  c.Available.Float64(),
			Status:     string(c.Status),
			Shortage:   c.Shortage.Float64(),
		})
	}
	return resp
}

// PublishArticleRequest names one article to publish.
type PublishArticleRequest struct {
	ArticleID string   `json:"articleId" binding:"required,uuid"`
	ChargeIDs []string `json:"chargeIds"`
}

// PublishRequest publishes a set of articles.
type PublishRequest struct {
	Articles []PublishArticleRequest `json:"articles" binding:"required,min=1"`
}

// ToDomain converts the request to domain publish requests.
func (r PublishRequest) ToDomain() ([]production.PublishRequest, error) {
	result := make([]production.PublishRequest, 0, len(r.Articles))
	for _, a := range r.Articles {
		articleID, err := id.Parse(a.ArticleID)
		if err != nil {
			return nil, apperror.NewValidation("invalid article id").WithDetail("id", a.ArticleID)
		}
		req := production.PublishRequest{ArticleID: articleID}
		for _, cid := range a.ChargeIDs {
			chargeID, err := id.Parse(cid)
			if err != nil {
				return nil, apperror.NewValidation("invalid charge id").WithDetail("id", cid)
			}
			req.ChargeIDs = append(req.ChargeIDs, chargeID)
		}
		result = append(result, req)
	}
	return result, nil
}

// PublishResultResponse reports the outcome of one article.
type PublishResultResponse struct {
	ArticleID string         `json:"articleId"`
	Published bool           `json:"published"`
	BatchID   string         `json:"batchId,omitempty"`
	CostPrice types.Money    `json:"costPrice"`
	UnitCost  types.Money    `json:"unitCost"`
	Error     *ErrorResponse `json:"error,omitempty"`
}
