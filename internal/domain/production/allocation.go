package production

import (
	"github.com/shopspring/decimal"

	"lotledger/internal/core/apperror"
	"lotledger/internal/core/id"
	"lotledger/internal/core/types"
)

// MaterialRequirement is an article's share of one material line.
type MaterialRequirement struct {
	MaterialID id.ID          `json:"materialId"`
	Quantity   types.Quantity `json:"quantity"`
	UnitCost   types.Money    `json:"unitCost"`
	LineCost   types.Money    `json:"lineCost"`
}

// AllocateArticleMaterials derives the material requirements of one
// article. An explicit per-article recipe wins; otherwise each shared
// line is split proportionally to the article's share of the total
// output quantity and rounded half up to the line's unit decimals.
// Rounding residue stays unallocated; it is not redistributed between
// articles.
func AllocateArticleMaterials(p *Production, articleID id.ID) ([]MaterialRequirement, error) {
	article, err := p.Article(articleID)
	if err != nil {
		return nil, err
	}

	if len(article.Materials) > 0 {
		reqs := make([]MaterialRequirement, 0, len(article.Materials))
		for _, m := range article.Materials {
			reqs = append(reqs, newRequirement(m.MaterialID, m.Quantity, m.UnitCost))
		}
		return reqs, nil
	}

	if len(p.Materials) == 0 {
		return nil, nil
	}

	total := p.TotalArticlesQuantity()
	if !total.IsPositive() {
		return nil, apperror.NewValidation("production has no article output to allocate against").
			WithDetail("productionId", p.ID.String())
	}

	reqs := make([]MaterialRequirement, 0, len(p.Materials))
	for _, m := range p.Materials {
		share := m.Quantity.Decimal().
			Mul(article.Quantity.Decimal()).
			Div(total.Decimal()).
			Round(m.UnitDecimals)
		reqs = append(reqs, newRequirement(m.MaterialID, types.NewQuantityFromDecimal(share), m.UnitCost))
	}
	return reqs, nil
}

func newRequirement(materialID id.ID, qty types.Quantity, unitCost types.Money) MaterialRequirement {
	return MaterialRequirement{
		MaterialID: materialID,
		Quantity:   qty,
		UnitCost:   unitCost,
		LineCost:   unitCost.Mul(qty.Decimal()),
	}
}

// ArticleCostPrice sums material line costs and the selected charges.
// Charges are opt-in per publication, not split automatically.
func ArticleCostPrice(p *Production, articleID id.ID, chargeIDs []id.ID) (types.Money, []MaterialRequirement, error) {
	reqs, err := AllocateArticleMaterials(p, articleID)
	if err != nil {
		return types.ZeroMoney(), nil, err
	}

	cost := decimal.Zero
	for _, r := range reqs {
		cost = cost.Add(r.LineCost)
	}

	charges, err := p.ChargesByIDs(chargeIDs)
	if err != nil {
		return types.ZeroMoney(), nil, err
	}
	for _, c := range charges {
		cost = cost.Add(c.Amount)
	}

	return cost, reqs, nil
}
