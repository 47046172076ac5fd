package planning

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/masterdata"
)

// ProductSource resolves catalogue info for requirement rows.
type ProductSource interface {
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]masterdata.Product, error)
}

// Calculator merges flat demand into per-material requirements and nets them
// against stock.
type Calculator struct {
	stocks   bom.StockChecker
	products ProductSource
}

// NewCalculator builds a Calculator. The stock checker is request scoped so
// every material is queried once per preview.
func NewCalculator(stocks bom.StockChecker, products ProductSource) *Calculator {
	return &Calculator{stocks: stocks, products: products}
}

// Merge groups demands by material, sums required quantity, computes shortage
// and classifies sourcing. Output is ordered by material id so previews are
// deterministic. The second return value carries degraded-stock warnings.
func (c *Calculator) Merge(ctx context.Context, demands []bom.DemandEntry, warehouseID *int64) ([]MaterialRequirement, []string, error) {
	if len(demands) == 0 {
		return nil, nil, nil
	}

	required := make(map[int64]decimal.Decimal)
	units := make(map[int64]string)
	order := make([]int64, 0, len(demands))
	for _, d := range demands {
		if _, seen := required[d.MaterialID]; !seen {
			order = append(order, d.MaterialID)
			units[d.MaterialID] = d.UnitCode
		}
		required[d.MaterialID] = required[d.MaterialID].Add(d.Quantity)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	products, err := c.products.GetProducts(ctx, order)
	if err != nil {
		return nil, nil, fmt.Errorf("planning: resolve materials: %w", err)
	}

	var notes []string
	requirements := make([]MaterialRequirement, 0, len(order))
	for _, materialID := range order {
		avail, err := c.stocks.GetAvailable(ctx, materialID, warehouseID)
		if err != nil {
			return nil, nil, fmt.Errorf("planning: stock for material %d: %w", materialID, err)
		}
		if avail.Degraded {
			notes = append(notes, fmt.Sprintf("stock lookup degraded for material %d, availability assumed zero", materialID))
		}

		req := MaterialRequirement{
			MaterialID:       materialID,
			Unit:             units[materialID],
			RequiredQuantity: required[materialID],
			AvailableStock:   decimal.NewFromFloat(avail.Available),
		}
		shortage := req.RequiredQuantity.Sub(req.AvailableStock)
		if shortage.IsNegative() {
			shortage = decimal.Zero
		}
		req.ShortageQuantity = shortage

		if product, ok := products[materialID]; ok {
			req.MaterialCode = product.Code
			req.MaterialName = product.Name
			if req.Unit == "" {
				req.Unit = product.UnitCode
			}
			// Purchase-sourced shortages route to purchase suggestions, not
			// outsourcing.
			req.NeedOutsource = shortage.IsPositive() && product.AcquisitionMethod == masterdata.AcquisitionOutsourcing
		} else {
			notes = append(notes, fmt.Sprintf("material %d missing from catalogue", materialID))
		}

		requirements = append(requirements, req)
	}
	return requirements, notes, nil
}
