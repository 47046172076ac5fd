package planning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/sales"
	"github.com/tessera-erp/tessera-erp/internal/stock"
)

// OrderSource reads sales order data for planning.
type OrderSource interface {
	GetOrder(ctx context.Context, id int64) (sales.Order, error)
	GetOrderLines(ctx context.Context, orderID int64) ([]sales.OrderLine, error)
}

// Sources bundles every read port a preview touches. One Sources value is
// bound to a single database snapshot so repeated lookups cannot drift while
// concurrent stock mutations land.
type Sources struct {
	Boms     bom.Source
	Stocks   stock.Reader
	Products ProductSource
	Orders   OrderSource
}

// SnapshotOpener runs fn against one consistent read snapshot.
type SnapshotOpener interface {
	WithSnapshot(ctx context.Context, fn func(context.Context, Sources) error) error
}

// PreviewRequest selects what to plan and how to expand it.
type PreviewRequest struct {
	SalesOrderID               int64   `json:"salesOrderId" validate:"required,gt=0"`
	SelectedItemIDs            []int64 `json:"selectedItemIds,omitempty"`
	IncludeRouting             bool    `json:"includeRouting"`
	IncludeChildProducts       bool    `json:"includeChildProducts"`
	ExpandMaterialsRecursively bool    `json:"expandMaterialsRecursively"`
	WarehouseID                *int64  `json:"warehouseId,omitempty"`
}

// MetricsPort receives planning telemetry.
type MetricsPort interface {
	ObservePreview(outcome string)
	ObserveExplosionDepth(depth int)
	ObserveCommitFailure(operation string)
}

// PreviewService turns a sales order into a non-persisted production plan
// preview. It performs no writes and is safe to call concurrently.
type PreviewService struct {
	opener   SnapshotOpener
	logger   *slog.Logger
	metrics  MetricsPort
	maxDepth int
}

// NewPreviewService builds PreviewService. metrics may be nil.
func NewPreviewService(opener SnapshotOpener, logger *slog.Logger, metrics MetricsPort, maxDepth int) *PreviewService {
	return &PreviewService{opener: opener, logger: logger, metrics: metrics, maxDepth: maxDepth}
}

// Preview explodes each selected order line through its default BOM and
// merges all demand into one requirement list. A line without a usable BOM is
// still listed so the caller sees it needs attention; only hard faults on the
// order itself abort the preview.
func (s *PreviewService) Preview(ctx context.Context, req PreviewRequest) (PreviewResult, error) {
	if req.SalesOrderID <= 0 {
		return PreviewResult{}, fmt.Errorf("planning: sales order id required")
	}

	var result PreviewResult
	err := s.opener.WithSnapshot(ctx, func(ctx context.Context, src Sources) error {
		order, err := src.Orders.GetOrder(ctx, req.SalesOrderID)
		if err != nil {
			return err
		}
		lines, err := src.Orders.GetOrderLines(ctx, order.ID)
		if err != nil {
			return err
		}
		lines = filterLines(lines, req.SelectedItemIDs)
		if len(lines) == 0 {
			return ErrNoOrderLines
		}

		aggregator := stock.NewAggregator(src.Stocks, s.logger)
		engine := bom.NewEngine(src.Boms, src.Products, s.maxDepth)

		result = PreviewResult{OrderID: order.ID, OrderNo: order.Number}
		var demands []bom.DemandEntry
		for _, line := range lines {
			lineDemands, err := s.previewLine(ctx, src, engine, aggregator, req, line, &result)
			if err != nil {
				return err
			}
			demands = append(demands, lineDemands...)
		}

		calc := NewCalculator(aggregator, src.Products)
		requirements, notes, err := calc.Merge(ctx, demands, req.WarehouseID)
		if err != nil {
			return err
		}
		result.Requirements = requirements
		result.Notes = append(result.Notes, notes...)
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.ObservePreview("error")
		}
		return PreviewResult{}, err
	}
	if s.metrics != nil {
		s.metrics.ObservePreview("ok")
	}
	return result, nil
}

// previewLine expands one order line. Soft failures (missing BOM, cycles,
// depth faults) are noted and the rest of the preview continues.
func (s *PreviewService) previewLine(ctx context.Context, src Sources, engine *bom.Engine, aggregator *stock.Aggregator, req PreviewRequest, line sales.OrderLine, result *PreviewResult) ([]bom.DemandEntry, error) {
	product, err := src.Products.GetProduct(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}
	quantity := decimal.NewFromFloat(line.Quantity)
	row := ProductPlan{
		ProductID:   product.ID,
		ProductCode: product.Code,
		ProductName: product.Name,
		Quantity:    quantity,
		Unit:        line.UnitCode,
		Source:      bom.SourceBom,
	}
	if row.Unit == "" {
		row.Unit = product.UnitCode
	}

	b, err := src.Boms.GetDefaultBom(ctx, line.ProductID)
	if err != nil {
		if errors.Is(err, bom.ErrBomNotFound) {
			result.Notes = append(result.Notes, fmt.Sprintf("product %s has no active bom, excluded from material requirements", product.Code))
			result.Products = append(result.Products, row)
			return nil, nil
		}
		return nil, err
	}
	row.BomID = b.ID
	row.RoutingID = b.RoutingID

	var explosion bom.Result
	if req.ExpandMaterialsRecursively {
		explosion, err = engine.ExplodeFlattened(ctx, b.ID, quantity)
	} else {
		explosion, err = engine.ExplodeNested(ctx, b.ID, quantity, aggregator, req.WarehouseID)
	}
	if err != nil {
		if errors.Is(err, bom.ErrCircularReference) || errors.Is(err, bom.ErrMaxDepthExceeded) ||
			errors.Is(err, bom.ErrInvalidBaseQuantity) || errors.Is(err, bom.ErrBomInactive) {
			s.logger.Warn("bom explosion fault", slog.Int64("bom_id", b.ID), slog.Any("error", err))
			result.Notes = append(result.Notes, fmt.Sprintf("product %s: %v, excluded from material requirements", product.Code, err))
			result.Products = append(result.Products, row)
			return nil, nil
		}
		return nil, err
	}
	result.Notes = append(result.Notes, explosion.Notes...)
	if s.metrics != nil {
		s.metrics.ObserveExplosionDepth(explosion.Depth)
	}

	if req.IncludeRouting && b.RoutingID != 0 {
		routing, err := src.Boms.GetRouting(ctx, b.RoutingID)
		if err != nil {
			if !errors.Is(err, bom.ErrRoutingNotFound) {
				return nil, err
			}
			result.Notes = append(result.Notes, fmt.Sprintf("product %s references missing routing %d", product.Code, b.RoutingID))
		} else {
			row.RoutingOperations = routing.Operations
		}
	}

	result.Products = append(result.Products, row)
	if req.IncludeChildProducts {
		collectChildRows(explosion.Tree, product.ID, &result.Products)
	}
	return explosion.Demands, nil
}

// collectChildRows turns sub-assembly tree nodes into plan rows. Phantom
// nodes contribute no row of their own; their children attach to the
// phantom's parent.
func collectChildRows(node bom.TreeNode, parentProductID int64, out *[]ProductPlan) {
	for _, child := range node.Children {
		if child.BomID == 0 {
			continue
		}
		if child.IsPhantom {
			collectChildRows(child, parentProductID, out)
			continue
		}
		*out = append(*out, ProductPlan{
			ProductID:       child.ProductID,
			ProductCode:     child.Code,
			ProductName:     child.Name,
			Quantity:        child.Quantity,
			Unit:            child.Unit,
			Source:          child.Source,
			ParentProductID: parentProductID,
			BomID:           child.BomID,
			RoutingID:       child.RoutingID,
		})
		collectChildRows(child, child.ProductID, out)
	}
}

func filterLines(lines []sales.OrderLine, selected []int64) []sales.OrderLine {
	if len(selected) == 0 {
		return lines
	}
	wanted := make(map[int64]bool, len(selected))
	for _, id := range selected {
		wanted[id] = true
	}
	filtered := lines[:0:0]
	for _, line := range lines {
		if wanted[line.ID] {
			filtered = append(filtered, line)
		}
	}
	return filtered
}
