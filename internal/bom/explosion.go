package bom

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/masterdata"
	"github.com/tessera-erp/tessera-erp/internal/stock"
)

// DefaultMaxDepth bounds explosion recursion. Hitting it means corrupted BOM
// data, not a legitimately deep product structure.
const DefaultMaxDepth = 50

// ProductLookup resolves catalogue info for tree nodes.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (masterdata.Product, error)
}

// StockChecker answers availability questions during nested explosion.
type StockChecker interface {
	GetAvailable(ctx context.Context, materialID int64, warehouseID *int64) (stock.Availability, error)
}

// Engine expands a BOM into a scaled component tree and flat raw-material
// demand. It is stateless; every call walks from a fresh path.
type Engine struct {
	source   Source
	products ProductLookup
	maxDepth int
}

// NewEngine builds an Engine over the given lookups. maxDepth <= 0 selects
// DefaultMaxDepth.
func NewEngine(source Source, products ProductLookup, maxDepth int) *Engine {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Engine{source: source, products: products, maxDepth: maxDepth}
}

// Result is the outcome of one explosion. Depth is the deepest BOM level the
// walk reached, counting the root as level one.
type Result struct {
	Tree    TreeNode
	Demands []DemandEntry
	Notes   []string
	Depth   int
}

// ExplodeNested expands the BOM treating sub-assemblies as first-class
// stocked items: each one is netted against available stock and only the
// shortage quantity explodes further. Answers "what do I need to build given
// what I already have".
func (e *Engine) ExplodeNested(ctx context.Context, bomID int64, quantity decimal.Decimal, stocks StockChecker, warehouseID *int64) (Result, error) {
	if stocks == nil {
		return Result{}, fmt.Errorf("bom: nested explosion requires a stock checker")
	}
	root, items, err := e.loadRoot(ctx, bomID, quantity)
	if err != nil {
		return Result{}, err
	}
	w := &nestedWalk{engine: e, stocks: stocks, warehouseID: warehouseID}
	node, err := w.walk(ctx, root, items, quantity, []int64{root.ID}, SourceBom)
	if err != nil {
		return Result{}, err
	}
	return Result{Tree: node, Demands: w.demands, Notes: w.notes, Depth: w.depth}, nil
}

// ExplodeFlattened expands the BOM straight down to raw materials, ignoring
// intermediate stock entirely. Answers "what raw materials would a
// from-scratch build consume".
func (e *Engine) ExplodeFlattened(ctx context.Context, bomID int64, quantity decimal.Decimal) (Result, error) {
	root, items, err := e.loadRoot(ctx, bomID, quantity)
	if err != nil {
		return Result{}, err
	}
	w := &flattenedWalk{engine: e}
	node, err := w.walk(ctx, root, items, quantity, []int64{root.ID}, SourceBom)
	if err != nil {
		return Result{}, err
	}
	return Result{Tree: node, Demands: w.demands, Notes: w.notes, Depth: w.depth}, nil
}

func (e *Engine) loadRoot(ctx context.Context, bomID int64, quantity decimal.Decimal) (Bom, []Item, error) {
	if !quantity.IsPositive() {
		return Bom{}, nil, ErrInvalidQuantity
	}
	root, err := e.source.GetBom(ctx, bomID)
	if err != nil {
		return Bom{}, nil, err
	}
	if root.Status != StatusActive {
		return Bom{}, nil, fmt.Errorf("%w: bom %d has status %s", ErrBomInactive, root.ID, root.Status)
	}
	items, err := e.source.GetBomItems(ctx, root.ID)
	if err != nil {
		return Bom{}, nil, err
	}
	return root, items, nil
}

// effectiveQuantity scales one line: requested / baseQuantity * line quantity.
func effectiveQuantity(requested decimal.Decimal, b Bom, it Item) (decimal.Decimal, error) {
	base := decimal.NewFromFloat(b.BaseQuantity)
	if !base.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: bom %d", ErrInvalidBaseQuantity, b.ID)
	}
	return requested.Div(base).Mul(decimal.NewFromFloat(it.Quantity)), nil
}

func (e *Engine) assemblyNode(ctx context.Context, b Bom, quantity decimal.Decimal, src NodeSource, phantom bool) (TreeNode, error) {
	product, err := e.products.GetProduct(ctx, b.ProductID)
	if err != nil {
		return TreeNode{}, err
	}
	return TreeNode{
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		Quantity:  quantity,
		Unit:      product.UnitCode,
		IsPhantom: phantom,
		BomID:     b.ID,
		RoutingID: b.RoutingID,
		Source:    src,
	}, nil
}

func (e *Engine) leafNode(ctx context.Context, it Item, quantity decimal.Decimal, src NodeSource) (TreeNode, DemandEntry, error) {
	product, err := e.products.GetProduct(ctx, it.MaterialID)
	if err != nil {
		return TreeNode{}, DemandEntry{}, err
	}
	unit := it.UnitCode
	if unit == "" {
		unit = product.UnitCode
	}
	node := TreeNode{
		ProductID: product.ID,
		Code:      product.Code,
		Name:      product.Name,
		Quantity:  quantity,
		Unit:      unit,
		Source:    src,
	}
	demand := DemandEntry{MaterialID: it.MaterialID, Quantity: quantity, UnitID: it.UnitID, UnitCode: unit}
	return node, demand, nil
}

// resolveChildBom finds the BOM a phantom or assembly line expands through:
// the explicit child link when present, otherwise the material's default BOM.
func (e *Engine) resolveChildBom(ctx context.Context, it Item) (Bom, error) {
	if it.ChildBomID != 0 {
		return e.source.GetBom(ctx, it.ChildBomID)
	}
	return e.source.GetDefaultBom(ctx, it.MaterialID)
}

func (e *Engine) guardDescent(child Bom, path []int64) error {
	for _, id := range path {
		if id == child.ID {
			return &CycleError{Path: append(append([]int64{}, path...), child.ID)}
		}
	}
	if len(path) >= e.maxDepth {
		return &DepthError{BomID: child.ID, Depth: len(path)}
	}
	return nil
}

func descendPath(path []int64, bomID int64) []int64 {
	next := make([]int64, 0, len(path)+1)
	next = append(next, path...)
	return append(next, bomID)
}

func childSource(path []int64) NodeSource {
	// Direct children of the ordered product's BOM decompose from it alone;
	// anything deeper involves a nested child BOM as well.
	if len(path) <= 1 {
		return SourceChildBom
	}
	return SourceBomChild
}

// nestedWalk nets every non-phantom sub-assembly against stock and explodes
// only the shortage.
type nestedWalk struct {
	engine      *Engine
	stocks      StockChecker
	warehouseID *int64
	demands     []DemandEntry
	notes       []string
	depth       int
}

func (w *nestedWalk) walk(ctx context.Context, b Bom, items []Item, quantity decimal.Decimal, path []int64, src NodeSource) (TreeNode, error) {
	if len(path) > w.depth {
		w.depth = len(path)
	}
	node, err := w.engine.assemblyNode(ctx, b, quantity, src, false)
	if err != nil {
		return TreeNode{}, err
	}
	for _, it := range items {
		eff, err := effectiveQuantity(quantity, b, it)
		if err != nil {
			return TreeNode{}, err
		}
		switch {
		case it.IsPhantom:
			child, err := w.phantom(ctx, it, eff, path)
			if err != nil {
				return TreeNode{}, err
			}
			node.Children = append(node.Children, child)
		case it.ChildBomID != 0:
			child, err := w.subAssembly(ctx, it, eff, path)
			if err != nil {
				return TreeNode{}, err
			}
			node.Children = append(node.Children, child)
		default:
			leaf, demand, err := w.engine.leafNode(ctx, it, eff, childSource(path))
			if err != nil {
				return TreeNode{}, err
			}
			w.demands = append(w.demands, demand)
			node.Children = append(node.Children, leaf)
		}
	}
	return node, nil
}

// phantom dissolves the line into its own children at full quantity. Phantoms
// are never stocked, so no netting applies at this level.
func (w *nestedWalk) phantom(ctx context.Context, it Item, eff decimal.Decimal, path []int64) (TreeNode, error) {
	childBom, err := w.engine.resolveChildBom(ctx, it)
	if err != nil {
		if errors.Is(err, ErrBomNotFound) || errors.Is(err, ErrBomInactive) {
			w.notes = append(w.notes, fmt.Sprintf("phantom material %d has no active bom, treated as direct demand", it.MaterialID))
			leaf, demand, lerr := w.engine.leafNode(ctx, it, eff, childSource(path))
			if lerr != nil {
				return TreeNode{}, lerr
			}
			leaf.IsPhantom = true
			w.demands = append(w.demands, demand)
			return leaf, nil
		}
		return TreeNode{}, err
	}
	if err := w.engine.guardDescent(childBom, path); err != nil {
		return TreeNode{}, err
	}
	items, err := w.engine.source.GetBomItems(ctx, childBom.ID)
	if err != nil {
		return TreeNode{}, err
	}
	child, err := w.walk(ctx, childBom, items, eff, descendPath(path, childBom.ID), childSource(path))
	if err != nil {
		return TreeNode{}, err
	}
	child.IsPhantom = true
	return child, nil
}

// subAssembly nets a stocked assembly and explodes only what must be built.
func (w *nestedWalk) subAssembly(ctx context.Context, it Item, eff decimal.Decimal, path []int64) (TreeNode, error) {
	childBom, err := w.engine.source.GetBom(ctx, it.ChildBomID)
	if err != nil {
		return TreeNode{}, err
	}
	if err := w.engine.guardDescent(childBom, path); err != nil {
		return TreeNode{}, err
	}

	avail, err := w.stocks.GetAvailable(ctx, it.MaterialID, w.warehouseID)
	if err != nil {
		return TreeNode{}, err
	}
	if avail.Degraded {
		w.notes = append(w.notes, fmt.Sprintf("stock lookup degraded for material %d, assumed zero", it.MaterialID))
	}
	available := decimal.NewFromFloat(avail.Available)
	build := eff.Sub(available)
	if build.IsNegative() {
		build = decimal.Zero
	}

	node, err := w.engine.assemblyNode(ctx, childBom, eff, childSource(path), false)
	if err != nil {
		return TreeNode{}, err
	}
	node.Available = available
	node.BuildQuantity = build

	if build.IsPositive() {
		items, err := w.engine.source.GetBomItems(ctx, childBom.ID)
		if err != nil {
			return TreeNode{}, err
		}
		expanded, err := w.walk(ctx, childBom, items, build, descendPath(path, childBom.ID), childSource(path))
		if err != nil {
			return TreeNode{}, err
		}
		node.Children = expanded.Children
	}
	return node, nil
}

// flattenedWalk ignores intermediate stock and expands everything to raw
// materials at full quantity.
type flattenedWalk struct {
	engine  *Engine
	demands []DemandEntry
	notes   []string
	depth   int
}

func (w *flattenedWalk) walk(ctx context.Context, b Bom, items []Item, quantity decimal.Decimal, path []int64, src NodeSource) (TreeNode, error) {
	if len(path) > w.depth {
		w.depth = len(path)
	}
	node, err := w.engine.assemblyNode(ctx, b, quantity, src, false)
	if err != nil {
		return TreeNode{}, err
	}
	for _, it := range items {
		eff, err := effectiveQuantity(quantity, b, it)
		if err != nil {
			return TreeNode{}, err
		}
		if it.IsPhantom || it.ChildBomID != 0 {
			child, err := w.descend(ctx, it, eff, path)
			if err != nil {
				return TreeNode{}, err
			}
			node.Children = append(node.Children, child)
			continue
		}
		leaf, demand, err := w.engine.leafNode(ctx, it, eff, childSource(path))
		if err != nil {
			return TreeNode{}, err
		}
		w.demands = append(w.demands, demand)
		node.Children = append(node.Children, leaf)
	}
	return node, nil
}

func (w *flattenedWalk) descend(ctx context.Context, it Item, eff decimal.Decimal, path []int64) (TreeNode, error) {
	childBom, err := w.engine.resolveChildBom(ctx, it)
	if err != nil {
		if (errors.Is(err, ErrBomNotFound) || errors.Is(err, ErrBomInactive)) && it.IsPhantom {
			w.notes = append(w.notes, fmt.Sprintf("phantom material %d has no active bom, treated as direct demand", it.MaterialID))
			leaf, demand, lerr := w.engine.leafNode(ctx, it, eff, childSource(path))
			if lerr != nil {
				return TreeNode{}, lerr
			}
			leaf.IsPhantom = true
			w.demands = append(w.demands, demand)
			return leaf, nil
		}
		return TreeNode{}, err
	}
	if err := w.engine.guardDescent(childBom, path); err != nil {
		return TreeNode{}, err
	}
	items, err := w.engine.source.GetBomItems(ctx, childBom.ID)
	if err != nil {
		return TreeNode{}, err
	}
	child, err := w.walk(ctx, childBom, items, eff, descendPath(path, childBom.ID), childSource(path))
	if err != nil {
		return TreeNode{}, err
	}
	child.IsPhantom = it.IsPhantom
	return child, nil
}
