package bom

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Service materializes BOM trees for display and serves routing lookups.
type Service struct {
	source Source
	engine *Engine
	cache  *TreeCache

	group singleflight.Group
}

// NewService builds Service. cache may be nil.
func NewService(source Source, engine *Engine, cache *TreeCache) *Service {
	return &Service{source: source, engine: engine, cache: cache}
}

// Tree expands the BOM into its full component tree at the given quantity.
// A zero quantity expands at the BOM's own base quantity. Identical
// concurrent requests are coalesced; the result is never persisted.
func (s *Service) Tree(ctx context.Context, bomID int64, quantity decimal.Decimal) (TreeNode, error) {
	b, err := s.source.GetBom(ctx, bomID)
	if err != nil {
		return TreeNode{}, err
	}
	if quantity.IsZero() {
		quantity = decimal.NewFromFloat(b.BaseQuantity)
	}

	key := fmt.Sprintf("tree:%d:%s", bomID, quantity.String())
	if cached, ok := s.cache.Get(ctx, key); ok {
		return cached, nil
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		result, err := s.engine.ExplodeFlattened(ctx, bomID, quantity)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, key, result.Tree)
		return result.Tree, nil
	})
	if err != nil {
		return TreeNode{}, err
	}
	return v.(TreeNode), nil
}

// Routing returns the routing attached to a BOM, display only.
func (s *Service) Routing(ctx context.Context, bomID int64) (Routing, error) {
	b, err := s.source.GetBom(ctx, bomID)
	if err != nil {
		return Routing{}, err
	}
	if b.RoutingID == 0 {
		return Routing{}, ErrRoutingNotFound
	}
	return s.source.GetRouting(ctx, b.RoutingID)
}
