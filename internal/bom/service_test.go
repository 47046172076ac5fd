package bom

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestTreeDefaultsToBaseQuantity(t *testing.T) {
	src, products := bikeFixture()
	svc := NewService(src, NewEngine(src, products, 0), nil)

	tree, err := svc.Tree(context.Background(), 10, decimal.Zero)
	require.NoError(t, err)
	require.True(t, tree.Quantity.Equal(decimal.NewFromInt(1)))
	require.Len(t, tree.Children, 2)
}

func TestTreeServedFromCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src, products := bikeFixture()
	svc := NewService(src, NewEngine(src, products, 0), NewTreeCache(client, time.Minute))
	ctx := context.Background()

	first, err := svc.Tree(ctx, 10, decimal.NewFromInt(3))
	require.NoError(t, err)
	callsAfterFirst := src.itemCalls

	second, err := svc.Tree(ctx, 10, decimal.NewFromInt(3))
	require.NoError(t, err)
	require.Equal(t, callsAfterFirst, src.itemCalls, "second materialization must come from cache")
	require.True(t, first.Quantity.Equal(second.Quantity))
	require.Len(t, second.Children, len(first.Children))

	// Different quantity is a different cache key.
	_, err = svc.Tree(ctx, 10, decimal.NewFromInt(4))
	require.NoError(t, err)
	require.Greater(t, src.itemCalls, callsAfterFirst)
}

func TestTreeCacheExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src, products := bikeFixture()
	svc := NewService(src, NewEngine(src, products, 0), NewTreeCache(client, time.Minute))
	ctx := context.Background()

	_, err := svc.Tree(ctx, 10, decimal.NewFromInt(2))
	require.NoError(t, err)
	calls := src.itemCalls

	mr.FastForward(2 * time.Minute)

	_, err = svc.Tree(ctx, 10, decimal.NewFromInt(2))
	require.NoError(t, err)
	require.Greater(t, src.itemCalls, calls, "expired entry must re-materialize")
}

func TestRoutingLookup(t *testing.T) {
	src, products := bikeFixture()
	src.routings[7] = Routing{ID: 7, Name: "Assembly", Operations: []RoutingOperation{{Sequence: 10, Name: "Weld"}}}
	b := src.boms[10]
	b.RoutingID = 7
	src.boms[10] = b
	svc := NewService(src, NewEngine(src, products, 0), nil)
	ctx := context.Background()

	routing, err := svc.Routing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, routing.Operations, 1)

	_, err = svc.Routing(ctx, 20)
	require.ErrorIs(t, err, ErrRoutingNotFound)

	_, err = svc.Routing(ctx, 999)
	require.ErrorIs(t, err, ErrBomNotFound)
}
