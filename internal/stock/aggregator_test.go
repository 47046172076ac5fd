package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubReader struct {
	balances map[int64][]WarehouseStock
	failures map[int64]int
	calls    map[int64]int
	lastWh   *int64
}

func newStubReader() *stubReader {
	return &stubReader{
		balances: make(map[int64][]WarehouseStock),
		failures: make(map[int64]int),
		calls:    make(map[int64]int),
	}
}

func (s *stubReader) GetStock(_ context.Context, materialID int64, warehouseID *int64) ([]WarehouseStock, error) {
	s.calls[materialID]++
	s.lastWh = warehouseID
	if s.failures[materialID] > 0 {
		s.failures[materialID]--
		return nil, ErrStockUnavailable
	}
	return s.balances[materialID], nil
}

func TestGetAvailableFloorsEachWarehouseAtZero(t *testing.T) {
	reader := newStubReader()
	reader.balances[1] = []WarehouseStock{
		{WarehouseID: 10, Quantity: 8, Reserved: 3},
		{WarehouseID: 11, Quantity: 2, Reserved: 6},
	}
	agg := NewAggregator(reader, nil)

	avail, err := agg.GetAvailable(context.Background(), 1, nil)
	require.NoError(t, err)
	// warehouse 11 is over-reserved and must not drag the total negative
	require.Equal(t, 5.0, avail.Available)
	require.Equal(t, 9.0, avail.Reserved)
	require.False(t, avail.Degraded)
}

func TestGetAvailableCachesPerMaterial(t *testing.T) {
	reader := newStubReader()
	reader.balances[1] = []WarehouseStock{{WarehouseID: 10, Quantity: 4}}
	agg := NewAggregator(reader, nil)

	for i := 0; i < 3; i++ {
		avail, err := agg.GetAvailable(context.Background(), 1, nil)
		require.NoError(t, err)
		require.Equal(t, 4.0, avail.Available)
	}
	require.Equal(t, 1, reader.calls[1])
}

func TestGetAvailableCacheKeyedByWarehouse(t *testing.T) {
	reader := newStubReader()
	reader.balances[1] = []WarehouseStock{
		{WarehouseID: 10, Quantity: 4},
	}
	agg := NewAggregator(reader, nil)

	_, err := agg.GetAvailable(context.Background(), 1, nil)
	require.NoError(t, err)

	wh := int64(10)
	_, err = agg.GetAvailable(context.Background(), 1, &wh)
	require.NoError(t, err)
	require.Equal(t, 2, reader.calls[1], "scoped lookup must not reuse the unscoped entry")
	require.NotNil(t, reader.lastWh)
	require.Equal(t, wh, *reader.lastWh)
}

func TestGetAvailableRetriesOnceThenSucceeds(t *testing.T) {
	reader := newStubReader()
	reader.balances[1] = []WarehouseStock{{WarehouseID: 10, Quantity: 7}}
	reader.failures[1] = 1
	agg := NewAggregator(reader, nil)

	avail, err := agg.GetAvailable(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Equal(t, 7.0, avail.Available)
	require.False(t, avail.Degraded)
	require.Equal(t, 2, reader.calls[1])
}

func TestGetAvailableDegradesAfterSecondFailure(t *testing.T) {
	reader := newStubReader()
	reader.failures[1] = 2
	agg := NewAggregator(reader, nil)

	avail, err := agg.GetAvailable(context.Background(), 1, nil)
	require.NoError(t, err)
	require.True(t, avail.Degraded)
	require.Zero(t, avail.Available)
	require.Equal(t, 2, reader.calls[1])

	// degraded result is cached too; no further reads on repeat
	_, err = agg.GetAvailable(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Equal(t, 2, reader.calls[1])
}
