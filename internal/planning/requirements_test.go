package planning

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/tessera-erp/tessera-erp/internal/bom"
	"github.com/tessera-erp/tessera-erp/internal/masterdata"
	"github.com/tessera-erp/tessera-erp/internal/stock"
)

type stubProducts struct {
	products map[int64]masterdata.Product
}

func (s *stubProducts) GetProduct(_ context.Context, id int64) (masterdata.Product, error) {
	p, ok := s.products[id]
	if !ok {
		return masterdata.Product{}, masterdata.ErrProductNotFound
	}
	return p, nil
}

func (s *stubProducts) GetProducts(_ context.Context, ids []int64) (map[int64]masterdata.Product, error) {
	out := make(map[int64]masterdata.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type stubStocks struct {
	available map[int64]float64
	degraded  map[int64]bool
	calls     map[int64]int
}

func (s *stubStocks) GetAvailable(_ context.Context, materialID int64, _ *int64) (stock.Availability, error) {
	if s.calls != nil {
		s.calls[materialID]++
	}
	return stock.Availability{
		MaterialID: materialID,
		Available:  s.available[materialID],
		Degraded:   s.degraded[materialID],
	}, nil
}

func catalogue(entries ...masterdata.Product) *stubProducts {
	s := &stubProducts{products: make(map[int64]masterdata.Product)}
	for _, p := range entries {
		s.products[p.ID] = p
	}
	return s
}

func demand(materialID int64, qty float64, unit string) bom.DemandEntry {
	return bom.DemandEntry{MaterialID: materialID, Quantity: decimal.NewFromFloat(qty), UnitCode: unit}
}

func TestMergeSumsDemandPerMaterial(t *testing.T) {
	calc := NewCalculator(
		&stubStocks{available: map[int64]float64{1: 0}},
		catalogue(masterdata.Product{ID: 1, Code: "TUBE", Name: "Tube", AcquisitionMethod: masterdata.AcquisitionPurchase}),
	)

	reqs, notes, err := calc.Merge(context.Background(), []bom.DemandEntry{
		demand(1, 4, "m"),
		demand(1, 2.5, "m"),
	}, nil)
	require.NoError(t, err)
	require.Empty(t, notes)
	require.Len(t, reqs, 1)
	require.True(t, reqs[0].RequiredQuantity.Equal(decimal.NewFromFloat(6.5)), "got %s", reqs[0].RequiredQuantity)
	require.Equal(t, "TUBE", reqs[0].MaterialCode)
	require.Equal(t, "m", reqs[0].Unit)
}

func TestMergeComputesShortageFlooredAtZero(t *testing.T) {
	calc := NewCalculator(
		&stubStocks{available: map[int64]float64{1: 10, 2: 3}},
		catalogue(
			masterdata.Product{ID: 1, Code: "RIM", AcquisitionMethod: masterdata.AcquisitionPurchase},
			masterdata.Product{ID: 2, Code: "SPOKE", AcquisitionMethod: masterdata.AcquisitionPurchase},
		),
	)

	reqs, _, err := calc.Merge(context.Background(), []bom.DemandEntry{
		demand(1, 6, "pcs"),
		demand(2, 8, "pcs"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 2)
	// covered material: shortage clamps to zero, never negative
	require.True(t, reqs[0].ShortageQuantity.IsZero())
	require.True(t, reqs[1].ShortageQuantity.Equal(decimal.NewFromInt(5)))
}

func TestMergeOutsourceOnlyWhenShortAndOutsourced(t *testing.T) {
	calc := NewCalculator(
		&stubStocks{available: map[int64]float64{1: 0, 2: 0, 3: 100}},
		catalogue(
			masterdata.Product{ID: 1, Code: "PAINT", AcquisitionMethod: masterdata.AcquisitionOutsourcing},
			masterdata.Product{ID: 2, Code: "BOLT", AcquisitionMethod: masterdata.AcquisitionPurchase},
			masterdata.Product{ID: 3, Code: "WAX", AcquisitionMethod: masterdata.AcquisitionOutsourcing},
		),
	)

	reqs, _, err := calc.Merge(context.Background(), []bom.DemandEntry{
		demand(1, 5, "kg"),
		demand(2, 5, "pcs"),
		demand(3, 5, "kg"),
	}, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 3)
	require.True(t, reqs[0].NeedOutsource, "outsourced material with shortage")
	require.False(t, reqs[1].NeedOutsource, "purchase-sourced shortage stays with purchasing")
	require.False(t, reqs[2].NeedOutsource, "covered outsourced material needs nothing")
}

func TestMergeOrdersByMaterialID(t *testing.T) {
	calc := NewCalculator(
		&stubStocks{available: map[int64]float64{}},
		catalogue(
			masterdata.Product{ID: 2, Code: "B"},
			masterdata.Product{ID: 9, Code: "C"},
			masterdata.Product{ID: 1, Code: "A"},
		),
	)

	reqs, _, err := calc.Merge(context.Background(), []bom.DemandEntry{
		demand(9, 1, "pcs"),
		demand(1, 1, "pcs"),
		demand(2, 1, "pcs"),
	}, nil)
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 9}, []int64{reqs[0].MaterialID, reqs[1].MaterialID, reqs[2].MaterialID})
}

func TestMergeNotesDegradedStock(t *testing.T) {
	stocks := &stubStocks{
		available: map[int64]float64{1: 0},
		degraded:  map[int64]bool{1: true},
		calls:     make(map[int64]int),
	}
	calc := NewCalculator(stocks, catalogue(masterdata.Product{ID: 1, Code: "TUBE", AcquisitionMethod: masterdata.AcquisitionPurchase}))

	reqs, notes, err := calc.Merge(context.Background(), []bom.DemandEntry{demand(1, 3, "m")}, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Len(t, notes, 1)
	require.Contains(t, notes[0], "degraded")
	require.Equal(t, 1, stocks.calls[1])
}

func TestMergeNotesUnknownMaterial(t *testing.T) {
	calc := NewCalculator(&stubStocks{available: map[int64]float64{}}, catalogue())

	reqs, notes, err := calc.Merge(context.Background(), []bom.DemandEntry{demand(42, 1, "pcs")}, nil)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	require.Empty(t, reqs[0].MaterialCode)
	require.Len(t, notes, 1)
	require.Contains(t, notes[0], "missing from catalogue")
}

func TestMergeEmptyDemandYieldsNothing(t *testing.T) {
	calc := NewCalculator(&stubStocks{}, catalogue())
	reqs, notes, err := calc.Merge(context.Background(), nil, nil)
	require.NoError(t, err)
	require.Nil(t, reqs)
	require.Nil(t, notes)
}
