package stock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Aggregator answers availability questions for one planning invocation.
// Results are cached per material so a material appearing at several tree
// positions hits the reader once. Construct a fresh Aggregator per request;
// the cache is never shared across snapshots.
type Aggregator struct {
	reader Reader
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]Availability
}

// NewAggregator builds an Aggregator over reader.
func NewAggregator(reader Reader, logger *slog.Logger) *Aggregator {
	return &Aggregator{reader: reader, logger: logger, cache: make(map[string]Availability)}
}

// GetAvailable returns usable stock for the material, optionally scoped to a
// single warehouse. A failed read is retried once; after a second failure the
// material degrades to zero availability so the caller can keep going.
func (a *Aggregator) GetAvailable(ctx context.Context, materialID int64, warehouseID *int64) (Availability, error) {
	key := cacheKey(materialID, warehouseID)
	a.mu.Lock()
	if cached, ok := a.cache[key]; ok {
		a.mu.Unlock()
		return cached, nil
	}
	a.mu.Unlock()

	balances, err := a.reader.GetStock(ctx, materialID, warehouseID)
	if err != nil {
		if a.logger != nil {
			a.logger.Warn("stock read failed, retrying", slog.Int64("material_id", materialID), slog.Any("error", err))
		}
		balances, err = a.reader.GetStock(ctx, materialID, warehouseID)
	}

	var avail Availability
	if err != nil {
		if a.logger != nil {
			a.logger.Error("stock read failed after retry, degrading to zero", slog.Int64("material_id", materialID), slog.Any("error", err))
		}
		avail = Availability{MaterialID: materialID, Degraded: true}
	} else {
		avail = sumBalances(materialID, balances)
	}

	a.mu.Lock()
	a.cache[key] = avail
	a.mu.Unlock()
	return avail, nil
}

func sumBalances(materialID int64, balances []WarehouseStock) Availability {
	avail := Availability{MaterialID: materialID}
	for _, ws := range balances {
		usable := ws.Quantity - ws.Reserved
		if usable < 0 {
			usable = 0
		}
		avail.Available += usable
		avail.Reserved += ws.Reserved
	}
	return avail
}

func cacheKey(materialID int64, warehouseID *int64) string {
	if warehouseID == nil {
		return fmt.Sprintf("%d:*", materialID)
	}
	return fmt.Sprintf("%d:%d", materialID, *warehouseID)
}
