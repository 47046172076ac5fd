package stock

import "errors"

// WarehouseStock is the balance of one material in one warehouse.
type WarehouseStock struct {
	WarehouseID int64
	Quantity    float64
	Reserved    float64
}

// Availability summarises usable stock for a material across the queried
// warehouses. Each warehouse is floored at zero before summation, so a
// warehouse whose reservations exceed its quantity contributes nothing
// instead of dragging the total negative.
type Availability struct {
	MaterialID int64
	Available  float64
	Reserved   float64
	// Degraded marks availability that fell back to zero after repeated
	// read failures. The preview reports it as a warning instead of failing.
	Degraded bool
}

// ErrStockUnavailable indicates the balance read failed after retry.
var ErrStockUnavailable = errors.New("stock: balance read failed")
