package sales

import (
	"errors"
	"time"
)

// OrderStatus enumerates sales order states relevant to planning.
type OrderStatus string

const (
	// OrderStatusDraft is not yet confirmed by sales.
	OrderStatusDraft OrderStatus = "draft"
	// OrderStatusConfirmed is ready for fulfilment planning.
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusCompleted has been fully delivered.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is void.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the sales order header as seen by planning. Order management
// itself lives outside this service.
type Order struct {
	ID         int64
	Number     string
	CustomerID int64
	Status     OrderStatus
	OrderDate  time.Time
}

// OrderLine is one ordered product position.
type OrderLine struct {
	ID        int64
	OrderID   int64
	ProductID int64
	Quantity  float64
	UnitID    int64
	UnitCode  string
}

// ErrOrderNotFound indicates a missing sales order.
var ErrOrderNotFound = errors.New("sales: order not found")
