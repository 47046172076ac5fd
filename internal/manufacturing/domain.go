package manufacturing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus enumerates manufacturing order states.
type OrderStatus string

const (
	// OrderStatusPlanned is created from a confirmed plan, not yet released.
	OrderStatusPlanned OrderStatus = "planned"
	// OrderStatusReleased is handed to the shop floor.
	OrderStatusReleased OrderStatus = "released"
	// OrderStatusInProgress is being worked.
	OrderStatusInProgress OrderStatus = "in_progress"
	// OrderStatusCompleted finished production.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled is void.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is a committed instruction to build a quantity of a product.
// SourceRefID and SourceOrderNo trace back to the originating sales order.
type Order struct {
	ID                  int64           `json:"id"`
	Number              string          `json:"number"`
	ProductID           int64           `json:"productId"`
	BomID               int64           `json:"bomId,omitempty"`
	RoutingID           int64           `json:"routingId,omitempty"`
	Quantity            decimal.Decimal `json:"quantity"`
	Unit                string          `json:"unit"`
	Status              OrderStatus     `json:"status"`
	PlanID              int64           `json:"planId"`
	SourceRefID         string          `json:"sourceRefId"`
	SourceOrderNo       string          `json:"sourceOrderNo"`
	FinishedWarehouseID int64           `json:"finishedWarehouseId"`
	IssueWarehouseID    int64           `json:"issueWarehouseId"`
	PlannedStart        time.Time       `json:"plannedStart"`
	PlannedFinish       time.Time       `json:"plannedFinish"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// OrderInput describes a manufacturing order to create.
type OrderInput struct {
	Number              string
	ProductID           int64
	BomID               int64
	RoutingID           int64
	Quantity            decimal.Decimal
	Unit                string
	PlanID              int64
	SourceRefID         string
	SourceOrderNo       string
	FinishedWarehouseID int64
	IssueWarehouseID    int64
	PlannedStart        time.Time
	PlannedFinish       time.Time
}

// ListFilters narrows order listings.
type ListFilters struct {
	Status OrderStatus
	PlanID int64
	Limit  int
	Offset int
}

var (
	// ErrOrderNotFound indicates a missing manufacturing order.
	ErrOrderNotFound = errors.New("manufacturing: order not found")
	// ErrInvalidStatus indicates an illegal status transition.
	ErrInvalidStatus = errors.New("manufacturing: invalid status transition")
	// ErrInvalidQuantity indicates a non-positive order quantity.
	ErrInvalidQuantity = errors.New("manufacturing: quantity must be positive")
)

// canTransition encodes the shop-floor lifecycle.
func canTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPlanned:
		return to == OrderStatusReleased || to == OrderStatusCancelled
	case OrderStatusReleased:
		return to == OrderStatusInProgress || to == OrderStatusCancelled
	case OrderStatusInProgress:
		return to == OrderStatusCompleted
	default:
		return false
	}
}
