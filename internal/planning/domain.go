package planning

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tessera-erp/tessera-erp/internal/bom"
)

// PlanStatus enumerates production plan lifecycle states.
type PlanStatus string

const (
	// PlanStatusDraft is editable and not yet committed.
	PlanStatusDraft PlanStatus = "draft"
	// PlanStatusConfirmed is approved; stock is reserved and orders may be generated.
	PlanStatusConfirmed PlanStatus = "confirmed"
	// PlanStatusCancelled is terminal; reservations have been released.
	PlanStatusCancelled PlanStatus = "cancelled"
	// PlanStatusCompleted is terminal; production finished.
	PlanStatusCompleted PlanStatus = "completed"
)

// ProductionPlan is a committed material plan derived from a sales order.
type ProductionPlan struct {
	ID                  int64                 `json:"id"`
	Number              string                `json:"number"`
	OrderID             int64                 `json:"orderId"`
	OrderNo             string                `json:"orderNo"`
	Name                string                `json:"name"`
	Status              PlanStatus            `json:"status"`
	PlannedStart        time.Time             `json:"plannedStart"`
	PlannedFinish       time.Time             `json:"plannedFinish"`
	OwnerID             int64                 `json:"ownerId"`
	FinishedWarehouseID int64                 `json:"finishedWarehouseId"`
	IssueWarehouseID    int64                 `json:"issueWarehouseId"`
	Products            []ProductPlan         `json:"products,omitempty"`
	Requirements        []MaterialRequirement `json:"materialRequirements,omitempty"`
	CreatedAt           time.Time             `json:"createdAt"`
	UpdatedAt           time.Time             `json:"updatedAt"`
}

// ProductPlan is one product or sub-assembly row inside a plan. Rows form a
// shallow tree: ordered products at the top, BOM-driven sub-assemblies below
// them via ParentProductID.
type ProductPlan struct {
	ID              int64           `json:"id"`
	PlanID          int64           `json:"planId"`
	ProductID       int64           `json:"productId"`
	ProductCode     string          `json:"productCode"`
	ProductName     string          `json:"productName"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	Source          bom.NodeSource  `json:"source"`
	ParentProductID int64           `json:"parentProductId,omitempty"`
	BomID           int64           `json:"bomId,omitempty"`
	RoutingID       int64           `json:"routingId,omitempty"`
	// RoutingOperations is attached for display when the preview asked for
	// routing; it is never persisted with the plan.
	RoutingOperations []bom.RoutingOperation `json:"routingOperations,omitempty"`
}

// MaterialRequirement is the netted demand for one material across the whole
// plan. Exactly one row per material: occurrences at different tree positions
// collapse here.
type MaterialRequirement struct {
	ID               int64           `json:"id"`
	PlanID           int64           `json:"planId,omitempty"`
	MaterialID       int64           `json:"materialId"`
	MaterialCode     string          `json:"materialCode"`
	MaterialName     string          `json:"materialName"`
	Unit             string          `json:"unit"`
	RequiredQuantity decimal.Decimal `json:"requiredQuantity"`
	AvailableStock   decimal.Decimal `json:"availableStock"`
	ShortageQuantity decimal.Decimal `json:"shortageQuantity"`
	NeedOutsource    bool            `json:"needOutsource"`
}

// PreviewResult is the non-persisted outcome of a planning preview.
type PreviewResult struct {
	OrderID      int64                 `json:"orderId"`
	OrderNo      string                `json:"orderNo"`
	Products     []ProductPlan         `json:"products"`
	Requirements []MaterialRequirement `json:"materialRequirements"`
	Notes        []string              `json:"notes"`
}

// ListFilters narrows plan listings.
type ListFilters struct {
	Status  PlanStatus
	OrderID int64
	Limit   int
	Offset  int
}

var (
	// ErrPlanNotFound indicates a missing plan.
	ErrPlanNotFound = errors.New("planning: plan not found")
	// ErrInvalidPlanState indicates an illegal lifecycle transition.
	ErrInvalidPlanState = errors.New("planning: invalid plan state for operation")
	// ErrNoOrderLines indicates the preview selection matched nothing.
	ErrNoOrderLines = errors.New("planning: no order lines selected")
	// ErrEmptyPlan indicates a plan without any product rows.
	ErrEmptyPlan = errors.New("planning: plan has no products")
)

// canTransition encodes the lifecycle: draft -> confirmed -> completed, with
// draft|confirmed -> cancelled. Everything else is illegal.
func canTransition(from, to PlanStatus) bool {
	switch from {
	case PlanStatusDraft:
		return to == PlanStatusConfirmed || to == PlanStatusCancelled
	case PlanStatusConfirmed:
		return to == PlanStatusCompleted || to == PlanStatusCancelled
	default:
		return false
	}
}
