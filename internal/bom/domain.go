package bom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates BOM lifecycle states.
type Status string

const (
	// StatusDraft is still being edited.
	StatusDraft Status = "draft"
	// StatusActive is released for planning.
	StatusActive Status = "active"
	// StatusInactive is temporarily withdrawn.
	StatusInactive Status = "inactive"
	// StatusArchived is retired for good.
	StatusArchived Status = "archived"
)

// RequirementType describes how a line's quantity behaves.
type RequirementType string

const (
	// RequirementFixed is consumed regardless of batch size.
	RequirementFixed RequirementType = "fixed"
	// RequirementVariable scales with the produced quantity.
	RequirementVariable RequirementType = "variable"
	// RequirementOptional is consumed only on request.
	RequirementOptional RequirementType = "optional"
)

// Bom is a bill-of-materials header. BaseQuantity is the denominator for
// line scaling: each item's quantity is consumed per BaseQuantity of output.
type Bom struct {
	ID           int64
	ProductID    int64
	BaseQuantity float64
	BaseUnitID   int64
	Status       Status
	IsDefault    bool
	RoutingID    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Item is one BOM line. ChildBomID links the line to its own BOM when the
// component is an assembly; IsPhantom marks assemblies that are never stocked
// independently and dissolve into their children during explosion.
type Item struct {
	ID              int64
	BomID           int64
	MaterialID      int64
	Quantity        float64
	UnitID          int64
	UnitCode        string
	Sequence        int
	RequirementType RequirementType
	IsKey           bool
	IsPhantom       bool
	ChildBomID      int64
}

// NodeSource tags where a tree node's decomposition came from.
type NodeSource string

const (
	// SourceBom is the top-level BOM of the ordered product.
	SourceBom NodeSource = "bom"
	// SourceChildBom is a nested child BOM.
	SourceChildBom NodeSource = "child_bom"
	// SourceBomChild is a child line of a nested BOM (both levels involved).
	SourceBomChild NodeSource = "bom_child"
)

// TreeNode is the derived, never persisted explosion tree. Quantity is the
// absolute scaled amount at this position.
type TreeNode struct {
	ProductID int64           `json:"productId"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      string          `json:"unit"`
	IsPhantom bool            `json:"isPhantom"`
	BomID     int64           `json:"bomId,omitempty"`
	RoutingID int64           `json:"routingId,omitempty"`
	Source    NodeSource      `json:"source"`
	// Available and BuildQuantity are populated in nested mode for
	// sub-assemblies that were netted against stock.
	Available     decimal.Decimal `json:"available"`
	BuildQuantity decimal.Decimal `json:"buildQuantity"`
	Children      []TreeNode      `json:"children,omitempty"`
}

// DemandEntry is one raw-material demand produced by explosion.
type DemandEntry struct {
	MaterialID int64
	Quantity   decimal.Decimal
	UnitID     int64
	UnitCode   string
}

// Routing is the manufacturing route attached to a BOM, read-only here.
type Routing struct {
	ID         int64
	Code       string
	Name       string
	Operations []RoutingOperation
}

// RoutingOperation is one routing step, for display only.
type RoutingOperation struct {
	ID        int64
	RoutingID int64
	Sequence  int
	Name      string
	Workshop  string
}

var (
	// ErrBomNotFound indicates a missing or non-active BOM.
	ErrBomNotFound = errors.New("bom: not found")
	// ErrBomInactive indicates the BOM exists but is not active.
	ErrBomInactive = errors.New("bom: not active")
	// ErrInvalidQuantity indicates a non-positive requested quantity.
	ErrInvalidQuantity = errors.New("bom: requested quantity must be positive")
	// ErrInvalidBaseQuantity indicates a BOM header with a non-positive base.
	ErrInvalidBaseQuantity = errors.New("bom: base quantity must be positive")
	// ErrCircularReference indicates a BOM transitively contains itself.
	ErrCircularReference = errors.New("bom: circular reference")
	// ErrMaxDepthExceeded indicates explosion recursion hit the depth bound.
	ErrMaxDepthExceeded = errors.New("bom: max explosion depth exceeded")
	// ErrRoutingNotFound indicates a missing routing.
	ErrRoutingNotFound = errors.New("bom: routing not found")
)

// CycleError names the BOM ids forming a cycle.
type CycleError struct {
	Path []int64
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Path))
	for i, id := range e.Path {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return fmt.Sprintf("bom: circular reference through boms %s", strings.Join(ids, " -> "))
}

// Unwrap lets errors.Is match ErrCircularReference.
func (e *CycleError) Unwrap() error { return ErrCircularReference }

// DepthError names the BOM at which the depth bound was hit.
type DepthError struct {
	BomID int64
	Depth int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("bom: explosion depth %d exceeded at bom %d", e.Depth, e.BomID)
}

// Unwrap lets errors.Is match ErrMaxDepthExceeded.
func (e *DepthError) Unwrap() error { return ErrMaxDepthExceeded }
