package masterdata

import (
	"errors"
	"time"
)

// AcquisitionMethod describes how a material is normally sourced.
type AcquisitionMethod string

const (
	// AcquisitionPurchase is bought from suppliers.
	AcquisitionPurchase AcquisitionMethod = "purchase"
	// AcquisitionOutsourcing is produced by an external processor.
	AcquisitionOutsourcing AcquisitionMethod = "outsourcing"
	// AcquisitionSelfMade is manufactured in house.
	AcquisitionSelfMade AcquisitionMethod = "self_made"
)

// Product is a sellable or consumable item in the catalogue. Raw materials,
// sub-assemblies and finished goods all share this record.
type Product struct {
	ID                int64
	Code              string
	Name              string
	UnitID            int64
	UnitCode          string
	AcquisitionMethod AcquisitionMethod
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Warehouse is a physical stock location.
type Warehouse struct {
	ID       int64
	Code     string
	Name     string
	IsActive bool
}

// Unit is a unit of measure.
type Unit struct {
	ID   int64
	Code string
	Name string
}

// ListFilters narrows product listings.
type ListFilters struct {
	Search   string
	IsActive *bool
	Limit    int
	Offset   int
}

// ErrProductNotFound indicates a missing product row.
var ErrProductNotFound = errors.New("masterdata: product not found")

// ErrWarehouseNotFound indicates a missing warehouse row.
var ErrWarehouseNotFound = errors.New("masterdata: warehouse not found")
