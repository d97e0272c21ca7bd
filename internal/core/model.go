package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// UoM is the native unit of measure a delivery is received in.
type UoM string

const (
	UoMKilogram   UoM = "kg"
	UoMLiter      UoM = "l"
	UoMCubicMeter UoM = "m3"
)

// Valid reports whether u is one of the receivable units.
func (u UoM) Valid() bool {
	switch u {
	case UoMKilogram, UoMLiter, UoMCubicMeter:
		return true
	}
	return false
}

// WeightSource records which input supplied the volumetric weight of an m3 receipt.
type WeightSource string

const (
	WeightSourceNone            WeightSource = ""
	WeightSourceOrderLine       WeightSource = "order_line"
	WeightSourceAgreement       WeightSource = "supplier_agreement"
	WeightSourceMaterialDefault WeightSource = "material_default"
	WeightSourceManual          WeightSource = "manual"
)

type OrderLineStatus string

const (
	OrderLinePending   OrderLineStatus = "pending"
	OrderLinePartial   OrderLineStatus = "partial"
	OrderLineFulfilled OrderLineStatus = "fulfilled"
)

type PricingStatus string

const (
	PricingDraft    PricingStatus = "draft"
	PricingReviewed PricingStatus = "reviewed"
)

// CostCategory distinguishes the two payable lines a delivery can produce.
type CostCategory string

const (
	CostMaterial CostCategory = "material"
	CostFreight  CostCategory = "freight"
)

// QtyTolerance absorbs rounding noise when comparing received and ordered quantities.
var QtyTolerance = decimal.New(1, -6)

// Material is a receivable raw material (cement, aggregate, additive, water).
type Material struct {
	ID   uuid.UUID
	Name string
	// BulkDensity is the default kg per m3, used when no better weight is known.
	BulkDensity *decimal.Decimal
}

// Plant is a batching plant. Its business unit carries the default tax rate.
type Plant struct {
	ID             uuid.UUID
	Code           string
	BusinessUnitID *uuid.UUID
}

type BusinessUnit struct {
	ID             uuid.UUID
	Name           string
	DefaultTaxRate *decimal.Decimal
}

type Supplier struct {
	ID               uuid.UUID
	Name             string
	PaymentTermsDays *int
}

// SupplierAgreement is a negotiated price/weight/tax arrangement between a supplier and a
// material. EffectiveTo == nil means the agreement is still active.
type SupplierAgreement struct {
	ID               uuid.UUID
	SupplierID       uuid.UUID
	MaterialID       *uuid.UUID
	IsService        bool
	VolumetricWeight *decimal.Decimal
	TaxRate          *decimal.Decimal
	EffectiveFrom    time.Time
	EffectiveTo      *time.Time
}

// Active reports whether the agreement can be used for weight and tax resolution.
func (a *SupplierAgreement) Active() bool {
	return a != nil && a.EffectiveTo == nil && !a.IsService
}

func decPtr(d decimal.Decimal) *decimal.Decimal { return &d }
