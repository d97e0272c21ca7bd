package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Delivery is a recorded material receipt at a plant.
type Delivery struct {
	ID         uuid.UUID
	PlantID    uuid.UUID
	MaterialID uuid.UUID
	SupplierID *uuid.UUID
	EntryTime  time.Time

	NativeUoM            UoM
	NativeQty            decimal.Decimal
	KgEquivalent         *decimal.Decimal // nil iff NativeUoM == UoMLiter
	VolumetricWeightUsed *decimal.Decimal
	WeightSource         WeightSource
	RemainingKg          *decimal.Decimal // FIFO seed, set at creation only

	OrderID     *uuid.UUID
	OrderItemID *uuid.UUID
	UnitPrice   *decimal.Decimal
	TotalCost   *decimal.Decimal

	InvoiceNumber *string
	DueDate       *time.Time

	FleetSupplierID *uuid.UUID
	FleetInvoice    *string
	FleetCost       *decimal.Decimal
	FleetDueDate    *time.Time

	PricingStatus PricingStatus
	ReviewedBy    *uuid.UUID
	ReviewedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewDelivery holds the fields required to record a delivery for the first time.
// NativeUoM and NativeQty of the embedded update are mandatory on creation.
type NewDelivery struct {
	PlantID    uuid.UUID
	MaterialID uuid.UUID
	EntryTime  time.Time
	DeliveryUpdate
}

// DeliveryUpdate carries a correction to a delivery. Nil fields are left untouched.
type DeliveryUpdate struct {
	OrderItemID  *uuid.UUID
	NativeUoM    *UoM
	NativeQty    *decimal.Decimal
	ManualWeight *decimal.Decimal // inline kg/m3, lowest precedence

	UnitPrice *decimal.Decimal
	TotalCost *decimal.Decimal

	SupplierID    *uuid.UUID
	InvoiceNumber *string
	DueDate       *time.Time

	FleetSupplierID *uuid.UUID
	FleetInvoice    *string
	FleetCost       *decimal.Decimal
	FleetDueDate    *time.Time

	MarkReviewed bool
}

// editsPricing reports whether the update touches a field a pricing review covers.
func (u DeliveryUpdate) editsPricing() bool {
	return u.UnitPrice != nil || u.TotalCost != nil || u.FleetSupplierID != nil || u.FleetCost != nil
}

// clone returns a deep-enough copy for staging edits without aliasing the stored record.
func (d *Delivery) clone() *Delivery {
	c := *d
	return &c
}
