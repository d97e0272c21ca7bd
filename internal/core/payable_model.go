package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PayableKey is the natural key of an accounts-payable invoice header.
type PayableKey struct {
	SupplierID    uuid.UUID
	PlantID       uuid.UUID
	InvoiceNumber string
}

// Payable header statuses. A header whose last line moved away or was withdrawn is void; it
// reopens when a line is posted to it again.
const (
	PayableOpen = "open"
	PayableVoid = "void"
)

// Payable is an accounts-payable invoice header.
type Payable struct {
	ID uuid.UUID
	PayableKey
	TaxRate   decimal.Decimal
	Currency  string
	DueDate   *time.Time
	Status    string
	Subtotal  decimal.Decimal
	Tax       decimal.Decimal
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PayableHeader holds the mutable fields written on every upsert of a Payable.
type PayableHeader struct {
	TaxRate  decimal.Decimal
	Currency string
	DueDate  *time.Time
}

// PayableLine is one cost line of a Payable. DeliveryID + Category is its natural key.
type PayableLine struct {
	ID          uuid.UUID
	PayableID   uuid.UUID
	DeliveryID  uuid.UUID
	Category    CostCategory
	OrderItemID *uuid.UUID
	Amount      decimal.Decimal
	NativeUoM   UoM
	NativeQty   decimal.Decimal
	WeightUsed  *decimal.Decimal
	UpdatedAt   time.Time
}

// Mismatch is a three-way-match discrepancy reported by a MatchComparator.
type Mismatch struct {
	PayableID  uuid.UUID
	DeliveryID uuid.UUID
	Category   CostCategory
	Amount     decimal.Decimal
	Expected   decimal.Decimal
}
