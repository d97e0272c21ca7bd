package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrder is the header an order line belongs to.
type PurchaseOrder struct {
	ID         uuid.UUID
	PlantID    uuid.UUID
	SupplierID uuid.UUID
	PONumber   string
	Currency   string
	Status     string
	CreatedAt  time.Time
}

// OrderLine is a single purchase order item. The cumulative received counters are owned by
// the progress tracker and are only advanced through Tx.AdvanceOrderLine.
type OrderLine struct {
	ID                uuid.UUID
	OrderID           uuid.UUID
	MaterialID        *uuid.UUID
	IsService         bool
	UoM               UoM
	QtyOrdered        decimal.Decimal
	QtyReceivedNative decimal.Decimal
	QtyReceivedKg     decimal.Decimal
	UnitPrice         decimal.Decimal
	Status            OrderLineStatus
	VolumetricWeight  *decimal.Decimal
	// Credit fields. OriginalUnitPrice is set on the first credit and never changes afterwards.
	OriginalUnitPrice *decimal.Decimal
	CreditAmount      decimal.Decimal
	UpdatedAt         time.Time
}

// Remaining is the native quantity still open on the line.
func (l *OrderLine) Remaining() decimal.Decimal {
	return l.QtyOrdered.Sub(l.QtyReceivedNative)
}

// OrderLineCredit is one row of an order line's credit history.
type OrderLineCredit struct {
	ID                    uuid.UUID
	OrderLineID           uuid.UUID
	AppliedAmount         decimal.Decimal
	CumulativeAmountAfter decimal.Decimal
	UnitPriceBefore       decimal.Decimal
	UnitPriceAfter        decimal.Decimal
	Notes                 *string
	AppliedBy             uuid.UUID
	AppliedAt             time.Time
}
