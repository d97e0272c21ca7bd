package core

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence boundary of the receiving engine.
//
// InTx runs fn inside one transaction: fn's writes commit together when it returns nil and
// are discarded otherwise. Implementations report write-write races (serialization failures,
// deadlocks, stale versions) as errors wrapping ErrPersistenceConflict.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations available inside a Store transaction. Lookups by id return an
// error wrapping ErrNotFound when the row does not exist.
type Tx interface {
	// ── Reference data (no locks) ──────────────────────────────────────────

	GetMaterial(ctx context.Context, id uuid.UUID) (*Material, error)
	GetPlant(ctx context.Context, id uuid.UUID) (*Plant, error)
	GetBusinessUnit(ctx context.Context, id uuid.UUID) (*BusinessUnit, error)
	GetSupplier(ctx context.Context, id uuid.UUID) (*Supplier, error)
	// ActiveAgreement returns the active, non-service agreement for supplier+material,
	// or nil without error when there is none.
	ActiveAgreement(ctx context.Context, supplierID, materialID uuid.UUID) (*SupplierAgreement, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*PurchaseOrder, error)
	GetOrderLine(ctx context.Context, id uuid.UUID) (*OrderLine, error)

	// ── Deliveries ─────────────────────────────────────────────────────────

	GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)
	// LockDelivery reads a delivery and holds it exclusively until the transaction ends,
	// so two corrections of the same delivery never share a baseline.
	LockDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)
	InsertDelivery(ctx context.Context, d *Delivery) error
	SaveDelivery(ctx context.Context, d *Delivery) error
	ListDeliveriesByOrderLine(ctx context.Context, lineID uuid.UUID) ([]Delivery, error)

	// ── Order lines ────────────────────────────────────────────────────────

	// AdvanceOrderLine atomically adds p to the line's cumulative counters and recomputes
	// its status, provided p.DeltaNative fits in the open balance (within tolerance).
	// Otherwise nothing is written and the error wraps ErrPoBalanceExceeded.
	AdvanceOrderLine(ctx context.Context, lineID uuid.UUID, p Progress, tolerance decimal.Decimal) (*OrderLine, error)
	LockOrderLine(ctx context.Context, id uuid.UUID) (*OrderLine, error)
	// SaveOrderLinePrice writes unit_price, original_unit_price and credit_amount only.
	SaveOrderLinePrice(ctx context.Context, line *OrderLine) error
	InsertOrderLineCredit(ctx context.Context, c *OrderLineCredit) error

	// ── Payables ───────────────────────────────────────────────────────────

	// UpsertPayable creates the payable addressed by key or refreshes the mutable header
	// fields of the existing one. It is atomic per key.
	UpsertPayable(ctx context.Context, key PayableKey, h PayableHeader) (*Payable, error)
	// UpsertPayableLine creates or updates the line addressed by (DeliveryID, Category).
	// previous is the payable the line belonged to before, when that differs from l.PayableID.
	UpsertPayableLine(ctx context.Context, l PayableLine) (saved *PayableLine, previous *uuid.UUID, err error)
	// DeletePayableLine removes the line addressed by (deliveryID, category) and returns the
	// payable it belonged to, or nil without error when there was no such line.
	DeletePayableLine(ctx context.Context, deliveryID uuid.UUID, category CostCategory) (*uuid.UUID, error)
	GetPayable(ctx context.Context, id uuid.UUID) (*Payable, error)
	GetPayableByKey(ctx context.Context, key PayableKey) (*Payable, error)
	ListPayableLines(ctx context.Context, payableID uuid.UUID) ([]PayableLine, error)
	SetPayableTotals(ctx context.Context, id uuid.UUID, status string, subtotal, tax, total decimal.Decimal) error
}

// MatchComparator is the external three-way-match control: given a payable, it returns the
// lines whose invoiced amount disagrees with what was ordered and received.
type MatchComparator interface {
	Compare(ctx context.Context, payableID uuid.UUID) ([]Mismatch, error)
}
