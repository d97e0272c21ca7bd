// Package postgres implements core.Store on PostgreSQL with pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"receiving-engine/internal/core"
)

var (
	_ core.Store = (*Store)(nil)
	_ core.Tx    = (*pgTx)(nil)
)

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx implements core.Store. Serialization failures and deadlocks, whether raised by a
// statement or at commit, are reported as core.ErrPersistenceConflict.
func (s *Store) InTx(ctx context.Context, fn func(tx core.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", mapErr(err))
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapErr(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", mapErr(err))
	}
	return nil
}

// mapErr translates PostgreSQL conflict codes into core.ErrPersistenceConflict.
func mapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", core.ErrPersistenceConflict, pgErr.Message)
		}
	}
	return err
}

func notFound(err error, kind string, id any) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", kind, id, core.ErrNotFound)
	}
	return fmt.Errorf("fetch %s %v: %w", kind, id, err)
}

type pgTx struct {
	tx pgx.Tx
}

// ── Reference data ───────────────────────────────────────────────────────────

func (t *pgTx) GetMaterial(ctx context.Context, id uuid.UUID) (*core.Material, error) {
	var m core.Material
	err := t.tx.QueryRow(ctx,
		"SELECT id, name, bulk_density FROM materials WHERE id = $1", id,
	).Scan(&m.ID, &m.Name, &m.BulkDensity)
	if err != nil {
		return nil, notFound(err, "material", id)
	}
	return &m, nil
}

func (t *pgTx) GetPlant(ctx context.Context, id uuid.UUID) (*core.Plant, error) {
	var p core.Plant
	err := t.tx.QueryRow(ctx,
		"SELECT id, code, business_unit_id FROM plants WHERE id = $1", id,
	).Scan(&p.ID, &p.Code, &p.BusinessUnitID)
	if err != nil {
		return nil, notFound(err, "plant", id)
	}
	return &p, nil
}

func (t *pgTx) GetBusinessUnit(ctx context.Context, id uuid.UUID) (*core.BusinessUnit, error) {
	var b core.BusinessUnit
	err := t.tx.QueryRow(ctx,
		"SELECT id, name, default_tax_rate FROM business_units WHERE id = $1", id,
	).Scan(&b.ID, &b.Name, &b.DefaultTaxRate)
	if err != nil {
		return nil, notFound(err, "business unit", id)
	}
	return &b, nil
}

func (t *pgTx) GetSupplier(ctx context.Context, id uuid.UUID) (*core.Supplier, error) {
	var s core.Supplier
	err := t.tx.QueryRow(ctx,
		"SELECT id, name, payment_terms_days FROM suppliers WHERE id = $1", id,
	).Scan(&s.ID, &s.Name, &s.PaymentTermsDays)
	if err != nil {
		return nil, notFound(err, "supplier", id)
	}
	return &s, nil
}

func (t *pgTx) ActiveAgreement(ctx context.Context, supplierID, materialID uuid.UUID) (*core.SupplierAgreement, error) {
	var a core.SupplierAgreement
	err := t.tx.QueryRow(ctx, `
		SELECT id, supplier_id, material_id, is_service, volumetric_weight, tax_rate, effective_from, effective_to
		FROM supplier_agreements
		WHERE supplier_id = $1 AND material_id = $2 AND effective_to IS NULL AND NOT is_service
		ORDER BY effective_from DESC
		LIMIT 1`,
		supplierID, materialID,
	).Scan(&a.ID, &a.SupplierID, &a.MaterialID, &a.IsService, &a.VolumetricWeight, &a.TaxRate, &a.EffectiveFrom, &a.EffectiveTo)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch supplier agreement: %w", err)
	}
	return &a, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id uuid.UUID) (*core.PurchaseOrder, error) {
	var o core.PurchaseOrder
	err := t.tx.QueryRow(ctx, `
		SELECT id, plant_id, supplier_id, po_number, currency, status, created_at
		FROM purchase_orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.PlantID, &o.SupplierID, &o.PONumber, &o.Currency, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	return &o, nil
}

const orderLineColumns = `id, po_id, material_id, is_service, uom, qty_ordered, qty_received_native,
	qty_received_kg, unit_price, status, volumetric_weight, original_unit_price, credit_amount, updated_at`

func scanOrderLine(row pgx.Row) (*core.OrderLine, error) {
	var l core.OrderLine
	err := row.Scan(&l.ID, &l.OrderID, &l.MaterialID, &l.IsService, &l.UoM, &l.QtyOrdered,
		&l.QtyReceivedNative, &l.QtyReceivedKg, &l.UnitPrice, &l.Status, &l.VolumetricWeight,
		&l.OriginalUnitPrice, &l.CreditAmount, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func (t *pgTx) GetOrderLine(ctx context.Context, id uuid.UUID) (*core.OrderLine, error) {
	l, err := scanOrderLine(t.tx.QueryRow(ctx,
		"SELECT "+orderLineColumns+" FROM purchase_order_items WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "order line", id)
	}
	return l, nil
}

func (t *pgTx) LockOrderLine(ctx context.Context, id uuid.UUID) (*core.OrderLine, error) {
	l, err := scanOrderLine(t.tx.QueryRow(ctx,
		"SELECT "+orderLineColumns+" FROM purchase_order_items WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, notFound(err, "order line", id)
	}
	return l, nil
}

// ── Order progress ───────────────────────────────────────────────────────────

// AdvanceOrderLine adds the increment in a single conditional UPDATE: the balance check and the
// write see the same row version, so concurrent receipts against one line serialize on the
// row lock and the loser re-evaluates the guard against the winner's counters.
func (t *pgTx) AdvanceOrderLine(ctx context.Context, lineID uuid.UUID, p core.Progress, tolerance decimal.Decimal) (*core.OrderLine, error) {
	l, err := scanOrderLine(t.tx.QueryRow(ctx, `
		UPDATE purchase_order_items
		SET qty_received_native = qty_received_native + $2,
		    qty_received_kg     = qty_received_kg + $3,
		    status = CASE
		        WHEN qty_received_native + $2 <= 0 THEN 'pending'
		        WHEN qty_received_native + $2 >= qty_ordered - $4 THEN 'fulfilled'
		        ELSE 'partial'
		    END,
		    updated_at = now()
		WHERE id = $1 AND $2 <= (qty_ordered - qty_received_native) + $4
		RETURNING `+orderLineColumns,
		lineID, p.DeltaNative, p.DeltaKg, tolerance))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("advance order line %s: %w", lineID, err)
	}

	// Either the line is gone or the guard rejected the increment.
	current, getErr := t.GetOrderLine(ctx, lineID)
	if getErr != nil {
		return nil, getErr
	}
	if balanceErr := core.CheckBalance(current, p.DeltaNative, tolerance); balanceErr != nil {
		return nil, balanceErr
	}
	return nil, fmt.Errorf("order line %s: increment %s rejected: %w", lineID, p.DeltaNative, core.ErrPoBalanceExceeded)
}

func (t *pgTx) SaveOrderLinePrice(ctx context.Context, line *core.OrderLine) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE purchase_order_items
		SET unit_price = $2, original_unit_price = $3, credit_amount = $4, updated_at = $5
		WHERE id = $1`,
		line.ID, line.UnitPrice, line.OriginalUnitPrice, line.CreditAmount, line.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update order line price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order line %s: %w", line.ID, core.ErrNotFound)
	}
	return nil
}

func (t *pgTx) InsertOrderLineCredit(ctx context.Context, c *core.OrderLineCredit) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO po_item_credit_history
		    (id, po_item_id, applied_amount, cumulative_amount_after, unit_price_before, unit_price_after, notes, applied_by, applied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.OrderLineID, c.AppliedAmount, c.CumulativeAmountAfter, c.UnitPriceBefore,
		c.UnitPriceAfter, c.Notes, c.AppliedBy, c.AppliedAt)
	if err != nil {
		return fmt.Errorf("insert credit history: %w", err)
	}
	return nil
}
