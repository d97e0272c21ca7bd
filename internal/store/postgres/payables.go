package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"receiving-engine/internal/core"
)

const payableColumns = `id, supplier_id, plant_id, invoice_number, tax_rate, currency, due_date,
	status, subtotal, tax, total, created_at, updated_at`

func scanPayable(row pgx.Row) (*core.Payable, error) {
	var p core.Payable
	err := row.Scan(&p.ID, &p.SupplierID, &p.PlantID, &p.InvoiceNumber, &p.TaxRate, &p.Currency,
		&p.DueDate, &p.Status, &p.Subtotal, &p.Tax, &p.Total, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertPayable keys on (supplier_id, plant_id, invoice_number). Currency is fixed by the
// first delivery that creates the header.
func (t *pgTx) UpsertPayable(ctx context.Context, key core.PayableKey, h core.PayableHeader) (*core.Payable, error) {
	p, err := scanPayable(t.tx.QueryRow(ctx, `
		INSERT INTO payables (id, supplier_id, plant_id, invoice_number, tax_rate, currency, due_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (supplier_id, plant_id, invoice_number) DO UPDATE
		SET tax_rate = EXCLUDED.tax_rate,
		    due_date = EXCLUDED.due_date,
		    updated_at = now()
		RETURNING `+payableColumns,
		uuid.New(), key.SupplierID, key.PlantID, key.InvoiceNumber, h.TaxRate, h.Currency, h.DueDate))
	if err != nil {
		return nil, fmt.Errorf("upsert payable: %w", err)
	}
	return p, nil
}

// UpsertPayableLine keys on (entry_id, cost_category). The CTE captures the payable the line
// belonged to before the upsert so its totals can be refreshed too.
func (t *pgTx) UpsertPayableLine(ctx context.Context, l core.PayableLine) (*core.PayableLine, *uuid.UUID, error) {
	var (
		saved    core.PayableLine
		previous *uuid.UUID
	)
	err := t.tx.QueryRow(ctx, `
		WITH prior AS (
		    SELECT payable_id FROM payable_items
		    WHERE entry_id = $3 AND cost_category = $4
		    FOR UPDATE
		)
		INSERT INTO payable_items (id, payable_id, entry_id, cost_category, po_item_id, amount, native_uom, native_qty, weight_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (entry_id, cost_category) DO UPDATE
		SET payable_id  = EXCLUDED.payable_id,
		    po_item_id  = EXCLUDED.po_item_id,
		    amount      = EXCLUDED.amount,
		    native_uom  = EXCLUDED.native_uom,
		    native_qty  = EXCLUDED.native_qty,
		    weight_used = EXCLUDED.weight_used,
		    updated_at  = now()
		RETURNING id, payable_id, entry_id, cost_category, po_item_id, amount, native_uom, native_qty, weight_used, updated_at,
		          (SELECT payable_id FROM prior)`,
		uuid.New(), l.PayableID, l.DeliveryID, l.Category, l.OrderItemID, l.Amount, l.NativeUoM, l.NativeQty, l.WeightUsed,
	).Scan(&saved.ID, &saved.PayableID, &saved.DeliveryID, &saved.Category, &saved.OrderItemID, &saved.Amount,
		&saved.NativeUoM, &saved.NativeQty, &saved.WeightUsed, &saved.UpdatedAt, &previous)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert payable line: %w", err)
	}
	if previous != nil && *previous == saved.PayableID {
		previous = nil
	}
	return &saved, previous, nil
}

func (t *pgTx) DeletePayableLine(ctx context.Context, deliveryID uuid.UUID, category core.CostCategory) (*uuid.UUID, error) {
	var payableID uuid.UUID
	err := t.tx.QueryRow(ctx,
		"DELETE FROM payable_items WHERE entry_id = $1 AND cost_category = $2 RETURNING payable_id",
		deliveryID, category).Scan(&payableID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete payable line: %w", err)
	}
	return &payableID, nil
}

func (t *pgTx) GetPayable(ctx context.Context, id uuid.UUID) (*core.Payable, error) {
	p, err := scanPayable(t.tx.QueryRow(ctx,
		"SELECT "+payableColumns+" FROM payables WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "payable", id)
	}
	return p, nil
}

func (t *pgTx) GetPayableByKey(ctx context.Context, key core.PayableKey) (*core.Payable, error) {
	p, err := scanPayable(t.tx.QueryRow(ctx,
		"SELECT "+payableColumns+" FROM payables WHERE supplier_id = $1 AND plant_id = $2 AND invoice_number = $3",
		key.SupplierID, key.PlantID, key.InvoiceNumber))
	if err != nil {
		return nil, notFound(err, "payable", key.InvoiceNumber)
	}
	return p, nil
}

func (t *pgTx) ListPayableLines(ctx context.Context, payableID uuid.UUID) ([]core.PayableLine, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, payable_id, entry_id, cost_category, po_item_id, amount, native_uom, native_qty, weight_used, updated_at
		FROM payable_items WHERE payable_id = $1 ORDER BY updated_at, id`, payableID)
	if err != nil {
		return nil, fmt.Errorf("list payable lines: %w", err)
	}
	defer rows.Close()

	var out []core.PayableLine
	for rows.Next() {
		var l core.PayableLine
		if err := rows.Scan(&l.ID, &l.PayableID, &l.DeliveryID, &l.Category, &l.OrderItemID, &l.Amount,
			&l.NativeUoM, &l.NativeQty, &l.WeightUsed, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan payable line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (t *pgTx) SetPayableTotals(ctx context.Context, id uuid.UUID, status string, subtotal, tax, total decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		"UPDATE payables SET status = $2, subtotal = $3, tax = $4, total = $5, updated_at = now() WHERE id = $1",
		id, status, subtotal, tax, total)
	if err != nil {
		return fmt.Errorf("update payable totals: %w", err)
	}
	return nil
}
