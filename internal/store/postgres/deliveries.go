package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"receiving-engine/internal/core"
)

const deliveryColumns = `id, plant_id, material_id, supplier_id, entry_time, native_uom, native_qty,
	kg_equivalent, volumetric_weight_used, weight_source, remaining_kg, po_id, po_item_id,
	unit_price, total_cost, invoice_number, due_date, fleet_supplier_id, fleet_invoice,
	fleet_cost, fleet_due_date, pricing_status, reviewed_by, reviewed_at, created_at, updated_at`

func scanDelivery(row pgx.Row) (*core.Delivery, error) {
	var d core.Delivery
	err := row.Scan(&d.ID, &d.PlantID, &d.MaterialID, &d.SupplierID, &d.EntryTime, &d.NativeUoM,
		&d.NativeQty, &d.KgEquivalent, &d.VolumetricWeightUsed, &d.WeightSource, &d.RemainingKg,
		&d.OrderID, &d.OrderItemID, &d.UnitPrice, &d.TotalCost, &d.InvoiceNumber, &d.DueDate,
		&d.FleetSupplierID, &d.FleetInvoice, &d.FleetCost, &d.FleetDueDate, &d.PricingStatus,
		&d.ReviewedBy, &d.ReviewedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (t *pgTx) GetDelivery(ctx context.Context, id uuid.UUID) (*core.Delivery, error) {
	d, err := scanDelivery(t.tx.QueryRow(ctx,
		"SELECT "+deliveryColumns+" FROM material_entries WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	return d, nil
}

func (t *pgTx) LockDelivery(ctx context.Context, id uuid.UUID) (*core.Delivery, error) {
	d, err := scanDelivery(t.tx.QueryRow(ctx,
		"SELECT "+deliveryColumns+" FROM material_entries WHERE id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, notFound(err, "delivery", id)
	}
	return d, nil
}

func (t *pgTx) InsertDelivery(ctx context.Context, d *core.Delivery) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO material_entries (`+deliveryColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
		        $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		d.ID, d.PlantID, d.MaterialID, d.SupplierID, d.EntryTime, d.NativeUoM, d.NativeQty,
		d.KgEquivalent, d.VolumetricWeightUsed, d.WeightSource, d.RemainingKg, d.OrderID, d.OrderItemID,
		d.UnitPrice, d.TotalCost, d.InvoiceNumber, d.DueDate, d.FleetSupplierID, d.FleetInvoice,
		d.FleetCost, d.FleetDueDate, d.PricingStatus, d.ReviewedBy, d.ReviewedAt, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// SaveDelivery rewrites every mutable column. remaining_kg and created_at are left alone.
func (t *pgTx) SaveDelivery(ctx context.Context, d *core.Delivery) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE material_entries SET
		    supplier_id = $2, native_uom = $3, native_qty = $4, kg_equivalent = $5,
		    volumetric_weight_used = $6, weight_source = $7, po_id = $8, po_item_id = $9,
		    unit_price = $10, total_cost = $11, invoice_number = $12, due_date = $13,
		    fleet_supplier_id = $14, fleet_invoice = $15, fleet_cost = $16, fleet_due_date = $17,
		    pricing_status = $18, reviewed_by = $19, reviewed_at = $20, updated_at = $21
		WHERE id = $1`,
		d.ID, d.SupplierID, d.NativeUoM, d.NativeQty, d.KgEquivalent,
		d.VolumetricWeightUsed, d.WeightSource, d.OrderID, d.OrderItemID,
		d.UnitPrice, d.TotalCost, d.InvoiceNumber, d.DueDate,
		d.FleetSupplierID, d.FleetInvoice, d.FleetCost, d.FleetDueDate,
		d.PricingStatus, d.ReviewedBy, d.ReviewedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delivery %s: %w", d.ID, core.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ListDeliveriesByOrderLine(ctx context.Context, lineID uuid.UUID) ([]core.Delivery, error) {
	rows, err := t.tx.Query(ctx,
		"SELECT "+deliveryColumns+" FROM material_entries WHERE po_item_id = $1 ORDER BY entry_time FOR UPDATE", lineID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var out []core.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
