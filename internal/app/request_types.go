package app

import (
	"github.com/shopspring/decimal"
)

// ActorInput identifies the user performing an operation as the surrounding ERP authenticated it.
type ActorInput struct {
	UserID  string `json:"user_id"`
	Role    string `json:"role"`
	PlantID string `json:"plant_id,omitempty"`
}

// DeliveryFields are the editable fields of a delivery. Dates use YYYY-MM-DD.
type DeliveryFields struct {
	OrderItemID  *string          `json:"order_item_id,omitempty"`
	NativeUoM    *string          `json:"native_uom,omitempty"`
	NativeQty    *decimal.Decimal `json:"native_qty,omitempty"`
	ManualWeight *decimal.Decimal `json:"volumetric_weight,omitempty"`

	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
	TotalCost *decimal.Decimal `json:"total_cost,omitempty"`

	SupplierID    *string `json:"supplier_id,omitempty"`
	InvoiceNumber *string `json:"invoice_number,omitempty"`
	DueDate       *string `json:"due_date,omitempty"`

	FleetSupplierID *string          `json:"fleet_supplier_id,omitempty"`
	FleetInvoice    *string          `json:"fleet_invoice,omitempty"`
	FleetCost       *decimal.Decimal `json:"fleet_cost,omitempty"`
	FleetDueDate    *string          `json:"fleet_due_date,omitempty"`

	MarkReviewed bool `json:"mark_reviewed,omitempty"`
}

// RecordDeliveryRequest is the input for recording a new delivery.
// EntryTime is RFC 3339; empty means now.
type RecordDeliveryRequest struct {
	Actor      ActorInput `json:"actor"`
	PlantID    string     `json:"plant_id"`
	MaterialID string     `json:"material_id"`
	EntryTime  string     `json:"entry_time,omitempty"`
	DeliveryFields
}

// CorrectDeliveryRequest is the input for correcting an existing delivery.
type CorrectDeliveryRequest struct {
	Actor      ActorInput `json:"actor"`
	DeliveryID string     `json:"delivery_id"`
	DeliveryFields
}

// ApplyCreditRequest is the input for applying a supplier credit to an order line.
type ApplyCreditRequest struct {
	Actor       ActorInput      `json:"actor"`
	OrderItemID string          `json:"order_item_id"`
	Amount      decimal.Decimal `json:"amount"`
	Notes       string          `json:"notes,omitempty"`
}
